package server

import (
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"scribe/internal/cache"
	"scribe/internal/orchestrator"
	"scribe/internal/provider"
)

// Response is the uniform envelope for non-streaming endpoints.
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func SuccessResponse(c *app.RequestContext, data any) {
	c.JSON(consts.StatusOK, Response{
		Code:    "SUCCESS",
		Message: "operation successful",
		Data:    data,
	})
}

func BadRequestResponse(c *app.RequestContext, message string) {
	c.JSON(consts.StatusBadRequest, Response{
		Code:    "INVALID_INPUT",
		Message: message,
	})
}

// ErrorResponse maps domain errors onto status codes and envelope codes.
// Callers seeing CONTENT_NOT_FOUND are expected to resend raw content.
func ErrorResponse(c *app.RequestContext, err error) {
	status, code := classifyError(err)
	c.JSON(status, Response{
		Code:    code,
		Message: err.Error(),
	})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return consts.StatusNotFound, "CONTENT_NOT_FOUND"
	case errors.Is(err, orchestrator.ErrIterationLimit):
		return consts.StatusUnprocessableEntity, "ITERATION_LIMIT"
	case errors.Is(err, provider.ErrUnknownBackend):
		return consts.StatusBadRequest, "UNKNOWN_MODEL"
	}

	var ce *provider.ClientError
	if errors.As(err, &ce) {
		switch ce.Kind {
		case provider.KindAuth:
			return consts.StatusUnauthorized, "MODEL_AUTH_FAILED"
		case provider.KindRateLimit:
			return consts.StatusTooManyRequests, "MODEL_RATE_LIMITED"
		case provider.KindServer:
			return consts.StatusBadGateway, "MODEL_SERVER_ERROR"
		default:
			return consts.StatusBadGateway, "MODEL_UNREACHABLE"
		}
	}
	return consts.StatusInternalServerError, "INTERNAL_ERROR"
}
