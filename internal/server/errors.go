package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/feizhen/virtual-try-on/internal/executor"
	"github.com/feizhen/virtual-try-on/internal/generate"
	"github.com/feizhen/virtual-try-on/internal/remote"
	"github.com/feizhen/virtual-try-on/internal/storage"
)

// errorBody 是所有错误响应的 JSON 结构。
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// classify 把内部错误映射为 HTTP 状态码与错误码。
func classify(err error) (int, string) {
	var (
		inputErr   *generate.InputError
		timeoutErr *executor.TimeoutError
		propErr    *executor.PropagatedError
		fiberErr   *fiber.Error
	)
	switch {
	case errors.As(err, &inputErr):
		return fiber.StatusBadRequest, "invalid_input"
	case errors.Is(err, storage.ErrInvalidKey):
		return fiber.StatusBadRequest, "invalid_result_id"
	case errors.Is(err, generate.ErrUnknownOperation):
		return fiber.StatusNotFound, "operation_not_found"
	case errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound, "result_not_found"
	case errors.Is(err, generate.ErrOperationDisabled):
		return fiber.StatusForbidden, "operation_disabled"
	case errors.As(err, &timeoutErr):
		return fiber.StatusGatewayTimeout, "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fiber.StatusServiceUnavailable, "generator_unavailable"
	case errors.Is(err, remote.ErrNotConfigured):
		return fiber.StatusServiceUnavailable, "generator_not_configured"
	case errors.As(err, &propErr):
		return fiber.StatusBadGateway, "generation_failed"
	case errors.As(err, &fiberErr):
		return fiberErr.Code, codeForStatus(fiberErr.Code)
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "route_not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case fiber.StatusBadRequest:
		return "bad_request"
	default:
		return "request_failed"
	}
}

func renderError(c fiber.Ctx, err error) error {
	status, code := classify(err)
	return c.Status(status).JSON(errorBody{Error: code, Message: err.Error()})
}

// errorHandler 兜底渲染未被路由处理的错误（404、413、panic 等）。
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status, code := classify(err)
		if status >= fiber.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"action":     "http_error",
				"path":       c.Path(),
				"request_id": RequestID(c),
			}).WithError(err).Error("request failed")
		}
		return c.Status(status).JSON(errorBody{Error: code, Message: err.Error()})
	}
}
