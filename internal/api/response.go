package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

// Response is the envelope of every API response.
type Response struct {
	Status string     `json:"status"` // "ok" or "error"
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Codes for failures that are not domain errors.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInternal     = "INTERNAL"
)

func ok(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(Response{Status: "ok", Data: data})
}

// authError is a 401 raised by the claims middleware.
type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }

func unauthorized(msg string) error { return &authError{msg: msg} }

// StatusFor maps an error class to its HTTP status.
func StatusFor(class domain.ErrorClass) int {
	switch class {
	case domain.ClassValidation:
		return http.StatusBadRequest
	case domain.ClassNotFound:
		return http.StatusNotFound
	case domain.ClassForbidden:
		return http.StatusForbidden
	case domain.ClassResourceConflict, domain.ClassStateConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler renders every error returned by a handler or middleware.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := render(err)

		switch {
		case domain.IsIntegrity(err):
			logger.Error("request failed", "integrity", true, "method", c.Method(), "path", c.Path(), "error", err)
		case status >= http.StatusInternalServerError:
			logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		}

		return c.Status(status).JSON(Response{Status: "error", Error: body})
	}
}

func render(err error) (int, *ErrorBody) {
	var de *domain.Error
	if errors.As(err, &de) {
		return StatusFor(de.Class()), &ErrorBody{
			Code:    string(de.Code),
			Message: de.Message,
			Details: de.Details(),
		}
	}

	var ae *authError
	if errors.As(err, &ae) {
		return http.StatusUnauthorized, &ErrorBody{Code: CodeUnauthorized, Message: ae.msg}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := CodeInternal
		switch fe.Code {
		case http.StatusNotFound:
			code = string(domain.ErrCodeNotFound)
		case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusMethodNotAllowed:
			code = string(domain.ErrCodeInvalidInput)
		}
		return fe.Code, &ErrorBody{Code: code, Message: fe.Message}
	}

	return http.StatusInternalServerError, &ErrorBody{Code: CodeInternal, Message: "internal error"}
}
