package http

import (
	"errors"
	"net/http"

	"loan-submission-queue/internal/domain/session"
	"loan-submission-queue/internal/domain/submission"
	"loan-submission-queue/internal/domain/upload"

	"github.com/labstack/echo/v4"
)

func statusOf(err error) int {
	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, submission.ErrNotFound), errors.Is(err, upload.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, submission.ErrNotCancellable), errors.Is(err, submission.ErrNotRetryable),
		errors.Is(err, upload.ErrNotCancelable):
		return http.StatusConflict
	case errors.Is(err, upload.ErrValidation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError hides internal error text behind a generic message.
func writeError(c echo.Context, err error) error {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	return c.JSON(code, ErrorResponse{Error: msg})
}

// bindAndValidate returns the 400 payload for a bad request body, or nil.
func bindAndValidate(c echo.Context, v any) *ErrorResponse {
	if err := c.Bind(v); err != nil {
		return &ErrorResponse{Error: "invalid body"}
	}
	if err := c.Validate(v); err != nil {
		return &ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)}
	}
	return nil
}
