package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/steve/internal/dialog"
	"github.com/samcharles93/steve/internal/inference"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string { return e.msg }

func (e invalidRequestError) Unwrap() error { return ErrInvalidRequest }

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusFor maps a completion error to an HTTP status and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, dialog.ErrDialogOrder),
		inference.IsValidation(err):
		return http.StatusBadRequest, "invalid_request_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
