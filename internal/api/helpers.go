package api

import (
	"io"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// ResponseError is the body of every error response, wrapped as {"error": ...}.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

func writeServiceError(c *echo.Context, err error) error {
	status, errType := statusFor(err)
	return writeError(c, status, errType, err.Error(), "", "")
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
