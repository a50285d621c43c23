package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webshop-accounts/internal/apperr"
)

// envelope is the shape of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func success(c echo.Context, status int, msg string, data any) error {
	return c.JSON(status, envelope{Success: true, Message: msg, Data: data})
}

// ErrorHandler renders every error returned by handlers and middleware in
// the envelope.  Internal causes are logged, never sent.
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			status int
			body   envelope
		)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			body.Message = http.StatusText(status)
			if m, ok := he.Message.(string); ok && m != "" {
				body.Message = m
			}
			if status >= http.StatusInternalServerError {
				log.Error("request failed", "path", c.Path(), "err", err)
				body.Message = "Internal server error"
			}
		} else {
			ae := apperr.From(err)
			status = ae.Kind.Status()
			body.Message = ae.Message
			body.Code = ae.Code
			if ae.Kind == apperr.KindInternal {
				log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", ae.Err)
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Warn("error response not written", "err", err)
		}
	}
}

// bindStrict decodes a single JSON object into dst, rejecting unknown
// fields and mistyped values.
func bindStrict(c echo.Context, dst any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation(decodeMessage(err)).Wrap(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apperr.Validation("Request body must contain a single JSON object")
	}
	return nil
}

func decodeMessage(err error) string {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return "Request body is required"
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return "Malformed JSON body"
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return fmt.Sprintf("Field %q has an invalid type", typeErr.Field)
		}
		return "Request body must be a JSON object"
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return "Unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
	}
	return "Invalid request body"
}

// pathID parses the :id path parameter as a positive integer.
func pathID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("Invalid user ID")
	}
	return id, nil
}
