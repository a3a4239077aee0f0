package api

import (
	"fmt"
	"net/http"
	"strings"

	"bikedash/internal/engine"
	"bikedash/internal/session"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Error is the HTTP rendition of a failed request.
type Error struct {
	Status  int
	Message string
	cause   error
}

func badRequest(msg string, cause error) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg, cause: cause}
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) MarshalZerologObject(ev *zerolog.Event) {
	ev.Int("status", e.Status).Str("message", e.Message)
	if e.cause != nil {
		ev.Str("cause", fmt.Sprintf("%+v", e.cause))
	}
}

// toError maps a handler error onto a status code. Client mistakes keep
// their message; anything unrecognised becomes a bare 500.
func toError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return &Error{Status: he.Code, Message: fmt.Sprint(he.Message), cause: he.Internal}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return &Error{Status: http.StatusBadRequest, Message: validationMessage(verrs), cause: err}
	}

	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrClosed):
		return &Error{Status: http.StatusNotFound, Message: err.Error(), cause: err}
	case errors.Is(err, engine.ErrUnknownColumn),
		errors.Is(err, engine.ErrInvalidPlotType),
		errors.Is(err, session.ErrInvalidVariant):
		return &Error{Status: http.StatusBadRequest, Message: err.Error(), cause: err}
	case errors.Is(err, session.ErrSuperseded):
		return &Error{Status: http.StatusConflict, Message: "a newer update replaced this one", cause: err}
	}
	return &Error{Status: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError), cause: err}
}

func validationMessage(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: must satisfy %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// ErrorHandler writes every error as {"error": "..."} and logs server
// faults at error level.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		apiErr := toError(err)
		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error().Object("error", apiErr).Str("path", c.Path()).Msg("request failed")
		} else {
			logger.Debug().Object("error", apiErr).Str("path", c.Path()).Msg("request rejected")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(apiErr.Status)
		} else {
			err = c.JSON(apiErr.Status, map[string]string{"error": apiErr.Message})
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}
