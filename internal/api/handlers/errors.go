package handlers

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every error returned by a handler as {"error":{"code","message"}}.
func ErrorHandler(log logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status == http.StatusInternalServerError {
			log.Error("Request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorResponse{Error: body})
		}
		if err != nil {
			log.Error("Failed to write error response", "error", err)
		}
	}
}

func render(err error) (int, ErrorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := strings.ToLower(strings.ReplaceAll(http.StatusText(he.Code), " ", "_"))
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, ErrorBody{Code: code, Message: msg}
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, ErrorBody{Code: "internal", Message: "internal error"}
	}
	if de.Kind == domain.KindInternal {
		return http.StatusInternalServerError, ErrorBody{Code: de.Code, Message: "internal error"}
	}
	return StatusOf(de.Kind), ErrorBody{Code: de.Code, Message: message(err, de)}
}

// message keeps the detail added by wrapping and drops the "service:" prefix.
func message(err error, de *domain.Error) string {
	msg := err.Error()
	if i := strings.Index(msg, de.Message); i > 0 {
		msg = msg[i:]
	}
	return msg
}
