package rest

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
)

const internalMessage = "An internal error occurred."

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorBody struct {
	Message string       `json:"message"`
	Code    int          `json:"code"`
	Data    []fieldError `json:"data,omitempty"`
}

// errorHandler renders every handler error as {message, code, data}.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		body := toErrorBody(err)
		if body.Code >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"error", err,
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(body.Code)
		} else {
			werr = c.JSON(body.Code, body)
		}
		if werr != nil {
			logger.Error("failed to write error response", "error", werr)
		}
	}
}

func toErrorBody(err error) errorBody {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		} else if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		if he.Code >= http.StatusInternalServerError {
			msg = internalMessage
		}
		return errorBody{Message: msg, Code: he.Code}
	}

	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindInternal {
		return errorBody{Message: internalMessage, Code: http.StatusInternalServerError}
	}

	body := errorBody{Message: de.Message, Code: de.Kind.HTTPStatus()}
	for _, f := range de.Fields {
		body.Data = append(body.Data, fieldError{Field: f.Field, Message: f.Message})
	}
	return body
}
