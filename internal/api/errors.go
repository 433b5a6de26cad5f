package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	resp := &ErrorResponse{Message: message, Code: code, Error: http.StatusText(code)}
	if err != nil && code < http.StatusInternalServerError {
		resp.Error = err.Error()
	}
	return resp
}

// HandleError logs err and writes an ErrorResponse. Server errors hide the
// underlying error text from the client.
func HandleError(c echo.Context, err error, message string, code int) error {
	log := GetLogger().WithContext(c.Request().Context())
	fields := []logger.Field{
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.Error(err),
	}
	if code >= http.StatusInternalServerError {
		log.Error("API error", fields...)
	} else {
		log.Debug("API error", fields...)
	}
	return c.JSON(code, NewErrorResponse(err, message, code))
}

// statusFor maps an error category to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// httpErrorHandler renders echo's own errors, such as unknown routes, as ErrorResponse
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	message := "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		}
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, NewErrorResponse(nil, message, code))
}
