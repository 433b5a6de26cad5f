// Package middleware provides HTTP middleware components for the results API.
package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/uvotredux/internal/logger"
)

// NewRequestLogger logs each request at debug level, 5xx responses at warn.
// Requests matched by skipper are not logged; nil logs everything.
func NewRequestLogger(log logger.Logger, skipper middleware.Skipper) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:     skipper,
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if log == nil {
				return nil
			}

			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			level := logger.LogLevelDebug
			if v.Status >= 500 {
				level = logger.LogLevelWarn
			}
			log.WithContext(c.Request().Context()).Log(level, "request", fields...)
			return nil
		},
	})
}
