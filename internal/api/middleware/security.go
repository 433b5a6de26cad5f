package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// apiContentSecurityPolicy forbids everything, responses are JSON or CSV
const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// SecurityConfig holds the CORS and header settings of the results API
type SecurityConfig struct {
	AllowedOrigins []string
}

// NewCORS allows cross-origin reads. The API has no mutating routes.
func NewCORS(config SecurityConfig) echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: config.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	})
}

// NewSecureHeaders sets nosniff, frame denial and a deny-all content policy
func NewSecureHeaders() echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: apiContentSecurityPolicy,
	})
}

// NewBodyLimit rejects request bodies above limit, e.g. "64K"
func NewBodyLimit(limit string) echo.MiddlewareFunc {
	return middleware.BodyLimit(limit)
}
