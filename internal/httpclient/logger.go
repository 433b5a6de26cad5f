package httpclient

import "github.com/tphakala/uvotredux/internal/logger"

// GetLogger returns the httpclient module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("httpclient")
}
