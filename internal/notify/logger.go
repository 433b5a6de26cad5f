package notify

import "github.com/tphakala/uvotredux/internal/logger"

// GetLogger returns the notify module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("notify")
}
