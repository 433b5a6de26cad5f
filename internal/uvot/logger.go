package uvot

import "github.com/tphakala/uvotredux/internal/logger"

// GetLogger returns the uvot module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("uvot")
}
