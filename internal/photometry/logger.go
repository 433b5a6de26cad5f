package photometry

import "github.com/tphakala/uvotredux/internal/logger"

// GetLogger returns the photometry module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("photometry")
}
