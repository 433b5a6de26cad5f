package region

import "github.com/tphakala/uvotredux/internal/logger"

// GetLogger returns the region module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("region")
}
