package observation

import "github.com/tphakala/uvotredux/internal/logger"

// GetLogger returns the observation module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("observation")
}
