package toolrunner

import "github.com/tphakala/uvotredux/internal/logger"

// GetLogger returns the toolrunner module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("toolrunner")
}
