package xrt

import "github.com/tphakala/uvotredux/internal/logger"

// GetLogger returns the xrt module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("xrt")
}
