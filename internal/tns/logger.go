package tns

import "github.com/tphakala/uvotredux/internal/logger"

// GetLogger returns the tns module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("tns")
}
