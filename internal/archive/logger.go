package archive

import "github.com/tphakala/uvotredux/internal/logger"

// GetLogger returns the archive module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("archive")
}
