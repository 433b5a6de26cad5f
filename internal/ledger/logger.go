package ledger

import "github.com/tphakala/uvotredux/internal/logger"

// GetLogger returns the ledger module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("ledger")
}
