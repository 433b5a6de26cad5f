// Package observation discovers Swift observation directories inside a batch directory.
package observation

import (
	"os"
	"slices"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
)

// IDLength is the number of digits in a Swift observation ID (target ID + segment)
const IDLength = 11

// IsObservationID reports whether name is exactly 11 decimal digits
func IsObservationID(name string) bool {
	if len(name) != IDLength {
		return false
	}
	for i := range len(name) {
		if name[i] < '0' || name[i] > '9' {
			return false
		}
	}
	return true
}

// Scan returns the names of the immediate subdirectories of dir that are
// observation IDs. Order follows the directory listing and is not guaranteed.
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.New(err).
			Component("observation").
			Category(errors.CategoryFileIO).
			Context("operation", "scan_batch").
			FileContext(dir).
			Build()
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() || !IsObservationID(entry.Name()) {
			continue
		}
		ids = append(ids, entry.Name())
	}

	GetLogger().Debug("Scanned batch directory",
		logger.String("dir", dir),
		logger.Int("observations", len(ids)))
	return ids, nil
}

// ScanSorted returns the observation IDs of dir in ascending order
func ScanSorted(dir string) ([]string, error) {
	ids, err := Scan(dir)
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}
