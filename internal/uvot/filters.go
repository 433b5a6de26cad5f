// Package uvot reduces Swift UVOT observations: it sums the sky images of
// each filter with uvotimsum and measures the source with uvotsource.
package uvot

import (
	"fmt"
	"path/filepath"

	"github.com/tphakala/uvotredux/internal/errors"
)

// ErrUnknownFilter means an image name carries a filter code outside the table
var ErrUnknownFilter = errors.NewStd("unknown UVOT filter code")

// Filter code position within an image name such as sw00012345001uw1_sk.img
const (
	filterCodeStart = 14
	filterCodeEnd   = 16
)

var filterTable = []struct {
	code string
	name string
}{
	{"vv", "V"},
	{"bb", "B"},
	{"uu", "U"},
	{"w1", "UW1"},
	{"m2", "UM2"},
	{"w2", "UW2"},
	{"wh", "W"},
}

// Filters returns the filter names in table order
func Filters() []string {
	names := make([]string, len(filterTable))
	for i, f := range filterTable {
		names[i] = f.name
	}
	return names
}

// FilterName maps a two character code to its filter name
func FilterName(code string) (string, error) {
	for _, f := range filterTable {
		if f.code == code {
			return f.name, nil
		}
	}
	return "", errors.New(fmt.Errorf("%w: %q", ErrUnknownFilter, code)).
		Component("uvot").
		Category(errors.CategoryDataIntegrity).
		Context("filter_code", code).
		Build()
}

// ParseFilterCode returns the filter name encoded in an image file name
func ParseFilterCode(filename string) (string, error) {
	base := filepath.Base(filename)
	if len(base) < filterCodeEnd {
		return "", errors.New(fmt.Errorf("%w: name too short: %s", ErrUnknownFilter, base)).
			Component("uvot").
			Category(errors.CategoryDataIntegrity).
			FileContext(filename).
			Build()
	}

	name, err := FilterName(base[filterCodeStart:filterCodeEnd])
	if err != nil {
		return "", errors.New(fmt.Errorf("%w in %s", err, base)).
			Component("uvot").
			Category(errors.CategoryDataIntegrity).
			FileContext(filename).
			Build()
	}
	return name, nil
}
