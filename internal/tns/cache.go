package tns

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/antonholmquist/jason"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
)

// Keys added next to the raw TNS columns in tns_info.json
const (
	cacheKeyRA  = "ra"
	cacheKeyDec = "dec"
)

// GetByName returns the TNS entry for name, using dir/tns_info.json when
// useCache is set and the file exists. Fresh results are written to the cache.
func (c *Client) GetByName(ctx context.Context, name, dir string, useCache bool) (*Info, error) {
	log := GetLogger().WithContext(ctx).With(logger.String("name", name))
	path := filepath.Join(dir, CacheFile)

	if useCache {
		info, err := LoadCache(path)
		switch {
		case err == nil:
			log.Info("Loading cached TNS data", logger.String("path", path))
			return info, nil
		case !errors.Is(err, os.ErrNotExist):
			log.Warn("Ignoring unreadable TNS cache", logger.String("path", path), logger.Error(err))
		}
	}

	log.Info("Downloading TNS data")
	info, err := c.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	log.Info("Saving TNS data", logger.String("path", path))
	if err := SaveCache(path, info); err != nil {
		return nil, err
	}
	return info, nil
}

// LoadCache reads a tns_info.json file. A missing file returns an error
// wrapping os.ErrNotExist.
func LoadCache(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}

	obj, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return nil, cacheParseError(path, err)
	}

	info := &Info{Fields: make(map[string]string)}
	if info.RA, err = obj.GetFloat64(cacheKeyRA); err != nil {
		return nil, cacheParseError(path, fmt.Errorf("missing %s: %w", cacheKeyRA, err))
	}
	if info.Dec, err = obj.GetFloat64(cacheKeyDec); err != nil {
		return nil, cacheParseError(path, fmt.Errorf("missing %s: %w", cacheKeyDec, err))
	}

	columns, _ := obj.GetStringArray("columns")
	values, err := obj.GetObject("fields")
	if err != nil {
		return nil, cacheParseError(path, err)
	}
	for key, v := range values.Map() {
		if s, err := v.String(); err == nil {
			info.Fields[key] = s
		}
	}
	for _, col := range columns {
		if _, ok := info.Fields[col]; ok {
			info.Columns = append(info.Columns, col)
		}
	}
	return info, nil
}

// cacheDocument is the on-disk layout of tns_info.json
type cacheDocument struct {
	Columns []string          `json:"columns"`
	Fields  map[string]string `json:"fields"`
	RA      float64           `json:"ra"`
	Dec     float64           `json:"dec"`
}

// SaveCache writes info to path through a temp file
func SaveCache(path string, info *Info) error {
	data, err := json.MarshalIndent(cacheDocument{
		Columns: info.Columns,
		Fields:  info.Fields,
		RA:      info.RA,
		Dec:     info.Dec,
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return cacheWriteError(path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return cacheWriteError(path, err)
	}
	return nil
}

func cacheParseError(path string, err error) error {
	return errors.New(err).
		Component("tns").
		Category(errors.CategoryFileParsing).
		FileContext(path).
		Build()
}

func cacheWriteError(path string, err error) error {
	return errors.New(err).
		Component("tns").
		Category(errors.CategoryFileIO).
		FileContext(path).
		Build()
}
