package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/uvotredux/internal/errors"
)

const appName = "uvotredux"

// GetDefaultConfigPaths returns the directories searched for config.yaml in order
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategorySystem).
			Context("operation", "get_user_home_dir").
			Build()
	}

	return []string{
		".",
		filepath.Join(homeDir, ".config", appName),
		filepath.Join("/etc", appName),
	}, nil
}

// defaultDataDir is the data root used when neither config nor UVOTREDUX_DATA_DIR set one
func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", appName+"_data")
	}
	return filepath.Join(homeDir, appName+"_data")
}

// ExpandHome resolves a leading ~ to the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}

// OutputDir returns <dataDir>/<name>, creating it when missing.
// An empty dataDir falls back to UVOTREDUX_DATA_DIR, then ~/uvotredux_data.
func OutputDir(dataDir, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.Newf("target name must not be empty").
			Component("configuration").
			Category(errors.CategoryValidation).
			Build()
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", errors.Newf("target name %q is not a valid directory name", name).
			Component("configuration").
			Category(errors.CategoryValidation).
			Build()
	}

	if dataDir == "" {
		dataDir = os.Getenv(EnvDataDir)
	}
	if dataDir == "" {
		dataDir = defaultDataDir()
	}

	dir := filepath.Join(ExpandHome(dataDir), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.New(fmt.Errorf("failed to create output directory: %w", err)).
			Component("configuration").
			Category(errors.CategoryFileIO).
			FileContext(dir).
			Build()
	}
	return dir, nil
}

// ResolveUnder returns path unchanged when absolute, otherwise joined to base
func ResolveUnder(base, path string) string {
	path = ExpandHome(path)
	if filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}
