// Package buildinfo holds build-time metadata injected with -ldflags
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// UnknownValue is reported for metadata that was not injected at build time
const UnknownValue = "unknown"

// Set via -ldflags "-X github.com/tphakala/uvotredux/internal/buildinfo.version=..."
var (
	version   string
	buildDate string
)

// Context carries version metadata. It is not part of user configuration.
type Context struct {
	Version   string
	BuildDate string
}

// NewContext creates build metadata from explicit values
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// Current returns the metadata linked into this binary. Module builds
// without ldflags fall back to the main module version recorded by go install.
func Current() *Context {
	v := version
	if v == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	return NewContext(v, buildDate)
}

// GetVersion returns the version or UnknownValue
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// Release is the release identifier reported to Sentry
func (c *Context) Release() string {
	return fmt.Sprintf("uvotredux@%s", c.GetVersion())
}

// String renders the version line printed by the version command
func (c *Context) String() string {
	return fmt.Sprintf("uvotredux %s (built %s)", c.GetVersion(), c.GetBuildDate())
}
