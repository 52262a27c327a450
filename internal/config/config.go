// Package config provides configuration management for the haltpoint server.
//
// Configuration controls:
//   - Capability mode (readonly vs full): determines which MCP tools are available
//   - Expression evaluation permission
//   - The stop severity policy: the minimum diagnostic severity that pauses execution
//   - Source maps: the files whose listed sources define the session's path prefix
//   - The default execution trace and safety limits for sessions
//
// Configuration can be loaded from a JSON file or use sensible defaults.
// The readonly mode exposes only inspection tools, while full mode enables
// execution control as well.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mstrand/haltpoint/internal/debugger"
	"github.com/mstrand/haltpoint/internal/engine"
	"github.com/mstrand/haltpoint/internal/errors"
	"github.com/mstrand/haltpoint/internal/sourcepath"
)

// CapabilityMode defines the level of debugging capabilities exposed
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Only inspection tools
	ModeFull     CapabilityMode = "full"     // All tools enabled
)

// Duration is a time.Duration that unmarshals from a JSON duration string
// such as "30m", or from a plain number of nanoseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

// SourceMapConfig names one source map file to load for a session.
type SourceMapConfig struct {
	Path string `json:"path"`
}

// Config holds the server configuration
type Config struct {
	// Capability levels
	Mode          CapabilityMode `json:"mode"`
	AllowEvaluate bool           `json:"allowEvaluate"`

	// StopSeverity is the minimum diagnostic severity that pauses
	// execution: information, warning, error, or fatal.
	StopSeverity string `json:"stopSeverity"`

	// SourceMaps are loaded per session and define its source prefix.
	SourceMaps []SourceMapConfig `json:"sourceMaps"`

	// Trace is the default execution trace to replay.
	Trace string `json:"trace"`

	// Limits for safety
	MaxSessions    int      `json:"maxSessions"`
	SessionTimeout Duration `json:"sessionTimeout"`
}

// DefaultConfig returns a configuration with sensible defaults: full
// capabilities and the strictest stop policy, pausing only on fatal
// diagnostics.
func DefaultConfig() *Config {
	return &Config{
		Mode:           ModeFull,
		AllowEvaluate:  true,
		StopSeverity:   "fatal",
		MaxSessions:    10,
		SessionTimeout: Duration(30 * time.Minute),
	}
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.ConfigInvalid(path, err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field values that unmarshalling alone cannot.
func (c *Config) Validate() error {
	if c.Mode != ModeReadOnly && c.Mode != ModeFull {
		return errors.ConfigInvalid("mode", "must be 'readonly' or 'full'")
	}
	if _, err := engine.ParseSeverity(c.StopSeverity); err != nil {
		return errors.ConfigInvalid("stopSeverity", err.Error())
	}
	if c.MaxSessions < 1 {
		return errors.ConfigInvalid("maxSessions", "must be at least 1")
	}
	return nil
}

// Session derives the per-session debugger options: the parsed stop
// severity and the configured source maps read from disk with their paths
// made absolute.
func (c *Config) Session() (debugger.Options, error) {
	opts := debugger.DefaultOptions()

	sev, err := engine.ParseSeverity(c.StopSeverity)
	if err != nil {
		return opts, errors.ConfigInvalid("stopSeverity", err.Error())
	}
	opts.StopSeverity = sev

	for _, sm := range c.SourceMaps {
		abs, err := filepath.Abs(sm.Path)
		if err != nil {
			return opts, errors.SourceMapInvalid(sm.Path, err)
		}
		contents, err := os.ReadFile(abs)
		if err != nil {
			return opts, errors.SourceMapInvalid(sm.Path, err)
		}
		opts.SourceMaps = append(opts.SourceMaps, sourcepath.SourceMap{Path: abs, Contents: contents})
	}

	return opts, nil
}

// CanUseControlTools returns true if execution-control tools are enabled
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull
}

// CanEvaluate returns true if expression evaluation is allowed
func (c *Config) CanEvaluate() bool {
	return c.AllowEvaluate
}
