// Package appconfig loads the cfgsync host options from a TOML file and the
// environment.
package appconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/cfgsync/internal/settings"
	"github.com/dshills/cfgsync/internal/settings/layer"
	"github.com/dshills/cfgsync/internal/vfs"
	"github.com/dshills/cfgsync/internal/watch/hub"
)

// FileName is the name of the options file inside the user config dir.
const FileName = "cfgsync.toml"

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Environment variables that override the file.
const (
	EnvGlobalDir  = "CFGSYNC_GLOBAL_DIR"
	EnvProjectDir = "CFGSYNC_PROJECT_DIR"
	EnvLogLevel   = "CFGSYNC_LOG_LEVEL"
	EnvThreshold  = "CFGSYNC_FAILURE_THRESHOLD"
)

// Config holds the host options.
type Config struct {
	// GlobalDir holds the global settings layers.
	GlobalDir string `toml:"global_dir"`
	// ProjectDir is the project root; empty means no project layers.
	ProjectDir string `toml:"project_dir"`
	// EnterprisePath is the managed settings file.
	EnterprisePath string `toml:"enterprise_path"`
	// BackupDir receives backups made before moves. Empty means next to
	// each file.
	BackupDir string `toml:"backup_dir"`
	// QuietPeriod is the debounce delay for file change notifications.
	QuietPeriod Duration `toml:"quiet_period"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
	// FailureThreshold is the number of consecutive reload failures
	// tolerated before an error is reported.
	FailureThreshold int `toml:"failure_threshold"`
	// Color selects colorized output: auto, always or never.
	Color string `toml:"color"`
}

// Duration is a time.Duration written as a Go duration string ("300ms").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParseError reports a malformed options file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Default returns the built-in options.
func Default() Config {
	return Config{
		GlobalDir:        layer.DefaultGlobalDir(),
		EnterprisePath:   layer.DefaultEnterprisePath(runtime.GOOS),
		QuietPeriod:      Duration{hub.DefaultQuietPeriod},
		LogLevel:         "warn",
		FailureThreshold: settings.DefaultFailureThreshold,
		Color:            ColorAuto,
	}
}

// DefaultPath returns the options file location in the user config dir.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cfgsync", FileName)
}

// Load reads path from disk, applies environment overrides and validates
// the result. A missing file yields the defaults.
func Load(path string) (Config, error) {
	return LoadFS(vfs.NewOSFS(), path, os.LookupEnv)
}

// LoadFS is Load with an explicit file system and environment lookup.
func LoadFS(fsys vfs.FS, path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := fsys.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading options file %s: %w", path, err)
		default:
			if err := decode(path, data, &cfg); err != nil {
				return cfg, err
			}
		}
	}
	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	err := dec.Decode(cfg)
	if err == nil {
		return nil
	}

	perr := &ParseError{Path: path, Message: err.Error(), Err: err}
	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		perr.Line, perr.Column = derr.Position()
	}
	var serr *toml.StrictMissingError
	if errors.As(err, &serr) && len(serr.Errors) > 0 {
		first := serr.Errors[0]
		perr.Line, perr.Column = first.Position()
		if key := first.Key(); len(key) > 0 {
			perr.Message = "unknown option " + strings.Join(key, ".")
		}
	}
	return perr
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvGlobalDir); ok {
		c.GlobalDir = v
	}
	if v, ok := lookup(EnvProjectDir); ok {
		c.ProjectDir = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvThreshold); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvThreshold, err)
		}
		c.FailureThreshold = n
	}
	return nil
}

// Validate checks option values.
func (c Config) Validate() error {
	var errs []error
	if c.QuietPeriod.Duration <= 0 {
		errs = append(errs, fmt.Errorf("quiet_period must be positive, got %s", c.QuietPeriod))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("failure_threshold must be at least 1, got %d", c.FailureThreshold))
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		errs = append(errs, fmt.Errorf("color must be auto, always or never, got %q", c.Color))
	}
	return errors.Join(errs...)
}

// NewLogger returns a logger writing to w at the configured level.
func (c Config) NewLogger(w io.Writer) *log.Logger {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.WarnLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: level == log.DebugLevel,
		Prefix:          "cfgsync",
	})
}

// ManagerOptions translates the options into settings.Manager options.
func (c Config) ManagerOptions(logger *log.Logger) []settings.Option {
	return []settings.Option{
		settings.WithLogger(logger),
		settings.WithGlobalDir(c.GlobalDir),
		settings.WithProjectDir(c.ProjectDir),
		settings.WithEnterprisePath(c.EnterprisePath),
		settings.WithBackupDir(c.BackupDir),
		settings.WithQuietPeriod(c.QuietPeriod.Duration),
		settings.WithFailureThreshold(c.FailureThreshold),
	}
}
