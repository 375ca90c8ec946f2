// Package config loads and validates the optional .tinker YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the config file looked up at the project root.
const FileName = ".tinker"

// Default values for runner and history configuration.
const (
	DefaultTimeout     = 5 * time.Minute
	DefaultHistorySize = 20
)

// Strategies for executing code snippets.
const (
	StrategyTinker = "tinker" // pipe code into `php artisan tinker`
	StrategyInline = "inline" // evaluate code with `php -r` after requiring the autoloader
)

// Config holds the parsed .tinker configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int              `yaml:"version"`
	PHP          string           `yaml:"php"`        // interpreter binary
	RawStrategy  string           `yaml:"strategy"`   // tinker | inline
	RawTimeout   string           `yaml:"timeout"`    // e.g. "5m", "30s", "off"
	RawMaxOutput int              `yaml:"max_output"` // bytes per stream, 0 = unlimited
	InlineEval   InlineEvalConfig `yaml:"inline_eval"`
	Artisan      ArtisanConfig    `yaml:"artisan"`
	History      HistoryConfig    `yaml:"history"`
	Log          LogConfig        `yaml:"log"`
	Trace        TraceConfig      `yaml:"trace"`
}

// InlineEvalConfig controls the `php -r` strategy.
type InlineEvalConfig struct {
	// AllowRemoteIncludes adds -d allow_url_fopen=On -d allow_url_include=On,
	// which lets evaluated code include files over the network.
	AllowRemoteIncludes bool `yaml:"allow_remote_includes"`
}

// ArtisanConfig controls how artisan commands are run.
type ArtisanConfig struct {
	EchoCommandToStdin bool `yaml:"echo_command_to_stdin"` // also write the command to the child's stdin
}

// HistoryConfig controls the run history used by inspect.
type HistoryConfig struct {
	Size int    `yaml:"size"` // in-memory LRU capacity
	Dir  string `yaml:"dir"`  // on-disk record directory
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level   string `yaml:"level"`   // debug | info | warn | error
	Format  string `yaml:"format"`  // text | json
	File    string `yaml:"file"`    // additional log file
	Journal bool   `yaml:"journal"` // also send records to the systemd journal
}

// TraceConfig controls OpenTelemetry tracing.
type TraceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout | noop
}

// Strategy returns the configured snippet strategy or the default.
func (c *Config) Strategy() string {
	if c.RawStrategy != "" {
		return strings.ToLower(c.RawStrategy)
	}
	return StrategyTinker
}

// Timeout returns the configured timeout or the default.
// "off", "none" and "0" disable the timeout.
func (c *Config) Timeout() time.Duration {
	switch strings.ToLower(c.RawTimeout) {
	case "":
		return DefaultTimeout
	case "off", "none", "0":
		return 0
	}
	d, err := time.ParseDuration(c.RawTimeout)
	if err != nil || d < 0 {
		return DefaultTimeout
	}
	return d
}

// MaxOutputBytes returns the configured per-stream cap, 0 meaning unlimited.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return 0
}

// HistorySize returns the configured LRU capacity or the default.
func (c *Config) HistorySize() int {
	if c.History.Size > 0 {
		return c.History.Size
	}
	return DefaultHistorySize
}

// HistoryDir returns the configured record directory, falling back to
// <user cache dir>/tinker/runs, or a temp directory when no cache dir exists.
func (c *Config) HistoryDir() string {
	if c.History.Dir != "" {
		return c.History.Dir
	}
	if cache, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cache, "tinker", "runs")
	}
	return filepath.Join(os.TempDir(), "tinker-runs")
}

// Validate rejects values that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.Strategy() {
	case StrategyTinker, StrategyInline:
	default:
		return fmt.Errorf("unknown strategy %q (want %s or %s)", c.RawStrategy, StrategyTinker, StrategyInline)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Trace.Enabled {
		switch c.Trace.Exporter {
		case "", "stdout", "noop":
		default:
			return fmt.Errorf("unsupported trace exporter %q", c.Trace.Exporter)
		}
	}
	return nil
}

// LoadResult holds the parsed config and the discovered project root.
type LoadResult struct {
	Config      *Config
	ProjectRoot string // directory containing artisan; falls back to dir
}

// Load reads the .tinker file from the project root.
// The project root is discovered by walking upward from dir looking for
// an artisan file. If no .tinker file exists, a default Config is returned.
func Load(dir string) (*LoadResult, error) {
	root, err := FindProjectRoot(dir)
	if err != nil {
		// Not inside a Laravel project; use dir as root.
		root = dir
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadResult{Config: &Config{}, ProjectRoot: root}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &LoadResult{Config: cfg, ProjectRoot: root}, nil
}

// FindProjectRoot walks upward from dir looking for a directory containing
// an artisan file.
func FindProjectRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, "artisan")); err == nil && !info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("artisan not found")
		}
		dir = parent
	}
}
