// Package config loads the capture CLI settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/suutaku/winshot/internal/utils"
)

const (
	DefaultFileName = "winshot.yaml"
	EnvBackend      = "WINSHOT_BACKEND"
)

type Config struct {
	Backend string        `yaml:"backend"`
	Capture CaptureConfig `yaml:"capture"`
	Browser BrowserConfig `yaml:"browser"`
	Logging LoggingConfig `yaml:"logging"`

	// Source is the file the configuration came from, or "<defaults>".
	Source string `yaml:"-"`
}

type CaptureConfig struct {
	Quality        int           `yaml:"quality"`
	CropToWindow   bool          `yaml:"crop_to_window"`
	ReadyTimeout   time.Duration `yaml:"ready_timeout"`
	FrameInterval  time.Duration `yaml:"frame_interval"`
	BufferedFrames int           `yaml:"buffered_frames"`
	MaxBitmapBytes int64         `yaml:"max_bitmap_bytes"`
}

// BrowserConfig drives the DevTools backend.
type BrowserConfig struct {
	DebuggerURL string `yaml:"debugger_url"`
	Bin         string `yaml:"bin"`
	Headless    bool   `yaml:"headless"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

func Default() Config {
	return Config{
		Backend: "auto",
		Capture: CaptureConfig{
			Quality:        95,
			ReadyTimeout:   5 * time.Second,
			FrameInterval:  33 * time.Millisecond,
			BufferedFrames: 2,
			MaxBitmapBytes: utils.MaxImageBytes,
		},
		Browser: BrowserConfig{Headless: true},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Source:  "<defaults>",
	}
}

// Load reads path over the defaults. With an empty path ./winshot.yaml is
// tried and may be missing; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	candidate := strings.TrimSpace(path)
	explicit := candidate != ""
	if !explicit {
		candidate = DefaultFileName
	}

	data, err := os.ReadFile(candidate)
	switch {
	case err == nil:
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %q: %w", candidate, err)
		}
		cfg.Source = candidate
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("config file %q not found", candidate)
	default:
		return cfg, fmt.Errorf("read config %q: %w", candidate, err)
	}

	if v := strings.TrimSpace(os.Getenv(EnvBackend)); v != "" {
		cfg.Backend = v
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Normalize trims and lower-cases the enumerated settings.
func (c *Config) Normalize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

var backends = map[string]bool{"auto": true, "x11": true, "windows": true, "generic": true, "browser": true}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if !backends[c.Backend] {
		return fmt.Errorf("backend %q must be one of auto, x11, windows, generic, browser", c.Backend)
	}
	if c.Capture.Quality < 1 || c.Capture.Quality > 100 {
		return fmt.Errorf("capture.quality %d must be within 1-100", c.Capture.Quality)
	}
	if c.Capture.ReadyTimeout <= 0 {
		return errors.New("capture.ready_timeout must be positive")
	}
	if c.Capture.FrameInterval < 0 {
		return errors.New("capture.frame_interval must not be negative")
	}
	if c.Capture.BufferedFrames < 1 {
		return errors.New("capture.buffered_frames must be at least 1")
	}
	if c.Capture.MaxBitmapBytes < 0 {
		return errors.New("capture.max_bitmap_bytes must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q", c.Logging.Format)
	}
	return nil
}
