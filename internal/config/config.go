// Package config loads go-fisheye command configuration from a YAML file and
// environment variables. Command-line flags are applied on top by each
// command.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/teslashibe/go-fisheye/internal/log"
	"github.com/teslashibe/go-fisheye/pkg/capture"
	"github.com/teslashibe/go-fisheye/pkg/feed"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvSource      = "FISHEYE_SOURCE"
	EnvBackend     = "FISHEYE_BACKEND"
	EnvPreset      = "FISHEYE_PRESET"
	EnvPreviewAddr = "FISHEYE_PREVIEW_ADDR"
	EnvLogLevel    = "LOG_LEVEL"
)

// Defaults.
const (
	DefaultRenderFPS   = 60
	DefaultPreviewAddr = ":8080"
	DefaultPreviewFPS  = 10
	DefaultJPEGQuality = 80
	DefaultStatsPeriod = 5 * time.Second
)

// RenderConfig configures the render loop of cmd/fisheye.
type RenderConfig struct {
	// FPS is how often the render loop polls the feed.
	FPS int `yaml:"fps" json:"fps"`

	// StatsInterval is how often feed stats are logged. 0 disables.
	StatsInterval time.Duration `yaml:"stats_interval" json:"stats_interval"`
}

// PreviewConfig configures the preview server.
type PreviewConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`

	// FPS caps how many JPEG frames per second are broadcast to clients.
	FPS int `yaml:"fps" json:"fps"`

	// JPEGQuality is 1-100.
	JPEGQuality int `yaml:"jpeg_quality" json:"jpeg_quality"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Config is the full command configuration.
type Config struct {
	Source capture.Config `yaml:"source" json:"source"`

	// PollInterval is the acquisition loop's polling interval.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`

	Render  RenderConfig  `yaml:"render" json:"render"`
	Preview PreviewConfig `yaml:"preview" json:"preview"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Source:       capture.DefaultConfig(),
		PollInterval: feed.DefaultPollInterval,
		Render: RenderConfig{
			FPS:           DefaultRenderFPS,
			StatsInterval: DefaultStatsPeriod,
		},
		Preview: PreviewConfig{
			Enabled:     true,
			Addr:        DefaultPreviewAddr,
			FPS:         DefaultPreviewFPS,
			JPEGQuality: DefaultJPEGQuality,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults and then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from FISHEYE_* variables and LOG_LEVEL.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvSource); v != "" {
		c.Source.Identifier = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.Source.Backend = capture.Backend(v)
	}
	if v := os.Getenv(EnvPreset); v != "" {
		c.Source.Preset = v
	}
	if v := os.Getenv(EnvPreviewAddr); v != "" {
		c.Preview.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FISHEYE_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FISHEYE_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = d
	}
	if v := os.Getenv("FISHEYE_RENDER_FPS"); v != "" {
		fps, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FISHEYE_RENDER_FPS: %w", err)
		}
		c.Render.FPS = fps
	}
	return nil
}

// Validate checks the configuration and returns all problems found.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Source.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("source: %w", err))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval))
	}
	if c.Render.FPS <= 0 {
		errs = append(errs, fmt.Errorf("render.fps must be positive, got %d", c.Render.FPS))
	}
	if c.Render.StatsInterval < 0 {
		errs = append(errs, fmt.Errorf("render.stats_interval must not be negative"))
	}
	if c.Preview.Enabled {
		if c.Preview.Addr == "" {
			errs = append(errs, fmt.Errorf("preview.addr is required when the preview is enabled"))
		}
		if c.Preview.FPS <= 0 {
			errs = append(errs, fmt.Errorf("preview.fps must be positive, got %d", c.Preview.FPS))
		}
		if c.Preview.JPEGQuality < 1 || c.Preview.JPEGQuality > 100 {
			errs = append(errs, fmt.Errorf("preview.jpeg_quality must be 1-100, got %d", c.Preview.JPEGQuality))
		}
	}
	if _, ok := log.ParseLevel(c.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("log.level must be one of %v, got %q", log.Levels, c.Log.Level))
	}
	return errors.Join(errs...)
}
