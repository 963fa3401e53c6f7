// Package capture provides the device abstraction behind a frame feed.
//
// This package supports multiple backends:
//   - OpenCV (pkg/capture/opencv) - live cameras, video files and network streams
//   - Mock - synthetic live and looping file sources for CI/testing without hardware
//
// Backends register themselves with RegisterBackend; Open picks one from the
// configuration and confirms the source is live by probing the first frame.
package capture

import (
	"fmt"
	"strconv"
	"strings"
)

// Backend represents the capture backend type.
type Backend string

const (
	// BackendAuto selects OpenCV when registered, otherwise the mock backend.
	BackendAuto Backend = "auto"
	// BackendOpenCV uses gocv's VideoCapture.
	BackendOpenCV Backend = "opencv"
	// BackendMock uses a synthetic source for testing.
	BackendMock Backend = "mock"
)

// Config holds capture configuration.
type Config struct {
	// Backend specifies which capture backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// Identifier is either a device index ("0", "1") for live cameras or a
	// path/URI for files and network streams.
	Identifier string `yaml:"identifier" json:"identifier"`

	// Width and Height are the requested frame size in pixels.
	// Best effort: 0 accepts the backend default.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// FPS is the requested frame rate. 0 accepts the backend default.
	FPS int `yaml:"fps" json:"fps"`

	// Preset names a resolution preset applied by ApplyPreset.
	Preset string `yaml:"preset,omitempty" json:"preset,omitempty"`
}

// DefaultConfig returns a Config that opens the first camera at its native mode.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendAuto,
		Identifier: "0",
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendOpenCV, BackendMock:
	case "":
		return fmt.Errorf("backend is required")
	default:
		if _, ok := lookupBackend(c.Backend); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownBackend, c.Backend)
		}
	}
	if strings.TrimSpace(c.Identifier) == "" {
		return fmt.Errorf("identifier is required")
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("width and height must not be negative, got %dx%d", c.Width, c.Height)
	}
	if c.FPS < 0 {
		return fmt.Errorf("fps must not be negative, got %d", c.FPS)
	}
	if c.Preset != "" && GetPreset(c.Preset) == nil {
		return fmt.Errorf("unknown preset: %s", c.Preset)
	}
	return nil
}

// DeviceIndex reports whether the identifier names a live device, and its index.
func (c *Config) DeviceIndex() (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(c.Identifier))
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// Kind returns the source kind implied by the identifier.
func (c *Config) Kind() Kind {
	if _, ok := c.DeviceIndex(); ok {
		return KindLive
	}
	return KindFile
}

// ApplyPreset fills Width, Height and FPS from the named preset.
// Explicit non-zero values already in the config win over the preset.
func (c *Config) ApplyPreset() error {
	if c.Preset == "" {
		return nil
	}
	p := GetPreset(c.Preset)
	if p == nil {
		return fmt.Errorf("unknown preset: %s", c.Preset)
	}
	if c.Width == 0 {
		c.Width = p.Width
	}
	if c.Height == 0 {
		c.Height = p.Height
	}
	if c.FPS == 0 {
		c.FPS = p.FPS
	}
	return nil
}
