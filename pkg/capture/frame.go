package capture

import (
	"fmt"
	"time"
)

// PixelFormat is the memory layout of decoded pixels.
type PixelFormat int

const (
	// FormatUnknown is reported only before a source is opened.
	FormatUnknown PixelFormat = iota
	// FormatBGR is 8-bit blue, green, red (OpenCV's native layout).
	FormatBGR
	// FormatRGB is 8-bit red, green, blue.
	FormatRGB
	// FormatBGRA is 8-bit BGR with alpha.
	FormatBGRA
	// FormatRGBA is 8-bit RGB with alpha.
	FormatRGBA
	// FormatGray is a single 8-bit luminance channel.
	FormatGray
)

// String returns the format name.
func (f PixelFormat) String() string {
	switch f {
	case FormatBGR:
		return "bgr"
	case FormatRGB:
		return "rgb"
	case FormatBGRA:
		return "bgra"
	case FormatRGBA:
		return "rgba"
	case FormatGray:
		return "gray"
	default:
		return "unknown"
	}
}

// BytesPerPixel returns the number of bytes per pixel, or 0 if unknown.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatBGR, FormatRGB:
		return 3
	case FormatBGRA, FormatRGBA:
		return 4
	case FormatGray:
		return 1
	default:
		return 0
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f PixelFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *PixelFormat) UnmarshalText(text []byte) error {
	for p := FormatUnknown; p <= FormatGray; p++ {
		if p.String() == string(text) {
			*f = p
			return nil
		}
	}
	return fmt.Errorf("capture: unknown pixel format %q", text)
}

// Kind distinguishes live devices from file/network sources.
type Kind int

const (
	// KindLive is a capture device producing frames in real time with no
	// intrinsic timestamp pacing.
	KindLive Kind = iota
	// KindFile is a seekable or loopable media source whose frames carry
	// presentation timestamps used for playback pacing.
	KindFile
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindLive {
		return "live"
	}
	return "file"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "live":
		*k = KindLive
	case "file":
		*k = KindFile
	default:
		return fmt.Errorf("capture: unknown kind %q", text)
	}
	return nil
}

// Geometry is the negotiated frame layout of an open source.
type Geometry struct {
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Format PixelFormat `json:"format"`

	// FPS is the backend's frame rate hint. It may be 0.
	FPS float64 `json:"fps"`
}

// String returns e.g. "1280x720 bgr @30.00".
func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d %s @%.2f", g.Width, g.Height, g.Format, g.FPS)
}

// ResolveGeometry applies the zero fallback: sizes a driver reports as 0 are
// replaced by the requested ones, then by the probe frame's size. Some
// drivers (notably on macOS) accept a size but report 0 when queried.
func ResolveGeometry(reported Geometry, requestedW, requestedH int, probe Frame) Geometry {
	g := reported
	if g.Width <= 0 {
		g.Width = requestedW
	}
	if g.Height <= 0 {
		g.Height = requestedH
	}
	if g.Width <= 0 {
		g.Width = probe.Width
	}
	if g.Height <= 0 {
		g.Height = probe.Height
	}
	if g.Format == FormatUnknown {
		g.Format = probe.Format
	}
	return g
}

// Frame is a decoded image.
//
// Pix aliases the backend's internal buffer and is not copied out. It stays
// valid until the consumer that received it takes the next frame; callers
// that need the pixels longer must copy them.
type Frame struct {
	Pix    []byte
	Width  int
	Height int

	// Stride is the number of bytes between vertically adjacent pixels.
	Stride int

	Format PixelFormat

	// PTS is the presentation time relative to the source's start of stream.
	PTS time.Duration

	// Seq counts grabs on the source, starting at 1.
	Seq uint64
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f == nil || len(f.Pix) == 0 || f.Width == 0 || f.Height == 0
}
