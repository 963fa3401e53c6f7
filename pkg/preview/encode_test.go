package preview

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"testing"

	"github.com/teslashibe/go-fisheye/pkg/capture"
)

func TestToImage_BGR(t *testing.T) {
	// One blue pixel then one red pixel, BGR order
	f := &capture.Frame{
		Pix:    []byte{255, 0, 0, 0, 0, 255},
		Width:  2,
		Height: 1,
		Format: capture.FormatBGR,
	}
	img, err := ToImage(f)
	if err != nil {
		t.Fatalf("ToImage failed: %v", err)
	}

	rgba := img.(*image.RGBA)
	if got := rgba.Pix[0:4]; !bytes.Equal(got, []byte{0, 0, 255, 255}) {
		t.Errorf("First pixel = %v, want blue", got)
	}
	if got := rgba.Pix[4:8]; !bytes.Equal(got, []byte{255, 0, 0, 255}) {
		t.Errorf("Second pixel = %v, want red", got)
	}
}

func TestToImage_BGRAKeepsAlpha(t *testing.T) {
	f := &capture.Frame{Pix: []byte{10, 20, 30, 40}, Width: 1, Height: 1, Format: capture.FormatBGRA}
	img, err := ToImage(f)
	if err != nil {
		t.Fatalf("ToImage failed: %v", err)
	}
	if got := img.(*image.RGBA).Pix; !bytes.Equal(got, []byte{30, 20, 10, 40}) {
		t.Errorf("Pixel = %v, want [30 20 10 40]", got)
	}
}

func TestToImage_GrayWithStride(t *testing.T) {
	// 2x2 with one byte of row padding
	f := &capture.Frame{
		Pix:    []byte{1, 2, 99, 3, 4},
		Width:  2,
		Height: 2,
		Stride: 3,
		Format: capture.FormatGray,
	}
	img, err := ToImage(f)
	if err != nil {
		t.Fatalf("ToImage failed: %v", err)
	}
	gray := img.(*image.Gray)
	if !bytes.Equal(gray.Pix, []byte{1, 2, 3, 4}) {
		t.Errorf("Gray pixels = %v, want [1 2 3 4]", gray.Pix)
	}
}

func TestToImage_Errors(t *testing.T) {
	if _, err := ToImage(&capture.Frame{}); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("Expected ErrEmptyFrame, got %v", err)
	}

	short := &capture.Frame{Pix: []byte{1, 2, 3}, Width: 2, Height: 1, Format: capture.FormatRGB}
	if _, err := ToImage(short); err == nil {
		t.Error("Expected error for short buffer")
	}

	unknown := &capture.Frame{Pix: []byte{1}, Width: 1, Height: 1, Format: capture.FormatUnknown}
	if _, err := ToImage(unknown); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestEncodeJPEG(t *testing.T) {
	src := capture.NewMockLive(capture.WithMockGeometry(16, 8, capture.FormatBGR))
	defer src.Close()
	f, _ := src.Grab()

	data, err := EncodeJPEG(&f, 75)
	if err != nil {
		t.Fatalf("EncodeJPEG failed: %v", err)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Output is not a JPEG: %v", err)
	}
	if cfg.Width != 16 || cfg.Height != 8 {
		t.Errorf("Decoded %dx%d, want 16x8", cfg.Width, cfg.Height)
	}
}
