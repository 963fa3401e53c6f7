package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/teslashibe/go-fisheye/pkg/capture"
)

// ErrEmptyFrame is returned when encoding a frame without pixels.
var ErrEmptyFrame = errors.New("preview: empty frame")

// ToImage copies a frame's pixels into an image.Image. Gray frames become
// *image.Gray; color frames become *image.RGBA with channels reordered.
func ToImage(f *capture.Frame) (image.Image, error) {
	if f.Empty() {
		return nil, ErrEmptyFrame
	}
	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("preview: unsupported pixel format %s", f.Format)
	}
	stride := f.Stride
	if stride == 0 {
		stride = f.Width * bpp
	}
	if stride < f.Width*bpp || len(f.Pix) < stride*(f.Height-1)+f.Width*bpp {
		return nil, fmt.Errorf("preview: %d bytes too short for %dx%d %s stride %d",
			len(f.Pix), f.Width, f.Height, f.Format, stride)
	}

	if f.Format == capture.FormatGray {
		img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
		for y := 0; y < f.Height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+f.Width], f.Pix[y*stride:])
		}
		return img, nil
	}

	// Byte offsets of red, green, blue and alpha (-1 for none) in a pixel
	r, g, b, a := 0, 1, 2, -1
	switch f.Format {
	case capture.FormatBGR:
		r, b = 2, 0
	case capture.FormatBGRA:
		r, b, a = 2, 0, 3
	case capture.FormatRGBA:
		a = 3
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width; x++ {
			s := src[x*bpp:]
			d := dst[x*4 : x*4+4]
			d[0], d[1], d[2], d[3] = s[r], s[g], s[b], 0xff
			if a >= 0 {
				d[3] = s[a]
			}
		}
	}
	return img, nil
}

// EncodeJPEG converts a frame to JPEG at the given quality (1-100).
func EncodeJPEG(f *capture.Frame, quality int) ([]byte, error) {
	img, err := ToImage(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("preview: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
