// Package opencv is the gocv capture backend. It handles device indexes,
// video files and network URIs through OpenCV's VideoCapture.
//
// Import it for its side effect to make BackendOpenCV available:
//
//	import _ "github.com/teslashibe/go-fisheye/pkg/capture/opencv"
package opencv

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-fisheye/pkg/capture"
	"gocv.io/x/gocv"
)

func init() {
	capture.RegisterBackend(capture.BackendOpenCV, Open)
}

// exposureScale converts between the device's exposure property and the
// integer counter exposed through capture.Controls.
const exposureScale = 10

// Source wraps a gocv.VideoCapture.
type Source struct {
	kind   capture.Kind
	geom   capture.Geometry
	logger *slog.Logger
	start  time.Time

	// mu serializes device access between Grab and control adjustments.
	mu       sync.Mutex
	cap      *gocv.VideoCapture
	mats     [2]gocv.Mat
	next     int
	pending  *capture.Frame
	seq      uint64
	exposure int
	gain     int
}

// Open opens cfg.Identifier, requests the configured mode and probes the
// first frame. It satisfies capture.OpenFunc.
func Open(cfg capture.Config, logger *slog.Logger) (capture.Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var device interface{} = cfg.Identifier
	if idx, ok := cfg.DeviceIndex(); ok {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open video capture: %w", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video capture %v did not open", device)
	}

	// Requests are best effort; drivers may ignore or clamp them
	if cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	}

	s := &Source{
		kind:   cfg.Kind(),
		logger: logger.With("backend", capture.BackendOpenCV),
		cap:    vc,
		mats:   [2]gocv.Mat{gocv.NewMat(), gocv.NewMat()},
	}

	s.start = time.Now()
	probe, ok := s.read()
	if !ok {
		s.Close()
		return nil, capture.ErrNoFirstFrame
	}
	s.pending = &probe

	reported := capture.Geometry{
		Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		Format: probe.Format,
		FPS:    vc.Get(gocv.VideoCaptureFPS),
	}
	s.geom = capture.ResolveGeometry(reported, cfg.Width, cfg.Height, probe)

	if s.kind == capture.KindLive {
		s.exposure = int(vc.Get(gocv.VideoCaptureExposure) * exposureScale)
		s.gain = int(vc.Get(gocv.VideoCaptureGain))
	}

	s.logger.Debug("opencv source probed",
		"device", device,
		"reported", reported.String(),
		"geometry", s.geom.String(),
		"exposure", s.exposure,
		"gain", s.gain,
	)
	return s, nil
}

// read decodes the next frame into the spare Mat. Callers hold mu or own s
// exclusively.
func (s *Source) read() (capture.Frame, bool) {
	if s.cap == nil {
		return capture.Frame{}, false
	}

	m := &s.mats[s.next]
	if !s.cap.Read(m) || m.Empty() {
		return capture.Frame{}, false
	}

	format, ok := formatForChannels(m.Channels())
	if !ok {
		s.logger.Warn("unsupported channel count", "channels", m.Channels())
		return capture.Frame{}, false
	}
	pix, err := m.DataPtrUint8()
	if err != nil {
		s.logger.Warn("frame data unavailable", "error", err)
		return capture.Frame{}, false
	}

	var pts time.Duration
	if s.kind == capture.KindFile {
		pts = time.Duration(s.cap.Get(gocv.VideoCapturePosMsec) * float64(time.Millisecond))
	} else {
		pts = time.Since(s.start)
	}

	// The Mat just filled stays untouched until the one after it is read
	s.next = 1 - s.next
	s.seq++
	return capture.Frame{
		Pix:    pix,
		Width:  m.Cols(),
		Height: m.Rows(),
		Stride: m.Step(),
		Format: format,
		PTS:    pts,
		Seq:    s.seq,
	}, true
}

func formatForChannels(channels int) (capture.PixelFormat, bool) {
	switch channels {
	case 3:
		return capture.FormatBGR, true
	case 4:
		return capture.FormatBGRA, true
	case 1:
		return capture.FormatGray, true
	default:
		return capture.FormatUnknown, false
	}
}

// Name returns "opencv".
func (s *Source) Name() string {
	return string(capture.BackendOpenCV)
}

// Kind returns whether the source is a device or a file/stream.
func (s *Source) Kind() capture.Kind {
	return s.kind
}

// Geometry returns the negotiated geometry.
func (s *Source) Geometry() capture.Geometry {
	return s.geom
}

// Grab returns the probe frame first, then decodes one frame per call.
func (s *Source) Grab() (capture.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		f := *s.pending
		s.pending = nil
		return f, true
	}
	return s.read()
}

// Rewind seeks a file back to frame 0. The seek is confirmed by reading the
// position back, since VideoCapture.Set does not report failure.
func (s *Source) Rewind() error {
	if s.kind == capture.KindLive {
		return capture.ErrRewindUnsupported
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		return &capture.RewindError{Backend: capture.BackendOpenCV, Err: capture.ErrClosed}
	}
	s.cap.Set(gocv.VideoCapturePosFrames, 0)
	if pos := s.cap.Get(gocv.VideoCapturePosFrames); pos != 0 {
		return &capture.RewindError{
			Backend: capture.BackendOpenCV,
			Err:     fmt.Errorf("position is %v after seek to 0", pos),
		}
	}
	s.pending = nil
	return nil
}

// AdjustExposure changes the exposure counter of a live camera by delta.
func (s *Source) AdjustExposure(delta int) {
	if s.kind != capture.KindLive {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cap == nil {
		return
	}
	s.exposure += delta
	s.cap.Set(gocv.VideoCaptureExposure, float64(s.exposure)/exposureScale)
	s.logger.Debug("exposure adjusted", "exposure", s.exposure)
}

// AdjustGain changes the gain of a live camera by delta.
func (s *Source) AdjustGain(delta int) {
	if s.kind != capture.KindLive {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cap == nil {
		return
	}
	s.gain += delta
	s.cap.Set(gocv.VideoCaptureGain, float64(s.gain))
	s.logger.Debug("gain adjusted", "gain", s.gain)
}

// Exposure returns the exposure counter.
func (s *Source) Exposure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposure
}

// Gain returns the gain counter.
func (s *Source) Gain() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

// Close releases the Mats and the device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		return nil
	}
	for i := range s.mats {
		s.mats[i].Close()
	}
	err := s.cap.Close()
	s.cap = nil
	s.pending = nil
	return err
}

// Ensure Source implements capture.Source and capture.Controls.
var (
	_ capture.Source   = (*Source)(nil)
	_ capture.Controls = (*Source)(nil)
)
