package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Mock defaults, used when the configuration leaves a value at 0.
const (
	MockDefaultWidth  = 320
	MockDefaultHeight = 240
	MockDefaultFPS    = 30
	MockDefaultFrames = 90
)

// MockSource is a synthetic source for testing.
// Every byte of a frame's pixels equals byte(frame.Seq), so a torn or reused
// buffer is easy to detect. As a file it plays Frames frames at the
// configured rate and then reports end of stream until rewound; as a live
// camera it never runs out and supports exposure/gain controls.
type MockSource struct {
	kind   Kind
	geom   Geometry
	frames int
	period time.Duration
	start  time.Time

	mu       sync.Mutex
	closed   bool
	index    int
	pending  *Frame
	bufs     [2][]byte
	next     int
	exposure int
	gain     int

	// Fault injection
	failNext  int
	rewindErr error
	grabDelay time.Duration

	seq     atomic.Uint64
	grabs   atomic.Int64
	rewinds atomic.Int64
}

// MockOption configures a MockSource.
type MockOption func(*MockSource)

// WithMockGeometry sets the frame size and format.
func WithMockGeometry(width, height int, format PixelFormat) MockOption {
	return func(m *MockSource) {
		m.geom.Width, m.geom.Height, m.geom.Format = width, height, format
	}
}

// WithMockFrameRate sets the nominal frame rate, which also spaces file PTS.
func WithMockFrameRate(fps float64) MockOption {
	return func(m *MockSource) {
		if fps > 0 {
			m.geom.FPS = fps
			m.period = time.Duration(float64(time.Second) / fps)
		}
	}
}

// WithMockFrames sets how many frames a file mock holds before end of stream.
func WithMockFrames(n int) MockOption {
	return func(m *MockSource) {
		m.frames = n
	}
}

// WithMockRewindError makes every Rewind fail with err.
func WithMockRewindError(err error) MockOption {
	return func(m *MockSource) {
		m.rewindErr = err
	}
}

// WithMockGrabDelay makes each Grab take d, imitating a slow decoder.
func WithMockGrabDelay(d time.Duration) MockOption {
	return func(m *MockSource) {
		m.grabDelay = d
	}
}

// WithMockControls sets the initial exposure and gain counters.
func WithMockControls(exposure, gain int) MockOption {
	return func(m *MockSource) {
		m.exposure, m.gain = exposure, gain
	}
}

// NewMockLive creates a mock live camera.
func NewMockLive(opts ...MockOption) *MockSource {
	return newMock(KindLive, opts)
}

// NewMockFile creates a mock seekable file.
func NewMockFile(opts ...MockOption) *MockSource {
	return newMock(KindFile, opts)
}

func newMock(kind Kind, opts []MockOption) *MockSource {
	m := &MockSource{
		kind:   kind,
		frames: MockDefaultFrames,
		start:  time.Now(),
		geom: Geometry{
			Width:  MockDefaultWidth,
			Height: MockDefaultHeight,
			Format: FormatBGR,
		},
	}
	WithMockFrameRate(MockDefaultFPS)(m)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// openMock is the OpenFunc of BackendMock.
func openMock(cfg Config, logger *slog.Logger) (Source, error) {
	opts := []MockOption{}
	if cfg.Width > 0 && cfg.Height > 0 {
		opts = append(opts, WithMockGeometry(cfg.Width, cfg.Height, FormatBGR))
	}
	if cfg.FPS > 0 {
		opts = append(opts, WithMockFrameRate(float64(cfg.FPS)))
	}

	m := newMock(cfg.Kind(), opts)
	if err := m.Probe(); err != nil {
		return nil, err
	}

	logger.Debug("mock capture source created",
		"kind", m.kind,
		"geometry", m.geom.String(),
		"frames", m.frames,
	)
	return m, nil
}

// Probe grabs the first frame and keeps it for the next Grab, the way a
// backend confirms a source is live at open time.
func (m *MockSource) Probe() error {
	f, ok := m.Grab()
	if !ok {
		return ErrNoFirstFrame
	}
	m.mu.Lock()
	m.pending = &f
	m.mu.Unlock()
	return nil
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return string(BackendMock)
}

// Kind returns the mock's kind.
func (m *MockSource) Kind() Kind {
	return m.kind
}

// Geometry returns the mock's geometry.
func (m *MockSource) Geometry() Geometry {
	return m.geom
}

// Grab produces the next synthetic frame.
func (m *MockSource) Grab() (Frame, bool) {
	if m.grabDelay > 0 {
		time.Sleep(m.grabDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Frame{}, false
	}
	m.grabs.Add(1)

	if m.pending != nil {
		f := *m.pending
		m.pending = nil
		return f, true
	}
	if m.failNext > 0 {
		m.failNext--
		return Frame{}, false
	}

	var pts time.Duration
	if m.kind == KindFile {
		if m.index >= m.frames {
			return Frame{}, false
		}
		pts = time.Duration(m.index) * m.period
		m.index++
	} else {
		pts = time.Since(m.start)
	}

	seq := m.seq.Add(1)
	stride := m.geom.Width * m.geom.Format.BytesPerPixel()
	size := stride * m.geom.Height

	// Two buffers in rotation: the frame a consumer is uploading from is
	// never the one being written.
	buf := m.bufs[m.next]
	if len(buf) != size {
		buf = make([]byte, size)
		m.bufs[m.next] = buf
	}
	m.next = 1 - m.next
	fill := byte(seq)
	for i := range buf {
		buf[i] = fill
	}

	return Frame{
		Pix:    buf,
		Width:  m.geom.Width,
		Height: m.geom.Height,
		Stride: stride,
		Format: m.geom.Format,
		PTS:    pts,
		Seq:    seq,
	}, true
}

// Rewind restarts a file mock at its first frame.
func (m *MockSource) Rewind() error {
	if m.kind == KindLive {
		return ErrRewindUnsupported
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &RewindError{Backend: BackendMock, Err: ErrClosed}
	}
	if m.rewindErr != nil {
		return &RewindError{Backend: BackendMock, Err: m.rewindErr}
	}
	m.index = 0
	m.pending = nil
	m.rewinds.Add(1)
	return nil
}

// FailNextGrabs makes the next n grabs fail, imitating transient device errors.
func (m *MockSource) FailNextGrabs(n int) {
	m.mu.Lock()
	m.failNext = n
	m.mu.Unlock()
}

// AdjustExposure adds delta to the exposure counter. File mocks ignore it.
func (m *MockSource) AdjustExposure(delta int) {
	if m.kind != KindLive {
		return
	}
	m.mu.Lock()
	m.exposure += delta
	m.mu.Unlock()
}

// AdjustGain adds delta to the gain counter. File mocks ignore it.
func (m *MockSource) AdjustGain(delta int) {
	if m.kind != KindLive {
		return
	}
	m.mu.Lock()
	m.gain += delta
	m.mu.Unlock()
}

// Exposure returns the exposure counter.
func (m *MockSource) Exposure() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exposure
}

// Gain returns the gain counter.
func (m *MockSource) Gain() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gain
}

// Grabs returns how many times Grab reached the source.
func (m *MockSource) Grabs() int64 {
	return m.grabs.Load()
}

// Rewinds returns the number of successful rewinds.
func (m *MockSource) Rewinds() int64 {
	return m.rewinds.Load()
}

// Close releases the mock. Closing twice is a no-op.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Ensure MockSource implements Source and Controls.
var (
	_ Source   = (*MockSource)(nil)
	_ Controls = (*MockSource)(nil)
)
