package feed

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-fisheye/pkg/capture"
	"github.com/teslashibe/go-fisheye/pkg/frameslot"
)

// Option configures a Feed.
type Option func(*options)

type options struct {
	interval time.Duration
	logger   *slog.Logger
}

// WithPollInterval sets the acquisition loop's polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

// WithLogger sets the logger used by the feed and, through Open, by the
// capture backend.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{
		interval: DefaultPollInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Stats combines the loop and consumer counters of a Feed.
type Stats struct {
	State    State         `json:"state"`
	Loop     LoopStats     `json:"loop"`
	Consumer ConsumerStats `json:"consumer"`
}

// Feed is an open source with its acquisition loop and consumer.
//
//	f, err := feed.Open(capture.Config{Backend: capture.BackendAuto, Identifier: "0"})
//	if err != nil { ... }
//	defer f.Close()
//	f.Start()
//	for rendering {
//	    f.Poll(uploadToTexture)
//	}
type Feed struct {
	src      capture.Source
	slot     *frameslot.Slot
	loop     *Loop
	consumer *Consumer
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open opens a capture source and wraps it in an idle Feed. The only error
// it returns is a *capture.OpenError.
func Open(cfg capture.Config, opts ...Option) (*Feed, error) {
	o := buildOptions(opts)
	src, err := capture.Open(cfg, o.logger)
	if err != nil {
		return nil, err
	}
	return newFeed(src, o), nil
}

// New wraps an already open source. The Feed takes ownership of src and
// closes it in Close.
func New(src capture.Source, opts ...Option) *Feed {
	return newFeed(src, buildOptions(opts))
}

func newFeed(src capture.Source, o options) *Feed {
	slot := frameslot.New()
	logger := o.logger.With("component", "feed")
	return &Feed{
		src:      src,
		slot:     slot,
		loop:     NewLoop(src, slot, o.interval, logger),
		consumer: NewConsumer(slot),
		logger:   logger,
	}
}

// Start launches acquisition. It is a no-op while running.
func (f *Feed) Start() {
	f.loop.Start()
}

// Stop halts acquisition and waits for the loop goroutine to exit.
// It is a no-op when not running.
func (f *Feed) Stop() {
	f.loop.Stop()
}

// Close stops acquisition and closes the source. Later calls return the
// first call's result.
func (f *Feed) Close() error {
	f.closeOnce.Do(func() {
		f.loop.Stop()
		f.slot.Clear()
		f.closeErr = f.src.Close()
		if f.closeErr != nil {
			f.logger.Warn("close source failed", "error", f.closeErr)
		}
	})
	return f.closeErr
}

// Poll delivers the pending frame to upload, if any. Call it once per
// render iteration; it never blocks.
func (f *Feed) Poll(upload UploadFunc) Delivery {
	return f.consumer.PollAndDeliver(upload)
}

// PollFrame is Poll with access to the whole frame.
func (f *Feed) PollFrame(fn func(*capture.Frame)) Delivery {
	return f.consumer.PollFrame(fn)
}

// AdjustExposure changes the exposure of a live camera. Sources without
// exposure control ignore it.
func (f *Feed) AdjustExposure(delta int) {
	capture.AdjustExposure(f.src, delta)
}

// AdjustGain changes the gain of a live camera. Sources without gain
// control ignore it.
func (f *Feed) AdjustGain(delta int) {
	capture.AdjustGain(f.src, delta)
}

// Controls returns the exposure and gain counters, and false when the
// source has no controls.
func (f *Feed) Controls() (exposure, gain int, ok bool) {
	return capture.ControlValues(f.src)
}

// Geometry returns the negotiated frame layout.
func (f *Feed) Geometry() capture.Geometry {
	return f.src.Geometry()
}

// Width returns the frame width in pixels.
func (f *Feed) Width() int {
	return f.src.Geometry().Width
}

// Height returns the frame height in pixels.
func (f *Feed) Height() int {
	return f.src.Geometry().Height
}

// PixelFormat returns the frame pixel format.
func (f *Feed) PixelFormat() capture.PixelFormat {
	return f.src.Geometry().Format
}

// Kind returns whether the feed plays a live device or a file.
func (f *Feed) Kind() capture.Kind {
	return f.src.Kind()
}

// SourceName returns the backend name of the source.
func (f *Feed) SourceName() string {
	return f.src.Name()
}

// State returns the acquisition state.
func (f *Feed) State() State {
	return f.loop.State()
}

// Stats returns a snapshot of the feed counters.
func (f *Feed) Stats() Stats {
	return Stats{
		State:    f.loop.State(),
		Loop:     f.loop.Stats(),
		Consumer: f.consumer.Stats(),
	}
}
