package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-fisheye/pkg/capture"
	"github.com/teslashibe/go-fisheye/pkg/feed"
	"github.com/teslashibe/go-fisheye/pkg/preview"
)

// texture stands in for a GPU texture: Upload copies the frame's pixels
// into a buffer the renderer owns.
type texture struct {
	pix     []byte
	width   int
	height  int
	format  capture.PixelFormat
	uploads uint64
}

// Upload has the signature of feed.UploadFunc.
func (t *texture) Upload(pix []byte, width, height int, format capture.PixelFormat) {
	if cap(t.pix) < len(pix) {
		t.pix = make([]byte, len(pix))
	}
	t.pix = t.pix[:len(pix)]
	copy(t.pix, pix)
	t.width, t.height, t.format = width, height, format
	t.uploads++
}

var _ feed.UploadFunc = (*texture)(nil).Upload

// renderer polls the feed once per frame.
type renderer struct {
	feed    *feed.Feed
	preview *preview.Server
	logger  *slog.Logger
	tex     texture
}

func newRenderer(f *feed.Feed, srv *preview.Server, logger *slog.Logger) *renderer {
	return &renderer{
		feed:    f,
		preview: srv,
		logger:  logger,
	}
}

// frame runs one render iteration.
func (r *renderer) frame() feed.Delivery {
	return r.feed.PollFrame(func(f *capture.Frame) {
		r.tex.Upload(f.Pix, f.Width, f.Height, f.Format)
		if r.preview != nil {
			r.preview.Enqueue(f)
		}
	})
}

// loop renders every period until ctx is done, logging stats every
// statsEvery (0 disables).
func (r *renderer) loop(ctx context.Context, period, statsEvery time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var stats <-chan time.Time
	if statsEvery > 0 {
		st := time.NewTicker(statsEvery)
		defer st.Stop()
		stats = st.C
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("render loop stopped", "uploads", r.tex.uploads)
			return
		case <-ticker.C:
			r.frame()
		case <-stats:
			s := r.feed.Stats()
			r.logger.Info("feed stats",
				"state", s.State,
				"grabs", s.Loop.Grabs,
				"rewinds", s.Loop.Rewinds,
				"deliveries", s.Consumer.Deliveries,
				"skips", s.Consumer.Skips,
				"uploads", r.tex.uploads,
			)
			if r.preview != nil {
				r.preview.BroadcastStatus()
			}
		}
	}
}
