package feed

import (
	"sync/atomic"

	"github.com/teslashibe/go-fisheye/pkg/capture"
	"github.com/teslashibe/go-fisheye/pkg/frameslot"
)

// Delivery is the outcome of one poll.
type Delivery int

const (
	// Skipped means no frame was pending or the slot was busy. The caller
	// keeps showing the previous frame.
	Skipped Delivery = iota
	// Delivered means a new frame was handed to the upload function.
	Delivered
)

// String returns "delivered" or "skipped".
func (d Delivery) String() string {
	if d == Delivered {
		return "delivered"
	}
	return "skipped"
}

// UploadFunc receives the pixels of a new frame, typically to copy them into
// a texture. pix is only valid for the duration of the call.
type UploadFunc func(pix []byte, width, height int, format capture.PixelFormat)

// ConsumerStats are the delivery counters of a Consumer.
type ConsumerStats struct {
	Deliveries uint64 `json:"deliveries"`
	Skips      uint64 `json:"skips"`

	// LastSeq and LastPTS describe the most recently delivered frame.
	LastSeq uint64 `json:"last_seq"`
	LastPTS int64  `json:"last_pts_ns"`
}

// Consumer drains a slot from the render loop.
type Consumer struct {
	slot *frameslot.Slot

	deliveries atomic.Uint64
	skips      atomic.Uint64
	lastSeq    atomic.Uint64
	lastPTS    atomic.Int64
}

// NewConsumer creates a consumer of slot.
func NewConsumer(slot *frameslot.Slot) *Consumer {
	return &Consumer{slot: slot}
}

// PollAndDeliver takes the pending frame, if any, and passes its pixels to
// upload synchronously. It never blocks.
func (c *Consumer) PollAndDeliver(upload UploadFunc) Delivery {
	return c.PollFrame(func(f *capture.Frame) {
		if upload != nil {
			upload(f.Pix, f.Width, f.Height, f.Format)
		}
	})
}

// PollFrame is PollAndDeliver for callers that also need the frame's
// timestamp or stride. f is only valid for the duration of the call.
func (c *Consumer) PollFrame(fn func(f *capture.Frame)) Delivery {
	f, ok := c.slot.TryTake()
	if !ok {
		c.skips.Add(1)
		return Skipped
	}

	if fn != nil {
		fn(f)
	}
	c.lastSeq.Store(f.Seq)
	c.lastPTS.Store(int64(f.PTS))
	c.deliveries.Add(1)
	return Delivered
}

// Stats returns a snapshot of the delivery counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Deliveries: c.deliveries.Load(),
		Skips:      c.skips.Load(),
		LastSeq:    c.lastSeq.Load(),
		LastPTS:    c.lastPTS.Load(),
	}
}
