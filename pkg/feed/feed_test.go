package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-fisheye/pkg/capture"
	"github.com/teslashibe/go-fisheye/pkg/frameslot"
)

func TestOpen_Mock(t *testing.T) {
	f, err := Open(capture.Config{Backend: capture.BackendMock, Identifier: "0", Width: 32, Height: 16}, WithPollInterval(5*time.Millisecond))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	if f.Width() != 32 || f.Height() != 16 || f.PixelFormat() != capture.FormatBGR {
		t.Errorf("Unexpected geometry %s", f.Geometry())
	}
	if f.Kind() != capture.KindLive {
		t.Errorf("Expected live feed, got %v", f.Kind())
	}
	if f.SourceName() != "mock" {
		t.Errorf("Expected mock source, got %q", f.SourceName())
	}
	if f.State() != StateIdle {
		t.Errorf("Expected idle before Start, got %v", f.State())
	}
}

func TestOpen_Failure(t *testing.T) {
	_, err := Open(capture.Config{Backend: "nope", Identifier: "0"})
	if !capture.IsOpenError(err) {
		t.Fatalf("Expected *capture.OpenError, got %v", err)
	}
	if !errors.Is(err, capture.ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}
}

func TestFeed_PollUploadsPixels(t *testing.T) {
	f := New(capture.NewMockLive(capture.WithMockGeometry(4, 3, capture.FormatRGB)), WithPollInterval(5*time.Millisecond))
	defer f.Close()
	f.Start()

	var gotW, gotH, gotLen int
	var gotFormat capture.PixelFormat
	upload := func(pix []byte, width, height int, format capture.PixelFormat) {
		gotW, gotH, gotLen, gotFormat = width, height, len(pix), format
	}

	if !eventually(t, time.Second, func() bool { return f.Poll(upload) == Delivered }) {
		t.Fatal("Expected a delivery")
	}
	if gotW != 4 || gotH != 3 || gotLen != 4*3*3 || gotFormat != capture.FormatRGB {
		t.Errorf("Upload got %dx%d len=%d %s", gotW, gotH, gotLen, gotFormat)
	}
}

func TestFeed_ExposureOnFileIsNoop(t *testing.T) {
	src := capture.NewMockFile(capture.WithMockControls(7, 2))
	f := New(src)
	defer f.Close()

	f.AdjustExposure(1)
	f.AdjustGain(-1)

	exposure, gain, ok := f.Controls()
	if !ok {
		t.Fatal("Expected mock to expose controls")
	}
	if exposure != 7 || gain != 2 {
		t.Errorf("File controls changed: exposure %d gain %d", exposure, gain)
	}
}

func TestFeed_ExposureOnLive(t *testing.T) {
	f := New(capture.NewMockLive(capture.WithMockControls(7, 2)))
	defer f.Close()

	f.AdjustExposure(1)
	f.AdjustGain(-1)

	exposure, gain, _ := f.Controls()
	if exposure != 8 || gain != 1 {
		t.Errorf("Expected exposure 8 gain 1, got %d %d", exposure, gain)
	}
}

func TestFeed_CloseStopsAndCloses(t *testing.T) {
	src := capture.NewMockLive()
	f := New(src, WithPollInterval(5*time.Millisecond))
	f.Start()

	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if f.State() != StateStopped {
		t.Errorf("Expected stopped after Close, got %v", f.State())
	}
	if _, ok := src.Grab(); ok {
		t.Error("Expected source to be closed")
	}
	if f.Poll(nil) != Skipped {
		t.Error("Expected no frame after Close")
	}
	if err := f.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestFeed_Stats(t *testing.T) {
	f := New(capture.NewMockLive(), WithPollInterval(5*time.Millisecond))
	defer f.Close()

	f.Poll(nil)
	f.Start()
	eventually(t, time.Second, func() bool { return f.Poll(nil) == Delivered })

	s := f.Stats()
	if s.State != StateRunning {
		t.Errorf("Expected running, got %v", s.State)
	}
	if s.Consumer.Deliveries == 0 || s.Consumer.Skips == 0 {
		t.Errorf("Expected deliveries and skips, got %+v", s.Consumer)
	}
	if s.Loop.Grabs == 0 || s.Loop.Produced == 0 {
		t.Errorf("Expected grabs, got %+v", s.Loop)
	}
	if s.Consumer.LastSeq == 0 {
		t.Error("Expected last delivered seq to be recorded")
	}
}

func TestConsumer_PollAndDeliver(t *testing.T) {
	slot := frameslot.New()
	c := NewConsumer(slot)

	if c.PollAndDeliver(nil) != Skipped {
		t.Error("Expected skip on empty slot")
	}

	slot.TryPut(&capture.Frame{Pix: []byte{1, 2}, Width: 2, Height: 1, Format: capture.FormatGray, Seq: 9, PTS: time.Second})
	calls := 0
	d := c.PollAndDeliver(func(pix []byte, width, height int, format capture.PixelFormat) {
		calls++
		if len(pix) != 2 || width != 2 || height != 1 || format != capture.FormatGray {
			t.Errorf("Unexpected upload %v %dx%d %s", pix, width, height, format)
		}
	})
	if d != Delivered || calls != 1 {
		t.Errorf("Expected one delivery, got %v with %d calls", d, calls)
	}

	// A nil upload still drains the slot
	slot.TryPut(&capture.Frame{Pix: []byte{3}, Width: 1, Height: 1, Format: capture.FormatGray, Seq: 10})
	if c.PollAndDeliver(nil) != Delivered {
		t.Error("Expected delivery with nil upload")
	}
	if slot.Occupied() {
		t.Error("Expected slot drained")
	}

	s := c.Stats()
	if s.Deliveries != 2 || s.Skips != 1 || s.LastSeq != 10 {
		t.Errorf("Unexpected stats %+v", s)
	}
}

func TestDelivery_String(t *testing.T) {
	if Delivered.String() != "delivered" || Skipped.String() != "skipped" {
		t.Errorf("Unexpected strings %q %q", Delivered, Skipped)
	}
}
