package feed

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-fisheye/pkg/capture"
	"github.com/teslashibe/go-fisheye/pkg/frameslot"
)

const testInterval = 10 * time.Millisecond

// eventually polls cond every interval until it holds or the deadline passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(testInterval)
	}
	return cond()
}

func TestLoop_FileLoopsWithWraparound(t *testing.T) {
	src := capture.NewMockFile(capture.WithMockFrames(10), capture.WithMockFrameRate(100))
	f := New(src, WithPollInterval(testInterval))
	defer f.Close()

	f.Start()

	seen := make(map[uint64]bool)
	wraps := 0
	lastPTS := time.Duration(-1)

	ticker := time.NewTicker(testInterval)
	defer ticker.Stop()
	for i := 0; i < 25; i++ {
		<-ticker.C
		f.PollFrame(func(fr *capture.Frame) {
			seen[fr.Seq] = true
			if lastPTS >= 0 && fr.PTS < lastPTS {
				wraps++
			}
			lastPTS = fr.PTS
		})
	}

	if len(seen) < 10 {
		t.Errorf("Expected at least 10 distinct frames, got %d", len(seen))
	}
	if wraps < 1 {
		t.Errorf("Expected at least one wraparound, got %d", wraps)
	}
	if src.Rewinds() < 1 {
		t.Errorf("Expected the source to be rewound, got %d rewinds", src.Rewinds())
	}
}

func TestLoop_RewindRestartsAtZero(t *testing.T) {
	src := capture.NewMockFile(capture.WithMockFrames(3), capture.WithMockFrameRate(1000))
	f := New(src, WithPollInterval(testInterval))
	defer f.Close()
	f.Start()

	var pts []time.Duration
	ok := eventually(t, 2*time.Second, func() bool {
		f.PollFrame(func(fr *capture.Frame) { pts = append(pts, fr.PTS) })
		return len(pts) >= 5
	})
	if !ok {
		t.Fatalf("Expected 5 deliveries, got %d", len(pts))
	}

	// 0, 1ms, 2ms, then back to 0
	if pts[3] != 0 {
		t.Errorf("Expected PTS 0 after the loop, got %v (all: %v)", pts[3], pts)
	}
}

func TestLoop_LiveDeliversPromptly(t *testing.T) {
	f := New(capture.NewMockLive(), WithPollInterval(testInterval))
	defer f.Close()
	f.Start()

	delivered := false
	for i := 0; i < 20 && !delivered; i++ {
		time.Sleep(testInterval)
		delivered = f.Poll(nil) == Delivered
	}
	if !delivered {
		t.Error("Expected a delivery within 20 polling intervals")
	}
}

func TestLoop_LiveGrabFailuresRecover(t *testing.T) {
	src := capture.NewMockLive()
	src.FailNextGrabs(3)
	f := New(src, WithPollInterval(testInterval))
	defer f.Close()
	f.Start()

	if !eventually(t, time.Second, func() bool { return f.Poll(nil) == Delivered }) {
		t.Fatal("Expected delivery after transient failures")
	}

	s := f.Stats().Loop
	if s.GrabFailures < 3 {
		t.Errorf("Expected at least 3 grab failures, got %d", s.GrabFailures)
	}
	// Live sources cannot rewind; that is not counted as a failure
	if s.RewindFailures != 0 || s.Rewinds != 0 {
		t.Errorf("Unexpected rewinds on a live source: %+v", s)
	}
}

func TestLoop_StopJoins(t *testing.T) {
	src := capture.NewMockLive(capture.WithMockGrabDelay(2 * time.Millisecond))
	slot := frameslot.New()
	l := NewLoop(src, slot, testInterval, nil)

	l.Start()
	if l.State() != StateRunning {
		t.Fatalf("Expected running, got %v", l.State())
	}

	// Keep the consumer side draining so the loop keeps grabbing
	stopDrain := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c := NewConsumer(slot)
		for {
			select {
			case <-stopDrain:
				return
			default:
				c.PollAndDeliver(nil)
				time.Sleep(time.Millisecond)
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	l.Stop()

	if l.State() != StateStopped {
		t.Errorf("Expected stopped after Stop returned, got %v", l.State())
	}
	grabs := src.Grabs()
	produced := l.Stats().Produced

	time.Sleep(50 * time.Millisecond)
	close(stopDrain)
	wg.Wait()

	if src.Grabs() != grabs {
		t.Errorf("Source grabbed after Stop: %d -> %d", grabs, src.Grabs())
	}
	if l.Stats().Produced != produced {
		t.Errorf("Frames produced after Stop: %d -> %d", produced, l.Stats().Produced)
	}
	if produced == 0 {
		t.Error("Expected frames before Stop")
	}
}

func TestLoop_StopIdempotent(t *testing.T) {
	l := NewLoop(capture.NewMockLive(), frameslot.New(), testInterval, nil)

	// Stop before Start is a no-op
	l.Stop()
	if l.State() != StateIdle {
		t.Errorf("Expected idle, got %v", l.State())
	}

	l.Start()
	l.Start()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Stop()
			if s := l.State(); s != StateStopped {
				t.Errorf("Stop returned in state %v", s)
			}
		}()
	}
	wg.Wait()

	l.Stop()
	if l.State() != StateStopped {
		t.Errorf("Expected stopped, got %v", l.State())
	}
}

func TestLoop_Restart(t *testing.T) {
	slot := frameslot.New()
	l := NewLoop(capture.NewMockLive(), slot, testInterval, nil)

	l.Start()
	l.Stop()
	slot.Clear()

	l.Start()
	defer l.Stop()
	if l.State() != StateRunning {
		t.Fatalf("Expected running after restart, got %v", l.State())
	}
	if !eventually(t, time.Second, slot.Occupied) {
		t.Error("Expected a frame after restart")
	}
}

func TestLoop_RestartFileKeepsPace(t *testing.T) {
	src := capture.NewMockFile(capture.WithMockFrames(1000), capture.WithMockFrameRate(100))
	f := New(src, WithPollInterval(testInterval))
	defer f.Close()

	pollFor := func(d time.Duration) (n int, lastPTS time.Duration) {
		ticker := time.NewTicker(testInterval)
		defer ticker.Stop()
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
			<-ticker.C
			f.PollFrame(func(fr *capture.Frame) {
				n++
				lastPTS = fr.PTS
			})
		}
		return n, lastPTS
	}

	f.Start()
	before, pts := pollFor(300 * time.Millisecond)
	if before < 10 {
		t.Fatalf("Expected steady playback before restart, got %d frames", before)
	}

	f.Stop()
	f.Start()

	after, lastPTS := pollFor(300 * time.Millisecond)
	if after < 10 {
		t.Errorf("Playback stalled after restart: %d frames in 300ms (last PTS %v)", after, lastPTS)
	}
	if lastPTS <= pts {
		t.Errorf("Expected playback to continue past %v, last PTS %v", pts, lastPTS)
	}
	if src.Rewinds() != 0 {
		t.Errorf("Restart must not rewind, got %d rewinds", src.Rewinds())
	}
}

func TestLoop_PixelsStableDuringSlowUpload(t *testing.T) {
	src := capture.NewMockLive(capture.WithMockGeometry(16, 16, capture.FormatBGR))
	slot := frameslot.New()
	l := NewLoop(src, slot, time.Millisecond, nil)
	c := NewConsumer(slot)

	l.Start()
	defer l.Stop()

	torn := 0
	check := func(fr *capture.Frame) {
		want := byte(fr.Seq)
		for _, b := range fr.Pix {
			if b != want {
				torn++
				return
			}
		}
	}

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		c.PollFrame(func(fr *capture.Frame) {
			check(fr)
			time.Sleep(3 * time.Millisecond)
			check(fr)
		})
		time.Sleep(time.Millisecond)
	}

	if got := c.Stats().Deliveries; got < 10 {
		t.Errorf("Expected at least 10 deliveries, got %d", got)
	}
	if torn != 0 {
		t.Errorf("Pixels changed during upload in %d checks", torn)
	}
}

func TestLoop_RewindFailureKeepsWaiting(t *testing.T) {
	src := capture.NewMockFile(
		capture.WithMockFrames(2),
		capture.WithMockFrameRate(1000),
		capture.WithMockRewindError(errors.New("not seekable")),
	)
	f := New(src, WithPollInterval(testInterval))
	defer f.Close()
	f.Start()

	for i := 0; i < 10; i++ {
		f.Poll(nil)
		time.Sleep(testInterval)
	}

	if f.State() != StateRunning {
		t.Errorf("Expected loop to keep running, got %v", f.State())
	}
	s := f.Stats()
	if s.Consumer.Deliveries != 2 {
		t.Errorf("Expected the 2 frames delivered, got %d", s.Consumer.Deliveries)
	}
	if s.Loop.RewindFailures == 0 {
		t.Error("Expected rewind failures to be counted")
	}
	// About one attempt per interval, not a spin
	if s.Loop.Grabs > 40 {
		t.Errorf("Loop spinning on a failed rewind: %d grabs", s.Loop.Grabs)
	}
}

func TestLoop_EmptyStreamDoesNotSpin(t *testing.T) {
	src := capture.NewMockFile(capture.WithMockFrames(0))
	f := New(src, WithPollInterval(testInterval))
	defer f.Close()
	f.Start()

	time.Sleep(100 * time.Millisecond)

	if f.Poll(nil) != Skipped {
		t.Error("Expected no frame from an empty stream")
	}
	if n := src.Rewinds(); n == 0 || n > 20 {
		t.Errorf("Expected a bounded number of rewinds, got %d", n)
	}
}

func TestLoop_FilePacing(t *testing.T) {
	// 10 FPS: frame n may be grabbed once frame n-1 is due
	src := capture.NewMockFile(capture.WithMockFrames(100), capture.WithMockFrameRate(10))
	f := New(src, WithPollInterval(testInterval))
	defer f.Close()
	f.Start()

	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		f.Poll(nil)
		time.Sleep(time.Millisecond)
	}

	// 250ms of 100ms frames allows about 4 deliveries, never dozens
	n := f.Stats().Consumer.Deliveries
	if n < 2 || n > 6 {
		t.Errorf("Expected paced playback (2-6 frames), got %d", n)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:          "idle",
		StateRunning:       "running",
		StateStopRequested: "stop_requested",
		StateStopped:       "stopped",
		State(42):          "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
