// Package feed runs a capture source on a background goroutine and hands the
// most recent frame to a render loop.
//
// A Loop pulls frames from a capture.Source into a frameslot.Slot, pacing
// file sources by their presentation timestamps and rewinding them at end of
// stream. A Consumer drains the slot once per render iteration without ever
// blocking. Feed bundles the two with the source for typical callers.
package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-fisheye/pkg/capture"
	"github.com/teslashibe/go-fisheye/pkg/frameslot"
)

// DefaultPollInterval is how long the loop waits for the slot to drain or
// for a source to recover before checking again.
const DefaultPollInterval = 10 * time.Millisecond

// State is the lifecycle state of a Loop.
type State int32

const (
	// StateIdle is the state before the first Start.
	StateIdle State = iota
	// StateRunning means the acquisition goroutine is active.
	StateRunning
	// StateStopRequested means Stop was called and the goroutine is exiting.
	StateStopRequested
	// StateStopped means the goroutine has exited. Start may be called again.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateStopped; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("feed: unknown state %q", text)
}

// LoopStats are the acquisition counters of a Loop.
type LoopStats struct {
	Grabs          uint64 `json:"grabs"`
	GrabFailures   uint64 `json:"grab_failures"`
	Produced       uint64 `json:"produced"`
	Rewinds        uint64 `json:"rewinds"`
	RewindFailures uint64 `json:"rewind_failures"`
}

// Loop owns the acquisition goroutine of one source.
//
// Only the loop goroutine calls Grab and Rewind on the source. Start and Stop
// may be called from any goroutine.
type Loop struct {
	src      capture.Source
	slot     *frameslot.Slot
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	state State
	stop  chan struct{}
	done  chan struct{}

	grabs          atomic.Uint64
	grabFailures   atomic.Uint64
	produced       atomic.Uint64
	rewinds        atomic.Uint64
	rewindFailures atomic.Uint64
}

// NewLoop creates an idle loop that fills slot from src. A non-positive
// interval selects DefaultPollInterval and a nil logger slog.Default().
func NewLoop(src capture.Source, slot *frameslot.Slot, interval time.Duration, logger *slog.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		src:      src,
		slot:     slot,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the acquisition goroutine. It is a no-op while the loop is
// running and restarts a stopped loop.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateRunning || l.state == StateStopRequested {
		return
	}
	l.state = StateRunning
	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	l.logger.Info("acquisition started",
		"source", l.src.Name(),
		"kind", l.src.Kind(),
		"interval", l.interval,
	)
	go l.run(l.stop, l.done)
}

// Stop asks the goroutine to exit and waits until it has. Calling Stop on a
// loop that is not running is a no-op. A Grab that never returns stalls Stop.
func (l *Loop) Stop() {
	l.mu.Lock()
	switch l.state {
	case StateRunning:
		l.state = StateStopRequested
		close(l.stop)
	case StateStopRequested:
	default:
		l.mu.Unlock()
		return
	}
	done := l.done
	l.mu.Unlock()

	<-done
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stats returns a snapshot of the acquisition counters.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Grabs:          l.grabs.Load(),
		GrabFailures:   l.grabFailures.Load(),
		Produced:       l.produced.Load(),
		Rewinds:        l.rewinds.Load(),
		RewindFailures: l.rewindFailures.Load(),
	}
}

func (l *Loop) run(stop <-chan struct{}, done chan<- struct{}) {
	defer func() {
		l.mu.Lock()
		l.state = StateStopped
		l.mu.Unlock()
		l.logger.Info("acquisition stopped", "source", l.src.Name())
		close(done)
	}()

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	// wait blocks for d, a stop request, or a signal on wake. It reports
	// false when the loop must exit.
	wait := func(d time.Duration, wake <-chan struct{}) bool {
		timer.Reset(d)
		select {
		case <-stop:
			return false
		case <-wake:
			return true
		case <-timer.C:
			return true
		}
	}

	paced := l.src.Kind() == capture.KindFile
	var (
		origin      time.Time     // wall time of PTS zero, set by the first grab of a run
		anchored    bool
		due         time.Duration // next grab is due when time since origin reaches it
		justRewound bool
		exhausted   bool
	)

	for {
		select {
		case <-stop:
			return
		default:
		}

		if l.slot.Occupied() {
			if !wait(l.interval, l.slot.Drained()) {
				return
			}
			continue
		}

		if paced && anchored {
			if remaining := due - time.Since(origin); remaining > 0 {
				if !wait(min(remaining, l.interval), nil) {
					return
				}
				continue
			}
		}

		l.grabs.Add(1)
		f, ok := l.src.Grab()
		if ok {
			if exhausted {
				l.logger.Info("source producing again", "source", l.src.Name())
				exhausted = false
			}
			justRewound = false
			if paced {
				// A restarted loop resumes mid-stream; pace from the frame's own PTS.
				if !anchored {
					origin = time.Now().Add(-f.PTS)
					anchored = true
				}
				due = f.PTS
			}
			// Only this goroutine fills the slot and it was empty before the grab.
			if l.slot.TryPut(&f) {
				l.produced.Add(1)
			}
			continue
		}
		l.grabFailures.Add(1)

		// A grab failing right after a successful rewind means the stream
		// has nothing to play; wait instead of rewinding in a tight loop.
		if justRewound {
			justRewound = false
			if !l.waitExhausted(&exhausted, nil, wait) {
				return
			}
			continue
		}

		err := l.src.Rewind()
		if err == nil {
			l.rewinds.Add(1)
			anchored = false
			due = 0
			justRewound = true
			l.logger.Debug("source rewound", "source", l.src.Name())
			continue
		}
		if !errors.Is(err, capture.ErrRewindUnsupported) {
			l.rewindFailures.Add(1)
		}
		if !l.waitExhausted(&exhausted, err, wait) {
			return
		}
	}
}

// waitExhausted logs the transition into the exhausted state once and waits
// one polling interval.
func (l *Loop) waitExhausted(exhausted *bool, cause error, wait func(time.Duration, <-chan struct{}) bool) bool {
	if !*exhausted {
		*exhausted = true
		attrs := []any{"source", l.src.Name(), "kind", l.src.Kind()}
		if cause != nil && !errors.Is(cause, capture.ErrRewindUnsupported) {
			attrs = append(attrs, "error", cause)
			l.logger.Warn("source exhausted, rewind failed", attrs...)
		} else {
			l.logger.Debug("no frame from source, retrying", attrs...)
		}
	}
	return wait(l.interval, nil)
}
