package capture

import "io"

// Source is an open capture device, file or stream.
//
// Grab and Rewind are called from a single acquisition goroutine only; device
// APIs are frequently unsafe to call concurrently.
type Source interface {
	// Name returns the backend name (e.g., "opencv", "mock").
	Name() string

	// Kind reports whether the source is a live device or a file/stream.
	Kind() Kind

	// Geometry returns the negotiated frame layout. It is fixed after open
	// and never zero.
	Geometry() Geometry

	// Grab pulls the next frame synchronously. It returns false at end of
	// stream or on a transient device failure, and must return promptly
	// whether or not a frame was available.
	Grab() (Frame, bool)

	// Rewind resets a seekable source to its first frame so that PTS
	// restarts at zero. Live sources return ErrRewindUnsupported.
	Rewind() error

	// Close releases the device.
	io.Closer
}

// Controls is the optional exposure/gain capability of a live camera.
// Values are backend-defined integer units.
type Controls interface {
	// AdjustExposure adds delta to the exposure counter and pushes it to the device.
	AdjustExposure(delta int)

	// AdjustGain adds delta to the gain counter and pushes it to the device.
	AdjustGain(delta int)

	// Exposure returns the current exposure counter.
	Exposure() int

	// Gain returns the current gain counter.
	Gain() int
}

// AdjustExposure applies delta when src supports Controls. Sources without
// the capability ignore it silently.
func AdjustExposure(src Source, delta int) {
	if c, ok := src.(Controls); ok {
		c.AdjustExposure(delta)
	}
}

// AdjustGain applies delta when src supports Controls. Sources without the
// capability ignore it silently.
func AdjustGain(src Source, delta int) {
	if c, ok := src.(Controls); ok {
		c.AdjustGain(delta)
	}
}

// ControlValues returns the exposure and gain counters, and false when src
// has no controls.
func ControlValues(src Source) (exposure, gain int, ok bool) {
	c, ok := src.(Controls)
	if !ok {
		return 0, 0, false
	}
	return c.Exposure(), c.Gain(), true
}
