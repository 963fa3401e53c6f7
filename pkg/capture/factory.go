package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// OpenFunc opens a source for a backend. Implementations must confirm the
// source is live by retrieving a first frame (returning ErrNoFirstFrame
// otherwise) and must report a geometry with the zero fallback applied,
// see ResolveGeometry. The probe frame is handed out by the first Grab.
type OpenFunc func(cfg Config, logger *slog.Logger) (Source, error)

var (
	backendsMu sync.RWMutex
	backends   = map[Backend]OpenFunc{
		BackendMock: openMock,
	}
)

// RegisterBackend makes a backend available to Open. Backends that need cgo,
// like pkg/capture/opencv, register themselves from an init function so that
// callers opt in with a blank import.
func RegisterBackend(name Backend, open OpenFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if open == nil {
		panic("capture: RegisterBackend open func is nil")
	}
	if name == BackendAuto || name == "" {
		panic(fmt.Sprintf("capture: cannot register reserved backend name %q", name))
	}
	backends[name] = open
}

func lookupBackend(name Backend) (OpenFunc, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	open, ok := backends[name]
	return open, ok
}

// AvailableBackends returns the registered backend names, sorted.
func AvailableBackends() []Backend {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]Backend, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// detectBestBackend prefers OpenCV when it has been linked in.
func detectBestBackend() Backend {
	if _, ok := lookupBackend(BackendOpenCV); ok {
		return BackendOpenCV
	}
	return BackendMock
}

// Open opens a capture source with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
// Every failure is returned as an *OpenError.
func Open(cfg Config, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto || backend == "" {
		backend = detectBestBackend()
	}
	openErr := func(err error) error {
		var oe *OpenError
		if errors.As(err, &oe) {
			return err
		}
		return &OpenError{Backend: backend, Identifier: cfg.Identifier, Err: err}
	}

	cfg.Backend = backend
	if err := cfg.ApplyPreset(); err != nil {
		return nil, openErr(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, openErr(fmt.Errorf("invalid config: %w", err))
	}

	open, ok := lookupBackend(backend)
	if !ok {
		return nil, openErr(fmt.Errorf("%w: %s", ErrUnknownBackend, backend))
	}

	logger.Info("opening capture source",
		"backend", backend,
		"identifier", cfg.Identifier,
		"kind", cfg.Kind(),
		"width", cfg.Width,
		"height", cfg.Height,
		"fps", cfg.FPS,
	)

	src, err := open(cfg, logger)
	if err != nil {
		return nil, openErr(err)
	}

	geom := src.Geometry()
	if geom.Width <= 0 || geom.Height <= 0 || geom.Format == FormatUnknown {
		src.Close()
		return nil, openErr(fmt.Errorf("backend reported unusable geometry %s", geom))
	}

	logger.Info("capture source opened",
		"backend", src.Name(),
		"kind", src.Kind(),
		"geometry", geom.String(),
	)
	return src, nil
}
