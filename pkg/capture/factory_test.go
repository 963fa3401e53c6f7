package capture

import (
	"errors"
	"log/slog"
	"testing"
)

func TestOpen_MockLive(t *testing.T) {
	src, err := Open(Config{Backend: BackendMock, Identifier: "0", Width: 64, Height: 48, FPS: 15}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	if src.Kind() != KindLive {
		t.Errorf("Expected live kind, got %v", src.Kind())
	}
	g := src.Geometry()
	if g.Width != 64 || g.Height != 48 || g.Format != FormatBGR {
		t.Errorf("Unexpected geometry %s", g)
	}
	if _, ok := src.(Controls); !ok {
		t.Error("Expected mock live source to support controls")
	}
}

func TestOpen_MockFileStartsAtProbeFrame(t *testing.T) {
	src, err := Open(Config{Backend: BackendMock, Identifier: "clip.mp4"}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	if src.Kind() != KindFile {
		t.Errorf("Expected file kind, got %v", src.Kind())
	}
	f, ok := src.Grab()
	if !ok {
		t.Fatal("Grab failed")
	}
	if f.PTS != 0 {
		t.Errorf("Expected first frame at PTS 0, got %v", f.PTS)
	}
}

func TestOpen_AppliesPreset(t *testing.T) {
	src, err := Open(Config{Backend: BackendMock, Identifier: "0", Preset: PresetVGA}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	g := src.Geometry()
	if g.Width != 640 || g.Height != 480 {
		t.Errorf("Expected 640x480 from preset, got %dx%d", g.Width, g.Height)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(Config{Backend: "v4l2", Identifier: "0"}, nil)

	var oe *OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("Expected *OpenError, got %v", err)
	}
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}
	if oe.Identifier != "0" {
		t.Errorf("Expected identifier in error, got %q", oe.Identifier)
	}
}

func TestOpen_BackendErrorIsOpenError(t *testing.T) {
	const name Backend = "test-broken"
	RegisterBackend(name, func(cfg Config, logger *slog.Logger) (Source, error) {
		return nil, ErrNoFirstFrame
	})

	_, err := Open(Config{Backend: name, Identifier: "/dev/video9"}, nil)
	if !IsOpenError(err) {
		t.Fatalf("Expected open error, got %v", err)
	}
	if !errors.Is(err, ErrNoFirstFrame) {
		t.Errorf("Expected ErrNoFirstFrame, got %v", err)
	}
}

func TestOpen_RejectsZeroGeometry(t *testing.T) {
	const name Backend = "test-zero"
	var closed bool
	RegisterBackend(name, func(cfg Config, logger *slog.Logger) (Source, error) {
		return &zeroSource{MockSource: NewMockLive(), closed: &closed}, nil
	})

	_, err := Open(Config{Backend: name, Identifier: "0"}, nil)
	if !IsOpenError(err) {
		t.Fatalf("Expected open error, got %v", err)
	}
	if !closed {
		t.Error("Expected source to be closed after rejecting it")
	}
}

func TestRegisterBackend_Reserved(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic registering the auto backend")
		}
	}()
	RegisterBackend(BackendAuto, openMock)
}

func TestAvailableBackends(t *testing.T) {
	found := false
	for _, b := range AvailableBackends() {
		if b == BackendMock {
			found = true
		}
	}
	if !found {
		t.Error("Expected mock backend to be available")
	}
}

// zeroSource reports an unusable geometry.
type zeroSource struct {
	*MockSource
	closed *bool
}

func (z *zeroSource) Geometry() Geometry { return Geometry{} }

func (z *zeroSource) Close() error {
	*z.closed = true
	return z.MockSource.Close()
}
