// Package preview serves a running feed over HTTP: status and controls as
// JSON, the latest frame as JPEG, Prometheus metrics, and live JPEG frames
// over a websocket.
package preview

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teslashibe/go-fisheye/pkg/capture"
	"github.com/teslashibe/go-fisheye/pkg/feed"
	"github.com/teslashibe/go-fisheye/pkg/hub"
)

// Controller is the part of a feed the preview server reads and drives.
// *feed.Feed implements it.
type Controller interface {
	SourceName() string
	Kind() capture.Kind
	Geometry() capture.Geometry
	Stats() feed.Stats
	Controls() (exposure, gain int, ok bool)
	AdjustExposure(delta int)
	AdjustGain(delta int)
}

var _ Controller = (*feed.Feed)(nil)

// Config configures the preview server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// FPS caps how often Publish encodes a frame. 0 encodes every frame.
	FPS int

	// JPEGQuality is 1-100.
	JPEGQuality int
}

// Server is the preview server.
type Server struct {
	app    *fiber.App
	cfg    Config
	ctrl   Controller
	logger *slog.Logger

	// Hubs for websocket broadcast
	frameHub  *hub.Hub
	statusHub *hub.Hub

	// Frames queued by Enqueue for the encoder goroutine
	encode     chan *capture.Frame
	free       chan []byte
	encodeOnce sync.Once
	quit       chan struct{}
	quitOnce   sync.Once

	mu          sync.RWMutex
	latest      []byte
	latestSeq   uint64
	latestPTS   time.Duration
	lastPublish time.Time
	published   uint64
}

// NewServer creates a preview server for ctrl. Metrics are served from
// gatherer; nil uses prometheus.DefaultGatherer.
func NewServer(cfg Config, ctrl Controller, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 80
	}
	logger = logger.With("component", "preview")

	s := &Server{
		cfg:       cfg,
		ctrl:      ctrl,
		logger:    logger,
		frameHub:  hub.New("frames", logger),
		statusHub: hub.New("status", logger),
		encode:    make(chan *capture.Frame, 1),
		free:      make(chan []byte, 2),
		quit:      make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "fisheye preview",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/controls", s.handleGetControls)
	api.Post("/controls", s.handleAdjustControls)
	api.Get("/frame.jpg", s.handleFrame)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/preview", websocket.New(s.handleFrameWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the hubs and listens on cfg.Addr. It blocks until Shutdown.
func (s *Server) Start() error {
	go s.frameHub.Run()
	go s.statusHub.Run()

	s.logger.Info("preview listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// StartAsync starts the server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("preview server error", "error", err)
		}
	}()
}

// Shutdown disconnects clients and stops the server.
func (s *Server) Shutdown() error {
	s.quitOnce.Do(func() { close(s.quit) })
	s.frameHub.Stop()
	s.statusHub.Stop()
	return s.app.Shutdown()
}

// Publish encodes f as the latest preview frame and broadcasts it to
// websocket clients. Frames arriving faster than cfg.FPS are ignored. It
// copies the pixels, so it is safe to call from inside Feed.PollFrame.
func (s *Server) Publish(f *capture.Frame) bool {
	now := time.Now()
	if !s.due(now) {
		return false
	}

	data, err := EncodeJPEG(f, s.cfg.JPEGQuality)
	if err != nil {
		s.logger.Warn("preview encode failed", "error", err)
		return false
	}

	s.mu.Lock()
	s.latest = data
	s.latestSeq = f.Seq
	s.latestPTS = f.PTS
	s.lastPublish = now
	s.published++
	s.mu.Unlock()

	if s.frameHub.ClientCount() > 0 {
		s.frameHub.BroadcastBinary(data)
	}
	return true
}

// Enqueue copies f and hands it to a background encoder, so the caller
// only pays for the copy. It returns false when the frame is rate limited
// or the encoder is still busy with an earlier frame.
func (s *Server) Enqueue(f *capture.Frame) bool {
	if f == nil || f.Empty() || !s.due(time.Now()) {
		return false
	}
	s.encodeOnce.Do(func() { go s.encodeLoop() })

	var buf []byte
	select {
	case buf = <-s.free:
	default:
	}
	cp := *f
	cp.Pix = append(buf[:0], f.Pix...)

	select {
	case s.encode <- &cp:
		return true
	default:
		s.recycle(cp.Pix)
		return false
	}
}

func (s *Server) encodeLoop() {
	for {
		select {
		case <-s.quit:
			return
		case f := <-s.encode:
			s.Publish(f)
			s.recycle(f.Pix)
		}
	}
}

func (s *Server) recycle(pix []byte) {
	select {
	case s.free <- pix:
	default:
	}
}

// due reports whether a frame arriving at now passes the FPS limit.
func (s *Server) due(now time.Time) bool {
	if s.cfg.FPS <= 0 {
		return true
	}
	s.mu.RLock()
	last := s.lastPublish
	s.mu.RUnlock()
	return now.Sub(last) >= time.Second/time.Duration(s.cfg.FPS)
}

// BroadcastStatus sends the current status to /ws/status clients.
func (s *Server) BroadcastStatus() {
	if s.statusHub.ClientCount() == 0 {
		return
	}
	if err := s.statusHub.BroadcastJSON(s.status()); err != nil {
		s.logger.Warn("status broadcast failed", "error", err)
	}
}

// Latest returns the most recent JPEG and the sequence number of its frame.
func (s *Server) Latest() ([]byte, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latestSeq
}

// FrameClients returns the number of connected /ws/preview clients.
func (s *Server) FrameClients() int {
	return s.frameHub.ClientCount()
}
