package preview

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-fisheye/pkg/capture"
	"github.com/teslashibe/go-fisheye/pkg/feed"
	"github.com/teslashibe/go-fisheye/pkg/hub"
)

// ControlsState reports the exposure and gain counters of the source.
type ControlsState struct {
	Supported bool `json:"supported"`
	Exposure  int  `json:"exposure"`
	Gain      int  `json:"gain"`
}

// Status is the body of GET /api/status.
type Status struct {
	Source   string           `json:"source"`
	Kind     capture.Kind     `json:"kind"`
	Geometry capture.Geometry `json:"geometry"`
	Feed     feed.Stats       `json:"feed"`
	Controls ControlsState    `json:"controls"`
	Preview  PreviewStatus    `json:"preview"`
}

// PreviewStatus describes the published preview frames.
type PreviewStatus struct {
	Published uint64 `json:"published"`
	LastSeq   uint64 `json:"last_seq"`
	LastPTSMs int64  `json:"last_pts_ms"`
	Clients   int    `json:"clients"`
}

// AdjustRequest is the body of POST /api/controls. Values are deltas,
// usually +1 or -1.
type AdjustRequest struct {
	Exposure int `json:"exposure"`
	Gain     int `json:"gain"`
}

func (s *Server) controls() ControlsState {
	exposure, gain, ok := s.ctrl.Controls()
	return ControlsState{Supported: ok, Exposure: exposure, Gain: gain}
}

func (s *Server) status() Status {
	s.mu.RLock()
	ps := PreviewStatus{
		Published: s.published,
		LastSeq:   s.latestSeq,
		LastPTSMs: s.latestPTS.Milliseconds(),
	}
	s.mu.RUnlock()
	ps.Clients = s.frameHub.ClientCount()

	return Status{
		Source:   s.ctrl.SourceName(),
		Kind:     s.ctrl.Kind(),
		Geometry: s.ctrl.Geometry(),
		Feed:     s.ctrl.Stats(),
		Controls: s.controls(),
		Preview:  ps,
	}
}

// handleStatus returns the feed status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleGetControls returns the exposure and gain counters
func (s *Server) handleGetControls(c *fiber.Ctx) error {
	return c.JSON(s.controls())
}

// handleAdjustControls applies exposure/gain deltas. Sources without
// controls accept the request and report supported=false.
func (s *Server) handleAdjustControls(c *fiber.Ctx) error {
	var req AdjustRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body: " + err.Error(),
		})
	}

	if req.Exposure != 0 {
		s.ctrl.AdjustExposure(req.Exposure)
	}
	if req.Gain != 0 {
		s.ctrl.AdjustGain(req.Gain)
	}

	state := s.controls()
	s.logger.Debug("controls adjusted",
		"exposure_delta", req.Exposure,
		"gain_delta", req.Gain,
		"exposure", state.Exposure,
		"gain", state.Gain,
	)
	s.BroadcastStatus()
	return c.JSON(state)
}

// handleFrame returns the latest preview frame as JPEG
func (s *Server) handleFrame(c *fiber.Ctx) error {
	data, seq := s.Latest()
	if data == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no frame yet",
		})
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set("X-Frame-Seq", strconv.FormatUint(seq, 10))
	return c.Send(data)
}

// handleFrameWS streams preview frames as binary JPEG messages
func (s *Server) handleFrameWS(c *websocket.Conn) {
	client := hub.NewClient(s.frameHub, c)

	// Start with the latest frame instead of waiting for the next publish
	if data, _ := s.Latest(); data != nil {
		c.WriteMessage(websocket.BinaryMessage, data)
	}
	client.Run()
}

// handleStatusWS streams status updates as JSON
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.statusHub, c)
	c.WriteJSON(s.status())
	client.Run()
}
