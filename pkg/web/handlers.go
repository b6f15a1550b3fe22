package web

import (
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-rover/pkg/hub"
	"github.com/teslashibe/go-rover/pkg/perception"
	"github.com/teslashibe/go-rover/pkg/teleop"
)

// Status is the body of GET /api/status.
type Status struct {
	Mode       string            `json:"mode,omitempty"`
	Uptime     string            `json:"uptime"`
	Publisher  *teleop.Stats     `json:"publisher,omitempty"`
	Perception *perception.Stats `json:"perception,omitempty"`
	Clients    int               `json:"clients"`
	Dropped    uint64            `json:"dropped"`
}

// handleStatus reports the pipeline counters
func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := Status{
		Mode:   s.opts.Mode,
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.opts.PublisherStats != nil {
		ps := s.opts.PublisherStats()
		st.Publisher = &ps
	}
	if s.opts.PerceptionStats != nil {
		ps := s.opts.PerceptionStats()
		st.Perception = &ps
	}
	if s.opts.Hub != nil {
		st.Clients = s.opts.Hub.ClientCount()
		st.Dropped = s.opts.Hub.Dropped()
	}
	return c.JSON(st)
}

// CommandRequest is the body of POST /api/cmd. Fields mirror Update.
type CommandRequest struct {
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Z     float64  `json:"z"`
	Th    float64  `json:"th"`
	Speed *float64 `json:"speed"`
	Turn  *float64 `json:"turn"`
}

func (r CommandRequest) valid() bool {
	for _, v := range []float64{r.X, r.Y, r.Z, r.Th} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.Speed != nil && r.Turn != nil && *r.Speed >= 0 && *r.Turn >= 0
}

// handleCommand forwards a manual command to the publisher
func (s *Server) handleCommand(c *fiber.Ctx) error {
	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body: " + err.Error(),
		})
	}
	if !req.valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "speed and turn are required and must be non-negative",
		})
	}

	s.opts.Commands.Update(req.X, req.Y, req.Z, req.Th, *req.Speed, *req.Turn)
	s.logger.Debug("manual command", "x", req.X, "y", req.Y, "z", req.Z, "th", req.Th,
		"speed", *req.Speed, "turn", *req.Turn, "subject", c.Locals(subjectKey))

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

// handleStop zeroes the direction while keeping the publisher running.
func (s *Server) handleStop(c *fiber.Ctx) error {
	s.opts.Commands.Update(0, 0, 0, 0, 0, 0)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "stopped"})
}

// handleCmdVelWS attaches a command consumer to the hub
func (s *Server) handleCmdVelWS(c *websocket.Conn) {
	client, err := hub.NewClient(s.opts.Hub, c)
	if err != nil {
		s.logger.Warn("cmd_vel consumer rejected", "remote", c.RemoteAddr().String(), "error", err)
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub closed"))
		_ = c.Close()
		return
	}
	s.logger.Debug("cmd_vel consumer attached", "client", client.ID, "remote", c.RemoteAddr().String())
	client.Run()
}
