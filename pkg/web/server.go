// Package web serves the rover's HTTP and websocket surface: status,
// manual velocity commands, command consumers and detection producers.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-rover/pkg/hub"
	"github.com/teslashibe/go-rover/pkg/motion"
	"github.com/teslashibe/go-rover/pkg/perception"
	"github.com/teslashibe/go-rover/pkg/teleop"
)

// Updater receives manual velocity commands. *teleop.Publisher implements it.
type Updater interface {
	Update(x, y, z, th, speed, turn float64)
}

// DetectionHandler consumes an encoded Detection2DArray.
// *perception.Controller implements it.
type DetectionHandler interface {
	HandleMessage(ctx context.Context, data []byte) (motion.Twist, error)
}

// Options wires the server to the running pipeline. Nil fields disable the
// matching routes.
type Options struct {
	Mode       string
	AuthSecret string

	Hub        *hub.Hub
	Commands   Updater
	Detections DetectionHandler

	PublisherStats  func() teleop.Stats
	PerceptionStats func() perception.Stats

	Logger *slog.Logger
}

// Server is the rover web server
type Server struct {
	app     *fiber.App
	addr    string
	opts    Options
	logger  *slog.Logger
	started time.Time

	// ctx bounds detection handling; cancelled on Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new web server listening on addr once started.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctx:     ctx,
		cancel:  cancel,
		addr:    addr,
		opts:    opts,
		logger:  logger.With("component", "web"),
		started: time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "rover",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	if opts.Commands != nil {
		if opts.AuthSecret != "" {
			api.Post("/cmd", bearerAuth([]byte(opts.AuthSecret)), s.handleCommand)
			api.Post("/stop", bearerAuth([]byte(opts.AuthSecret)), s.handleStop)
		} else {
			api.Post("/cmd", s.handleCommand)
			api.Post("/stop", s.handleStop)
		}
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	if opts.Hub != nil {
		app.Get("/ws/cmd_vel", websocket.New(s.handleCmdVelWS))
	}
	if opts.Detections != nil {
		app.Get("/ws/detections", s.detectionsWS())
	}

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start blocks serving on the configured address.
func (s *Server) Start() error {
	s.logger.Info("web server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server error", "error", err)
		}
	}()
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}
