// rover: keyboard teleoperation and detection-driven driving for a ROS 2
// mobile base. Commands go out over rosbridge or to websocket consumers on
// the built-in hub.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-rover/internal/config"
	"github.com/teslashibe/go-rover/internal/log"
	"github.com/teslashibe/go-rover/pkg/hub"
	"github.com/teslashibe/go-rover/pkg/keyboard"
	"github.com/teslashibe/go-rover/pkg/motion"
	"github.com/teslashibe/go-rover/pkg/perception"
	"github.com/teslashibe/go-rover/pkg/perception/yolo"
	"github.com/teslashibe/go-rover/pkg/rosbridge"
	"github.com/teslashibe/go-rover/pkg/teleop"
	"github.com/teslashibe/go-rover/pkg/terminal"
	"github.com/teslashibe/go-rover/pkg/web"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	mode       = flag.String("mode", "", "teleop or yolo (overrides config)")
	transport  = flag.String("transport", "", "rosbridge or hub (overrides config)")
	endpoint   = flag.String("rosbridge", "", "rosbridge websocket URL (overrides config)")
	webAddr    = flag.String("web", "", "web server listen address (overrides config)")
	rate       = flag.Float64("rate", -1, "teleop republish rate in Hz (overrides config)")
	stamped    = flag.Bool("stamped", false, "publish TwistStamped")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	log.Init(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("rover exited", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}

	if *mode != "" {
		cfg.Mode = *mode
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *endpoint != "" {
		cfg.Rosbridge.Endpoint = *endpoint
	}
	if *webAddr != "" {
		cfg.Web.Addr = *webAddr
	}
	if *rate >= 0 {
		cfg.Teleop.Rate = *rate
	}
	if *stamped {
		cfg.Teleop.Stamped = true
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config) error {
	log.Info("rover starting", "mode", cfg.Mode, "transport", cfg.Transport, "topic", cfg.CmdTopic)

	var bridge *rosbridge.Client
	if cfg.NeedsRosbridge() {
		var err error
		bridge, err = rosbridge.New(cfg.Rosbridge, log.With("component", "rosbridge"))
		if err != nil {
			return err
		}
		if err := bridge.ConnectWithRetry(ctx); err != nil {
			return fmt.Errorf("connect rosbridge: %w", err)
		}
		defer bridge.Close()

		var cancel context.CancelCauseFunc
		ctx, cancel = watchTransport(ctx, bridge)
		defer cancel(nil)
	}

	var cmdHub *hub.Hub
	if cfg.Transport == config.TransportHub {
		hubCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		cmdHub = hub.New("cmd_vel", log.L())
		go cmdHub.Run(hubCtx)
	}

	sink, err := newTransport(ctx, cfg, bridge, cmdHub)
	if err != nil {
		return err
	}

	opts := web.Options{
		Mode:       cfg.Mode,
		AuthSecret: cfg.Web.AuthSecret,
		Hub:        cmdHub,
		Logger:     log.L(),
	}

	// Manual commands are accepted once the publish loop exists.
	commands := &commandGate{}
	var controller *perception.Controller
	switch cfg.Mode {
	case config.ModeTeleop:
		opts.Commands = commands
		opts.PublisherStats = commands.Stats
	case config.ModeYOLO:
		controller = perception.NewController(sink, cfg.Perception.LinearSpeed, cfg.Perception.AngularSpeed,
			log.With("component", "perception"))
		opts.PerceptionStats = controller.Stats
		if cfg.Perception.Source == config.SourceWeb {
			opts.Detections = controller
		}
	}

	if cfg.Web.Addr != "" {
		server := web.NewServer(cfg.Web.Addr, opts)
		server.StartAsync()
		defer func() {
			if err := server.Shutdown(); err != nil {
				log.Warn("web shutdown", "error", err)
			}
		}()
	}

	if cfg.WaitForSubscribers {
		err := teleop.WaitForSubscribers(ctx, sink, cfg.CmdTopic, log.With("component", "startup"))
		if err != nil {
			return transportLost(ctx, err)
		}
	}

	if cfg.Mode == config.ModeTeleop {
		err = runTeleop(ctx, cfg, sink, commands)
	} else {
		err = runPerception(ctx, cfg, sink, bridge, controller)
	}
	return transportLost(ctx, err)
}

// connWatcher reports an unrequested loss of a transport connection.
// *rosbridge.Client implements it.
type connWatcher interface {
	Done() <-chan struct{}
	Err() error
}

// watchTransport returns a context cancelled with conn.Err() as its cause
// when conn drops.
func watchTransport(parent context.Context, conn connWatcher) (context.Context, context.CancelCauseFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case <-conn.Done():
			cancel(conn.Err())
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// transportLost replaces the result of a step interrupted by a dropped
// rosbridge connection with the disconnect error.
func transportLost(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	if !errors.Is(cause, rosbridge.ErrDisconnected) || errors.Is(err, rosbridge.ErrDisconnected) {
		return err
	}
	return fmt.Errorf("rosbridge: %w", cause)
}

func newTransport(ctx context.Context, cfg config.Config, bridge *rosbridge.Client, cmdHub *hub.Hub) (motion.Transport, error) {
	if cfg.Transport == config.TransportHub {
		return hub.NewTwistSink(cmdHub), nil
	}
	stampedTopic := cfg.Mode == config.ModeTeleop && cfg.Teleop.Stamped
	sink, err := rosbridge.NewTwistSink(ctx, bridge, cfg.CmdTopic, stampedTopic, cfg.Teleop.FrameID)
	if err != nil {
		return nil, fmt.Errorf("advertise %s: %w", cfg.CmdTopic, err)
	}
	return sink, nil
}

func runTeleop(ctx context.Context, cfg config.Config, sink motion.Transport, commands *commandGate) error {
	pub, err := teleop.NewPublisher(sink, cfg.Teleop.PublisherConfig(), log.With("component", "teleop"))
	if err != nil {
		return err
	}
	commands.set(pub)
	defer pub.Stop()

	term, err := terminal.Open(os.Stdin)
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	defer term.Restore()

	kb := keyboard.New(pub, cfg.Teleop.KeyboardConfig(), os.Stdout, log.With("component", "keyboard"))
	return kb.Run(ctx, term)
}

func runPerception(ctx context.Context, cfg config.Config, sink motion.Sink, bridge *rosbridge.Client, controller *perception.Controller) error {
	defer stopBase(sink)

	switch cfg.Perception.Source {
	case config.SourceRosbridge:
		src := perception.NewRosbridgeSource(bridge, cfg.Perception.Topic, log.With("component", "detections"))
		return perception.Drive(ctx, src, controller)

	case config.SourceCamera:
		d := cfg.Perception.Detector
		detector, err := yolo.New(yolo.Config{
			ModelPath:        d.ModelPath,
			ConfidenceThresh: d.ConfidenceThresh,
			NMSThresh:        d.NMSThresh,
			InputWidth:       d.InputSize,
			InputHeight:      d.InputSize,
		})
		if err != nil {
			return err
		}
		defer detector.Close()
		cam := yolo.NewCamera(yolo.CameraConfig{Device: d.Device, Interval: d.Interval}, detector,
			log.With("component", "camera"))
		return perception.Drive(ctx, cam, controller)

	default:
		// Batches arrive on /ws/detections.
		<-ctx.Done()
		return nil
	}
}

// stopBase leaves the base with a zero command on the way out.
func stopBase(sink motion.Sink) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sink.Publish(ctx, motion.Twist{}); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("final stop not sent", "error", err)
	}
}
