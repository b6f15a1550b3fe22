// Package config loads rover configuration from defaults, an optional YAML
// file and ROVER_* environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-rover/pkg/keyboard"
	"github.com/teslashibe/go-rover/pkg/rosbridge"
	"github.com/teslashibe/go-rover/pkg/teleop"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ROVER_"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Modes
const (
	ModeTeleop = "teleop"
	ModeYOLO   = "yolo"
)

// Transports
const (
	TransportRosbridge = "rosbridge"
	TransportHub       = "hub"
)

// Detection sources
const (
	SourceRosbridge = "rosbridge"
	SourceCamera    = "camera"
	SourceWeb       = "web"
)

// Config is the complete rover configuration.
type Config struct {
	Mode      string `yaml:"mode" env:"MODE"`
	Transport string `yaml:"transport" env:"TRANSPORT"`
	CmdTopic  string `yaml:"cmd_topic" env:"CMD_TOPIC"`

	// WaitForSubscribers blocks startup until a command consumer attaches.
	WaitForSubscribers bool `yaml:"wait_for_subscribers" env:"WAIT_FOR_SUBSCRIBERS"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFile  string `yaml:"log_file" env:"LOG_FILE"`

	Teleop     Teleop           `yaml:"teleop" envPrefix:"TELEOP_"`
	Perception Perception       `yaml:"perception" envPrefix:"PERCEPTION_"`
	Rosbridge  rosbridge.Config `yaml:"rosbridge" envPrefix:"ROSBRIDGE_"`
	Web        Web              `yaml:"web" envPrefix:"WEB_"`
}

// Teleop holds keyboard teleoperation parameters.
type Teleop struct {
	Rate       float64       `yaml:"rate" env:"RATE"` // Hz, 0 = publish on change only
	Speed      float64       `yaml:"speed" env:"SPEED"`
	Turn       float64       `yaml:"turn" env:"TURN"`
	SpeedLimit float64       `yaml:"speed_limit" env:"SPEED_LIMIT"`
	TurnLimit  float64       `yaml:"turn_limit" env:"TURN_LIMIT"`
	KeyTimeout time.Duration `yaml:"key_timeout" env:"KEY_TIMEOUT"`
	Stamped    bool          `yaml:"stamped" env:"STAMPED"`
	FrameID    string        `yaml:"frame_id" env:"FRAME_ID"`
}

// Perception holds the detection-driven controller parameters.
type Perception struct {
	Source       string   `yaml:"source" env:"SOURCE"`
	Topic        string   `yaml:"topic" env:"TOPIC"`
	LinearSpeed  float64  `yaml:"linear_speed" env:"LINEAR_SPEED"`
	AngularSpeed float64  `yaml:"angular_speed" env:"ANGULAR_SPEED"`
	Detector     Detector `yaml:"detector" envPrefix:"DETECTOR_"`
}

// Detector configures the local camera + YOLO source.
type Detector struct {
	ModelPath        string        `yaml:"model_path" env:"MODEL_PATH"`
	ConfidenceThresh float32       `yaml:"confidence_thresh" env:"CONFIDENCE_THRESH"`
	NMSThresh        float32       `yaml:"nms_thresh" env:"NMS_THRESH"`
	InputSize        int           `yaml:"input_size" env:"INPUT_SIZE"`
	Device           string        `yaml:"device" env:"DEVICE"`
	Interval         time.Duration `yaml:"interval" env:"INTERVAL"`
}

// Web configures the HTTP/websocket server. An empty Addr disables it.
type Web struct {
	Addr       string `yaml:"addr" env:"ADDR"`
	AuthSecret string `yaml:"auth_secret" env:"AUTH_SECRET"`
}

// Default returns the built-in configuration.
func Default() Config {
	kb := keyboard.DefaultConfig()
	return Config{
		Mode:      ModeTeleop,
		Transport: TransportRosbridge,
		CmdTopic:  "/cmd_vel",
		LogLevel:  "info",

		WaitForSubscribers: true,
		Teleop: Teleop{
			Rate:       teleop.DefaultConfig().Rate,
			Speed:      kb.Speed,
			Turn:       kb.Turn,
			SpeedLimit: kb.SpeedLimit,
			TurnLimit:  kb.TurnLimit,
			KeyTimeout: kb.KeyTimeout,
		},
		Perception: Perception{
			Source:       SourceRosbridge,
			Topic:        "/yolo_result",
			LinearSpeed:  0.5,
			AngularSpeed: 0.1,
			Detector: Detector{
				ModelPath:        "models/yolov8n.onnx",
				ConfidenceThresh: 0.25,
				NMSThresh:        0.45,
				InputSize:        640,
				Device:           "0",
				Interval:         250 * time.Millisecond,
			},
		},
		Rosbridge: rosbridge.DefaultConfig(),
		Web: Web{
			Addr: ":8080",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty)
// and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeTeleop, ModeYOLO:
	default:
		return invalid("mode must be %q or %q, got %q", ModeTeleop, ModeYOLO, c.Mode)
	}

	switch c.Transport {
	case TransportRosbridge, TransportHub:
	default:
		return invalid("transport must be %q or %q, got %q", TransportRosbridge, TransportHub, c.Transport)
	}
	if c.CmdTopic == "" {
		return invalid("cmd_topic is required")
	}
	if c.Transport == TransportHub && c.Web.Addr == "" {
		return invalid("hub transport needs web.addr")
	}

	t := c.Teleop
	if t.Rate < 0 {
		return invalid("teleop.rate must be >= 0")
	}
	if t.Speed < 0 || t.Turn < 0 {
		return invalid("teleop speed and turn must be >= 0")
	}
	if t.SpeedLimit <= 0 || t.TurnLimit <= 0 {
		return invalid("teleop limits must be positive")
	}
	if t.KeyTimeout <= 0 {
		return invalid("teleop.key_timeout must be positive")
	}

	if c.Mode == ModeYOLO {
		p := c.Perception
		switch p.Source {
		case SourceRosbridge:
			if p.Topic == "" {
				return invalid("perception.topic is required for the rosbridge source")
			}
		case SourceCamera:
			if p.Detector.ModelPath == "" {
				return invalid("perception.detector.model_path is required for the camera source")
			}
			if p.Detector.InputSize <= 0 {
				return invalid("perception.detector.input_size must be positive")
			}
		case SourceWeb:
			if c.Web.Addr == "" {
				return invalid("web source needs web.addr")
			}
		default:
			return invalid("perception.source must be one of rosbridge, camera, web; got %q", p.Source)
		}
	}

	if c.NeedsRosbridge() {
		if err := c.Rosbridge.Validate(); err != nil {
			return fmt.Errorf("%w: rosbridge: %v", ErrInvalid, err)
		}
	}
	return nil
}

// NeedsRosbridge reports whether any component talks to rosbridge.
func (c *Config) NeedsRosbridge() bool {
	return c.Transport == TransportRosbridge ||
		(c.Mode == ModeYOLO && c.Perception.Source == SourceRosbridge)
}

// PublisherConfig maps the teleop section to the publish loop config.
func (t Teleop) PublisherConfig() teleop.Config {
	cfg := teleop.DefaultConfig()
	cfg.Rate = t.Rate
	cfg.Stamped = t.Stamped
	cfg.FrameID = t.FrameID
	return cfg
}

// KeyboardConfig maps the teleop section to the keyboard config.
func (t Teleop) KeyboardConfig() keyboard.Config {
	return keyboard.Config{
		Speed:      t.Speed,
		Turn:       t.Turn,
		SpeedLimit: t.SpeedLimit,
		TurnLimit:  t.TurnLimit,
		KeyTimeout: t.KeyTimeout,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
