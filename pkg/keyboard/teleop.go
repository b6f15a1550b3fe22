package keyboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/teslashibe/go-rover/pkg/terminal"
)

// Updater receives resolved velocity requests.
type Updater interface {
	Update(x, y, z, th, speed, turn float64)
}

// KeyReader reads one key, returning ErrNoKey when the timeout elapses first.
type KeyReader interface {
	ReadKey(timeout time.Duration) (rune, error)
}

// ErrNoKey is returned by a KeyReader when no key arrived before the timeout.
var ErrNoKey = terminal.ErrTimeout

// Config holds the keyboard teleop parameters.
type Config struct {
	Speed      float64       // Initial linear speed
	Turn       float64       // Initial angular speed
	SpeedLimit float64       // Upper bound for Speed
	TurnLimit  float64       // Upper bound for Turn
	KeyTimeout time.Duration // 0 blocks until a key arrives
}

// DefaultConfig returns teleop_twist_keyboard defaults.
func DefaultConfig() Config {
	return Config{
		Speed:      0.5,
		Turn:       1.0,
		SpeedLimit: 1000,
		TurnLimit:  1000,
		KeyTimeout: 500 * time.Millisecond,
	}
}

// statusEvery is how many speed changes pass between help banners.
const statusEvery = 15

// Teleop resolves keys into Update calls.
type Teleop struct {
	cfg     Config
	updater Updater
	out     io.Writer
	logger  *slog.Logger

	speed  float64
	turn   float64
	dir    Direction
	status int
}

// New creates a keyboard teleop writing its banner and status lines to out.
func New(updater Updater, cfg Config, out io.Writer, logger *slog.Logger) *Teleop {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Teleop{
		cfg:     cfg,
		updater: updater,
		out:     out,
		logger:  logger.With("component", "keyboard"),
		speed:   cfg.Speed,
		turn:    cfg.Turn,
	}
}

// Speed returns the current linear speed.
func (t *Teleop) Speed() float64 { return t.speed }

// Turn returns the current angular speed.
func (t *Teleop) Turn() float64 { return t.turn }

// Direction returns the last resolved direction.
func (t *Teleop) Direction() Direction { return t.dir }

// HandleKey applies one key. pressed is false when the read timed out.
// It returns true when the key asks to quit.
func (t *Teleop) HandleKey(key rune, pressed bool) (quit bool) {
	if d, ok := MoveBindings[key]; ok && pressed {
		t.dir = d
	} else if s, ok := SpeedBindings[key]; ok && pressed {
		t.speed = math.Min(t.cfg.SpeedLimit, t.speed*s.Speed)
		t.turn = math.Min(t.cfg.TurnLimit, t.turn*s.Turn)
		if t.speed == t.cfg.SpeedLimit {
			fmt.Fprintln(t.out, "Linear speed limit reached!")
		}
		if t.turn == t.cfg.TurnLimit {
			fmt.Fprintln(t.out, "Angular speed limit reached!")
		}
		fmt.Fprintln(t.out, t.vels())
		if t.status == statusEvery-1 {
			fmt.Fprint(t.out, Help)
		}
		t.status = (t.status + 1) % statusEvery
	} else {
		// Idle tick with the base already stopped: nothing to send.
		if !pressed && t.dir == (Direction{}) {
			return false
		}
		t.dir = Direction{}
		if pressed && key == KeyInterrupt {
			return true
		}
	}

	t.updater.Update(t.dir.X, t.dir.Y, t.dir.Z, t.dir.Th, t.speed, t.turn)
	return false
}

// Run prints the banner and reads keys until Ctrl-C, ctx cancellation or a
// read error.
func (t *Teleop) Run(ctx context.Context, r KeyReader) error {
	fmt.Fprint(t.out, Help)
	fmt.Fprintln(t.out, t.vels())

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		key, err := r.ReadKey(t.cfg.KeyTimeout)
		pressed := true
		if errors.Is(err, ErrNoKey) {
			pressed = false
		} else if err != nil {
			return fmt.Errorf("read key: %w", err)
		}

		if t.HandleKey(key, pressed) {
			t.logger.Info("interrupt key received")
			return nil
		}
	}
}

func (t *Teleop) vels() string {
	return fmt.Sprintf("currently:\tspeed %v\tturn %v", t.speed, t.turn)
}
