// Package teleop owns the commanded velocity of a mobile base and republishes
// it at a bounded rate.
//
// Producers (keyboard handlers, HTTP handlers) call Update from any goroutine.
// A single background loop wakes on each update or on the republish timeout,
// snapshots the state under the lock, scales it and hands it to the sink.
// Stop is terminal: the loop transmits exactly one all-zero command and exits.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-rover/pkg/motion"
)

// Config controls the publish loop.
type Config struct {
	// Rate is the republish frequency in Hz. 0 disables republishing: the
	// loop only transmits on Update and Stop.
	Rate float64

	// Stamped sends motion.Stamped envelopes instead of bare Twists.
	Stamped bool

	// FrameID is the header frame for stamped commands.
	FrameID string

	// PublishTimeout bounds a single transmission.
	PublishTimeout time.Duration
}

// DefaultConfig matches teleop_twist_keyboard defaults.
func DefaultConfig() Config {
	return Config{
		Rate:           0,
		Stamped:        false,
		PublishTimeout: time.Second,
	}
}

// timeout returns the wait bound for one loop iteration, 0 meaning none.
func (c Config) timeout() time.Duration {
	if c.Rate <= 0 {
		return 0
	}
	// Rates above 1 GHz would truncate to zero, which means "no republish".
	return max(time.Duration(float64(time.Second)/c.Rate), time.Nanosecond)
}

// ErrStampedUnsupported is returned when a stamped loop is requested on a
// sink that cannot carry headers.
var ErrStampedUnsupported = errors.New("teleop: sink does not support stamped commands")

// Publisher is the command state plus the loop that transmits it.
type Publisher struct {
	sink    motion.Sink
	stamped motion.StampedSink
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	x     float64
	y     float64
	z     float64
	th    float64
	speed float64
	turn  float64
	done  bool

	wake   chan struct{} // single slot, overwritten on each Update
	exited chan struct{}

	state         atomic.Int32
	sent          atomic.Uint64
	errorCount    atomic.Uint64
	lastErrorTime time.Time // loop goroutine only
}

// NewPublisher creates the command state and starts the publish loop.
func NewPublisher(sink motion.Sink, cfg Config, logger *slog.Logger) (*Publisher, error) {
	if sink == nil {
		return nil, fmt.Errorf("teleop: sink is required")
	}
	if cfg.Rate < 0 {
		return nil, fmt.Errorf("teleop: rate must be >= 0, got %v", cfg.Rate)
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Publisher{
		sink:   sink,
		cfg:    cfg,
		logger: logger.With("component", "teleop"),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
		exited: make(chan struct{}),
	}

	if cfg.Stamped {
		ss, ok := sink.(motion.StampedSink)
		if !ok {
			return nil, ErrStampedUnsupported
		}
		p.stamped = ss
	}

	p.state.Store(int32(StateRunning))
	go p.run()

	p.logger.Info("publish loop started", "rate_hz", cfg.Rate, "stamped", cfg.Stamped)
	return p, nil
}

// Update replaces the commanded velocity and wakes the loop.
// All six fields change as one unit. Never blocks beyond the lock.
func (p *Publisher) Update(x, y, z, th, speed, turn float64) {
	p.mu.Lock()
	p.x = x
	p.y = y
	p.z = z
	p.th = th
	p.speed = speed
	p.turn = turn
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
		// A wake is already pending; the loop will read the latest state.
	}
}

// Stop marks the loop done, zeroes the state and blocks until the final
// zero command has been transmitted and the loop has exited.
// Stop must be called at most once.
func (p *Publisher) Stop() {
	p.mu.Lock()
	p.done = true
	p.mu.Unlock()

	p.Update(0, 0, 0, 0, 0, 0)
	<-p.exited

	p.logger.Info("publish loop stopped",
		"sent", p.sent.Load(),
		"errors", p.errorCount.Load(),
	)
}

// Snapshot returns the scaled command for the current state.
func (p *Publisher) Snapshot() motion.Twist {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.twistLocked()
}

// State returns the loop lifecycle state.
func (p *Publisher) State() State {
	return State(p.state.Load())
}

// Done returns a channel closed when the loop has exited.
func (p *Publisher) Done() <-chan struct{} {
	return p.exited
}

// twistLocked scales the raw state. p.mu must be held.
func (p *Publisher) twistLocked() motion.Twist {
	return motion.Twist{
		Linear: motion.Vector3{
			X: p.x * p.speed,
			Y: p.y * p.speed,
			Z: p.z * p.speed,
		},
		Angular: motion.Vector3{
			Z: p.th * p.turn,
		},
	}
}

func (p *Publisher) run() {
	defer close(p.exited)

	timeout := p.cfg.timeout()
	for {
		var tick <-chan time.Time
		var timer *time.Timer
		if timeout > 0 {
			timer = time.NewTimer(timeout)
			tick = timer.C
		}

		select {
		case <-p.wake:
		case <-tick:
		}
		if timer != nil {
			timer.Stop()
		}

		p.mu.Lock()
		cmd := p.twistLocked()
		done := p.done
		p.mu.Unlock()

		if done {
			break
		}
		p.transmit(cmd)
	}

	p.state.Store(int32(StateStopping))
	p.transmit(motion.Twist{})
	p.state.Store(int32(StateStopped))
}

// transmit sends one command. Failures are counted and logged at most once
// every 5 seconds; the loop keeps going.
func (p *Publisher) transmit(cmd motion.Twist) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
	defer cancel()

	var err error
	if p.stamped != nil {
		// Stamp at transmission time, not when the command was computed.
		err = p.stamped.PublishStamped(ctx, motion.Stamp(cmd, p.cfg.FrameID, p.now()))
	} else {
		err = p.sink.Publish(ctx, cmd)
	}

	if err == nil {
		p.sent.Add(1)
		return
	}

	n := p.errorCount.Add(1)
	if p.lastErrorTime.IsZero() || time.Since(p.lastErrorTime) > 5*time.Second {
		p.logger.Warn("publish failed", "error", err, "total_errors", n)
		p.lastErrorTime = time.Now()
	}
}

// Stats returns loop counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		State:  p.State().String(),
		Sent:   p.sent.Load(),
		Errors: p.errorCount.Load(),
	}
}

// Stats contains publish loop statistics.
type Stats struct {
	State  string `json:"state"`
	Sent   uint64 `json:"sent"`
	Errors uint64 `json:"errors"`
}
