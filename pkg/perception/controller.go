// Package perception drives the base from object detections.
//
// Each detection batch is folded into a fresh summary, passed through the
// decision engine and the resulting command is transmitted immediately.
// There is no republish loop on this path.
package perception

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-rover/pkg/decision"
	"github.com/teslashibe/go-rover/pkg/motion"
)

// Controller turns detection batches into motion commands.
type Controller struct {
	sink         motion.Sink
	linearSpeed  float64
	angularSpeed float64
	logger       *slog.Logger

	batches atomic.Uint64
	skipped atomic.Uint64
	errors  atomic.Uint64

	mu         sync.RWMutex
	decided    bool // a batch has been handled
	lastAction decision.Action
	lastCmd    motion.Twist
}

// noAction is reported as LastAction before the first batch.
const noAction = "none"

// NewController creates a perception controller publishing to sink.
func NewController(sink motion.Sink, linearSpeed, angularSpeed float64, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		sink:         sink,
		linearSpeed:  linearSpeed,
		angularSpeed: angularSpeed,
		logger:       logger.With("component", "perception"),
	}
}

// HandleBatch decides and transmits the command for one batch.
func (c *Controller) HandleBatch(ctx context.Context, batch []decision.Detection) (motion.Twist, error) {
	summary := decision.Fold(batch)
	action := decision.Classify(summary)
	cmd := decision.Decide(summary, c.linearSpeed, c.angularSpeed)

	c.batches.Add(1)
	c.logger.Info("received detections", "summary", summary.String())

	c.mu.Lock()
	c.decided = true
	c.lastAction = action
	c.lastCmd = cmd
	c.mu.Unlock()

	if err := c.sink.Publish(ctx, cmd); err != nil {
		c.errors.Add(1)
		return cmd, fmt.Errorf("perception: publish: %w", err)
	}

	c.logger.Info("sent command", "action", action.String(), "twist", cmd.String())
	return cmd, nil
}

// HandleMessage decodes a Detection2DArray payload and handles it.
func (c *Controller) HandleMessage(ctx context.Context, data []byte) (motion.Twist, error) {
	batch, skipped, err := DecodeDetectionArray(data)
	if err != nil {
		return motion.Twist{}, err
	}
	if skipped > 0 {
		c.skipped.Add(uint64(skipped))
		c.logger.Debug("skipped malformed detections", "count", skipped)
	}
	return c.HandleBatch(ctx, batch)
}

// Stats returns controller counters and the last decision.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	decided, action, cmd := c.decided, c.lastAction, c.lastCmd
	c.mu.RUnlock()

	last := noAction
	if decided {
		last = action.String()
	}

	return Stats{
		Batches:    c.batches.Load(),
		Skipped:    c.skipped.Load(),
		Errors:     c.errors.Load(),
		LastAction: last,
		LastCmd:    cmd,
	}
}

// Stats contains perception path statistics.
type Stats struct {
	Batches    uint64       `json:"batches"`
	Skipped    uint64       `json:"skipped"`
	Errors     uint64       `json:"errors"`
	LastAction string       `json:"last_action"`
	LastCmd    motion.Twist `json:"last_cmd"`
}
