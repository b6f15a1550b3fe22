package teleop

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-rover/pkg/motion"
)

// ErrShutdownBeforeSubscribers is returned when the context ends before any
// consumer attached to the command sink.
var ErrShutdownBeforeSubscribers = errors.New("teleop: got shutdown request before subscribers connected")

// subscriberPollInterval is how often WaitForSubscribers probes the sink.
var subscriberPollInterval = 500 * time.Millisecond

// WaitForSubscribers blocks until at least one consumer is attached.
// It warns on every fifth miss. Probe errors count as misses.
func WaitForSubscribers(ctx context.Context, counter motion.SubscriptionCounter, topic string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(subscriberPollInterval)
	defer ticker.Stop()

	for i := 0; ; i = (i + 1) % 5 {
		if ctx.Err() != nil {
			return ErrShutdownBeforeSubscribers
		}

		n, err := counter.SubscriptionCount(ctx)
		if err != nil {
			logger.Debug("subscriber probe failed", "topic", topic, "error", err)
		} else if n > 0 {
			logger.Info("subscriber connected", "topic", topic, "count", n)
			return nil
		}

		if i == 4 {
			logger.Warn("waiting for subscriber to connect", "topic", topic)
		}

		select {
		case <-ctx.Done():
			return ErrShutdownBeforeSubscribers
		case <-ticker.C:
		}
	}
}
