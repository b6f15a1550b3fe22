package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-rover/pkg/decision"
	"github.com/teslashibe/go-rover/pkg/rosbridge"
)

// BatchHandler receives one ordered detection batch.
type BatchHandler = func(ctx context.Context, batch []decision.Detection)

// Source delivers detection batches until ctx ends.
type Source interface {
	Run(ctx context.Context, handle BatchHandler) error
}

// MessageHandler receives one encoded Detection2DArray payload.
type MessageHandler = func(ctx context.Context, data []byte)

// MessageSource delivers encoded payloads instead of decoded batches.
type MessageSource interface {
	RunMessages(ctx context.Context, handle MessageHandler) error
}

// RosbridgeSource subscribes to a Detection2DArray topic.
type RosbridgeSource struct {
	client *rosbridge.Client
	topic  string
	logger *slog.Logger
}

// NewRosbridgeSource creates a source reading topic through client.
func NewRosbridgeSource(client *rosbridge.Client, topic string, logger *slog.Logger) *RosbridgeSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &RosbridgeSource{client: client, topic: topic, logger: logger.With("component", "detections")}
}

// RunMessages subscribes and hands each raw Detection2DArray payload to
// handle. It blocks until ctx is done, or returns a wrapped
// rosbridge.ErrDisconnected when the bridge connection drops. Handlers are
// invoked on the rosbridge read goroutine, so payloads arrive serialized.
func (s *RosbridgeSource) RunMessages(ctx context.Context, handle MessageHandler) error {
	err := s.client.Subscribe(ctx, s.topic, rosbridge.TypeDetection2DArray, func(msg json.RawMessage) {
		handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("perception: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-s.client.Done():
		return fmt.Errorf("perception: %s: %w", s.topic, rosbridge.ErrDisconnected)
	}

	// Unsubscribe on a fresh context; ctx is already done.
	if err := s.client.Unsubscribe(context.Background(), s.topic); err != nil {
		s.logger.Debug("unsubscribe failed", "topic", s.topic, "error", err)
	}
	return nil
}

// Run is RunMessages with decoding. Undecodable payloads are dropped.
func (s *RosbridgeSource) Run(ctx context.Context, handle BatchHandler) error {
	return s.RunMessages(ctx, func(ctx context.Context, data []byte) {
		batch, skipped, err := DecodeDetectionArray(data)
		if err != nil {
			s.logger.Warn("dropping undecodable detection message", "topic", s.topic, "error", err)
			return
		}
		if skipped > 0 {
			s.logger.Debug("skipped malformed detections", "count", skipped)
		}
		handle(ctx, batch)
	})
}

// Drive wires a source to a controller and blocks until the source returns.
// Sources that deliver raw payloads go through HandleMessage so malformed
// entries are counted. Publish failures are logged; they do not stop the
// source.
func Drive(ctx context.Context, src Source, c *Controller) error {
	if ms, ok := src.(MessageSource); ok {
		return ms.RunMessages(ctx, func(ctx context.Context, data []byte) {
			if _, err := c.HandleMessage(ctx, data); err != nil {
				c.logger.Warn("perception command not sent", "error", err)
			}
		})
	}
	return src.Run(ctx, func(ctx context.Context, batch []decision.Detection) {
		if _, err := c.HandleBatch(ctx, batch); err != nil {
			c.logger.Warn("perception command not sent", "error", err)
		}
	})
}
