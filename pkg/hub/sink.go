package hub

import (
	"context"

	"github.com/teslashibe/go-rover/pkg/motion"
	"github.com/teslashibe/go-rover/pkg/protocol"
)

// TwistSink publishes velocity commands to every hub client. A client that
// has not yet written the previous command receives only the newest one.
type TwistSink struct {
	hub *Hub
}

var _ motion.Transport = (*TwistSink)(nil)

// NewTwistSink wraps h as a command transport.
func NewTwistSink(h *Hub) *TwistSink {
	return &TwistSink{hub: h}
}

// Publish broadcasts a bare twist.
func (s *TwistSink) Publish(ctx context.Context, cmd motion.Twist) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := protocol.NewTwistMessage(cmd)
	if err != nil {
		return err
	}
	return s.send(msg)
}

// PublishStamped broadcasts a stamped twist.
func (s *TwistSink) PublishStamped(ctx context.Context, cmd motion.Stamped) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := protocol.NewTwistStampedMessage(cmd)
	if err != nil {
		return err
	}
	return s.send(msg)
}

// SubscriptionCount reports connected websocket clients.
func (s *TwistSink) SubscriptionCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.hub.ClientCount(), nil
}

func (s *TwistSink) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	return s.hub.Broadcast(NewJSONMessage(data))
}
