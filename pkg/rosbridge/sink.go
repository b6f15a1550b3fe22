package rosbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/teslashibe/go-rover/pkg/motion"
)

// rosapiSubscribers is the rosapi service listing a topic's subscribers.
const rosapiSubscribers = "/rosapi/subscribers"

// TwistSink publishes motion commands on a rosbridge topic.
type TwistSink struct {
	client  *Client
	topic   string
	stamped bool
	frameID string
}

// NewTwistSink advertises topic as geometry_msgs Twist, or TwistStamped when
// stamped is set, and returns a sink for it.
func NewTwistSink(ctx context.Context, client *Client, topic string, stamped bool, frameID string) (*TwistSink, error) {
	msgType := TypeTwist
	if stamped {
		msgType = TypeTwistStamped
	}
	if err := client.Advertise(ctx, topic, msgType); err != nil {
		return nil, err
	}
	return &TwistSink{client: client, topic: topic, stamped: stamped, frameID: frameID}, nil
}

// Topic returns the command topic name.
func (s *TwistSink) Topic() string {
	return s.topic
}

// Publish sends cmd. On a stamped topic it is stamped with the current time.
func (s *TwistSink) Publish(ctx context.Context, cmd motion.Twist) error {
	if s.stamped {
		return s.client.Publish(ctx, s.topic, motion.Stamp(cmd, s.frameID, time.Now()))
	}
	return s.client.Publish(ctx, s.topic, cmd)
}

// PublishStamped sends cmd with its header. On an unstamped topic the header
// is dropped.
func (s *TwistSink) PublishStamped(ctx context.Context, cmd motion.Stamped) error {
	if !s.stamped {
		return s.client.Publish(ctx, s.topic, cmd.Twist)
	}
	return s.client.Publish(ctx, s.topic, cmd)
}

// SubscriptionCount asks rosapi how many nodes subscribe to the topic.
func (s *TwistSink) SubscriptionCount(ctx context.Context) (int, error) {
	var resp struct {
		Subscribers []string `json:"subscribers"`
	}
	args := map[string]string{"topic": s.topic}
	if err := s.client.CallService(ctx, rosapiSubscribers, args, &resp); err != nil {
		return 0, fmt.Errorf("subscriber probe: %w", err)
	}
	return len(resp.Subscribers), nil
}

var _ motion.Transport = (*TwistSink)(nil)
