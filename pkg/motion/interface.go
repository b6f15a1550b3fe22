package motion

import "context"

// Sink accepts one Twist at a time with latest-value-wins semantics.
// A Sink is not a queue: a late consumer only ever sees the most recent command.
type Sink interface {
	Publish(ctx context.Context, cmd Twist) error
}

// StampedSink accepts timestamped commands.
// Transports that require a header envelope implement this alongside Sink.
type StampedSink interface {
	PublishStamped(ctx context.Context, cmd Stamped) error
}

// SubscriptionCounter reports how many downstream consumers are attached.
// Startup code polls this before commands start flowing.
type SubscriptionCounter interface {
	SubscriptionCount(ctx context.Context) (int, error)
}

// Transport is the composite capability a command transport provides.
type Transport interface {
	Sink
	StampedSink
	SubscriptionCounter
}
