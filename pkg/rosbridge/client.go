package rosbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-rover/internal/httpc"
)

// Handler receives the raw "msg" payload of a subscribed topic.
// Handlers run on the client's read goroutine, one message at a time.
type Handler func(msg json.RawMessage)

type subscription struct {
	msgType  string
	handlers []Handler
}

// Client is a rosbridge websocket client.
type Client struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer

	writeMu sync.Mutex // gorilla allows a single concurrent writer

	mu         sync.RWMutex
	conn       *websocket.Conn
	closed     bool
	advertised map[string]string // topic -> type
	subs       map[string]*subscription
	pending    map[string]chan serviceResponse
	readDone   chan struct{}

	// lost is closed when the connection drops without Close being called.
	lost     chan struct{}
	lostOnce sync.Once

	// Stats
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	reconnectCount   atomic.Int64
}

// New creates a new rosbridge client.
// Call Connect() or ConnectWithRetry() to establish the session.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:        cfg,
		logger:     logger.With("component", "rosbridge"),
		dialer:     httpc.Dialer,
		advertised: make(map[string]string),
		subs:       make(map[string]*subscription),
		pending:    make(map[string]chan serviceResponse),
		lost:       make(chan struct{}),
	}, nil
}

// Connect dials the rosbridge server and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.conn != nil {
		return nil // Already connected
	}

	c.logger.Info("connecting to rosbridge", "endpoint", c.cfg.Endpoint)

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial rosbridge: %w", err)
	}

	c.conn = conn
	c.readDone = make(chan struct{})
	go c.readLoop(conn, c.readDone)

	c.logger.Info("connected to rosbridge", "endpoint", c.cfg.Endpoint)
	return nil
}

// ConnectWithRetry connects with automatic retry on failure.
// It gives up when ctx ends or MaxReconnectAttempts is reached.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.Connect(ctx)
		if err == nil {
			return nil
		}

		attempts++
		c.reconnectCount.Add(1)

		if c.cfg.MaxReconnectAttempts > 0 && attempts >= c.cfg.MaxReconnectAttempts {
			return fmt.Errorf("max reconnect attempts (%d) reached: %w", c.cfg.MaxReconnectAttempts, err)
		}

		c.logger.Warn("rosbridge connection failed, retrying",
			"error", err,
			"attempt", attempts,
			"retry_in", c.cfg.ReconnectInterval,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

// IsConnected returns true if the client has a live connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.closed
}

// Advertise declares this client as a publisher of topic.
// Re-advertising the same topic and type is a no-op.
func (c *Client) Advertise(ctx context.Context, topic, msgType string) error {
	c.mu.RLock()
	existing, ok := c.advertised[topic]
	c.mu.RUnlock()
	if ok && existing == msgType {
		return nil
	}

	op := advertiseOp{
		Op:        opAdvertise,
		ID:        newID(opAdvertise, topic),
		Topic:     topic,
		Type:      msgType,
		QueueSize: 1,
	}
	if err := c.send(ctx, op); err != nil {
		return fmt.Errorf("failed to advertise %s: %w", topic, err)
	}

	c.mu.Lock()
	c.advertised[topic] = msgType
	c.mu.Unlock()

	c.logger.Debug("advertised topic", "topic", topic, "type", msgType)
	return nil
}

// Publish sends msg on topic. The topic should have been advertised.
func (c *Client) Publish(ctx context.Context, topic string, msg any) error {
	op := publishOp{
		Op:    opPublish,
		Topic: topic,
		Msg:   msg,
	}
	if err := c.send(ctx, op); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. The first handler for a topic
// sends the subscribe op; later ones share it. queue_length is 1 so the
// server only ever holds the latest message.
func (c *Client) Subscribe(ctx context.Context, topic, msgType string, handler Handler) error {
	c.mu.Lock()
	sub, exists := c.subs[topic]
	if exists {
		sub.handlers = append(sub.handlers, handler)
		c.mu.Unlock()
		return nil
	}
	c.subs[topic] = &subscription{msgType: msgType, handlers: []Handler{handler}}
	c.mu.Unlock()

	op := subscribeOp{
		Op:          opSubscribe,
		ID:          newID(opSubscribe, topic),
		Topic:       topic,
		Type:        msgType,
		QueueLength: 1,
	}
	if err := c.send(ctx, op); err != nil {
		c.mu.Lock()
		delete(c.subs, topic)
		c.mu.Unlock()
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	c.logger.Debug("subscribed to topic", "topic", topic, "type", msgType)
	return nil
}

// Unsubscribe drops all handlers for topic.
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	_, exists := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()

	if !exists {
		return nil
	}
	return c.send(ctx, unsubscribeOp{Op: opUnsubscribe, ID: newID(opUnsubscribe, topic), Topic: topic})
}

// CallService calls a ROS service and decodes its values into out.
// out may be nil when the response body is not needed.
func (c *Client) CallService(ctx context.Context, service string, args any, out any) error {
	id := newID(opCallService, service)
	ch := make(chan serviceResponse, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, callServiceOp{Op: opCallService, ID: id, Service: service, Args: args}); err != nil {
		return fmt.Errorf("failed to call %s: %w", service, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("call %s: %w", service, ctx.Err())
	case resp := <-ch:
		if resp.err != nil {
			return fmt.Errorf("call %s: %w", service, resp.err)
		}
		if !resp.result {
			var msg string
			_ = json.Unmarshal(resp.values, &msg)
			return &ServiceError{Service: service, Message: msg}
		}
		if out == nil || len(resp.values) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.values, out); err != nil {
			return fmt.Errorf("decode %s response: %w", service, err)
		}
		return nil
	}
}

// Close unadvertises topics and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	done := c.readDone
	topics := make([]string, 0, len(c.advertised))
	for topic := range c.advertised {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()
	for _, topic := range topics {
		if err := c.write(ctx, conn, unadvertiseOp{Op: opUnadvertise, Topic: topic}); err != nil {
			c.logger.Warn("error unadvertising topic", "topic", topic, "error", err)
		}
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteTimeout))
	c.writeMu.Unlock()

	err := conn.Close()
	<-done

	c.logger.Info("rosbridge client closed")
	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// send writes op on the current connection.
func (c *Client) send(ctx context.Context, op any) error {
	c.mu.RLock()
	conn := c.conn
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(ctx, conn, op)
}

func (c *Client) write(ctx context.Context, conn *websocket.Conn, op any) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.WriteTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := conn.WriteJSON(op); err != nil {
		return err
	}
	c.messagesSent.Add(1)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		c.messagesReceived.Add(1)
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var in incoming
	if err := json.Unmarshal(data, &in); err != nil {
		c.logger.Warn("malformed rosbridge message", "error", err)
		return
	}

	switch in.Op {
	case opPublish:
		c.mu.RLock()
		var handlers []Handler
		if sub, ok := c.subs[in.Topic]; ok {
			handlers = append(handlers, sub.handlers...)
		}
		c.mu.RUnlock()

		for _, h := range handlers {
			h(in.Msg)
		}

	case opServiceResponse:
		c.mu.RLock()
		ch, ok := c.pending[in.ID]
		c.mu.RUnlock()
		if !ok {
			c.logger.Debug("unexpected service response", "id", in.ID, "service", in.Service)
			return
		}
		result := in.Result == nil || *in.Result
		select {
		case ch <- serviceResponse{values: in.Values, result: result}:
		default:
		}

	case opStatus:
		var msg string
		_ = json.Unmarshal(in.Msg, &msg)
		if in.Level == "error" || in.Level == "warning" {
			c.logger.Warn("rosbridge status", "level", in.Level, "id", in.ID, "msg", msg)
		} else {
			c.logger.Debug("rosbridge status", "level", in.Level, "id", in.ID, "msg", msg)
		}

	default:
		c.logger.Debug("ignoring rosbridge op", "op", in.Op)
	}
}

// handleDisconnect clears the connection and fails pending calls.
func (c *Client) handleDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	closed := c.closed
	if c.conn == conn {
		c.conn = nil
	}
	c.advertised = make(map[string]string)
	pending := c.pending
	c.pending = make(map[string]chan serviceResponse)
	c.mu.Unlock()

	for _, ch := range pending {
		select {
		case ch <- serviceResponse{err: ErrDisconnected}:
		default:
		}
	}

	if !closed {
		c.logger.Warn("rosbridge connection lost", "error", err)
		c.lostOnce.Do(func() { close(c.lost) })
	}
}

// Done returns a channel closed when an established connection drops
// without Close being called. The client does not reconnect after that.
func (c *Client) Done() <-chan struct{} {
	return c.lost
}

// Err returns ErrDisconnected once Done is closed, nil otherwise.
func (c *Client) Err() error {
	select {
	case <-c.lost:
		return ErrDisconnected
	default:
		return nil
	}
}

// Stats returns client statistics.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		Connected:        c.IsConnected(),
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		ReconnectCount:   c.reconnectCount.Load(),
	}
}

// ClientStats contains client statistics.
type ClientStats struct {
	Connected        bool  `json:"connected"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesReceived int64 `json:"messages_received"`
	ReconnectCount   int64 `json:"reconnect_count"`
}

func newID(op, name string) string {
	return op + ":" + name + ":" + uuid.NewString()
}
