package perception

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-rover/pkg/decision"
	"github.com/teslashibe/go-rover/pkg/motion"
	"github.com/teslashibe/go-rover/pkg/rosbridge"
)

// bridgeServer is a minimal rosbridge_server: it records ops and lets the
// test publish on, or drop, the single connection.
type bridgeServer struct {
	srv *httptest.Server

	mu   sync.Mutex
	conn *websocket.Conn
	ops  []map[string]any
}

func newBridgeServer(t *testing.T) *bridgeServer {
	t.Helper()
	bs := &bridgeServer{}
	upgrader := websocket.Upgrader{}
	bs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		bs.mu.Lock()
		bs.conn = conn
		bs.mu.Unlock()
		for {
			var op map[string]any
			if err := conn.ReadJSON(&op); err != nil {
				return
			}
			bs.mu.Lock()
			bs.ops = append(bs.ops, op)
			bs.mu.Unlock()
		}
	}))
	t.Cleanup(bs.srv.Close)
	return bs
}

func (bs *bridgeServer) client(t *testing.T) *rosbridge.Client {
	t.Helper()
	cfg := rosbridge.DefaultConfig()
	cfg.Endpoint = "ws" + strings.TrimPrefix(bs.srv.URL, "http")
	c, err := rosbridge.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func (bs *bridgeServer) hasOp(op string) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for _, o := range bs.ops {
		if o["op"] == op {
			return true
		}
	}
	return false
}

func (bs *bridgeServer) publish(t *testing.T, topic, payload string) {
	t.Helper()
	bs.mu.Lock()
	defer bs.mu.Unlock()
	msg := `{"op":"publish","topic":"` + topic + `","msg":` + payload + `}`
	require.NoError(t, bs.conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func (bs *bridgeServer) drop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.conn.Close()
}

func TestRosbridgeSource_DriveCountsSkipped(t *testing.T) {
	bs := newBridgeServer(t)
	client := bs.client(t)
	sink := &mockSink{}
	c := NewController(sink, 0.5, 0.1, nil)
	src := NewRosbridgeSource(client, "/yolo_result", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Drive(ctx, src, c) }()

	require.Eventually(t, func() bool { return bs.hasOp("subscribe") }, time.Second, time.Millisecond)

	bs.publish(t, "/yolo_result", `{"detections":[
		{"results":[{"id":"bottle","score":0.8}]},
		{"results":[{"score":0.5}]}
	]}`)

	require.Eventually(t, func() bool { return c.Stats().Batches == 1 }, time.Second, time.Millisecond)
	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Skipped)
	assert.Equal(t, "turn_left", stats.LastAction)
	assert.Equal(t, []motion.Twist{motion.Rotate(0.1)}, sink.calls())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Drive did not return after cancel")
	}
	require.Eventually(t, func() bool { return bs.hasOp("unsubscribe") }, time.Second, time.Millisecond)
}

func TestRosbridgeSource_RunDecodesBatches(t *testing.T) {
	bs := newBridgeServer(t)
	src := NewRosbridgeSource(bs.client(t), "/yolo_result", nil)

	got := make(chan []decision.Detection, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx, func(_ context.Context, batch []decision.Detection) { got <- batch })

	require.Eventually(t, func() bool { return bs.hasOp("subscribe") }, time.Second, time.Millisecond)
	bs.publish(t, "/yolo_result", `{"detections":[{"results":[{"hypothesis":{"class_id":"person","score":0.3}}]}]}`)

	select {
	case batch := <-got:
		assert.Equal(t, []decision.Detection{{Label: "person", Score: 0.3}}, batch)
	case <-time.After(time.Second):
		t.Fatal("batch not delivered")
	}
}

func TestRosbridgeSource_DisconnectEndsRun(t *testing.T) {
	bs := newBridgeServer(t)
	client := bs.client(t)
	src := NewRosbridgeSource(client, "/yolo_result", nil)

	done := make(chan error, 1)
	go func() {
		done <- src.Run(context.Background(), func(context.Context, []decision.Detection) {})
	}()

	require.Eventually(t, func() bool { return bs.hasOp("subscribe") }, time.Second, time.Millisecond)
	bs.drop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, rosbridge.ErrDisconnected)
	case <-time.After(2 * time.Second):
		t.Fatal("Run still blocked after the bridge dropped")
	}
	assert.ErrorIs(t, client.Err(), rosbridge.ErrDisconnected)
	assert.False(t, client.IsConnected())
}
