package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-rover/pkg/decision"
	"github.com/teslashibe/go-rover/pkg/hub"
	"github.com/teslashibe/go-rover/pkg/motion"
	"github.com/teslashibe/go-rover/pkg/perception"
	"github.com/teslashibe/go-rover/pkg/protocol"
	"github.com/teslashibe/go-rover/pkg/teleop"
)

type update struct {
	x, y, z, th, speed, turn float64
}

type mockUpdater struct {
	mu      sync.Mutex
	updates []update
}

func (m *mockUpdater) Update(x, y, z, th, speed, turn float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, update{x, y, z, th, speed, turn})
}

func (m *mockUpdater) all() []update {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]update(nil), m.updates...)
}

type mockDetections struct {
	mu      sync.Mutex
	batches [][]byte
}

func (m *mockDetections) HandleMessage(_ context.Context, data []byte) (motion.Twist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]byte(nil), data...))
	return motion.Twist{}, nil
}

func (m *mockDetections) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func postJSON(t *testing.T, s *Server, path, body, bearer string) int {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestStatus(t *testing.T) {
	s := NewServer(":0", Options{
		Mode:   "teleop",
		Logger: quietLogger(),
		PublisherStats: func() teleop.Stats {
			return teleop.Stats{State: "running", Sent: 7}
		},
	})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "teleop", st.Mode)
	require.NotNil(t, st.Publisher)
	assert.Equal(t, uint64(7), st.Publisher.Sent)
	assert.Nil(t, st.Perception)
}

func TestCommand(t *testing.T) {
	up := &mockUpdater{}
	s := NewServer(":0", Options{Commands: up, Logger: quietLogger()})

	code := postJSON(t, s, "/api/cmd", `{"x":1,"th":-1,"speed":0.5,"turn":1.0}`, "")
	assert.Equal(t, 202, code)
	assert.Equal(t, []update{{x: 1, th: -1, speed: 0.5, turn: 1.0}}, up.all())

	code = postJSON(t, s, "/api/stop", ``, "")
	assert.Equal(t, 202, code)
	assert.Len(t, up.all(), 2)
	assert.Equal(t, update{}, up.all()[1])
}

func TestCommand_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing speed", `{"x":1,"turn":1}`},
		{"negative turn", `{"x":1,"speed":1,"turn":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &mockUpdater{}
			s := NewServer(":0", Options{Commands: up, Logger: quietLogger()})
			assert.Equal(t, 400, postJSON(t, s, "/api/cmd", tt.body, ""))
			assert.Empty(t, up.all())
		})
	}
}

func TestCommand_NotConfigured(t *testing.T) {
	s := NewServer(":0", Options{Logger: quietLogger()})
	assert.Equal(t, 404, postJSON(t, s, "/api/cmd", `{"speed":1,"turn":1}`, ""))
}

func TestCommand_Auth(t *testing.T) {
	const secret = "s3cret"
	body := `{"x":1,"speed":0.5,"turn":1}`

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{"missing token", "", 401},
		{"garbage token", "not-a-jwt", 401},
		{"wrong secret", signToken(t, "other", jwt.SigningMethodHS256), 401},
		{"wrong algorithm", signToken(t, secret, jwt.SigningMethodHS512), 401},
		{"valid token", signToken(t, secret, jwt.SigningMethodHS256), 202},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &mockUpdater{}
			s := NewServer(":0", Options{Commands: up, AuthSecret: secret, Logger: quietLogger()})
			assert.Equal(t, tt.want, postJSON(t, s, "/api/cmd", body, tt.bearer))
			if tt.want == 202 {
				assert.Len(t, up.all(), 1)
			} else {
				assert.Empty(t, up.all())
			}
		})
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := NewServer(":0", Options{Detections: &mockDetections{}, Logger: quietLogger()})
	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/detections", nil))
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
}

// serve runs s on a loopback listener and returns its ws:// base URL.
func serve(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.App().Listener(ln)
	t.Cleanup(func() { _ = s.Shutdown() })
	return "ws://" + ln.Addr().String()
}

func TestDetectionsWebSocket(t *testing.T) {
	det := &mockDetections{}
	s := NewServer(":0", Options{Detections: det, Logger: quietLogger()})
	base := serve(t, s)

	conn, _, err := gorilla.DefaultDialer.Dial(base+"/ws/detections", nil)
	require.NoError(t, err)
	defer conn.Close()

	payload, err := perception.EncodeDetectionArray([]decision.Detection{{Label: "bottle", Score: 0.9}})
	require.NoError(t, err)
	msg, err := protocol.NewMessage(protocol.TypeDetections, json.RawMessage(payload))
	require.NoError(t, err)
	data, err := msg.Bytes()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, data))

	require.Eventually(t, func() bool { return det.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	ping, err := protocol.NewMessage(protocol.TypePing, protocol.PingData{Seq: 9})
	require.NoError(t, err)
	data, err = ping.Bytes()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, data))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	pong, err := protocol.ParseMessage(reply)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypePong, pong.Type)
	var pd protocol.PongData
	require.NoError(t, pong.ParseData(&pd))
	assert.Equal(t, uint64(9), pd.Seq)
}

func TestCmdVelWebSocket(t *testing.T) {
	h := hub.New("cmd_vel", quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	s := NewServer(":0", Options{Hub: h, Logger: quietLogger()})
	base := serve(t, s)

	conn, _, err := gorilla.DefaultDialer.Dial(base+"/ws/cmd_vel", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	sink := hub.NewTwistSink(h)
	require.NoError(t, sink.Publish(context.Background(), motion.Forward(0.5)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte(`"type":"twist"`)), string(data))
}

func TestCmdVelWebSocket_StoppedHub(t *testing.T) {
	h := hub.New("cmd_vel", quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	cancel()
	<-h.Done()

	s := NewServer(":0", Options{Hub: h, Logger: quietLogger()})
	base := serve(t, s)

	conn, _, err := gorilla.DefaultDialer.Dial(base+"/ws/cmd_vel", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, gorilla.IsCloseError(err, gorilla.CloseGoingAway), "got %v", err)
}
