package teleop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-rover/pkg/motion"
)

// mockSink records every transmission.
type mockSink struct {
	mu      sync.Mutex
	twists  []motion.Twist
	stamped []motion.Stamped
	err     error
}

func (m *mockSink) Publish(_ context.Context, cmd motion.Twist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.twists = append(m.twists, cmd)
	return m.err
}

func (m *mockSink) calls() []motion.Twist {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]motion.Twist, len(m.twists))
	copy(out, m.twists)
	return out
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.twists)
}

// stampedSink records stamped transmissions only.
type stampedSink struct {
	mockSink
}

func (s *stampedSink) PublishStamped(_ context.Context, cmd motion.Stamped) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamped = append(s.stamped, cmd)
	return nil
}

func (s *stampedSink) stamps() []motion.Stamped {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]motion.Stamped, len(s.stamped))
	copy(out, s.stamped)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func newTestPublisher(t *testing.T, sink motion.Sink, cfg Config) *Publisher {
	t.Helper()
	p, err := NewPublisher(sink, cfg, nil)
	require.NoError(t, err)
	return p
}

func TestPublisher_SnapshotScales(t *testing.T) {
	p := newTestPublisher(t, &mockSink{}, DefaultConfig())
	defer p.Stop()

	p.Update(1, 0, 0, 1, 0.5, 1.0)

	got := p.Snapshot()
	assert.Equal(t, motion.Vector3{X: 0.5}, got.Linear)
	assert.Equal(t, motion.Vector3{Z: 1.0}, got.Angular)
}

func TestPublisher_UpdateTransmitsScaledCommand(t *testing.T) {
	sink := &mockSink{}
	p := newTestPublisher(t, sink, DefaultConfig())

	p.Update(1, -1, 0.5, -1, 2, 3)
	waitFor(t, func() bool { return sink.count() == 1 })

	want := motion.Twist{
		Linear:  motion.Vector3{X: 2, Y: -2, Z: 1},
		Angular: motion.Vector3{Z: -3},
	}
	assert.Equal(t, want, sink.calls()[0])

	p.Stop()
}

func TestPublisher_UpdatesAreAtomic(t *testing.T) {
	p := newTestPublisher(t, &mockSink{}, DefaultConfig())
	defer p.Stop()

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				p.Update(v, v, v, v, 1, 1)
			}
		}(float64(i))
	}

	var torn atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s := p.Snapshot()
				if s.Linear.X != s.Linear.Y || s.Linear.Y != s.Linear.Z || s.Linear.Z != s.Angular.Z {
					torn.Add(1)
				}
			}
		}()
	}

	wg.Wait()
	assert.Zero(t, torn.Load(), "snapshot observed a partial update")
}

func TestPublisher_StopSendsExactlyOneFinalZero(t *testing.T) {
	sink := &mockSink{}
	p := newTestPublisher(t, sink, DefaultConfig())

	p.Update(1, 0, 0, 0, 1, 1)
	waitFor(t, func() bool { return sink.count() == 1 })

	p.Stop()

	calls := sink.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, motion.Forward(1), calls[0])
	assert.True(t, calls[1].IsZero(), "last transmission must be all zero")

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, sink.count(), "no transmissions after Stop returns")
	assert.Equal(t, StateStopped, p.State())
}

func TestPublisher_RateZeroNeverRepublishes(t *testing.T) {
	sink := &mockSink{}
	p := newTestPublisher(t, sink, Config{Rate: 0})

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, sink.count(), "rate 0 must not publish without an update")

	p.Stop()
	calls := sink.calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].IsZero())
}

func TestPublisher_RateRepublishesIdenticalPayload(t *testing.T) {
	sink := &mockSink{}
	p := newTestPublisher(t, sink, Config{Rate: 100}) // 10ms period

	p.Update(1, 0, 0, 1, 0.2, 0.4)
	time.Sleep(100 * time.Millisecond)
	p.Stop()

	calls := sink.calls()
	require.GreaterOrEqual(t, len(calls), 6, "expected roughly one transmission per 10ms")

	want := motion.Twist{Linear: motion.Vector3{X: 0.2}, Angular: motion.Vector3{Z: 0.4}}
	first := 0
	for first < len(calls) && calls[first] != want {
		first++
	}
	body := calls[first : len(calls)-1]
	assert.GreaterOrEqual(t, len(body), 5)
	for i, c := range body {
		assert.Equal(t, want, c, "transmission %d", i)
	}
	assert.True(t, calls[len(calls)-1].IsZero())
}

func TestPublisher_RateWithoutUpdates(t *testing.T) {
	sink := &mockSink{}
	p := newTestPublisher(t, sink, Config{Rate: 50}) // 20ms period

	time.Sleep(110 * time.Millisecond)
	p.Stop()

	calls := sink.calls()
	assert.GreaterOrEqual(t, len(calls), 4)
	for _, c := range calls {
		assert.True(t, c.IsZero())
	}
}

func TestConfig_TimeoutNeverTruncatesToZero(t *testing.T) {
	assert.Zero(t, Config{Rate: 0}.timeout())
	assert.Equal(t, 10*time.Millisecond, Config{Rate: 100}.timeout())
	assert.Equal(t, time.Nanosecond, Config{Rate: 1e9}.timeout())
	assert.Equal(t, time.Nanosecond, Config{Rate: 2e9}.timeout())
	assert.Equal(t, time.Nanosecond, Config{Rate: 1e12}.timeout())
}

func TestPublisher_ExtremeRateStillRepublishes(t *testing.T) {
	sink := &mockSink{}
	p := newTestPublisher(t, sink, Config{Rate: 2e9})

	waitFor(t, func() bool { return sink.count() >= 3 })
	p.Stop()

	calls := sink.calls()
	for _, c := range calls {
		assert.True(t, c.IsZero())
	}
}

func TestPublisher_StateTransitions(t *testing.T) {
	p := newTestPublisher(t, &mockSink{}, DefaultConfig())
	assert.Equal(t, StateRunning, p.State())

	p.Stop()
	assert.Equal(t, StateStopped, p.State())

	select {
	case <-p.Done():
	default:
		t.Error("Done channel should be closed after Stop")
	}
}

func TestPublisher_StampedRefreshesEachTransmission(t *testing.T) {
	sink := &stampedSink{}
	p := newTestPublisher(t, sink, Config{Stamped: true, FrameID: "base_link"})

	var clock atomic.Int64
	p.now = func() time.Time {
		return time.Unix(clock.Add(1), 0)
	}

	p.Update(1, 0, 0, 0, 1, 1)
	waitFor(t, func() bool { return len(sink.stamps()) == 1 })
	p.Update(0, 0, 0, 1, 1, 1)
	waitFor(t, func() bool { return len(sink.stamps()) == 2 })
	p.Stop()

	stamps := sink.stamps()
	require.Len(t, stamps, 3)
	assert.Zero(t, sink.count(), "stamped loop must not use bare Publish")
	for i, s := range stamps {
		assert.Equal(t, "base_link", s.Header.FrameID)
		assert.Equal(t, int64(i+1), s.Header.Stamp.Unix())
	}
	assert.True(t, stamps[2].Twist.IsZero())
}

func TestNewPublisher_StampedUnsupported(t *testing.T) {
	_, err := NewPublisher(&mockSink{}, Config{Stamped: true}, nil)
	assert.ErrorIs(t, err, ErrStampedUnsupported)
}

func TestNewPublisher_InvalidConfig(t *testing.T) {
	_, err := NewPublisher(nil, DefaultConfig(), nil)
	assert.Error(t, err)

	_, err = NewPublisher(&mockSink{}, Config{Rate: -1}, nil)
	assert.Error(t, err)
}

func TestPublisher_ErrorsDoNotStopLoop(t *testing.T) {
	sink := &mockSink{err: errors.New("link down")}
	p := newTestPublisher(t, sink, DefaultConfig())

	p.Update(1, 0, 0, 0, 1, 1)
	waitFor(t, func() bool { return p.Stats().Errors == 1 })

	p.Update(0, 1, 0, 0, 1, 1)
	waitFor(t, func() bool { return p.Stats().Errors == 2 })

	p.Stop()
	stats := p.Stats()
	assert.Equal(t, uint64(3), stats.Errors)
	assert.Zero(t, stats.Sent)
	assert.Equal(t, "stopped", stats.State)
}
