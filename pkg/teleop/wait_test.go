package teleop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeCounter struct {
	calls     atomic.Int32
	readyAt   int32
	failUntil int32
}

func (f *fakeCounter) SubscriptionCount(context.Context) (int, error) {
	n := f.calls.Add(1)
	if n <= f.failUntil {
		return 0, errors.New("probe failed")
	}
	if f.readyAt > 0 && n >= f.readyAt {
		return 1, nil
	}
	return 0, nil
}

func withPollInterval(t *testing.T, d time.Duration) {
	t.Helper()
	old := subscriberPollInterval
	subscriberPollInterval = d
	t.Cleanup(func() { subscriberPollInterval = old })
}

func TestWaitForSubscribers_ReturnsWhenAttached(t *testing.T) {
	withPollInterval(t, time.Millisecond)

	counter := &fakeCounter{readyAt: 7, failUntil: 2}
	err := WaitForSubscribers(context.Background(), counter, "/cmd_vel", nil)

	assert.NoError(t, err)
	assert.Equal(t, int32(7), counter.calls.Load())
}

func TestWaitForSubscribers_ShutdownFirst(t *testing.T) {
	withPollInterval(t, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := WaitForSubscribers(ctx, &fakeCounter{}, "/cmd_vel", nil)
	assert.ErrorIs(t, err, ErrShutdownBeforeSubscribers)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(9).String())
}
