package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teslashibe/go-rover/pkg/motion"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		summary Summary
		want    motion.Twist
		action  Action
	}{
		{
			name:    "bottle preempts person",
			summary: Summary{"bottle": 0.9, "person": 0.6},
			want:    motion.Twist{Angular: motion.Vector3{Z: 0.1}},
			action:  ActionTurnLeft,
		},
		{
			name:    "low confidence person drives forward",
			summary: Summary{"person": 0.3},
			want:    motion.Twist{Linear: motion.Vector3{X: 0.5}},
			action:  ActionForward,
		},
		{
			name:    "confident person stops",
			summary: Summary{"person": 0.6},
			want:    motion.Twist{},
			action:  ActionStop,
		},
		{
			name:    "person exactly at threshold stops",
			summary: Summary{"person": 0.4},
			want:    motion.Twist{},
			action:  ActionStop,
		},
		{
			name:    "empty frame drives forward",
			summary: Summary{},
			want:    motion.Twist{Linear: motion.Vector3{X: 0.5}},
			action:  ActionForward,
		},
		{
			name:    "unrelated labels drive forward",
			summary: Summary{"dog": 0.99, "chair": 0.1},
			want:    motion.Twist{Linear: motion.Vector3{X: 0.5}},
			action:  ActionForward,
		},
		{
			name:    "bottle triggers regardless of score",
			summary: Summary{"bottle": 0.01},
			want:    motion.Twist{Angular: motion.Vector3{Z: 0.1}},
			action:  ActionTurnLeft,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.action, Classify(tt.summary))
			assert.Equal(t, tt.want, Decide(tt.summary, DefaultLinearSpeed, DefaultAngularSpeed))
		})
	}
}

func TestDecide_UsesGivenSpeeds(t *testing.T) {
	got := Decide(Summary{}, 1.5, 0.7)
	assert.Equal(t, motion.Forward(1.5), got)

	got = Decide(Summary{"bottle": 0.5}, 1.5, 0.7)
	assert.Equal(t, motion.Rotate(0.7), got)
}

func TestCar_Primitives(t *testing.T) {
	car := NewCar(0.2, 0.3)

	assert.Equal(t, motion.Forward(0.2), car.Forward())
	assert.Equal(t, motion.Forward(-0.2), car.Backward())
	assert.Equal(t, motion.Rotate(0.3), car.TurnLeft())
	assert.Equal(t, motion.Rotate(-0.3), car.TurnRight())
	assert.True(t, car.Stop().IsZero())

	assert.InDelta(t, 0.3, car.Faster(), 1e-9)
	assert.InDelta(t, 0.2, car.Slower(), 1e-9)
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "turn_left", ActionTurnLeft.String())
	assert.Equal(t, "stop", ActionStop.String())
	assert.Equal(t, "unknown", Action(42).String())
}
