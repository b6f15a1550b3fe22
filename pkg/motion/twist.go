// Package motion defines the velocity commands sent to a mobile base and the
// transport capabilities that carry them.
package motion

import (
	"encoding/json"
	"fmt"
	"time"
)

// Vector3 is a robot-frame vector (m/s for linear, rad/s for angular).
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Twist is a linear + angular velocity command.
// It is a value type; the zero Twist is the stop command.
type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// IsZero reports whether all six components are zero.
func (t Twist) IsZero() bool {
	return t == Twist{}
}

// String formats the command for log lines.
func (t Twist) String() string {
	return fmt.Sprintf("linear=(%.3f,%.3f,%.3f) angular=(%.3f,%.3f,%.3f)",
		t.Linear.X, t.Linear.Y, t.Linear.Z, t.Angular.X, t.Angular.Y, t.Angular.Z)
}

// Forward returns a pure forward command at the given speed.
func Forward(speed float64) Twist {
	return Twist{Linear: Vector3{X: speed}}
}

// Rotate returns an in-place rotation at the given yaw rate.
func Rotate(rate float64) Twist {
	return Twist{Angular: Vector3{Z: rate}}
}

// Header is the timestamp envelope used by stamped transports.
type Header struct {
	Stamp   time.Time
	FrameID string
}

// rosTime matches builtin_interfaces/Time.
type rosTime struct {
	Sec     int64  `json:"sec"`
	Nanosec uint32 `json:"nanosec"`
}

type headerJSON struct {
	Stamp   rosTime `json:"stamp"`
	FrameID string  `json:"frame_id"`
}

// MarshalJSON encodes the header in std_msgs/Header form.
func (h Header) MarshalJSON() ([]byte, error) {
	var ts rosTime
	if !h.Stamp.IsZero() {
		ts = rosTime{Sec: h.Stamp.Unix(), Nanosec: uint32(h.Stamp.Nanosecond())}
	}
	return json.Marshal(headerJSON{Stamp: ts, FrameID: h.FrameID})
}

// UnmarshalJSON decodes a std_msgs/Header.
func (h *Header) UnmarshalJSON(data []byte) error {
	var raw headerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	h.FrameID = raw.FrameID
	h.Stamp = time.Time{}
	if raw.Stamp.Sec != 0 || raw.Stamp.Nanosec != 0 {
		h.Stamp = time.Unix(raw.Stamp.Sec, int64(raw.Stamp.Nanosec))
	}
	return nil
}

// Stamped is a Twist with a header (geometry_msgs/TwistStamped).
type Stamped struct {
	Header Header `json:"header"`
	Twist  Twist  `json:"twist"`
}

// Stamp wraps t in a header stamped with now.
func Stamp(t Twist, frameID string, now time.Time) Stamped {
	return Stamped{
		Header: Header{Stamp: now, FrameID: frameID},
		Twist:  t,
	}
}
