package decision

import "github.com/teslashibe/go-rover/pkg/motion"

// Labels the policy reacts to (COCO class names).
const (
	LabelBottle = "bottle"
	LabelPerson = "person"
)

// PersonNearThreshold is the person score at or above which the base stops.
// A low-confidence person is treated as far away and the base keeps driving.
const PersonNearThreshold = 0.4

// Default speeds for the perception path.
const (
	DefaultLinearSpeed  = 0.5
	DefaultAngularSpeed = 0.1
)

// Action is the motion chosen for a frame.
type Action int

const (
	ActionStop Action = iota
	ActionForward
	ActionBackward
	ActionTurnLeft
	ActionTurnRight
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionStop:
		return "stop"
	case ActionForward:
		return "forward"
	case ActionBackward:
		return "backward"
	case ActionTurnLeft:
		return "turn_left"
	case ActionTurnRight:
		return "turn_right"
	default:
		return "unknown"
	}
}

// Classify picks the action for a frame. First match wins:
//
//  1. bottle present: turn left, regardless of the bottle's score
//  2. person with score < PersonNearThreshold: forward
//  3. person otherwise: stop
//  4. nothing relevant: forward
//
// Scores of labels other than person are never inspected.
func Classify(s Summary) Action {
	if s.Has(LabelBottle) {
		return ActionTurnLeft
	}
	if score, ok := s.Score(LabelPerson); ok {
		if score < PersonNearThreshold {
			return ActionForward
		}
		return ActionStop
	}
	return ActionForward
}

// Decide maps a frame summary to a motion command.
func Decide(s Summary, linearSpeed, angularSpeed float64) motion.Twist {
	return NewCar(linearSpeed, angularSpeed).Do(Classify(s))
}
