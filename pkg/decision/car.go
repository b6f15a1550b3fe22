package decision

import "github.com/teslashibe/go-rover/pkg/motion"

// speedStep is how much Faster and Slower change the linear speed.
const speedStep = 0.1

// Car builds motion primitives for a differential-drive base.
type Car struct {
	LinearSpeed  float64
	AngularSpeed float64
}

// NewCar creates a Car with the given speeds.
func NewCar(linearSpeed, angularSpeed float64) *Car {
	return &Car{LinearSpeed: linearSpeed, AngularSpeed: angularSpeed}
}

// Forward drives straight ahead.
func (c *Car) Forward() motion.Twist {
	return motion.Forward(c.LinearSpeed)
}

// Backward drives straight back.
func (c *Car) Backward() motion.Twist {
	return motion.Forward(-c.LinearSpeed)
}

// TurnLeft rotates counter-clockwise in place.
func (c *Car) TurnLeft() motion.Twist {
	return motion.Rotate(c.AngularSpeed)
}

// TurnRight rotates clockwise in place.
func (c *Car) TurnRight() motion.Twist {
	return motion.Rotate(-c.AngularSpeed)
}

// Stop returns the all-zero command.
func (c *Car) Stop() motion.Twist {
	return motion.Twist{}
}

// Faster raises the linear speed and returns the new value.
func (c *Car) Faster() float64 {
	c.LinearSpeed += speedStep
	return c.LinearSpeed
}

// Slower lowers the linear speed and returns the new value.
func (c *Car) Slower() float64 {
	c.LinearSpeed -= speedStep
	return c.LinearSpeed
}

// Do returns the command for action.
func (c *Car) Do(a Action) motion.Twist {
	switch a {
	case ActionForward:
		return c.Forward()
	case ActionBackward:
		return c.Backward()
	case ActionTurnLeft:
		return c.TurnLeft()
	case ActionTurnRight:
		return c.TurnRight()
	default:
		return c.Stop()
	}
}
