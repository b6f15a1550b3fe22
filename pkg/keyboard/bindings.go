// Package keyboard maps single-key teleoperation input to velocity updates.
package keyboard

// Direction is a unit motion request: linear x, y, z and yaw.
type Direction struct {
	X, Y, Z, Th float64
}

// Scale multiplies the running linear and angular speeds.
type Scale struct {
	Speed, Turn float64
}

// MoveBindings maps keys to directions. Upper-case keys strafe (holonomic).
//
//	u    i    o        U    I    O
//	j    k    l        J    K    L
//	m    ,    .        M    <    >
var MoveBindings = map[rune]Direction{
	'i': {1, 0, 0, 0},
	'o': {1, 0, 0, -1},
	'j': {0, 0, 0, 1},
	'l': {0, 0, 0, -1},
	'u': {1, 0, 0, 1},
	',': {-1, 0, 0, 0},
	'.': {-1, 0, 0, 1},
	'm': {-1, 0, 0, -1},
	'O': {1, -1, 0, 0},
	'I': {1, 0, 0, 0},
	'J': {0, 1, 0, 0},
	'L': {0, -1, 0, 0},
	'U': {1, 1, 0, 0},
	'<': {-1, 0, 0, 0},
	'>': {-1, -1, 0, 0},
	'M': {-1, 1, 0, 0},
	't': {0, 0, 1, 0},
	'b': {0, 0, -1, 0},
}

// SpeedBindings maps keys to speed/turn multipliers.
var SpeedBindings = map[rune]Scale{
	'q': {1.1, 1.1},
	'z': {0.9, 0.9},
	'w': {1.1, 1},
	'x': {0.9, 1},
	'e': {1, 1.1},
	'c': {1, 0.9},
}

// KeyInterrupt is Ctrl-C as read from a raw terminal.
const KeyInterrupt rune = '\x03'

// Help is the banner printed at startup and every 15 speed changes.
const Help = `
Reading from the keyboard and Publishing to Twist!
---------------------------
Moving around:
   u    i    o
   j    k    l
   m    ,    .

For Holonomic mode (strafing), hold down the shift key:
---------------------------
   U    I    O
   J    K    L
   M    <    >

t : up (+z)
b : down (-z)

anything else : stop

q/z : increase/decrease max speeds by 10%
w/x : increase/decrease only linear speed by 10%
e/c : increase/decrease only angular speed by 10%

CTRL-C to quit
`
