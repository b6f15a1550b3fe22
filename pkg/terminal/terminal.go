// Package terminal puts the controlling TTY into raw mode and reads single
// keys with a timeout.
//
// Two implementations exist, selected at build time: a POSIX one driving
// termios VMIN/VTIME directly, and a portable one built on golang.org/x/term
// with a reader goroutine for everything else.
package terminal

import (
	"errors"
	"time"
)

// Terminal is a raw-mode key source.
type Terminal interface {
	// ReadKey returns the next key, or ErrTimeout if none arrived in time.
	// A timeout <= 0 blocks until a key is available.
	ReadKey(timeout time.Duration) (rune, error)

	// Restore returns the terminal to the mode it had before Open.
	Restore() error
}

var (
	// ErrTimeout is returned by ReadKey when the timeout elapses.
	ErrTimeout = errors.New("terminal: read timeout")

	// ErrNotTerminal is returned by Open when the file is not a TTY.
	ErrNotTerminal = errors.New("terminal: not a terminal")
)

// readMode converts a timeout to termios VMIN/VTIME.
// VTIME counts tenths of a second and saturates at 25.5s.
func readMode(timeout time.Duration) (vmin, vtime uint8) {
	if timeout <= 0 {
		return 1, 0
	}
	ds := (timeout + 100*time.Millisecond - 1) / (100 * time.Millisecond)
	if ds > 255 {
		ds = 255
	}
	return 0, uint8(ds)
}
