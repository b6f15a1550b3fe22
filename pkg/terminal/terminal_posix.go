//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package terminal

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

type posixTerminal struct {
	fd    int
	saved *term.State

	configured bool
	vmin       uint8
	vtime      uint8
	buf        [1]byte
}

// Open switches f to raw mode. Callers must Restore before exiting.
func Open(f *os.File) (Terminal, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("terminal: enter raw mode: %w", err)
	}

	return &posixTerminal{fd: fd, saved: saved}, nil
}

func (t *posixTerminal) ReadKey(timeout time.Duration) (rune, error) {
	vmin, vtime := readMode(timeout)
	if !t.configured || vmin != t.vmin || vtime != t.vtime {
		tio, err := unix.IoctlGetTermios(t.fd, ioctlReadTermios)
		if err != nil {
			return 0, fmt.Errorf("terminal: get termios: %w", err)
		}
		tio.Cc[unix.VMIN] = vmin
		tio.Cc[unix.VTIME] = vtime
		if err := unix.IoctlSetTermios(t.fd, ioctlWriteTermios, tio); err != nil {
			return 0, fmt.Errorf("terminal: set termios: %w", err)
		}
		t.configured, t.vmin, t.vtime = true, vmin, vtime
	}

	n, err := unix.Read(t.fd, t.buf[:])
	if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
		return 0, ErrTimeout
	}
	if err != nil {
		return 0, fmt.Errorf("terminal: read: %w", err)
	}
	if n == 0 {
		return 0, ErrTimeout
	}
	return rune(t.buf[0]), nil
}

func (t *posixTerminal) Restore() error {
	return term.Restore(t.fd, t.saved)
}
