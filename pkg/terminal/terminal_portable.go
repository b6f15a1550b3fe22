//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package terminal

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/term"
)

type portableTerminal struct {
	fd    int
	saved *term.State
	keys  chan rune
	errs  chan error
}

// Open switches f to raw mode and starts a background reader, since the
// console API has no per-read timeout. Callers must Restore before exiting.
func Open(f *os.File) (Terminal, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("terminal: enter raw mode: %w", err)
	}

	t := &portableTerminal{
		fd:    fd,
		saved: saved,
		keys:  make(chan rune, 1),
		errs:  make(chan error, 1),
	}
	go t.readLoop(f)
	return t, nil
}

func (t *portableTerminal) readLoop(f *os.File) {
	var buf [1]byte
	for {
		n, err := f.Read(buf[:])
		if err != nil {
			t.errs <- err
			return
		}
		if n > 0 {
			t.keys <- rune(buf[0])
		}
	}
}

func (t *portableTerminal) ReadKey(timeout time.Duration) (rune, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case k := <-t.keys:
		return k, nil
	case err := <-t.errs:
		return 0, fmt.Errorf("terminal: read: %w", err)
	case <-expired:
		return 0, ErrTimeout
	}
}

func (t *portableTerminal) Restore() error {
	return term.Restore(t.fd, t.saved)
}
