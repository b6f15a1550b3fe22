package terminal

import (
	"os"
	"testing"
	"time"
)

func TestReadMode(t *testing.T) {
	tests := []struct {
		name      string
		timeout   time.Duration
		wantVMIN  uint8
		wantVTIME uint8
	}{
		{"blocking", 0, 1, 0},
		{"negative blocks", -time.Second, 1, 0},
		{"half second", 500 * time.Millisecond, 0, 5},
		{"rounds up", 120 * time.Millisecond, 0, 2},
		{"sub decisecond", time.Millisecond, 0, 1},
		{"saturates", time.Minute, 0, 255},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			vmin, vtime := readMode(tc.timeout)
			if vmin != tc.wantVMIN || vtime != tc.wantVTIME {
				t.Errorf("readMode(%v) = (%d, %d), want (%d, %d)",
					tc.timeout, vmin, vtime, tc.wantVMIN, tc.wantVTIME)
			}
		})
	}
}

func TestOpen_NotTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "tty")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	defer f.Close()

	if _, err := Open(f); err != ErrNotTerminal {
		t.Errorf("Open(regular file) error = %v, want ErrNotTerminal", err)
	}
}
