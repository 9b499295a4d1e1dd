// Package diskspace reports free space on the recording volume and
// classifies it against the two configured thresholds from spec §6:
// min_free_gb_start (gate for new sessions) and min_free_gb_stop (floor
// that auto-stops an active session).
package diskspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ErrInsufficientSpace is returned by GateStart when free
// space is below the requested floor.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// Space is a point-in-time free/total space reading.
type Space struct {
	TotalBytes     uint64
	AvailableBytes uint64
}

// Stat statfs's path (or its nearest existing ancestor) and returns the
// current free/total space.
func Stat(path string) (*Space, error) {
	p := path
	for {
		var stat syscall.Statfs_t
		err := syscall.Statfs(p, &stat)
		if err == nil {
			return &Space{
				TotalBytes:     stat.Blocks * uint64(stat.Bsize),
				AvailableBytes: stat.Bavail * uint64(stat.Bsize),
			}, nil
		}
		if errors.Is(err, syscall.ENOENT) {
			parent := filepath.Dir(p)
			if parent == p {
				return nil, err
			}
			p = parent
			continue
		}
		return nil, err
	}
}

// GateStart returns an error when free space on path is at or below
// minFreeGB — the §4.5 precondition for recording.start().
func GateStart(path string, minFreeGB float64) error {
	_ = os.MkdirAll(path, 0o755)
	space, err := Stat(path)
	if err != nil {
		return fmt.Errorf("statfs failed for %s: %w", path, err)
	}
	floor := uint64(minFreeGB * (1 << 30))
	if space.AvailableBytes <= floor {
		return fmt.Errorf("%w: available=%dB floor=%dB path=%s", ErrInsufficientSpace, space.AvailableBytes, floor, path)
	}
	return nil
}

// BelowStopFloor reports whether free space on path has crossed below
// minFreeGB, the §4.5 watchdog floor that auto-stops a session.
func BelowStopFloor(path string, minFreeGB float64) (bool, *Space, error) {
	space, err := Stat(path)
	if err != nil {
		return false, nil, err
	}
	floor := uint64(minFreeGB * (1 << 30))
	return space.AvailableBytes < floor, space, nil
}

// IsInsufficientSpace reports whether err is (or wraps) ErrInsufficientSpace.
func IsInsufficientSpace(err error) bool {
	return errors.Is(err, ErrInsufficientSpace)
}
