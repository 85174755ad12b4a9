// Package lock guards a data directory against a second courier process.
// The Telegram session and the message database must have a single writer.
package lock

import (
	"errors"
	"fmt"
	"strings"
)

const Filename = "courier.lock"

// ErrLocked is returned when another process holds the directory.
var ErrLocked = errors.New("data directory is locked by another process")

// ErrUnsupported is returned on platforms without a lock backend.
var ErrUnsupported = errors.New("directory lock unsupported")

type Lock interface {
	Release() error
}

// Acquire takes an exclusive, non-blocking lock on dir. The lock is released
// by Release or when the process exits.
func Acquire(dir string) (Lock, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("lock directory is empty")
	}
	l, err := acquire(dir)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			if owner := readOwner(dir); owner != "" {
				return nil, fmt.Errorf("%w (pid %s)", ErrLocked, owner)
			}
		}
		return nil, err
	}
	return l, nil
}
