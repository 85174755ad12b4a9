//go:build !unix && !windows

package lock

import (
	"fmt"
	"runtime"
)

func acquire(string) (Lock, error) {
	return nil, fmt.Errorf("%w on %s", ErrUnsupported, runtime.GOOS)
}

func readOwner(string) string { return "" }
