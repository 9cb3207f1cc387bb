//go:build !(linux || darwin || openbsd || freebsd)

package lock

import "fmt"

type noLock struct{}

func acquire(path string) (Lock, error) {
	return nil, fmt.Errorf("output-path locking is unsupported on this platform")
}

func (noLock) Release() error { return nil }
