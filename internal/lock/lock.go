// Package lock flocks the output Verilog path so two CI shards targeting
// the same -o path fail fast instead of interleaving writes.
package lock

import "fmt"

// ErrLocked is returned by Acquire when another process already holds the
// lock.
var ErrLocked = fmt.Errorf("output path is locked by another process")

// Lock guards one output path. Release must be called exactly once, even
// on an error return from Acquire with a non-nil Lock.
type Lock interface {
	Release() error
}

// Acquire takes an exclusive, non-blocking lock on path, returning
// ErrLocked if another process already holds it.
func Acquire(path string) (Lock, error) {
	return acquire(path)
}
