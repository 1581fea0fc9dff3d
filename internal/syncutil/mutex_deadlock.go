//go:build deadlock

// Package syncutil switches the locks guarding the cache session, the user
// dictionary and the scan worker to go-deadlock when built with
// -tags=deadlock.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockDetection reports whether lock-order checking is compiled in.
const DeadlockDetection = true

// Mutex is a deadlock-checked mutex.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a deadlock-checked reader/writer mutex.
type RWMutex struct {
	deadlock.RWMutex
}

// SetLockTimeout sets how long a lock may be waited on before go-deadlock
// reports it. A long recovery pass holds no lock across transport calls, so
// anything above a few seconds is a bug.
func SetLockTimeout(d time.Duration) {
	deadlock.Opts.DeadlockTimeout = d
}
