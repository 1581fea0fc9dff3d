//go:build !deadlock

// Package syncutil provides the mutex types used across the module. The
// default build uses the standard library; -tags=deadlock swaps in
// github.com/sasha-s/go-deadlock.
package syncutil

import (
	"sync"
	"time"
)

// DeadlockDetection reports whether lock-order checking is compiled in.
const DeadlockDetection = false

// Mutex wraps sync.Mutex.
//
//nolint:gocritic // embedding exposes Lock/Unlock directly
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex.
//
//nolint:gocritic // embedding exposes the full RWMutex API
type RWMutex struct {
	sync.RWMutex
}

// SetLockTimeout is a no-op without the deadlock build tag.
func SetLockTimeout(time.Duration) {}
