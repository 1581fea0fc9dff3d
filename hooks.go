// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mfclassic

import "sync/atomic"

// ProgressHooks lets a caller observe and steer a recovery pass. All methods
// are called from the engine's goroutine and must return quickly.
type ProgressHooks interface {
	// OnPhase is called when the engine starts working on a sector/key type.
	// total is the number of candidates queued for the phase, 0 if unknown.
	OnPhase(sector SectorIndex, firstBlock BlockIndex, keyB bool, total int)
	// OnCacheMode is called when entering and leaving the verification pass.
	OnCacheMode(on bool)
	// OnPaused is called when the tag leaves the field and when it returns.
	OnPaused(paused bool)
	// ShouldCancel aborts the pass when it returns true.
	ShouldCancel() bool
	// ShouldSkipDict stops dictionary tiers and sweeps while still reading
	// sectors that known keys can open.
	ShouldSkipDict() bool
}

// ProgressReporter is an optional extension of ProgressHooks that receives
// per-attempt counters.
type ProgressReporter interface {
	OnProgress(tried, total int)
}

// NopHooks implements ProgressHooks with no-ops. Embed it to override only
// the callbacks you need.
type NopHooks struct{}

// OnPhase does nothing.
func (NopHooks) OnPhase(SectorIndex, BlockIndex, bool, int) {}

// OnCacheMode does nothing.
func (NopHooks) OnCacheMode(bool) {}

// OnPaused does nothing.
func (NopHooks) OnPaused(bool) {}

// ShouldCancel always returns false.
func (NopHooks) ShouldCancel() bool { return false }

// ShouldSkipDict always returns false.
func (NopHooks) ShouldSkipDict() bool { return false }

var _ ProgressHooks = NopHooks{}

// Control is a cancellation token shared between the engine goroutine and
// whoever drives it. The zero value is ready to use.
type Control struct {
	cancelled atomic.Bool
	skipDict  atomic.Bool
}

// Cancel requests that the running pass stop.
func (c *Control) Cancel() { c.cancelled.Store(true) }

// SkipDict requests that dictionary searching stop.
func (c *Control) SkipDict() { c.skipDict.Store(true) }

// Reset clears both flags before a new pass.
func (c *Control) Reset() {
	c.cancelled.Store(false)
	c.skipDict.Store(false)
}

// ShouldCancel reports whether Cancel was called.
func (c *Control) ShouldCancel() bool { return c.cancelled.Load() }

// ShouldSkipDict reports whether SkipDict was called.
func (c *Control) ShouldSkipDict() bool { return c.skipDict.Load() }

// ControlledHooks combines a Control token with caller supplied observers.
// Observer may be nil.
type ControlledHooks struct {
	Observer ProgressHooks
	*Control
}

// OnPhase forwards to the observer.
func (h ControlledHooks) OnPhase(s SectorIndex, first BlockIndex, keyB bool, total int) {
	if h.Observer != nil {
		h.Observer.OnPhase(s, first, keyB, total)
	}
}

// OnCacheMode forwards to the observer.
func (h ControlledHooks) OnCacheMode(on bool) {
	if h.Observer != nil {
		h.Observer.OnCacheMode(on)
	}
}

// OnPaused forwards to the observer.
func (h ControlledHooks) OnPaused(paused bool) {
	if h.Observer != nil {
		h.Observer.OnPaused(paused)
	}
}

// ShouldCancel is true if either the token or the observer asks for it.
func (h ControlledHooks) ShouldCancel() bool {
	if h.Control != nil && h.Control.ShouldCancel() {
		return true
	}
	return h.Observer != nil && h.Observer.ShouldCancel()
}

// ShouldSkipDict is true if either the token or the observer asks for it.
func (h ControlledHooks) ShouldSkipDict() bool {
	if h.Control != nil && h.Control.ShouldSkipDict() {
		return true
	}
	return h.Observer != nil && h.Observer.ShouldSkipDict()
}

// OnProgress forwards to the observer when it implements ProgressReporter.
func (h ControlledHooks) OnProgress(tried, total int) {
	if r, ok := h.Observer.(ProgressReporter); ok {
		r.OnProgress(tried, total)
	}
}
