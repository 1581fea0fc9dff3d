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

// Package scan runs one MIFARE Classic read on a dedicated goroutine:
// wait for a card, recover it, and publish progress snapshots that other
// goroutines can poll.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/internal/syncutil"
)

// ErrAlreadyStarted is returned by Start on a worker that already ran.
var ErrAlreadyStarted = errors.New("scan already started")

// Config controls card waiting.
type Config struct {
	// PollInterval is the delay between detection attempts.
	PollInterval time.Duration
	// CardTimeout bounds the wait for a card. Zero waits until stopped.
	CardTimeout time.Duration
	// LockTimeout is the deadlock detector timeout in -tags=deadlock
	// builds. Zero keeps the library default.
	LockTimeout time.Duration
}

// DefaultConfig returns the standard polling settings.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 250 * time.Millisecond,
	}
}

// Worker owns one read. The engine runs on the worker goroutine; every
// exported method is safe to call from other goroutines.
type Worker struct {
	engine   *mfclassic.Engine
	config   *Config
	observer mfclassic.ProgressHooks
	control  mfclassic.Control
	cancel   context.CancelFunc
	done     chan struct{}
	status   Status
	wg       sync.WaitGroup
	mu       syncutil.RWMutex
	started  atomic.Bool
}

// Option configures a Worker.
type Option func(*Worker)

// WithObserver forwards engine callbacks to h after the worker has
// recorded them. h runs on the worker goroutine.
func WithObserver(h mfclassic.ProgressHooks) Option {
	return func(w *Worker) { w.observer = h }
}

// New returns a worker that reads with engine.
func New(engine *mfclassic.Engine, cfg *Config, opts ...Option) (*Worker, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: nil engine", mfclassic.ErrInvalidParameter)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive", mfclassic.ErrInvalidParameter)
	}
	if cfg.LockTimeout > 0 {
		syncutil.SetLockTimeout(cfg.LockTimeout)
	}
	w := &Worker{
		engine: engine,
		config: cfg,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start launches the worker goroutine. It returns at once.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.status = Status{State: StateWaiting, Started: time.Now()}
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(runCtx)
	return nil
}

// Stop cancels the read and waits for the goroutine to exit. Whatever was
// recovered stays in the engine's session.
func (w *Worker) Stop() {
	w.control.Cancel()
	w.mu.RLock()
	cancel := w.cancel
	w.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

// SkipDict stops the dictionary search; sectors with known keys are
// still read.
func (w *Worker) SkipDict() {
	w.control.SkipDict()
}

// Done is closed when the worker goroutine exits.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the read ends or ctx expires.
func (w *Worker) Wait(ctx context.Context) (*mfclassic.Report, error) {
	select {
	case <-w.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	st := w.Status()
	return st.Report, st.Err
}

// Status returns a snapshot of the worker's progress.
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status.clone()
}

func (w *Worker) update(fn func(*Status)) {
	w.mu.Lock()
	fn(&w.status)
	w.mu.Unlock()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	defer close(w.done)

	id, err := w.waitForCard(ctx)
	if err != nil {
		w.finish(nil, err)
		return
	}
	w.update(func(s *Status) {
		s.State = StateReading
		s.Card = id
	})
	mfclassic.Debugf("scan: reading %s UID %s", id.Type().DisplayName(), id.UIDHex())

	hooks := mfclassic.ControlledHooks{Observer: hookAdapter{w}, Control: &w.control}
	report, err := w.engine.Recover(ctx, id, hooks)
	w.finish(report, err)
}

func (w *Worker) finish(report *mfclassic.Report, err error) {
	if err == nil && report != nil {
		err = report.Err
	}
	w.update(func(s *Status) {
		s.State = StateDone
		s.Report = report
		s.Err = err
		s.CacheMode = false
	})
}

// waitForCard polls the engine's transport until a supported card shows
// up.
func (w *Worker) waitForCard(ctx context.Context) (mfclassic.CardIdentity, error) {
	var deadline <-chan time.Time
	if w.config.CardTimeout > 0 {
		t := time.NewTimer(w.config.CardTimeout)
		defer t.Stop()
		deadline = t.C
	}
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		if w.control.ShouldCancel() {
			return mfclassic.CardIdentity{}, mfclassic.ErrCancelled
		}
		id, err := w.engine.Detect(ctx)
		switch {
		case err == nil:
			if verr := id.Validate(); verr != nil {
				mfclassic.Debugf("scan: ignoring card: %v", verr)
				break
			}
			return id, nil
		case errors.Is(err, mfclassic.ErrNoTag), errors.Is(err, mfclassic.ErrTagRemoved):
		case ctx.Err() != nil:
			return mfclassic.CardIdentity{}, mfclassic.ErrCancelled
		default:
			return mfclassic.CardIdentity{}, fmt.Errorf("detect card: %w", err)
		}

		select {
		case <-ctx.Done():
			return mfclassic.CardIdentity{}, mfclassic.ErrCancelled
		case <-deadline:
			return mfclassic.CardIdentity{}, fmt.Errorf("%w: no card within %v", mfclassic.ErrNoTag, w.config.CardTimeout)
		case <-ticker.C:
		}
	}
}

// hookAdapter records engine callbacks in the worker status and forwards
// them to the observer.
type hookAdapter struct {
	w *Worker
}

func (h hookAdapter) OnPhase(s mfclassic.SectorIndex, first mfclassic.BlockIndex, keyB bool, total int) {
	h.w.update(func(st *Status) {
		st.Sector, st.FirstBlock, st.KeyB = s, first, keyB
		st.Tried, st.Total = 0, total
	})
	if o := h.w.observer; o != nil {
		o.OnPhase(s, first, keyB, total)
	}
}

func (h hookAdapter) OnCacheMode(on bool) {
	h.w.update(func(st *Status) { st.CacheMode = on })
	if o := h.w.observer; o != nil {
		o.OnCacheMode(on)
	}
}

func (h hookAdapter) OnPaused(paused bool) {
	h.w.update(func(st *Status) {
		if paused {
			st.State = StateTagAway
		} else {
			st.State = StateReading
		}
	})
	if o := h.w.observer; o != nil {
		o.OnPaused(paused)
	}
}

func (h hookAdapter) ShouldCancel() bool {
	o := h.w.observer
	return o != nil && o.ShouldCancel()
}

func (h hookAdapter) ShouldSkipDict() bool {
	o := h.w.observer
	return o != nil && o.ShouldSkipDict()
}

func (h hookAdapter) OnProgress(tried, total int) {
	h.w.update(func(st *Status) { st.Tried, st.Total = tried, total })
	if r, ok := h.w.observer.(mfclassic.ProgressReporter); ok {
		r.OnProgress(tried, total)
	}
}
