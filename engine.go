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

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Engine recovers sector keys and block contents of one card at a time.
//
// Thread Safety: Recover must not be called concurrently. The CacheSession
// returned by Session may be queried from other goroutines while a pass runs.
type Engine struct {
	transport Transport
	dict      *Dictionary
	session   *CacheSession
	config    *EngineConfig
}

// Option configures an Engine.
type Option func(*Engine) error

// WithConfig replaces the default engine configuration.
func WithConfig(cfg *EngineConfig) Option {
	return func(e *Engine) error {
		if cfg == nil {
			return fmt.Errorf("%w: nil engine config", ErrInvalidParameter)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		e.config = cfg
		return nil
	}
}

// WithSession makes the engine write into an existing cache session.
func WithSession(s *CacheSession) Option {
	return func(e *Engine) error {
		if s == nil {
			return fmt.Errorf("%w: nil cache session", ErrInvalidParameter)
		}
		e.session = s
		return nil
	}
}

// NewEngine returns an engine driving transport. A nil dictionary gets the
// compiled-in and default keys only.
func NewEngine(transport Transport, dict *Dictionary, opts ...Option) (*Engine, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	if dict == nil {
		dict = NewDictionary()
	}
	e := &Engine{
		transport: transport,
		dict:      dict,
		session:   NewCacheSession(),
		config:    DefaultEngineConfig(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Session returns the cache the engine writes into.
func (e *Engine) Session() *CacheSession {
	return e.session
}

// Dictionary returns the key sources the engine searches.
func (e *Engine) Dictionary() *Dictionary {
	return e.dict
}

// Config returns the engine configuration.
func (e *Engine) Config() *EngineConfig {
	return e.config
}

// Report describes the outcome of a recovery pass.
type Report struct {
	Err          error
	Sources      map[Source]int
	Sectors      []SectorResult
	Duration     time.Duration
	AuthAttempts int
	Result       PassResult
	Magic        bool
}

// Solved returns the number of sectors with both keys and all blocks known.
func (r *Report) Solved() int {
	n := 0
	for _, s := range r.Sectors {
		if s == SectorSolved {
			n++
		}
	}
	return n
}

// Detect asks the transport for the card in the field.
func (e *Engine) Detect(ctx context.Context) (CardIdentity, error) {
	d, ok := e.transport.(Detector)
	if !ok {
		return CardIdentity{}, fmt.Errorf("%w: transport cannot detect cards", ErrInvalidParameter)
	}
	id, err := d.Detect(ctx)
	if err != nil {
		return CardIdentity{}, err
	}
	return id, nil
}

// Read detects the card in the field and recovers it.
func (e *Engine) Read(ctx context.Context, hooks ProgressHooks) (*Report, error) {
	id, err := e.Detect(ctx)
	if err != nil {
		return nil, err
	}
	return e.Recover(ctx, id, hooks)
}

// Recover runs a full pass against the selected card described by id. The
// returned error covers setup problems only; recovery outcomes, including
// cancellation, are in the Report and the cache keeps whatever was found.
func (e *Engine) Recover(ctx context.Context, id CardIdentity, hooks ProgressHooks) (*Report, error) {
	if hooks == nil {
		hooks = NopHooks{}
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	report := &Report{Sources: make(map[Source]int)}
	if err := e.session.Begin(id); err != nil {
		if errors.Is(err, ErrOutOfMemory) {
			report.Result = PassOutOfMemory
			report.Err = err
			report.Duration = time.Since(start)
			return report, nil
		}
		return nil, err
	}

	p := newPass(ctx, e, id, hooks, report)
	Debugf("recover: %s UID %s, %d sectors", id.Type().DisplayName(), id.UIDHex(), p.cardType.SectorCount())

	err := p.run()
	switch {
	case err == nil:
		report.Result = PassCompleted
	case errors.Is(err, ErrCancelled):
		report.Result = PassCancelled
	default:
		report.Result = PassCancelled
		report.Err = err
	}

	report.Sectors = make([]SectorResult, p.cardType.SectorCount())
	for s := range report.Sectors {
		report.Sectors[s] = e.session.SectorResult(SectorIndex(s))
	}
	e.session.MarkValid()
	report.Duration = time.Since(start)

	found, total := e.session.KeysFound()
	Debugf("recover: %s after %v, keys %d/%d, %d auth attempts",
		report.Result, report.Duration.Round(time.Millisecond), found, total, report.AuthAttempts)
	return report, nil
}

// run executes the recovery pass and the optional verification pass.
func (p *pass) run() error {
	if err := p.probeMagic(); err != nil {
		return err
	}

	for s := 0; s < p.cardType.SectorCount(); s++ {
		if err := p.solveSector(SectorIndex(s)); err != nil {
			return err
		}
	}

	if !p.cfg.VerifyPass || p.hooks.ShouldSkipDict() {
		return nil
	}
	return p.verify()
}

// solveSector runs the tiered search for one sector and follows up on
// success.
func (p *pass) solveSector(s SectorIndex) error {
	if p.isCancelled() {
		return ErrCancelled
	}
	if p.session.HasAnyKey(s) {
		return nil
	}

	if p.magic {
		if err := p.readSector(s, credential{}); err != nil {
			return err
		}
		if err := p.complement(s, KeyA); err != nil {
			return err
		}
		return p.complement(s, KeyB)
	}

	found, err := p.search(s, p.cardType.AuthBlock(s), searchOrder, KeyTypes[:])
	if err != nil {
		return err
	}
	if !found.ok {
		Debugf("recover: sector %d exhausted all tiers", s)
		return nil
	}
	return p.onKeyFound(s, found.kt, found.key, found.src)
}

// onKeyFound records a key that just opened sector s, reads the sector,
// sweeps the key and looks for the complementary one.
func (p *pass) onKeyFound(s SectorIndex, kt KeyType, key Key, src Source) error {
	p.record(s, kt, key, src)
	if err := p.readSector(s, credential{kt: kt, key: key, valid: true}); err != nil {
		return err
	}
	if err := p.sweep(key, kt, s); err != nil {
		return err
	}
	return p.complement(s, kt.Other())
}

// verify is the cache completion pass: sectors with a recorded key that are
// not fully known get their missing blocks and keys filled in. A skip
// request ends it early.
func (p *pass) verify() error {
	p.hooks.OnCacheMode(true)
	defer p.hooks.OnCacheMode(false)

	for i := 0; i < p.cardType.SectorCount(); i++ {
		s := SectorIndex(i)
		if p.isCancelled() {
			return ErrCancelled
		}
		if p.hooks.ShouldSkipDict() {
			return nil
		}
		if p.session.IsSectorFullyKnown(s) {
			continue
		}
		cred, ok := p.knownCredential(s)
		if !ok {
			continue
		}
		p.hooks.OnPhase(s, p.cardType.FirstBlockOfSector(s), cred.kt.IsB(), 0)
		if !p.magic {
			authed, err := p.auth(p.cardType.AuthBlock(s), cred.kt, cred.key)
			if err != nil {
				return err
			}
			if !authed {
				continue
			}
		}
		if err := p.readSector(s, cred); err != nil {
			return err
		}
		if err := p.complement(s, cred.kt.Other()); err != nil {
			return err
		}
	}
	return nil
}

// knownCredential returns a recorded key for s, preferring Key A.
func (p *pass) knownCredential(s SectorIndex) (credential, bool) {
	for _, kt := range KeyTypes {
		if k, ok := p.session.SectorKey(s, kt); ok {
			return credential{kt: kt, key: k, valid: true}, true
		}
	}
	return credential{}, false
}
