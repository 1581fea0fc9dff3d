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
	"time"
)

// pass holds the state of one Recover call.
type pass struct {
	ctx       context.Context
	hooks     ProgressHooks
	reporter  ProgressReporter
	transport Transport
	dict      *Dictionary
	session   *CacheSession
	cfg       *EngineConfig
	report    *Report
	swept     [2]*keyList
	id        CardIdentity
	cardType  CardType
	magic     bool
	relock    bool
	stopped   bool
}

// credential is a key that is known to open a sector. The zero value means
// the sector is open through the magic backdoor instead.
type credential struct {
	key   Key
	kt    KeyType
	valid bool
}

func newPass(ctx context.Context, e *Engine, id CardIdentity, hooks ProgressHooks, report *Report) *pass {
	p := &pass{
		ctx:       ctx,
		hooks:     hooks,
		transport: e.transport,
		dict:      e.dict,
		session:   e.session,
		cfg:       e.config,
		report:    report,
		swept:     [2]*keyList{newKeyList(), newKeyList()},
		id:        id.clone(),
		cardType:  id.Type(),
	}
	if r, ok := hooks.(ProgressReporter); ok {
		p.reporter = r
	}
	return p
}

// isCancelled polls both the context and the hooks. Once true it stays true.
func (p *pass) isCancelled() bool {
	if p.stopped {
		return true
	}
	if p.ctx.Err() != nil || p.hooks.ShouldCancel() {
		Debugln("recover: cancellation requested")
		p.stopped = true
	}
	return p.stopped
}

func (p *pass) progress(tried, total int) {
	if p.reporter != nil {
		p.reporter.OnProgress(tried, total)
	}
}

// record stores a verified key and teaches it to the dictionary.
func (p *pass) record(s SectorIndex, kt KeyType, key Key, src Source) {
	if err := p.session.RecordKey(s, kt, key); err != nil {
		Debugf("recover: record key sector %d: %v", s, err)
		return
	}
	p.dict.Learn(key, kt)
	p.report.Sources[src]++
	Debugf("recover: sector %d key %s %s via %s", s, kt, key, src)
}

// auth tries one key. A false result with nil error means the key is wrong.
// If the tag has left the field the call waits for it and retries the same
// key instead of reporting a wrong key.
func (p *pass) auth(block BlockIndex, kt KeyType, key Key) (bool, error) {
	for {
		if p.isCancelled() {
			return false, ErrCancelled
		}
		p.report.AuthAttempts++
		p.relock = true

		ctx, cancel := context.WithTimeout(p.ctx, p.cfg.AuthTimeout)
		err := Classify(p.transport.AuthBlock(ctx, block, kt, key))
		cancel()
		if err == nil {
			return true, nil
		}
		if p.ctx.Err() != nil || errors.Is(err, ErrCancelled) {
			p.stopped = true
			return false, ErrCancelled
		}
		if !IsTagGone(err) && p.present() {
			return false, nil
		}
		if err := p.waitForReturn(); err != nil {
			return false, err
		}
	}
}

// read reads one block with the read timeout.
func (p *pass) read(block BlockIndex) ([BlockSize]byte, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.ReadTimeout)
	defer cancel()
	return p.transport.ReadBlock(ctx, block)
}

// present probes for the original card, leaving it selected when found.
func (p *pass) present() bool {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.PresenceTimeout)
	defer cancel()
	return p.transport.IsTagPresent(ctx, p.id.UID)
}

func (p *pass) reselect() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.SelectTimeout)
	defer cancel()
	if err := p.transport.SelectTag(ctx); err != nil {
		Debugf("recover: reselect failed: %v", err)
	}
}

// waitForReturn blocks until the card with the original UID is back in the
// field, polling at the configured interval.
func (p *pass) waitForReturn() error {
	Debugf("recover: tag %s left the field, waiting", p.id.UIDHex())
	p.hooks.OnPaused(true)
	defer p.hooks.OnPaused(false)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	start := time.Now()
	for {
		if p.isCancelled() {
			return ErrCancelled
		}
		if p.cfg.MaxWait > 0 && time.Since(start) > p.cfg.MaxWait {
			return ErrTagRemoved
		}
		select {
		case <-p.ctx.Done():
			p.stopped = true
			return ErrCancelled
		case <-ticker.C:
		}
		if p.present() {
			p.reselect()
			Debugf("recover: tag back after %v", time.Since(start).Round(time.Millisecond))
			return nil
		}
	}
}

// probeMagic checks once per card for the Gen1 backdoor.
func (p *pass) probeMagic() error {
	prober, ok := p.transport.(MagicProber)
	if !ok || !p.cfg.ProbeMagic {
		return nil
	}
	if p.isCancelled() {
		return ErrCancelled
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.SelectTimeout)
	enabled, err := prober.ProbeMagic(ctx)
	cancel()
	if err != nil {
		Debugf("recover: magic probe failed: %v", err)
		p.reselect()
		return nil
	}
	p.magic = enabled
	p.report.Magic = enabled
	if enabled {
		Debugln("recover: magic backdoor enabled, sectors readable without auth")
	}
	return nil
}

// unlock reopens the backdoor after a normal authentication closed it.
func (p *pass) unlock() {
	if !p.relock {
		return
	}
	prober, ok := p.transport.(MagicProber)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.SelectTimeout)
	defer cancel()
	if enabled, err := prober.ProbeMagic(ctx); err != nil || !enabled {
		Debugf("recover: magic unlock lost (err=%v)", err)
		return
	}
	p.relock = false
}
