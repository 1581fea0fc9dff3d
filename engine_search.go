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

// match is the result of a tiered search.
type match struct {
	key Key
	src Source
	kt  KeyType
	ok  bool
}

// attempt is one queued candidate.
type attempt struct {
	key Key
	kt  KeyType
}

// tierAttempts expands a tier into ordered attempts. Dictionary tiers are
// interleaved per key (A then B); the per-type tiers try all A keys before
// all B keys.
func (p *pass) tierAttempts(s SectorIndex, src Source, types []KeyType) []attempt {
	var out []attempt
	if src.IsDictionary() {
		keys, err := p.dict.Candidates(src, KeyA)
		if err != nil {
			if !errUnavailable(err) {
				Debugf("recover: %s: %v", src, err)
			}
			return nil
		}
		for _, k := range keys {
			for _, kt := range types {
				out = append(out, attempt{key: k, kt: kt})
			}
		}
		return out
	}

	for _, kt := range types {
		var keys []Key
		if src == SourceCard {
			keys = p.cardKeys(s, kt)
		} else {
			keys, _ = p.dict.Candidates(src, kt)
		}
		for _, k := range keys {
			out = append(out, attempt{key: k, kt: kt})
		}
	}
	return out
}

// cardKeys returns keys of type kt already recorded for other sectors of this
// card.
func (p *pass) cardKeys(exclude SectorIndex, kt KeyType) []Key {
	list := newKeyList()
	for i := 0; i < p.cardType.SectorCount(); i++ {
		s := SectorIndex(i)
		if s == exclude {
			continue
		}
		if k, ok := p.session.SectorKey(s, kt); ok {
			list.add(k)
		}
	}
	return list.keys
}

// search walks the tiers in order against block and returns the first key
// that authenticates. Each (type, key) pair is tried at most once per call.
// ShouldSkipDict stops the dictionary tiers only.
func (p *pass) search(s SectorIndex, block BlockIndex, order []Source, types []KeyType) (match, error) {
	tried := [2]*keyList{newKeyList(), newKeyList()}
	first := p.cardType.FirstBlockOfSector(s)

	var queued int
	tiers := make([][]attempt, len(order))
	for i, src := range order {
		tiers[i] = p.tierAttempts(s, src, types)
		queued += len(tiers[i])
	}

	count := 0
	phaseB := types[0].IsB()
	p.hooks.OnPhase(s, first, phaseB, queued)

	for i, src := range order {
		for _, a := range tiers[i] {
			if p.isCancelled() {
				return match{}, ErrCancelled
			}
			// Dictionary tiers come last in every order, so a skip ends the search.
			if src.IsDictionary() && p.hooks.ShouldSkipDict() {
				Debugf("recover: sector %d dictionary skipped", s)
				return match{}, nil
			}
			if !tried[a.kt].add(a.key) {
				continue
			}
			if _, known := p.session.SectorKey(s, a.kt); known {
				continue
			}
			if a.kt.IsB() != phaseB {
				phaseB = a.kt.IsB()
				p.hooks.OnPhase(s, first, phaseB, queued)
			}
			count++
			ok, err := p.auth(block, a.kt, a.key)
			p.progress(count, queued)
			if err != nil {
				return match{}, err
			}
			if ok {
				return match{key: a.key, kt: a.kt, src: src, ok: true}, nil
			}
		}
	}
	return match{}, nil
}

// complement looks for the key of type kt for a sector that is already open
// with the other type. It uses the light tier list and never the embedded
// dictionary.
func (p *pass) complement(s SectorIndex, kt KeyType) error {
	if _, known := p.session.SectorKey(s, kt); known {
		return nil
	}
	found, err := p.search(s, p.cardType.AuthBlock(s), complementaryOrder, []KeyType{kt})
	if err != nil || !found.ok {
		return err
	}
	p.record(s, kt, found.key, found.src)

	cred := credential{kt: kt, key: found.key, valid: true}
	if err := p.readSector(s, cred); err != nil {
		return err
	}
	return p.sweep(found.key, kt, s)
}

// sweep tries a freshly found key on every other sector that lacks a key of
// that type. Each key is swept once per pass.
func (p *pass) sweep(key Key, kt KeyType, origin SectorIndex) error {
	if p.hooks.ShouldSkipDict() || p.swept[kt].contains(key) {
		return nil
	}
	if len(p.swept[kt].keys) >= p.cfg.SweptKeyLimit {
		Debugf("recover: swept key limit reached for type %s", kt)
		return nil
	}
	p.swept[kt].add(key)

	for i := 0; i < p.cardType.SectorCount(); i++ {
		s := SectorIndex(i)
		if p.isCancelled() {
			return ErrCancelled
		}
		if p.hooks.ShouldSkipDict() {
			return nil
		}
		if s == origin {
			continue
		}
		if _, known := p.session.SectorKey(s, kt); known {
			continue
		}
		ok, err := p.auth(p.cardType.AuthBlock(s), kt, key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		p.hooks.OnPhase(s, p.cardType.FirstBlockOfSector(s), kt.IsB(), 0)
		p.record(s, kt, key, SourceSweep)
		if err := p.readSector(s, credential{kt: kt, key: key, valid: true}); err != nil {
			return err
		}
	}
	return nil
}

// readSector reads every unknown block of s in order, trailer last, and
// harvests the trailer if it was read. The sector must already be open with
// cred, or through the backdoor when cred is not valid.
func (p *pass) readSector(s SectorIndex, cred credential) error {
	first := p.cardType.FirstBlockOfSector(s)
	n := p.cardType.BlocksInSector(s)
	if p.magic && !cred.valid {
		p.unlock()
	}

	var trailer [BlockSize]byte
	haveTrailer := false
	reauth := false
	for i := 0; i < n; i++ {
		b := first + BlockIndex(i)
		if p.isCancelled() {
			return ErrCancelled
		}
		if p.session.IsBlockKnown(b) {
			continue
		}
		data, ok, err := p.readBlock(s, b, cred, &reauth)
		if err != nil {
			return err
		}
		if !ok {
			Debugf("recover: block %d left unknown", b)
			continue
		}
		if err := p.session.RecordBlock(b, data[:]); err != nil {
			Debugf("recover: record block %d: %v", b, err)
			continue
		}
		if i == n-1 {
			trailer = data
			haveTrailer = true
		}
	}

	if haveTrailer {
		return p.harvest(s, trailer)
	}
	return nil
}

// readBlock reads b, retrying once after re-authentication and then with the
// complementary key. A false result with nil error leaves the block unknown.
// reauth tracks whether the sector must be reopened before the next read.
func (p *pass) readBlock(s SectorIndex, b BlockIndex, cred credential, reauth *bool) ([BlockSize]byte, bool, error) {
	if *reauth {
		opened, err := p.reopen(s, cred)
		if err != nil || !opened {
			return [BlockSize]byte{}, false, err
		}
		*reauth = false
	}

	data, err := p.read(b)
	if err == nil {
		return data, true, nil
	}
	Debugf("recover: read block %d failed: %v", b, err)
	if p.isCancelled() {
		return data, false, ErrCancelled
	}
	if IsTagGone(err) || !p.present() {
		if werr := p.waitForReturn(); werr != nil {
			return data, false, werr
		}
	}

	// The failed read dropped the crypto session; reopen with the same key.
	*reauth = true
	if opened, oerr := p.reopen(s, cred); oerr != nil {
		return data, false, oerr
	} else if opened {
		if data, err = p.read(b); err == nil {
			*reauth = false
			return data, true, nil
		}
	}

	if cred.valid {
		if other, known := p.session.SectorKey(s, cred.kt.Other()); known {
			alt := credential{kt: cred.kt.Other(), key: other, valid: true}
			opened, oerr := p.reopen(s, alt)
			if oerr != nil {
				return data, false, oerr
			}
			if opened {
				if data, err = p.read(b); err == nil {
					// The sector stays open with the other key for later blocks.
					*reauth = false
					return data, true, nil
				}
			}
		}
	}
	return data, false, nil
}

// reopen re-establishes access to s with cred or the backdoor.
func (p *pass) reopen(s SectorIndex, cred credential) (bool, error) {
	if !cred.valid {
		if !p.magic {
			return false, nil
		}
		p.relock = true
		p.unlock()
		return !p.relock, nil
	}
	return p.auth(p.cardType.AuthBlock(s), cred.kt, cred.key)
}

// harvest verifies the keys exposed in a trailer and records those that
// authenticate. Unverified trailer bytes are never trusted.
func (p *pass) harvest(s SectorIndex, trailer [BlockSize]byte) error {
	candidates := [2]Key{}
	copy(candidates[KeyA][:], trailer[trailerKeyAOffset:trailerKeyAOffset+KeySize])
	copy(candidates[KeyB][:], trailer[trailerKeyBOffset:trailerKeyBOffset+KeySize])

	for _, kt := range KeyTypes {
		if _, known := p.session.SectorKey(s, kt); known {
			continue
		}
		key := candidates[kt]
		ok, err := p.auth(p.cardType.AuthBlock(s), kt, key)
		if err != nil {
			return err
		}
		if !ok {
			Debugf("recover: sector %d trailer key %s %s did not verify", s, kt, key)
			continue
		}
		p.record(s, kt, key, SourceTrailer)
		if err := p.sweep(key, kt, s); err != nil {
			return err
		}
	}
	return nil
}
