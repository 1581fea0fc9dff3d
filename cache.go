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
	"fmt"

	"github.com/ZaparooProject/go-mfclassic/internal/syncutil"
)

// Trailer layout
const (
	trailerKeyAOffset = 0
	trailerKeyBOffset = 10
)

// SectorKeyTable holds the keys recovered for each sector.
type SectorKeyTable struct {
	keysA  []Key
	keysB  []Key
	validA SectorSet
	validB SectorSet
}

func newSectorKeyTable(sectors int) SectorKeyTable {
	return SectorKeyTable{
		keysA:  make([]Key, sectors),
		keysB:  make([]Key, sectors),
		validA: NewSectorSet(sectors),
		validB: NewSectorSet(sectors),
	}
}

// Get returns the key of type kt for sector s.
func (t *SectorKeyTable) Get(s SectorIndex, kt KeyType) (Key, bool) {
	if s < 0 || int(s) >= len(t.keysA) {
		return Key{}, false
	}
	if kt == KeyB {
		return t.keysB[s], t.validB.Test(s)
	}
	return t.keysA[s], t.validA.Test(s)
}

func (t *SectorKeyTable) set(s SectorIndex, kt KeyType, k Key) {
	if kt == KeyB {
		t.keysB[s] = k
		t.validB.Set(s)
		return
	}
	t.keysA[s] = k
	t.validA.Set(s)
}

// Count returns the number of known keys across both types.
func (t *SectorKeyTable) Count() int {
	return t.validA.Count() + t.validB.Count()
}

// BlockStore is the raw block content plus a known-bit per block.
type BlockStore struct {
	data  []byte
	known BlockSet
}

func newBlockStore(blocks int) BlockStore {
	return BlockStore{data: make([]byte, blocks*BlockSize), known: NewBlockSet(blocks)}
}

func (b *BlockStore) slot(idx BlockIndex) []byte {
	off := int(idx) * BlockSize
	return b.data[off : off+BlockSize]
}

// CacheSession is the per-card recovery state. The engine is its only
// writer; query methods are safe to call from other goroutines while a pass
// is running.
type CacheSession struct {
	identity    CardIdentity
	keys        SectorKeyTable
	blocks      BlockStore
	mu          syncutil.RWMutex
	cardType    CardType
	memoryLimit int
	active      bool
	valid       bool
}

// CacheOption configures a CacheSession.
type CacheOption func(*CacheSession)

// WithMemoryLimit caps the block store size in bytes. Zero means unlimited.
func WithMemoryLimit(bytes int) CacheOption {
	return func(c *CacheSession) {
		c.memoryLimit = bytes
	}
}

// NewCacheSession returns an empty, inactive session.
func NewCacheSession(opts ...CacheOption) *CacheSession {
	c := &CacheSession{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin discards any previous card and prepares storage for identity.
func (c *CacheSession) Begin(identity CardIdentity) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	t := identity.Type()
	need := t.TotalBlocks() * BlockSize
	if c.memoryLimit > 0 && need > c.memoryLimit {
		return fmt.Errorf("%w: %d bytes needed, limit %d", ErrOutOfMemory, need, c.memoryLimit)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity.clone()
	c.cardType = t
	c.keys = newSectorKeyTable(t.SectorCount())
	c.blocks = newBlockStore(t.TotalBlocks())
	c.active = true
	c.valid = false
	return nil
}

// Reset invalidates the session and releases its buffers.
func (c *CacheSession) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = CardIdentity{}
	c.cardType = CardTypeUnknown
	c.keys = SectorKeyTable{}
	c.blocks = BlockStore{}
	c.active = false
	c.valid = false
}

// MarkValid flags the session as the result of a finished pass.
func (c *CacheSession) MarkValid() {
	c.mu.Lock()
	c.valid = c.active
	c.mu.Unlock()
}

// Valid reports whether a finished pass populated this session.
func (c *CacheSession) Valid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.valid
}

// Active reports whether Begin was called since the last Reset.
func (c *CacheSession) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Identity returns the card the session was started for.
func (c *CacheSession) Identity() CardIdentity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity.clone()
}

// CardType returns the type of the current card.
func (c *CacheSession) CardType() CardType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cardType
}

// RecordBlock stores the contents of an authenticated read. Trailer key bytes
// are replaced with any keys already recovered for that sector.
func (c *CacheSession) RecordBlock(idx BlockIndex, data []byte) error {
	if len(data) < BlockSize {
		return fmt.Errorf("%w: block data is %d bytes", ErrInvalidParameter, len(data))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || !c.cardType.ValidBlock(idx) {
		return fmt.Errorf("%w: block %d", ErrInvalidParameter, idx)
	}
	copy(c.blocks.slot(idx), data[:BlockSize])
	c.blocks.known.Set(idx)
	if c.cardType.IsTrailer(idx) {
		c.overlayTrailerLocked(c.cardType.SectorOf(idx))
	}
	return nil
}

// RecordKey stores a verified key. Keys are never removed during a session.
func (c *CacheSession) RecordKey(s SectorIndex, kt KeyType, k Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || !c.cardType.ValidSector(s) {
		return fmt.Errorf("%w: sector %d", ErrInvalidParameter, s)
	}
	c.keys.set(s, kt, k)
	c.overlayTrailerLocked(s)
	return nil
}

func (c *CacheSession) overlayTrailerLocked(s SectorIndex) {
	trailer := c.cardType.TrailerBlock(s)
	if !c.blocks.known.Test(trailer) {
		return
	}
	buf := c.blocks.slot(trailer)
	if k, ok := c.keys.Get(s, KeyA); ok {
		copy(buf[trailerKeyAOffset:], k[:])
	}
	if k, ok := c.keys.Get(s, KeyB); ok {
		copy(buf[trailerKeyBOffset:], k[:])
	}
}

// IsBlockKnown reports whether idx holds read data.
func (c *CacheSession) IsBlockKnown(idx BlockIndex) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks.known.Test(idx)
}

// IsSectorFullyKnown reports whether both keys and every block of s are known.
func (c *CacheSession) IsSectorFullyKnown(s SectorIndex) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sectorFullyKnownLocked(s)
}

func (c *CacheSession) sectorFullyKnownLocked(s SectorIndex) bool {
	if !c.cardType.ValidSector(s) {
		return false
	}
	if _, ok := c.keys.Get(s, KeyA); !ok {
		return false
	}
	if _, ok := c.keys.Get(s, KeyB); !ok {
		return false
	}
	return c.sectorBlocksKnownLocked(s)
}

func (c *CacheSession) sectorBlocksKnownLocked(s SectorIndex) bool {
	first := c.cardType.FirstBlockOfSector(s)
	for i := 0; i < c.cardType.BlocksInSector(s); i++ {
		if !c.blocks.known.Test(first + BlockIndex(i)) {
			return false
		}
	}
	return true
}

// Block returns a copy of block idx and whether it is known.
func (c *CacheSession) Block(idx BlockIndex) ([BlockSize]byte, bool) {
	var out [BlockSize]byte
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.blocks.known.Test(idx) {
		return out, false
	}
	copy(out[:], c.blocks.slot(idx))
	return out, true
}

// SectorKey returns the recorded key of type kt for s.
func (c *CacheSession) SectorKey(s SectorIndex, kt KeyType) (Key, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys.Get(s, kt)
}

// HasAnyKey reports whether either key of s is known.
func (c *CacheSession) HasAnyKey(s SectorIndex) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, a := c.keys.Get(s, KeyA)
	_, b := c.keys.Get(s, KeyB)
	return a || b
}

// KeysFound returns the number of known keys and the number possible.
func (c *CacheSession) KeysFound() (found, total int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys.Count(), c.cardType.SectorCount() * 2
}

// SectorsRead returns how many sectors have every block known.
func (c *CacheSession) SectorsRead() (read, total int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := c.cardType.SectorCount()
	for s := 0; s < n; s++ {
		if c.sectorBlocksKnownLocked(SectorIndex(s)) {
			read++
		}
	}
	return read, n
}

// SectorResult summarises what is known about s.
func (c *CacheSession) SectorResult(s SectorIndex) SectorResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, a := c.keys.Get(s, KeyA)
	_, b := c.keys.Get(s, KeyB)
	switch {
	case c.sectorFullyKnownLocked(s):
		return SectorSolved
	case a || b || c.sectorBlocksKnownLocked(s):
		return SectorPartiallySolved
	default:
		return SectorFailed
	}
}

// Snapshot returns a deep copy suitable for serialization and enrichment.
func (c *CacheSession) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := &Snapshot{
		Identity: c.identity.clone(),
		Type:     c.cardType,
		Valid:    c.valid,
		data:     make([]byte, len(c.blocks.data)),
		known:    BlockSet{bits: c.blocks.known.bits.clone()},
		keys: SectorKeyTable{
			keysA:  append([]Key(nil), c.keys.keysA...),
			keysB:  append([]Key(nil), c.keys.keysB...),
			validA: SectorSet{bits: c.keys.validA.bits.clone()},
			validB: SectorSet{bits: c.keys.validB.bits.clone()},
		},
	}
	copy(snap.data, c.blocks.data)
	return snap
}

// Snapshot is an immutable copy of a CacheSession.
type Snapshot struct {
	Identity CardIdentity
	data     []byte
	known    BlockSet
	keys     SectorKeyTable
	Type     CardType
	Valid    bool
}

// Block returns block idx and whether it is known.
func (s *Snapshot) Block(idx BlockIndex) ([BlockSize]byte, bool) {
	var out [BlockSize]byte
	if !s.known.Test(idx) || int(idx+1)*BlockSize > len(s.data) {
		return out, false
	}
	copy(out[:], s.data[int(idx)*BlockSize:])
	return out, true
}

// SectorKey returns the recorded key of type kt for sector.
func (s *Snapshot) SectorKey(sector SectorIndex, kt KeyType) (Key, bool) {
	return s.keys.Get(sector, kt)
}

// KeysFound returns known and possible key counts.
func (s *Snapshot) KeysFound() (found, total int) {
	return s.keys.Count(), s.Type.SectorCount() * 2
}

// SectorsRead returns how many sectors have every block known.
func (s *Snapshot) SectorsRead() (read, total int) {
	n := s.Type.SectorCount()
	for i := 0; i < n; i++ {
		sector := SectorIndex(i)
		first := s.Type.FirstBlockOfSector(sector)
		all := true
		for b := 0; b < s.Type.BlocksInSector(sector); b++ {
			if !s.known.Test(first + BlockIndex(b)) {
				all = false
				break
			}
		}
		if all {
			read++
		}
	}
	return read, n
}

// SectorData concatenates the known data blocks of sector, skipping the
// trailer. The second result is false if any data block is unknown.
func (s *Snapshot) SectorData(sector SectorIndex) ([]byte, bool) {
	if !s.Type.ValidSector(sector) {
		return nil, false
	}
	first := s.Type.FirstBlockOfSector(sector)
	n := s.Type.BlocksInSector(sector) - 1
	out := make([]byte, 0, n*BlockSize)
	complete := true
	for b := 0; b < n; b++ {
		blk, ok := s.Block(first + BlockIndex(b))
		if !ok {
			complete = false
			out = append(out, make([]byte, BlockSize)...)
			continue
		}
		out = append(out, blk[:]...)
	}
	return out, complete
}
