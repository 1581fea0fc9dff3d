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

import "math/bits"

// Bitset is a growable set of non-negative integers.
type Bitset struct {
	words []uint64
}

// NewBitset returns a bitset sized for n members.
func NewBitset(n int) Bitset {
	return Bitset{words: make([]uint64, (n+63)/64)}
}

// Set adds i. Negative indices are ignored.
func (b *Bitset) Set(i int) {
	if i < 0 {
		return
	}
	w := i / 64
	if w >= len(b.words) {
		grown := make([]uint64, w+1)
		copy(grown, b.words)
		b.words = grown
	}
	b.words[w] |= 1 << (uint(i) % 64)
}

// Test reports whether i is a member.
func (b Bitset) Test(i int) bool {
	if i < 0 || i/64 >= len(b.words) {
		return false
	}
	return b.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Clear removes i.
func (b *Bitset) Clear(i int) {
	if i < 0 || i/64 >= len(b.words) {
		return
	}
	b.words[i/64] &^= 1 << (uint(i) % 64)
}

// Count returns the number of members.
func (b Bitset) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Reset removes every member without releasing storage.
func (b *Bitset) Reset() {
	for i := range b.words {
		b.words[i] = 0
	}
}

func (b Bitset) clone() Bitset {
	words := make([]uint64, len(b.words))
	copy(words, b.words)
	return Bitset{words: words}
}

// BlockSet is a Bitset indexed by BlockIndex.
type BlockSet struct{ bits Bitset }

// NewBlockSet returns a set sized for n blocks.
func NewBlockSet(n int) BlockSet { return BlockSet{bits: NewBitset(n)} }

// Set marks b.
func (s *BlockSet) Set(b BlockIndex) { s.bits.Set(int(b)) }

// Test reports whether b is marked.
func (s BlockSet) Test(b BlockIndex) bool { return s.bits.Test(int(b)) }

// Clear unmarks b.
func (s *BlockSet) Clear(b BlockIndex) { s.bits.Clear(int(b)) }

// Count returns the number of marked blocks.
func (s BlockSet) Count() int { return s.bits.Count() }

// SectorSet is a Bitset indexed by SectorIndex.
type SectorSet struct{ bits Bitset }

// NewSectorSet returns a set sized for n sectors.
func NewSectorSet(n int) SectorSet { return SectorSet{bits: NewBitset(n)} }

// Set marks s.
func (s *SectorSet) Set(sector SectorIndex) { s.bits.Set(int(sector)) }

// Test reports whether s is marked.
func (s SectorSet) Test(sector SectorIndex) bool { return s.bits.Test(int(sector)) }

// Clear unmarks s.
func (s *SectorSet) Clear(sector SectorIndex) { s.bits.Clear(int(sector)) }

// Count returns the number of marked sectors.
func (s SectorSet) Count() int { return s.bits.Count() }
