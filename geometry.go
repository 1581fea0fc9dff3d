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
	"strings"
)

// CardType identifies the MIFARE Classic memory layout.
type CardType int

// Supported card types
const (
	CardTypeUnknown CardType = iota
	CardTypeMini
	CardType1K
	CardType4K
)

// Block geometry constants
const (
	BlockSize = 16

	smallSectorBlocks = 4
	largeSectorBlocks = 16
	// Sectors below this index are four blocks long on every card type.
	smallSectorLimit = 32
	// First block of sector 32 on a 4K card.
	largeSectorBase = smallSectorLimit * smallSectorBlocks
)

// CardTypeFromSAK derives the card type from the SAK byte returned during
// ISO14443-A selection.
func CardTypeFromSAK(sak byte) CardType {
	switch sak {
	case 0x09:
		return CardTypeMini
	case 0x08, 0x88, 0x28:
		return CardType1K
	case 0x18, 0x38:
		return CardType4K
	default:
		return CardTypeUnknown
	}
}

// String returns the short name used in dump files.
func (t CardType) String() string {
	switch t {
	case CardTypeMini:
		return "Mini"
	case CardType1K:
		return "1K"
	case CardType4K:
		return "4K"
	default:
		return "Unknown"
	}
}

// DisplayName returns the long product name.
func (t CardType) DisplayName() string {
	if t == CardTypeUnknown {
		return "MIFARE Classic (unknown)"
	}
	return "MIFARE Classic " + t.String()
}

// ParseCardType is the inverse of CardType.String.
func ParseCardType(s string) CardType {
	switch strings.TrimSpace(s) {
	case "Mini", "MINI", "mini":
		return CardTypeMini
	case "1K", "1k":
		return CardType1K
	case "4K", "4k":
		return CardType4K
	default:
		return CardTypeUnknown
	}
}

// SectorIndex is a sector number within a card.
type SectorIndex int

// BlockIndex is an absolute block number within a card.
type BlockIndex int

// SectorCount returns the number of sectors for the card type.
func (t CardType) SectorCount() int {
	switch t {
	case CardTypeMini:
		return 5
	case CardType1K:
		return 16
	case CardType4K:
		return 40
	default:
		return 0
	}
}

// TotalBlocks returns the number of 16-byte blocks on the card.
func (t CardType) TotalBlocks() int {
	switch t {
	case CardTypeMini:
		return 20
	case CardType1K:
		return 64
	case CardType4K:
		return 256
	default:
		return 0
	}
}

// ValidSector reports whether s exists on this card type.
func (t CardType) ValidSector(s SectorIndex) bool {
	return s >= 0 && int(s) < t.SectorCount()
}

// ValidBlock reports whether b exists on this card type.
func (t CardType) ValidBlock(b BlockIndex) bool {
	return b >= 0 && int(b) < t.TotalBlocks()
}

// BlocksInSector returns the number of blocks in sector s, or 0 when s is out
// of range.
func (t CardType) BlocksInSector(s SectorIndex) int {
	if !t.ValidSector(s) {
		return 0
	}
	if s < smallSectorLimit {
		return smallSectorBlocks
	}
	return largeSectorBlocks
}

// FirstBlockOfSector returns the absolute index of the first block of s.
func (t CardType) FirstBlockOfSector(s SectorIndex) BlockIndex {
	if s < smallSectorLimit {
		return BlockIndex(int(s) * smallSectorBlocks)
	}
	return BlockIndex(largeSectorBase + int(s-smallSectorLimit)*largeSectorBlocks)
}

// TrailerBlock returns the sector trailer of s.
func (t CardType) TrailerBlock(s SectorIndex) BlockIndex {
	return t.FirstBlockOfSector(s) + BlockIndex(t.BlocksInSector(s)-1)
}

// AuthBlock returns the block used as the authentication target for s: the
// second block of the sector. For sector 0 that is block 1, so the
// manufacturer block is never addressed, and it is never the trailer.
func (t CardType) AuthBlock(s SectorIndex) BlockIndex {
	return t.FirstBlockOfSector(s) + 1
}

// SectorOf returns the sector containing block b.
func (t CardType) SectorOf(b BlockIndex) SectorIndex {
	if b < largeSectorBase {
		return SectorIndex(int(b) / smallSectorBlocks)
	}
	return SectorIndex(smallSectorLimit + int(b-largeSectorBase)/largeSectorBlocks)
}

// IsTrailer reports whether b is the last block of its sector.
func (t CardType) IsTrailer(b BlockIndex) bool {
	if !t.ValidBlock(b) {
		return false
	}
	return t.TrailerBlock(t.SectorOf(b)) == b
}

// CardIdentity is what anticollision tells us about the selected card.
type CardIdentity struct {
	UID  []byte
	ATQA uint16
	SAK  byte
}

// Type derives the card type from the SAK.
func (id CardIdentity) Type() CardType {
	return CardTypeFromSAK(id.SAK)
}

// Validate checks the UID length and card type.
func (id CardIdentity) Validate() error {
	switch len(id.UID) {
	case 4, 7, 10:
	default:
		return fmt.Errorf("%w: UID length %d", ErrInvalidParameter, len(id.UID))
	}
	if id.Type() == CardTypeUnknown {
		return fmt.Errorf("%w: SAK %02X", ErrUnsupportedCard, id.SAK)
	}
	return nil
}

// UIDHex returns the UID as contiguous uppercase hex.
func (id CardIdentity) UIDHex() string {
	return fmt.Sprintf("%X", id.UID)
}

// AuthUID returns the four UID bytes used in the authentication command. For
// double and triple size UIDs this is the last four bytes.
func (id CardIdentity) AuthUID() []byte {
	if len(id.UID) <= 4 {
		return id.UID
	}
	return id.UID[len(id.UID)-4:]
}

// Equal compares two identities byte for byte.
func (id CardIdentity) Equal(other CardIdentity) bool {
	if id.ATQA != other.ATQA || id.SAK != other.SAK || len(id.UID) != len(other.UID) {
		return false
	}
	for i := range id.UID {
		if id.UID[i] != other.UID[i] {
			return false
		}
	}
	return true
}

func (id CardIdentity) clone() CardIdentity {
	uid := make([]byte, len(id.UID))
	copy(uid, id.UID)
	return CardIdentity{UID: uid, ATQA: id.ATQA, SAK: id.SAK}
}
