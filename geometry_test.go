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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardTypeFromSAK(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want CardType
		sak  byte
	}{
		{sak: 0x09, want: CardTypeMini},
		{sak: 0x08, want: CardType1K},
		{sak: 0x88, want: CardType1K},
		{sak: 0x28, want: CardType1K},
		{sak: 0x18, want: CardType4K},
		{sak: 0x38, want: CardType4K},
		{sak: 0x00, want: CardTypeUnknown},
		{sak: 0x20, want: CardTypeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CardTypeFromSAK(tt.sak), "SAK %02X", tt.sak)
	}
}

func TestCardType_Names(t *testing.T) {
	t.Parallel()

	for _, ct := range []CardType{CardTypeMini, CardType1K, CardType4K} {
		assert.Equal(t, ct, ParseCardType(ct.String()))
		assert.Equal(t, ct, ParseCardType(" "+ct.String()+"\t"))
	}
	assert.Equal(t, "MIFARE Classic 1K", CardType1K.DisplayName())
	assert.Equal(t, "MIFARE Classic (unknown)", CardTypeUnknown.DisplayName())
	assert.Equal(t, CardTypeUnknown, ParseCardType("2K"))
	assert.Equal(t, CardType4K, ParseCardType("4k"))
}

func TestCardType_Geometry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ct      CardType
		sectors int
		blocks  int
	}{
		{name: "mini", ct: CardTypeMini, sectors: 5, blocks: 20},
		{name: "1K", ct: CardType1K, sectors: 16, blocks: 64},
		{name: "4K", ct: CardType4K, sectors: 40, blocks: 256},
		{name: "unknown", ct: CardTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.sectors, tt.ct.SectorCount())
			assert.Equal(t, tt.blocks, tt.ct.TotalBlocks())

			// Sectors tile the block range exactly, each ending in its trailer.
			next := BlockIndex(0)
			for s := SectorIndex(0); int(s) < tt.sectors; s++ {
				require.Equal(t, next, tt.ct.FirstBlockOfSector(s), "sector %d", s)
				n := tt.ct.BlocksInSector(s)
				for i := 0; i < n; i++ {
					b := next + BlockIndex(i)
					assert.Equal(t, s, tt.ct.SectorOf(b))
					assert.Equal(t, i == n-1, tt.ct.IsTrailer(b), "block %d", b)
				}
				assert.Equal(t, next+BlockIndex(n-1), tt.ct.TrailerBlock(s))
				next += BlockIndex(n)
			}
			assert.Equal(t, BlockIndex(tt.blocks), next)
			assert.False(t, tt.ct.ValidSector(SectorIndex(tt.sectors)))
			assert.False(t, tt.ct.ValidBlock(BlockIndex(tt.blocks)))
			assert.False(t, tt.ct.ValidBlock(-1))
		})
	}
}

func TestCardType_LargeSectors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 4, CardType4K.BlocksInSector(31))
	assert.Equal(t, 16, CardType4K.BlocksInSector(32))
	assert.Equal(t, BlockIndex(128), CardType4K.FirstBlockOfSector(32))
	assert.Equal(t, BlockIndex(143), CardType4K.TrailerBlock(32))
	assert.Equal(t, BlockIndex(255), CardType4K.TrailerBlock(39))
	assert.Equal(t, SectorIndex(39), CardType4K.SectorOf(240))
	assert.Zero(t, CardType1K.BlocksInSector(16))
}

func TestCardType_AuthBlock(t *testing.T) {
	t.Parallel()

	assert.Equal(t, BlockIndex(1), CardType1K.AuthBlock(0))
	assert.Equal(t, BlockIndex(61), CardType1K.AuthBlock(15))
	assert.Equal(t, BlockIndex(129), CardType4K.AuthBlock(32))
	for s := SectorIndex(0); s < 40; s++ {
		assert.False(t, CardType4K.IsTrailer(CardType4K.AuthBlock(s)))
	}
}

func TestCardIdentity_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		id      CardIdentity
	}{
		{name: "single size", id: CardIdentity{UID: []byte{1, 2, 3, 4}, SAK: 0x08}},
		{name: "double size", id: CardIdentity{UID: make([]byte, 7), SAK: 0x18}},
		{name: "triple size", id: CardIdentity{UID: make([]byte, 10), SAK: 0x09}},
		{name: "short uid", id: CardIdentity{UID: []byte{1, 2}, SAK: 0x08}, wantErr: ErrInvalidParameter},
		{name: "empty uid", id: CardIdentity{SAK: 0x08}, wantErr: ErrInvalidParameter},
		{name: "ultralight", id: CardIdentity{UID: make([]byte, 7), SAK: 0x00}, wantErr: ErrUnsupportedCard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.id.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCardIdentity(t *testing.T) {
	t.Parallel()

	id := CardIdentity{UID: []byte{0x04, 0x5e, 0x7c, 0x12, 0x9a, 0x40, 0x80}, ATQA: 0x0044, SAK: 0x18}
	assert.Equal(t, "045E7C129A4080", id.UIDHex())
	assert.Equal(t, []byte{0x12, 0x9a, 0x40, 0x80}, id.AuthUID())
	assert.Equal(t, CardType4K, id.Type())

	c := id.clone()
	assert.True(t, id.Equal(c))
	c.UID[0] = 0xFF
	assert.False(t, id.Equal(c))
	assert.Equal(t, byte(0x04), id.UID[0])

	other := id.clone()
	other.SAK = 0x38
	assert.False(t, id.Equal(other))

	short := CardIdentity{UID: []byte{0xDE, 0xAD, 0xBE, 0xEF}}
	assert.Equal(t, short.UID, short.AuthUID())
}
