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

package enrich

import (
	"encoding/binary"

	"github.com/ZaparooProject/go-mfclassic"
)

// ndefAID is the MAD application ID NFC Forum assigns to NDEF sectors.
const ndefAID = 0xE103

const (
	mad1Sector   = 0
	mad2Sector   = 16
	mad1Sectors  = 15
	mad2Sectors  = 23
	madFirstByte = 2 // CRC and info byte precede the AID table
)

// madNDEFSectors returns the sectors the MAD assigns to NDEF, in order. It
// reports false when the directory is missing or unreadable, so callers
// fall back to every data sector.
func madNDEFSectors(view *mfclassic.Snapshot) ([]mfclassic.SectorIndex, bool) {
	mad1, ok := madTable(view, mad1Sector, 1, mad1Sectors)
	if !ok {
		return nil, false
	}
	var out []mfclassic.SectorIndex
	for i, aid := range mad1 {
		if aid == ndefAID {
			out = append(out, mfclassic.SectorIndex(i+1))
		}
	}

	if view.Type == mfclassic.CardType4K {
		if mad2, ok := madTable(view, mad2Sector, 0, mad2Sectors); ok {
			for i, aid := range mad2 {
				if aid == ndefAID {
					out = append(out, mfclassic.SectorIndex(mad2Sector+1+i))
				}
			}
		}
	}
	return out, len(out) > 0
}

// madTable decodes n little-endian AIDs starting after the CRC and info
// byte of the first block used in sector s.
func madTable(view *mfclassic.Snapshot, s mfclassic.SectorIndex, firstBlock, n int) ([]uint16, bool) {
	need := madFirstByte + 2*n
	var raw []byte
	base := view.Type.FirstBlockOfSector(s)
	for b := firstBlock; len(raw) < need; b++ {
		blk, ok := view.Block(base + mfclassic.BlockIndex(b))
		if !ok {
			return nil, false
		}
		raw = append(raw, blk[:]...)
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(raw[madFirstByte+2*i:])
	}
	return out, true
}

// dataSectors lists every sector that can carry application data: all but
// the MAD sectors.
func dataSectors(t mfclassic.CardType) []mfclassic.SectorIndex {
	var out []mfclassic.SectorIndex
	for i := 1; i < t.SectorCount(); i++ {
		if t == mfclassic.CardType4K && i == mad2Sector {
			continue
		}
		out = append(out, mfclassic.SectorIndex(i))
	}
	return out
}
