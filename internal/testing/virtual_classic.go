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

package testing

import (
	"bytes"

	"github.com/ZaparooProject/go-mfclassic/internal/syncutil"
)

// Card commands understood by VirtualClassic
const (
	mfcAuthA = 0x60
	mfcAuthB = 0x61
	mfcRead  = 0x30
	mfcHalt  = 0x50
	gen1Wipe = 0x40
	gen1Open = 0x43
	gen1ACK  = 0x0A
)

// DefaultKey is the transport key every sector of a fresh card carries.
var DefaultKey = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// defaultAccess is the factory access condition block (FF 07 80 69).
var defaultAccess = [4]byte{0xFF, 0x07, 0x80, 0x69}

// Test UIDs
var (
	TestClassic1KUID   = []byte{0x04, 0xA2, 0x3B, 0x91}
	TestClassic4KUID   = []byte{0x04, 0x5E, 0x7C, 0x12, 0x9A, 0x40, 0x80}
	TestClassicMiniUID = []byte{0xDE, 0xAD, 0xBE, 0xEF}
)

// AuthAttempt is one authentication seen by a VirtualClassic.
type AuthAttempt struct {
	Key    [6]byte
	Block  byte
	Cmd    byte
	Sector int
	OK     bool
}

// VirtualClassic simulates a MIFARE Classic card: per-sector keys, trailer
// read masking, anticollision state and the Gen1 magic backdoor.
//
// Thread Safety: all methods are safe for concurrent use so tests can pull
// the card out of the field while a reader is talking to it.
type VirtualClassic struct {
	// AuthHook, when set, is called after every authentication with the
	// running attempt count. It runs without the card lock held.
	AuthHook func(attempt int)

	blocks     [][16]byte
	keysA      [][6]byte
	keysB      [][6]byte
	failRead   map[int]bool
	uid        []byte
	auths      []AuthAttempt
	authSector int
	stage      int
	mu         syncutil.Mutex
	atqa       uint16
	sak        byte
	present    bool
	selected   bool
	halted     bool
	magic      bool
	garbage    bool
}

func newVirtualClassic(uid []byte, atqa uint16, sak byte, sectors int) *VirtualClassic {
	c := &VirtualClassic{
		uid:        append([]byte(nil), uid...),
		atqa:       atqa,
		sak:        sak,
		present:    true,
		authSector: -1,
		failRead:   make(map[int]bool),
		keysA:      make([][6]byte, sectors),
		keysB:      make([][6]byte, sectors),
	}
	c.blocks = make([][16]byte, firstBlock(sectors))
	for s := 0; s < sectors; s++ {
		c.keysA[s] = DefaultKey
		c.keysB[s] = DefaultKey
		c.writeTrailer(s)
	}
	c.writeManufacturerBlock()
	return c
}

// NewVirtualClassic1K returns a 1K card with default keys everywhere.
func NewVirtualClassic1K(uid []byte) *VirtualClassic {
	if uid == nil {
		uid = TestClassic1KUID
	}
	return newVirtualClassic(uid, 0x0004, 0x08, 16)
}

// NewVirtualClassic4K returns a 4K card with default keys everywhere.
func NewVirtualClassic4K(uid []byte) *VirtualClassic {
	if uid == nil {
		uid = TestClassic4KUID
	}
	return newVirtualClassic(uid, 0x0044, 0x18, 40)
}

// NewVirtualClassicMini returns a Mini card with default keys everywhere.
func NewVirtualClassicMini(uid []byte) *VirtualClassic {
	if uid == nil {
		uid = TestClassicMiniUID
	}
	return newVirtualClassic(uid, 0x0004, 0x09, 5)
}

// firstBlock maps a sector to its first block; firstBlock(n) is the block
// count of an n-sector card.
func firstBlock(s int) int {
	if s <= 32 {
		return s * 4
	}
	return 128 + (s-32)*16
}

func blocksIn(s int) int {
	if s < 32 {
		return 4
	}
	return 16
}

func sectorOf(b int) int {
	if b < 128 {
		return b / 4
	}
	return 32 + (b-128)/16
}

func (c *VirtualClassic) isTrailer(b int) bool {
	s := sectorOf(b)
	return b == firstBlock(s)+blocksIn(s)-1
}

func (c *VirtualClassic) writeTrailer(s int) {
	t := &c.blocks[firstBlock(s)+blocksIn(s)-1]
	copy(t[0:6], c.keysA[s][:])
	copy(t[6:10], defaultAccess[:])
	copy(t[10:16], c.keysB[s][:])
}

func (c *VirtualClassic) writeManufacturerBlock() {
	b := &c.blocks[0]
	n := copy(b[:], c.uid)
	if len(c.uid) == 4 {
		b[4] = c.uid[0] ^ c.uid[1] ^ c.uid[2] ^ c.uid[3]
		n = 5
	}
	b[n] = c.sak
	b[n+1] = byte(c.atqa)
	b[n+2] = byte(c.atqa >> 8)
}

// UID returns the card UID.
func (c *VirtualClassic) UID() []byte {
	return append([]byte(nil), c.uid...)
}

// ATQA returns the anticollision answer.
func (c *VirtualClassic) ATQA() uint16 { return c.atqa }

// SAK returns the select acknowledge byte.
func (c *VirtualClassic) SAK() byte { return c.sak }

// Sectors returns the number of sectors.
func (c *VirtualClassic) Sectors() int {
	return len(c.keysA)
}

// Blocks returns the number of blocks.
func (c *VirtualClassic) Blocks() int {
	return len(c.blocks)
}

// SetSectorKeys changes both keys of sector s and its trailer.
func (c *VirtualClassic) SetSectorKeys(s int, a, b [6]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keysA[s] = a
	c.keysB[s] = b
	c.writeTrailer(s)
}

// SectorKeys returns the real keys of sector s.
func (c *VirtualClassic) SectorKeys(s int) (a, b [6]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keysA[s], c.keysB[s]
}

// SetBlock overwrites a data block. Trailers are rebuilt from the keys.
func (c *VirtualClassic) SetBlock(b int, data [16]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[b] = data
	if c.isTrailer(b) {
		c.writeTrailer(sectorOf(b))
	}
}

// Block returns the stored contents of block b, keys included.
func (c *VirtualClassic) Block(b int) [16]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[b]
}

// SetPresent moves the card into or out of the field. Leaving the field
// drops all selection and authentication state.
func (c *VirtualClassic) SetPresent(present bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.present = present
	if !present {
		c.reset()
	}
}

// Present reports whether the card is in the field.
func (c *VirtualClassic) Present() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.present
}

// SetMagic enables the Gen1 unlock backdoor.
func (c *VirtualClassic) SetMagic(magic bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.magic = magic
}

// SetGarbageTrailers makes trailer reads return bytes that are not the
// real Key B.
func (c *VirtualClassic) SetGarbageTrailers(garbage bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.garbage = garbage
}

// FailRead makes reads of block b fail after a successful authentication.
func (c *VirtualClassic) FailRead(b int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failRead[b] = true
}

// Auths returns a copy of the authentication log.
func (c *VirtualClassic) Auths() []AuthAttempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AuthAttempt(nil), c.auths...)
}

// AuthCount counts attempts against sector s with the given key, or with any
// key when key is nil.
func (c *VirtualClassic) AuthCount(s int, key *[6]byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, a := range c.auths {
		if a.Sector == s && (key == nil || a.Key == *key) {
			n++
		}
	}
	return n
}

func (c *VirtualClassic) reset() {
	c.selected = false
	c.halted = false
	c.stage = 0
	c.authSector = -1
}

// Wake runs WUPA and anticollision. It reports false when the card is out
// of the field.
func (c *VirtualClassic) Wake() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.present {
		return false
	}
	c.reset()
	c.selected = true
	return true
}

// Release drops the selection as InRelease does.
func (c *VirtualClassic) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// Selected reports whether the card is selected and answering.
func (c *VirtualClassic) Selected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.present && c.selected && !c.halted
}

// Authenticate runs the three-pass authentication with cmd (0x60 or 0x61)
// against block. A wrong key or UID leaves the card idle until the next
// Wake, the way real cards behave.
func (c *VirtualClassic) Authenticate(cmd, block byte, key [6]byte, uid4 []byte) bool {
	ok, n, hook := c.authenticate(cmd, block, key, uid4)
	if hook != nil {
		hook(n)
	}
	return ok
}

func (c *VirtualClassic) authenticate(cmd, block byte, key [6]byte, uid4 []byte) (bool, int, func(int)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := int(block)
	if !c.present || !c.selected || c.halted || b >= len(c.blocks) {
		return false, len(c.auths), nil
	}
	s := sectorOf(b)
	want := c.keysA[s]
	if cmd == mfcAuthB {
		want = c.keysB[s]
	}
	ok := (cmd == mfcAuthA || cmd == mfcAuthB) && key == want && bytes.Equal(uid4, c.authUID())
	c.auths = append(c.auths, AuthAttempt{Cmd: cmd, Block: block, Sector: s, Key: key, OK: ok})
	if ok {
		c.authSector = s
		c.stage = 0
	} else {
		c.reset()
	}
	return ok, len(c.auths), c.AuthHook
}

func (c *VirtualClassic) authUID() []byte {
	if len(c.uid) <= 4 {
		return c.uid
	}
	return c.uid[len(c.uid)-4:]
}

// Read returns block b if its sector is authenticated or the backdoor is
// open. Trailers come back with Key A masked to zeros unless read through
// the backdoor.
func (c *VirtualClassic) Read(block byte) ([16]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out [16]byte
	b := int(block)
	if !c.present || !c.selected || b >= len(c.blocks) {
		return out, false
	}
	unlocked := c.stage == 2
	if !unlocked && (c.halted || c.authSector != sectorOf(b)) {
		return out, false
	}
	if c.failRead[b] {
		c.reset()
		return out, false
	}
	out = c.blocks[b]
	if c.isTrailer(b) && !unlocked {
		for i := 0; i < 6; i++ {
			out[i] = 0
		}
		if c.garbage {
			for i := 10; i < 16; i++ {
				out[i] ^= 0x5A
			}
		}
	}
	return out, true
}

// Raw handles a frame sent with InCommunicateThru: HLTA, the Gen1 unlock
// pair and plain reads while unlocked. The second result is false when the
// card stays silent.
func (c *VirtualClassic) Raw(data []byte) ([]byte, bool) {
	if len(data) == 0 {
		return nil, false
	}
	switch {
	case data[0] == mfcHalt:
		c.mu.Lock()
		if c.present && c.selected {
			c.halted = true
			c.authSector = -1
			c.stage = 0
		}
		c.mu.Unlock()
		return nil, false
	case data[0] == gen1Wipe && len(data) == 1:
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.present || !c.magic || !c.halted {
			return nil, false
		}
		c.stage = 1
		return []byte{gen1ACK}, true
	case data[0] == gen1Open && len(data) == 1:
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.present || c.stage != 1 {
			return nil, false
		}
		c.stage = 2
		return []byte{gen1ACK}, true
	case data[0] == mfcRead && len(data) >= 2:
		c.mu.Lock()
		unlocked := c.stage == 2
		c.mu.Unlock()
		if !unlocked {
			return nil, false
		}
		blk, ok := c.Read(data[1])
		if !ok {
			return nil, false
		}
		crc := crcA(blk[:])
		return append(blk[:], crc[0], crc[1]), true
	}
	return nil, false
}

// crcA is the ISO/IEC 14443-3 type A CRC, low byte first.
func crcA(data []byte) [2]byte {
	crc := uint16(0x6363)
	for _, b := range data {
		b ^= byte(crc)
		b ^= b << 4
		crc = crc>>8 ^ uint16(b)<<8 ^ uint16(b)<<3 ^ uint16(b)>>4
	}
	return [2]byte{byte(crc), byte(crc >> 8)}
}
