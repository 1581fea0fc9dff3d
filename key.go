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

// KeySize is the length of a MIFARE Classic sector key.
const KeySize = 6

// Key is a 48-bit sector key.
type Key [KeySize]byte

// KeyType selects Key A or Key B.
type KeyType byte

// Key types
const (
	KeyA KeyType = 0x00
	KeyB KeyType = 0x01
)

// MIFARE authentication opcodes
const (
	cmdAuthA = 0x60
	cmdAuthB = 0x61
)

// Other returns the complementary key type.
func (kt KeyType) Other() KeyType {
	if kt == KeyA {
		return KeyB
	}
	return KeyA
}

// IsB reports whether kt is Key B.
func (kt KeyType) IsB() bool { return kt == KeyB }

// AuthCommand returns the MIFARE AUTH opcode for kt.
func (kt KeyType) AuthCommand() byte {
	if kt == KeyB {
		return cmdAuthB
	}
	return cmdAuthA
}

func (kt KeyType) String() string {
	if kt == KeyB {
		return "B"
	}
	return "A"
}

// KeyTypes lists both key types in attempt order.
var KeyTypes = [2]KeyType{KeyA, KeyB}

// String returns the key as 12 uppercase hex digits.
func (k Key) String() string {
	return fmt.Sprintf("%X", k[:])
}

// Spaced returns the key as space separated hex bytes.
func (k Key) Spaced() string {
	return fmt.Sprintf("% X", k[:])
}

// Bytes returns a copy of the key as a slice.
func (k Key) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, k[:])
	return out
}

// KeyFromBytes copies the first six bytes of b into a Key.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) < KeySize {
		return k, fmt.Errorf("%w: key needs %d bytes, got %d", ErrInvalidParameter, KeySize, len(b))
	}
	copy(k[:], b[:KeySize])
	return k, nil
}

// ParseKey parses 12 hex digits. Spaces, colons and dashes between digits are
// ignored.
func ParseKey(s string) (Key, error) {
	k, ok := ParseKeyLine(s)
	if !ok {
		return Key{}, fmt.Errorf("%w: invalid key %q", ErrInvalidParameter, strings.TrimSpace(s))
	}
	return k, nil
}

// ParseKeyLine extracts a key from one dictionary line. Hex digits are
// collected until six bytes are assembled; any other character is skipped. A
// '#' before the sixth byte makes the line invalid, anything after it is a
// comment.
func ParseKeyLine(line string) (Key, bool) {
	var k Key
	n := 0
	hi := -1
	for i := 0; i < len(line) && n < KeySize; i++ {
		c := line[i]
		if c == '#' {
			return Key{}, false
		}
		v := hexNibble(c)
		if v < 0 {
			continue
		}
		if hi < 0 {
			hi = v
			continue
		}
		k[n] = byte(hi<<4 | v)
		n++
		hi = -1
	}
	return k, n == KeySize
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}
