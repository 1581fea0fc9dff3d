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

func TestParseKeyLine(t *testing.T) {
	t.Parallel()

	want := Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
	tests := []struct {
		name string
		line string
		ok   bool
	}{
		{name: "plain", line: "A0A1A2A3A4A5", ok: true},
		{name: "lower case", line: "a0a1a2a3a4a5", ok: true},
		{name: "spaced", line: "A0 A1 A2 A3 A4 A5", ok: true},
		{name: "colons", line: "a0:a1:a2:a3:a4:a5", ok: true},
		{name: "trailing comment", line: "A0A1A2A3A4A5 # transport", ok: true},
		{name: "extra digits ignored", line: "A0A1A2A3A4A5FF", ok: true},
		{name: "leading whitespace", line: "\t  A0A1A2A3A4A5\r", ok: true},
		{name: "comment line", line: "# A0A1A2A3A4A5"},
		{name: "comment mid key", line: "A0A1A2 # A3A4A5"},
		{name: "too short", line: "A0A1A2A3A4"},
		{name: "odd digits", line: "A0A1A2A3A4A"},
		{name: "empty", line: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			k, ok := ParseKeyLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, want, k)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	k, err := ParseKey(" ff-ff-ff-ff-ff-ff ")
	require.NoError(t, err)
	assert.Equal(t, repeatKey(0xFF), k)

	_, err = ParseKey("not a key")
	require.ErrorIs(t, err, ErrInvalidParameter)
	assert.Contains(t, err.Error(), `"not a key"`)
}

func TestKey_Formatting(t *testing.T) {
	t.Parallel()

	k := Key{0xD3, 0xF7, 0xD3, 0xF7, 0x0A, 0x01}
	assert.Equal(t, "D3F7D3F70A01", k.String())
	assert.Equal(t, "D3 F7 D3 F7 0A 01", k.Spaced())

	b := k.Bytes()
	b[0] = 0
	assert.Equal(t, byte(0xD3), k[0])

	back, err := KeyFromBytes(append(k.Bytes(), 0xEE))
	require.NoError(t, err)
	assert.Equal(t, k, back)

	_, err = KeyFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestKeyType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, [2]KeyType{KeyA, KeyB}, KeyTypes)
	assert.Equal(t, KeyB, KeyA.Other())
	assert.Equal(t, KeyA, KeyB.Other())
	assert.Equal(t, byte(0x60), KeyA.AuthCommand())
	assert.Equal(t, byte(0x61), KeyB.AuthCommand())
	assert.Equal(t, "A", KeyA.String())
	assert.Equal(t, "B", KeyB.String())
	assert.True(t, KeyB.IsB())
	assert.False(t, KeyA.IsB())
}
