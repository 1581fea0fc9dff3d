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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedKeys(t *testing.T) {
	t.Parallel()

	keys, err := EmbeddedKeys()
	require.NoError(t, err)
	require.NotEmpty(t, keys)
	assert.Equal(t, repeatKey(0xFF), keys[0])

	seen := make(map[Key]bool)
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate %s", k)
		seen[k] = true
	}
}

func TestParseKeys(t *testing.T) {
	t.Parallel()

	keys, nl := parseKeys([]byte("# header\nFFFFFFFFFFFF\n\nnot hex\nffffffffffff\nA0A1A2A3A4A5"))
	assert.Equal(t, []Key{repeatKey(0xFF), {0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}}, keys)
	assert.False(t, nl)

	keys, nl = parseKeys(nil)
	assert.Empty(t, keys)
	assert.True(t, nl)
}

func TestSource(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []Source{
		SourceLastKey, SourceSession, SourceCard, SourceUser, SourceDefaults, SourceEmbedded,
	}, searchOrder)
	assert.NotContains(t, complementaryOrder, SourceEmbedded)
	assert.NotContains(t, complementaryOrder, SourceCard)

	for _, s := range []Source{SourceUser, SourceDefaults, SourceEmbedded} {
		assert.True(t, s.IsDictionary(), s.String())
	}
	for _, s := range []Source{SourceLastKey, SourceSession, SourceCard, SourceTrailer, SourceSweep, SourceMagic} {
		assert.False(t, s.IsDictionary(), s.String())
	}
	assert.Equal(t, "embedded dictionary", SourceEmbedded.String())
	assert.Equal(t, "unknown", Source(99).String())
}

func TestDictionary_Candidates(t *testing.T) {
	t.Parallel()

	defaults := []Key{repeatKey(0x01), repeatKey(0x02)}
	d := NewDictionary(WithDefaultKeys(defaults), WithEmbeddedKeys(testKeys))

	got, err := d.Candidates(SourceDefaults, KeyB)
	require.NoError(t, err)
	assert.Equal(t, defaults, got)

	got, err = d.Candidates(SourceEmbedded, KeyA)
	require.NoError(t, err)
	assert.Equal(t, testKeys, got)

	_, err = d.Candidates(SourceUser, KeyA)
	require.ErrorIs(t, err, ErrDictionaryUnavailable)

	got, err = d.Candidates(SourceLastKey, KeyA)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = d.Candidates(SourceCard, KeyA)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NewDictionary(WithEmbeddedKeys(nil)).Candidates(SourceEmbedded, KeyA)
	require.ErrorIs(t, err, ErrDictionaryUnavailable)
}

func TestDictionary_Learn(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "user.nfc")
	user := NewUserDictionary(path)
	d := NewDictionary(WithUserDictionary(user), WithEmbeddedKeys(testKeys))
	assert.Same(t, user, d.User())

	k1, k2 := repeatKey(0x10), repeatKey(0x20)
	d.Learn(k1, KeyA)
	d.Learn(k2, KeyA)
	d.Learn(k1, KeyB)

	last, ok := d.LastKey(KeyA)
	require.True(t, ok)
	assert.Equal(t, k2, last)
	last, ok = d.LastKey(KeyB)
	require.True(t, ok)
	assert.Equal(t, k1, last)

	assert.Equal(t, []Key{k1, k2}, d.SessionKeys(KeyA))
	assert.Equal(t, []Key{k1}, d.SessionKeys(KeyB))

	got, err := d.Candidates(SourceSession, KeyA)
	require.NoError(t, err)
	assert.Equal(t, []Key{k1, k2}, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "101010101010\n202020202020\n", string(data))

	d.ResetSession()
	_, ok = d.LastKey(KeyA)
	assert.False(t, ok)
	assert.Empty(t, d.SessionKeys(KeyA))

	// The user file survives a session reset.
	got, err = d.Candidates(SourceUser, KeyB)
	require.NoError(t, err)
	assert.Equal(t, []Key{k1, k2}, got)
}

func TestUserDictionary_Missing(t *testing.T) {
	t.Parallel()

	u := NewUserDictionary(filepath.Join(t.TempDir(), "absent.nfc"))
	_, err := u.Keys()
	require.ErrorIs(t, err, ErrDictionaryUnavailable)
	require.ErrorIs(t, u.Load(), ErrDictionaryUnavailable)
	assert.Zero(t, u.Len())
	assert.False(t, u.Contains(repeatKey(0xFF)))

	added, err := u.Append(repeatKey(0xFF))
	require.NoError(t, err)
	assert.True(t, added)

	keys, err := u.Keys()
	require.NoError(t, err)
	assert.Equal(t, []Key{repeatKey(0xFF)}, keys)
}

func TestUserDictionary_AppendKeepsLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "user.nfc")
	require.NoError(t, os.WriteFile(path, []byte("# mine\nFFFFFFFFFFFF"), 0o600))

	u := NewUserDictionary(path)
	added, err := u.Append(repeatKey(0xFF))
	require.NoError(t, err)
	assert.False(t, added)

	added, err = u.Append(repeatKey(0x0A))
	require.NoError(t, err)
	assert.True(t, added)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# mine\nFFFFFFFFFFFF\n0A0A0A0A0A0A\n", string(data))
	assert.Equal(t, 2, u.Len())
}

func TestUserDictionary_Reload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "user.nfc")
	require.NoError(t, os.WriteFile(path, []byte("FFFFFFFFFFFF\n"), 0o600))

	u := NewUserDictionary(path)
	require.NoError(t, u.Load())
	assert.Equal(t, 1, u.Len())

	require.NoError(t, os.WriteFile(path, []byte("FFFFFFFFFFFF\n000000000000\n"), 0o600))
	assert.Equal(t, 1, u.Len())

	require.NoError(t, u.ForceReload())
	assert.Equal(t, 2, u.Len())

	require.NoError(t, os.WriteFile(path, []byte("A0A1A2A3A4A5\n"), 0o600))
	u.Invalidate()
	assert.True(t, u.Contains(Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}))
	assert.False(t, u.Contains(repeatKey(0xFF)))
}

func TestUserDictionary_Import(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "user.nfc")
	u := NewUserDictionary(path)
	require.Equal(t, path, u.Path())

	in := strings.NewReader("FFFFFFFFFFFF\n# skip\nbogus\nffffffffffff\nD3 F7 D3 F7 D3 F7\n")
	n, err := u.Import(in)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = u.Import(strings.NewReader("D3F7D3F7D3F7\n"))
	require.NoError(t, err)
	assert.Zero(t, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "FFFFFFFFFFFF\nD3F7D3F7D3F7\n", string(data))
}
