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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-mfclassic"
)

// runApp runs the CLI with args and returns what commands wrote to the app
// writer. The app's Before hook sets package globals, so callers do not run
// in parallel.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"mfcrack"}, args...))
	return out.String(), err
}

func TestDictCommands(t *testing.T) {
	dict := filepath.Join(t.TempDir(), "keys", "user.dic")

	_, err := runApp(t, "--dict", dict, "dict", "add", "a0a1a2a3a4a5", "FF:FF:FF:FF:FF:FF")
	require.NoError(t, err)

	// Adding an existing key is not an error and does not duplicate it.
	_, err = runApp(t, "--dict", dict, "dict", "add", "A0A1A2A3A4A5")
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "import.dic")
	require.NoError(t, os.WriteFile(src, []byte("# imported\nd3f7d3f7d3f7\nnot a key\nFFFFFFFFFFFF\n"), 0o600))
	_, err = runApp(t, "--dict", dict, "dict", "import", src)
	require.NoError(t, err)

	out, err := runApp(t, "--dict", dict, "dict", "list")
	require.NoError(t, err)
	assert.Equal(t, "A0A1A2A3A4A5\nFFFFFFFFFFFF\nD3F7D3F7D3F7\n", out)
}

func TestDictCommands_Errors(t *testing.T) {
	dict := filepath.Join(t.TempDir(), "user.dic")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no dictionary", args: []string{"dict", "list"}, wantErr: "no user dictionary"},
		{name: "bad key", args: []string{"--dict", dict, "dict", "add", "12345"}, wantErr: "invalid key"},
		{name: "add without keys", args: []string{"--dict", dict, "dict", "add"}, wantErr: "KEY is required"},
		{name: "import missing file", args: []string{"--dict", dict, "dict", "import", dict + ".absent"}, wantErr: "open key file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDictList_Missing(t *testing.T) {
	out, err := runApp(t, "--dict", filepath.Join(t.TempDir(), "none.dic"), "dict", "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func writeTestDump(t *testing.T) string {
	t.Helper()
	session := mfclassic.NewCacheSession()
	require.NoError(t, session.Begin(mfclassic.CardIdentity{
		UID:  []byte{0xDE, 0xAD, 0xBE, 0xEF},
		ATQA: 0x0004,
		SAK:  0x08,
	}))
	block := bytes.Repeat([]byte{0x42}, mfclassic.BlockSize)
	require.NoError(t, session.RecordBlock(1, block))
	session.MarkValid()

	path := filepath.Join(t.TempDir(), "card.nfc")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, mfclassic.WriteDump(f, session.Snapshot()))
	require.NoError(t, f.Close())
	return path
}

func TestDumpShow(t *testing.T) {
	path := writeTestDump(t)

	out, err := runApp(t, "dump", "show", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Card: MIFARE Classic 1K | UID: DEADBEEF")
	assert.Contains(t, out, "SAK: 08")
	assert.NotContains(t, out, "Block 1:")

	out, err = runApp(t, "dump", "show", "--blocks", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Block 1: "+strings.TrimSpace(strings.Repeat("42 ", mfclassic.BlockSize)))
	assert.Contains(t, out, "Block 2: ??")
}

func TestDumpShow_Errors(t *testing.T) {
	_, err := runApp(t, "dump", "show")
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.nfc")
	require.NoError(t, os.WriteFile(bad, []byte("Filetype: Flipper NFC device\nVersion: 4\n"), 0o600))
	_, err = runApp(t, "dump", "show", bad)
	require.ErrorIs(t, err, mfclassic.ErrMalformedDump)
}

func TestReadAction_InvalidConfig(t *testing.T) {
	_, err := runApp(t, "--transport", "usb", "read")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reader.transport")
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mfcrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reader:\n  transport: pcsc\ndictionary:\n  user_file: user.dic\n"), 0o600))
	dict := filepath.Join(filepath.Dir(path), "user.dic")

	_, err := runApp(t, "--config", path, "dict", "add", "010203040506")
	require.NoError(t, err)

	data, err := os.ReadFile(dict)
	require.NoError(t, err)
	assert.Equal(t, "010203040506\n", string(data))
}

func TestHandleKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		key       byte
		wantSkip  int
		wantStop  int
		wantClose bool
	}{
		{name: "skip", key: 's', wantSkip: 1},
		{name: "skip upper", key: 'S', wantSkip: 1},
		{name: "quit", key: 'q', wantStop: 1, wantClose: true},
		{name: "ctrl-c", key: 0x03, wantStop: 1, wantClose: true},
		{name: "other", key: 'x'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var skips, stops int
			done := handleKey(tt.key, func() { skips++ }, func() { stops++ })
			assert.Equal(t, tt.wantClose, done)
			assert.Equal(t, tt.wantSkip, skips)
			assert.Equal(t, tt.wantStop, stops)
		})
	}
}

func TestPhaseLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sector  3 (block  12) key A", phaseLabel(3, 12, false))
	assert.Equal(t, "sector 39 (block 240) key B", phaseLabel(39, 240, true))
}

func TestBarHooks(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	h := newBarHooks(&out)
	h.OnPhase(0, 0, false, 10)
	h.OnProgress(4, 10)
	h.OnCacheMode(true)
	h.OnPaused(true)
	h.OnPaused(false)
	assert.Equal(t, int64(4), h.bar.Current())
	assert.Equal(t, int64(10), h.bar.Total())
	assert.False(t, h.ShouldCancel())
}
