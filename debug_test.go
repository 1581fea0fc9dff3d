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
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Session log tests share package state and do not run in parallel.

func openTestSessionLog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path, err := InitSessionLog(dir)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = CloseSessionLog()
	})
	return path
}

func readSessionLog(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, CloseSessionLog())
	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)
	return string(content)
}

func TestInitSessionLog_CreatesFile(t *testing.T) {
	path := openTestSessionLog(t)

	_, err := os.Stat(path)
	require.NoError(t, err, "log file should exist")
	assert.Regexp(t, `^mfclassic_\d{8}_\d{6}\.log$`, filepath.Base(path))
	assert.Equal(t, path, SessionLogPath())
}

func TestInitSessionLog_WritesHeaderAndFooter(t *testing.T) {
	path := openTestSessionLog(t)
	content := readSessionLog(t, path)

	assert.Contains(t, content, "=== MIFARE Classic Recovery Session Log ===")
	assert.Contains(t, content, "Started:")
	assert.Contains(t, content, "PID:")
	assert.Contains(t, content, "Go Version:")
	assert.Contains(t, content, "Command Line:")
	assert.Contains(t, content, "=== Session ended ===")
	assert.Empty(t, SessionLogPath())
}

func TestInitSessionLog_BadDirectory(t *testing.T) {
	_, err := InitSessionLog(filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)
	assert.Empty(t, SessionLogPath())
}

func TestInitSessionLog_ReplacesOpenLog(t *testing.T) {
	first := openTestSessionLog(t)
	second, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)

	Debugf("after switch")
	assert.Equal(t, second, SessionLogPath())

	content := readSessionLog(t, second)
	assert.Contains(t, content, "DEBUG: after switch")

	old, err := os.ReadFile(first) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)
	assert.NotContains(t, string(old), "after switch")
}

func TestCloseSessionLog_NoFile(t *testing.T) {
	require.NoError(t, CloseSessionLog())
	require.NoError(t, CloseSessionLog())
}

func TestDebug_WritesToSessionLog(t *testing.T) {
	prev := DebugEnabled()
	SetDebugEnabled(false)
	t.Cleanup(func() { SetDebugEnabled(prev) })

	path := openTestSessionLog(t)
	Debugf("test message %d", 42)
	Debugln("key", Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, "sector", 3)

	content := readSessionLog(t, path)
	assert.Regexp(t, regexp.MustCompile(`\d{2}:\d{2}:\d{2}\.\d{3} DEBUG: test message 42\n`), content)
	assert.Contains(t, content, "DEBUG: key FFFFFFFFFFFF sector 3\n")
}

func TestDebug_NoSessionLog(t *testing.T) {
	prev := DebugEnabled()
	t.Cleanup(func() { SetDebugEnabled(prev) })

	SetDebugEnabled(true)
	assert.True(t, DebugEnabled())
	Debugf("to stderr only")

	SetDebugEnabled(false)
	assert.False(t, DebugEnabled())
	Debugln("dropped")
}
