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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-mfclassic"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mfcrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
reader:
  transport: i2c
  port: /dev/i2c-1
  passive_retries: 16
  card_timeout: 30s
dictionary:
  user_file: keys/user.dic
dump:
  dir: /var/lib/dumps
log:
  session_dir: logs
  debug: true
engine:
  auth_timeout: 250ms
  max_wait: 1m
  swept_key_limit: 8
  verify_pass: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, TransportI2C, cfg.Reader.Transport)
	assert.Equal(t, "/dev/i2c-1", cfg.Reader.Port)
	require.NotNil(t, cfg.Reader.PassiveRetries)
	assert.Equal(t, 16, *cfg.Reader.PassiveRetries)
	assert.Equal(t, 30*time.Second, cfg.Reader.CardTimeout)
	assert.Equal(t, filepath.Join(dir, "keys", "user.dic"), cfg.Dictionary.UserFile)
	assert.Equal(t, "/var/lib/dumps", cfg.Dump.Dir)
	assert.Equal(t, filepath.Join(dir, "logs"), cfg.Log.SessionDir)
	assert.True(t, cfg.Log.Debug)

	engine, err := cfg.EngineConfig()
	require.NoError(t, err)
	def := mfclassic.DefaultEngineConfig()
	assert.Equal(t, 250*time.Millisecond, engine.AuthTimeout)
	assert.Equal(t, def.ReadTimeout, engine.ReadTimeout)
	assert.Equal(t, time.Minute, engine.MaxWait)
	assert.Equal(t, 8, engine.SweptKeyLimit)
	assert.False(t, engine.VerifyPass)
	assert.Equal(t, def.ProbeMagic, engine.ProbeMagic)
}

func TestLoad_Empty(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "reader:\n  port: /dev/ttyUSB0\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, TransportUART, cfg.Reader.Transport)
	assert.Equal(t, filepath.Dir(path), cfg.Dump.Dir)
	assert.Empty(t, cfg.Dictionary.UserFile)

	engine, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, mfclassic.DefaultEngineConfig(), engine)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "unknown key",
			body:    "reader:\n  port: x\n  baud: 115200\n",
			wantErr: "field baud not found",
		},
		{
			name:    "bad transport",
			body:    "reader:\n  transport: usb\n  port: x\n",
			wantErr: "reader.transport",
		},
		{
			name:    "missing port",
			body:    "reader:\n  transport: spi\n",
			wantErr: "reader.port is required",
		},
		{
			name:    "passive retries range",
			body:    "reader:\n  port: x\n  passive_retries: 300\n",
			wantErr: "passive_retries",
		},
		{
			name:    "negative swept limit",
			body:    "reader:\n  port: x\nengine:\n  swept_key_limit: -1\n",
			wantErr: "swept_key_limit",
		},
		{
			name:    "bad duration",
			body:    "reader:\n  port: x\nengine:\n  auth_timeout: soon\n",
			wantErr: "parse config yaml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate_PCSCNeedsNoPort(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Reader.Transport = TransportPCSC
	require.NoError(t, cfg.Validate())

	cfg.Reader.Transport = TransportUART
	require.ErrorIs(t, cfg.Validate(), ErrInvalid)
}
