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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEngineConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultEngineConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 120*time.Millisecond, cfg.AuthTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.ReadTimeout)
	assert.Greater(t, cfg.PresenceTimeout, cfg.AuthTimeout)
	assert.Equal(t, 32, cfg.SweptKeyLimit)
	assert.True(t, cfg.VerifyPass)
	assert.True(t, cfg.ProbeMagic)
	assert.Zero(t, cfg.MaxWait)
}

func TestEngineConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mutate func(*EngineConfig)
		name   string
	}{
		{name: "auth timeout", mutate: func(c *EngineConfig) { c.AuthTimeout = 0 }},
		{name: "read timeout", mutate: func(c *EngineConfig) { c.ReadTimeout = -time.Second }},
		{name: "presence timeout", mutate: func(c *EngineConfig) { c.PresenceTimeout = 0 }},
		{name: "select timeout", mutate: func(c *EngineConfig) { c.SelectTimeout = 0 }},
		{name: "poll interval", mutate: func(c *EngineConfig) { c.PollInterval = 0 }},
		{name: "swept keys", mutate: func(c *EngineConfig) { c.SweptKeyLimit = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultEngineConfig()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidParameter)
		})
	}
}
