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
	"time"
)

// Engine timing defaults
const (
	// DefaultAuthTimeout bounds one dictionary authentication attempt.
	DefaultAuthTimeout = 120 * time.Millisecond
	// DefaultReadTimeout bounds one block read.
	DefaultReadTimeout = 250 * time.Millisecond
	// DefaultPresenceTimeout bounds one presence probe. It is longer than an
	// auth attempt because a misaligned tag answers slowly.
	DefaultPresenceTimeout = 300 * time.Millisecond
	// DefaultSelectTimeout bounds a reselect.
	DefaultSelectTimeout = 500 * time.Millisecond
	// DefaultPollInterval is the wait between presence probes while the tag
	// is away.
	DefaultPollInterval = 150 * time.Millisecond
	// DefaultSweptKeyLimit caps how many distinct keys per type are swept.
	DefaultSweptKeyLimit = 32
)

// EngineConfig tunes a recovery pass.
type EngineConfig struct {
	AuthTimeout     time.Duration
	ReadTimeout     time.Duration
	PresenceTimeout time.Duration
	SelectTimeout   time.Duration
	PollInterval    time.Duration
	// MaxWait bounds the total time spent waiting for a removed tag. Zero
	// waits until cancelled.
	MaxWait time.Duration
	// SweptKeyLimit caps the per-type swept key list.
	SweptKeyLimit int
	// VerifyPass enables the cache completion pass after recovery.
	VerifyPass bool
	// ProbeMagic enables the Gen1 backdoor probe when the transport has one.
	ProbeMagic bool
}

// DefaultEngineConfig returns the standard timing and feature set.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		AuthTimeout:     DefaultAuthTimeout,
		ReadTimeout:     DefaultReadTimeout,
		PresenceTimeout: DefaultPresenceTimeout,
		SelectTimeout:   DefaultSelectTimeout,
		PollInterval:    DefaultPollInterval,
		SweptKeyLimit:   DefaultSweptKeyLimit,
		VerifyPass:      true,
		ProbeMagic:      true,
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *EngineConfig) Validate() error {
	if c.AuthTimeout <= 0 || c.ReadTimeout <= 0 || c.PresenceTimeout <= 0 || c.SelectTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidParameter)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidParameter)
	}
	if c.SweptKeyLimit < 1 {
		return fmt.Errorf("%w: swept key limit must be at least 1", ErrInvalidParameter)
	}
	return nil
}
