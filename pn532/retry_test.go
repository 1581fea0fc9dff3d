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

package pn532

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetryConfig(t *testing.T) {
	t.Parallel()

	config := DefaultRetryConfig()
	assert.Positive(t, config.MaxAttempts)
	assert.Greater(t, config.MaxBackoff, config.InitialBackoff)
	assert.Greater(t, config.BackoffMultiplier, 1.0)
	assert.GreaterOrEqual(t, config.Jitter, 0.0)
	assert.LessOrEqual(t, config.Jitter, 1.0)
	assert.Positive(t, config.RetryTimeout)
}

func TestJittered(t *testing.T) {
	t.Parallel()

	base := 10 * time.Millisecond
	assert.Equal(t, base, jittered(base, 0))
	for range 50 {
		d := jittered(base, 0.5)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+base/2)
	}
}

func TestRetryWithConfig(t *testing.T) {
	t.Parallel()

	errPermanent := errors.New("permanent")
	tests := []struct {
		name      string
		errs      []error
		attempts  int
		wantCalls int
		wantErr   error
	}{
		{name: "first try", errs: nil, attempts: 3, wantCalls: 1},
		{name: "success after retries", errs: []error{ErrNoACK, ErrFrameCorrupted}, attempts: 3, wantCalls: 3},
		{name: "exhausted", errs: []error{ErrNoACK, ErrNoACK, ErrNoACK}, attempts: 3, wantCalls: 3, wantErr: ErrNoACK},
		{name: "non retryable", errs: []error{errPermanent}, attempts: 3, wantCalls: 1, wantErr: errPermanent},
		{name: "status errors not retried", errs: []error{&Error{Code: StatusTimeout}}, attempts: 3, wantCalls: 1},
		{name: "retry disabled", errs: []error{ErrNoACK}, attempts: 0, wantCalls: 1, wantErr: ErrNoACK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := fastRetry()
			cfg.MaxAttempts = tt.attempts
			calls := 0
			err := RetryWithConfig(context.Background(), cfg, func() error {
				calls++
				if calls <= len(tt.errs) {
					return tt.errs[calls-1]
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.name == "status errors not retried":
				var pe *Error
				require.ErrorAs(t, err, &pe)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestRetryWithConfig_ContextCancellation(t *testing.T) {
	t.Parallel()

	cfg := &RetryConfig{
		MaxAttempts:       10,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	start := time.Now()
	err := RetryWithConfig(ctx, cfg, func() error {
		calls++
		return ErrNoACK
	})
	require.ErrorIs(t, err, ErrNoACK)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
