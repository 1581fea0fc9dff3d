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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-mfclassic"
	testutil "github.com/ZaparooProject/go-mfclassic/internal/testing"
)

func newSimClassic(t *testing.T, card *testutil.VirtualClassic) *Classic {
	t.Helper()
	dev, _ := newSimDevice(t, card)
	return NewClassic(dev)
}

func TestClassicDetect(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualClassic4K(nil)
	c := newSimClassic(t, card)

	id, err := c.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, card.UID(), id.UID)
	assert.Equal(t, mfclassic.CardType4K, id.Type())

	empty := newSimClassic(t, nil)
	_, err = empty.Detect(context.Background())
	require.ErrorIs(t, err, mfclassic.ErrNoTag)
}

func TestClassicAuthBlock(t *testing.T) {
	t.Parallel()

	secret := mfclassic.Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
	tests := []struct {
		wantErr error
		name    string
		key     mfclassic.Key
		kt      mfclassic.KeyType
		remove  bool
	}{
		{name: "key A", kt: mfclassic.KeyA, key: secret},
		{name: "key B default", kt: mfclassic.KeyB, key: mfclassic.Key(testutil.DefaultKey)},
		{name: "wrong key", kt: mfclassic.KeyA, key: mfclassic.Key(testutil.DefaultKey), wantErr: mfclassic.ErrAuthFailed},
		{name: "card gone", kt: mfclassic.KeyA, key: secret, remove: true, wantErr: mfclassic.ErrAuthFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			card := testutil.NewVirtualClassic1K(nil)
			card.SetSectorKeys(3, secret, testutil.DefaultKey)
			c := newSimClassic(t, card)
			ctx := context.Background()
			_, err := c.Detect(ctx)
			require.NoError(t, err)
			if tt.remove {
				card.SetPresent(false)
			}

			err = c.AuthBlock(ctx, 13, tt.kt, tt.key)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestClassicAuthBlockNeedsDetect(t *testing.T) {
	t.Parallel()

	c := newSimClassic(t, testutil.NewVirtualClassic1K(nil))
	err := c.AuthBlock(context.Background(), 1, mfclassic.KeyA, mfclassic.Key(testutil.DefaultKey))
	require.ErrorIs(t, err, mfclassic.ErrInvalidParameter)
}

func TestClassicAuthSevenByteUID(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualClassic4K(nil)
	c := newSimClassic(t, card)
	ctx := context.Background()
	_, err := c.Detect(ctx)
	require.NoError(t, err)

	// Sector 35 starts at block 176; auth uses the last four UID bytes.
	require.NoError(t, c.AuthBlock(ctx, 177, mfclassic.KeyA, mfclassic.Key(testutil.DefaultKey)))
	data, err := c.ReadBlock(ctx, 191)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x07, 0x80, 0x69}, data[6:10])
}

func TestClassicReadBlock(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualClassic1K(nil)
	want := [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	card.SetBlock(5, want)
	card.FailRead(6)
	c := newSimClassic(t, card)
	ctx := context.Background()
	_, err := c.Detect(ctx)
	require.NoError(t, err)
	require.NoError(t, c.AuthBlock(ctx, 5, mfclassic.KeyA, mfclassic.Key(testutil.DefaultKey)))

	got, err := c.ReadBlock(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = c.ReadBlock(ctx, 6)
	require.ErrorIs(t, err, mfclassic.ErrReadFailed)

	_, err = c.ReadBlock(ctx, 0)
	require.ErrorIs(t, err, mfclassic.ErrReadFailed)
}

func TestClassicPresence(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualClassic1K(nil)
	c := newSimClassic(t, card)
	ctx := context.Background()

	assert.True(t, c.IsTagPresent(ctx, card.UID()))
	assert.True(t, card.Selected())
	assert.False(t, c.IsTagPresent(ctx, []byte{1, 2, 3, 4}))

	card.SetPresent(false)
	assert.False(t, c.IsTagPresent(ctx, card.UID()))
	require.ErrorIs(t, c.SelectTag(ctx), mfclassic.ErrTagRemoved)

	card.SetPresent(true)
	require.NoError(t, c.SelectTag(ctx))
}

func TestClassicSelectRejectsOtherCard(t *testing.T) {
	t.Parallel()

	sim := testutil.NewVirtualPN532()
	sim.SetCard(testutil.NewVirtualClassic1K(nil))
	dev, err := New(testutil.NewSimulatorLink(sim), WithRetryConfig(fastRetry()))
	require.NoError(t, err)
	c := NewClassic(dev)
	ctx := context.Background()
	_, err = c.Detect(ctx)
	require.NoError(t, err)

	sim.SetCard(testutil.NewVirtualClassic1K([]byte{9, 9, 9, 9}))
	require.ErrorIs(t, c.SelectTag(ctx), mfclassic.ErrTagRemoved)
}

func TestClassicProbeMagic(t *testing.T) {
	t.Parallel()

	t.Run("gen1 card", func(t *testing.T) {
		t.Parallel()
		card := testutil.NewVirtualClassic1K(nil)
		card.SetMagic(true)
		secret := [6]byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC}
		card.SetSectorKeys(4, secret, secret)
		c := newSimClassic(t, card)
		ctx := context.Background()
		_, err := c.Detect(ctx)
		require.NoError(t, err)

		ok, err := c.ProbeMagic(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		// Trailer readable without auth, key A included.
		data, err := c.ReadBlock(ctx, 19)
		require.NoError(t, err)
		assert.Equal(t, secret[:], data[0:6])

		// A real authentication reselects and closes the backdoor.
		require.NoError(t, c.AuthBlock(ctx, 1, mfclassic.KeyA, mfclassic.Key(testutil.DefaultKey)))
		_, err = c.ReadBlock(ctx, 19)
		require.ErrorIs(t, err, mfclassic.ErrReadFailed)
	})

	t.Run("genuine card", func(t *testing.T) {
		t.Parallel()
		card := testutil.NewVirtualClassic1K(nil)
		c := newSimClassic(t, card)
		ctx := context.Background()
		_, err := c.Detect(ctx)
		require.NoError(t, err)

		ok, err := c.ProbeMagic(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, card.Selected(), "card is reselected after a failed probe")
	})
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want error
		name string
	}{
		{name: "auth status", err: &Error{Code: StatusAuth}, want: mfclassic.ErrAuthFailed},
		{name: "card disappeared", err: &Error{Code: StatusCardDisappeared}, want: mfclassic.ErrTagRemoved},
		{name: "target released", err: &Error{Code: StatusTargetReleased}, want: mfclassic.ErrTagRemoved},
		{name: "link timeout", err: NewTimeoutError("read", "sim"), want: mfclassic.ErrAuthFailed},
		{name: "cancelled", err: context.Canceled, want: context.Canceled},
		{name: "reader gone", err: ErrDeviceNotFound, want: ErrDeviceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.ErrorIs(t, classify(tt.err, mfclassic.ErrAuthFailed), tt.want)
		})
	}
}

func TestClassicSatisfiesEngineInterfaces(t *testing.T) {
	t.Parallel()

	var c any = &Classic{}
	_, ok := c.(mfclassic.Transport)
	assert.True(t, ok)
	_, ok = c.(mfclassic.Detector)
	assert.True(t, ok)
	_, ok = c.(mfclassic.MagicProber)
	assert.True(t, ok)
}
