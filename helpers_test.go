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
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/ZaparooProject/go-mfclassic/internal/testing"
)

// cardTransport drives a VirtualClassic directly, the way a reader adapter
// would after anticollision.
type cardTransport struct {
	card     *testutil.VirtualClassic
	backdoor bool
}

func (t *cardTransport) Detect(ctx context.Context) (CardIdentity, error) {
	if err := ctx.Err(); err != nil {
		return CardIdentity{}, err
	}
	if !t.card.Wake() {
		return CardIdentity{}, ErrNoTag
	}
	return CardIdentity{UID: t.card.UID(), ATQA: t.card.ATQA(), SAK: t.card.SAK()}, nil
}

func (t *cardTransport) AuthBlock(ctx context.Context, block BlockIndex, kt KeyType, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.card.Present() {
		return ErrTagRemoved
	}
	if t.backdoor {
		t.card.Wake()
		t.backdoor = false
	}
	uid := t.card.UID()
	if len(uid) > 4 {
		uid = uid[len(uid)-4:]
	}
	if !t.card.Authenticate(kt.AuthCommand(), byte(block), key, uid) {
		return ErrAuthFailed
	}
	return nil
}

func (t *cardTransport) ReadBlock(ctx context.Context, block BlockIndex) ([BlockSize]byte, error) {
	if err := ctx.Err(); err != nil {
		return [BlockSize]byte{}, err
	}
	if !t.card.Present() {
		return [BlockSize]byte{}, ErrTagRemoved
	}
	data, ok := t.card.Read(byte(block))
	if !ok {
		return data, ErrReadFailed
	}
	return data, nil
}

func (t *cardTransport) IsTagPresent(_ context.Context, uid []byte) bool {
	t.backdoor = false
	return bytes.Equal(uid, t.card.UID()) && t.card.Wake()
}

func (t *cardTransport) SelectTag(context.Context) error {
	t.backdoor = false
	if !t.card.Wake() {
		return ErrTagRemoved
	}
	return nil
}

// magicTransport adds the Gen1 backdoor probe.
type magicTransport struct {
	cardTransport
}

func (t *magicTransport) ProbeMagic(context.Context) (bool, error) {
	t.card.Raw([]byte{0x50, 0x00})
	if _, ok := t.card.Raw([]byte{0x40}); !ok {
		t.card.Wake()
		return false, nil
	}
	if _, ok := t.card.Raw([]byte{0x43}); !ok {
		t.card.Wake()
		return false, nil
	}
	t.backdoor = true
	return true, nil
}

// fastConfig keeps tag-away polling short.
func fastConfig() *EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.PollInterval = 2 * time.Millisecond
	cfg.AuthTimeout = time.Second
	cfg.ReadTimeout = time.Second
	return cfg
}

// testKeys is a small stand-in for the compiled-in dictionary.
var testKeys = []Key{
	{0x11, 0x11, 0x11, 0x11, 0x11, 0x11},
	{0x22, 0x22, 0x22, 0x22, 0x22, 0x22},
}

func newTestEngine(t *testing.T, tr Transport, opts ...DictionaryOption) *Engine {
	t.Helper()
	dict := NewDictionary(append([]DictionaryOption{WithEmbeddedKeys(testKeys)}, opts...)...)
	e, err := NewEngine(tr, dict, WithConfig(fastConfig()))
	require.NoError(t, err)
	return e
}

func key(b ...byte) Key {
	var k Key
	copy(k[:], b)
	return k
}

func repeatKey(b byte) Key {
	return Key{b, b, b, b, b, b}
}

// recordingHooks captures callbacks. It is safe for concurrent use so tests
// can read it while a pass runs.
type recordingHooks struct {
	NopHooks
	cancelAt func() bool
	phases   []SectorIndex
	paused   []bool
	cache    []bool
	progress int
	mu       sync.Mutex
}

func (h *recordingHooks) OnPhase(s SectorIndex, _ BlockIndex, _ bool, _ int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phases = append(h.phases, s)
}

func (h *recordingHooks) OnPaused(p bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = append(h.paused, p)
}

func (h *recordingHooks) OnCacheMode(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache = append(h.cache, on)
}

func (h *recordingHooks) OnProgress(int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.progress++
}

func (h *recordingHooks) ShouldCancel() bool {
	return h.cancelAt != nil && h.cancelAt()
}
