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

package i2c

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	testutil "github.com/ZaparooProject/go-mfclassic/internal/testing"
	"github.com/ZaparooProject/go-mfclassic/pn532"
)

// simBus is an i2c.Bus whose PN532 is a VirtualPN532. Every read starts
// with the ready status byte, as on hardware.
type simBus struct {
	sim    *testutil.VirtualPN532
	txErr  error
	writes [][]byte
	mu     sync.Mutex
	addr   uint16
}

func newSimBus(sim *testutil.VirtualPN532) *simBus {
	return &simBus{sim: sim}
}

func (b *simBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addr = addr
	if b.txErr != nil {
		return b.txErr
	}
	if len(w) > 0 {
		b.writes = append(b.writes, append([]byte(nil), w...))
		if b.sim != nil {
			_, _ = b.sim.Write(w)
		}
	}
	if len(r) == 0 {
		return nil
	}
	clear(r)
	if b.sim == nil || !b.sim.Pending() {
		return nil
	}
	r[0] = pn532Ready
	if len(r) > 1 {
		_, _ = b.sim.Read(r[1:])
	}
	return nil
}

func (*simBus) SetSpeed(physic.Frequency) error { return nil }

func (*simBus) String() string { return "sim" }

func (b *simBus) writeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.writes)
}

func fastLink(bus *simBus) *Link {
	return NewFromBus(bus, "sim",
		WithACKTimeout(20*time.Millisecond),
		WithResponseTimeout(50*time.Millisecond))
}

func TestParseBusPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "/dev/i2c-1", want: "/dev/i2c-1"},
		{in: "/dev/i2c-1:0x24", want: "/dev/i2c-1"},
		{in: "1", want: "1"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseBusPath(tt.in))
		})
	}
}

func TestLink_SendCommand(t *testing.T) {
	t.Parallel()

	bus := newSimBus(testutil.NewVirtualPN532())
	link := fastLink(bus)

	resp, err := link.SendCommand(context.Background(), 0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x32, 0x01, 0x06, 0x07}, resp)
	assert.Equal(t, uint16(pn532Addr), bus.addr)
	// command frame and trailing ACK
	assert.Equal(t, 2, bus.writeCount())
}

func TestLink_CorruptResponseIsNACKed(t *testing.T) {
	t.Parallel()

	sim := testutil.NewVirtualPN532()
	sim.InjectChecksumError()
	bus := newSimBus(sim)
	link := fastLink(bus)

	resp, err := link.SendCommand(context.Background(), 0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), resp[0])
	// command, NACK, ACK
	assert.Equal(t, 3, bus.writeCount())
}

func TestLink_NoACK(t *testing.T) {
	t.Parallel()

	bus := newSimBus(nil)
	link := fastLink(bus)

	_, err := link.SendCommand(context.Background(), 0x02, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, pn532.ErrNoACK)
	assert.True(t, pn532.IsRetryable(err))
	assert.Equal(t, ackAttempts, bus.writeCount())
}

func TestLink_BusError(t *testing.T) {
	t.Parallel()

	busErr := errors.New("remote I/O error")
	bus := newSimBus(testutil.NewVirtualPN532())
	bus.txErr = busErr
	link := fastLink(bus)

	_, err := link.SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, busErr)

	var te *pn532.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "send", te.Op)
}

func TestLink_Cancelled(t *testing.T) {
	t.Parallel()

	t.Run("before send", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		bus := newSimBus(testutil.NewVirtualPN532())
		_, err := fastLink(bus).SendCommand(ctx, 0x02, nil)
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, bus.writeCount())
	})

	t.Run("while polling", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()

		link := NewFromBus(newSimBus(nil), "sim", WithACKTimeout(time.Second))
		_, err := link.SendCommand(ctx, 0x02, nil)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestLink_TooLarge(t *testing.T) {
	t.Parallel()

	_, err := fastLink(newSimBus(nil)).SendCommand(context.Background(), 0x40, make([]byte, 300))
	require.ErrorIs(t, err, pn532.ErrDataTooLarge)
	assert.True(t, pn532.IsFatal(err))
}

func TestLink_Close(t *testing.T) {
	t.Parallel()

	link := fastLink(newSimBus(testutil.NewVirtualPN532()))
	require.NoError(t, link.Close())
	require.NoError(t, link.Close())

	_, err := link.SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, pn532.ErrTransportClosed)
	assert.Equal(t, "i2c:sim", link.String())
}

func TestLink_ClassicOverI2C(t *testing.T) {
	t.Parallel()

	sim := testutil.NewVirtualPN532()
	card := testutil.NewVirtualClassic1K(testutil.TestClassic1KUID)
	sim.SetCard(card)

	dev, err := pn532.New(fastLink(newSimBus(sim)))
	require.NoError(t, err)
	ctx := context.Background()
	_, err = dev.Init(ctx)
	require.NoError(t, err)

	classic := pn532.NewClassic(dev)
	id, err := classic.Detect(ctx)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestClassic1KUID, id.UID)

	require.NoError(t, classic.AuthBlock(ctx, 3, 0, testutil.DefaultKey))
	_, err = classic.ReadBlock(ctx, 1)
	require.NoError(t, err)
}
