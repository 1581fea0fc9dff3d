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
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-mfclassic"
)

// MIFARE Classic card commands
const (
	mfcRead  = 0x30
	mfcHalt  = 0x50
	gen1Wipe = 0x40
	gen1Open = 0x43
)

// Classic adapts a Device to the recovery engine. It implements
// mfclassic.Transport, mfclassic.Detector and mfclassic.MagicProber.
//
// Thread Safety: Classic is driven by one engine goroutine. The Device
// underneath serialises its own commands.
type Classic struct {
	dev      *Device
	uid      []byte
	target   byte
	backdoor bool
}

// NewClassic returns an adapter for dev. Detect must succeed before
// authentication so the adapter knows the UID to send.
func NewClassic(dev *Device) *Classic {
	return &Classic{dev: dev, target: defaultTarget}
}

// Device returns the wrapped device.
func (c *Classic) Device() *Device {
	return c.dev
}

// Detect lists one type A target and returns its identity.
func (c *Classic) Detect(ctx context.Context) (mfclassic.CardIdentity, error) {
	t, err := c.dev.ListPassiveTarget(ctx)
	if err != nil {
		if errors.Is(err, ErrNoTarget) {
			return mfclassic.CardIdentity{}, mfclassic.ErrNoTag
		}
		return mfclassic.CardIdentity{}, err
	}
	c.adopt(t)
	return mfclassic.CardIdentity{UID: append([]byte(nil), t.UID...), ATQA: t.ATQA, SAK: t.SAK}, nil
}

func (c *Classic) adopt(t Target) {
	c.uid = append(c.uid[:0], t.UID...)
	c.target = t.Number
	c.backdoor = false
}

// authUID is the four UID bytes the authentication command carries.
func (c *Classic) authUID() []byte {
	return mfclassic.CardIdentity{UID: c.uid}.AuthUID()
}

// AuthBlock authenticates the sector containing block. Authentication
// failures wrap mfclassic.ErrAuthFailed; a vanished card wraps
// mfclassic.ErrTagRemoved.
func (c *Classic) AuthBlock(ctx context.Context, block mfclassic.BlockIndex, kt mfclassic.KeyType, key mfclassic.Key) error {
	if len(c.uid) == 0 {
		return fmt.Errorf("%w: no card detected", mfclassic.ErrInvalidParameter)
	}
	if c.backdoor {
		// A real authentication needs a freshly selected card.
		if err := c.SelectTag(ctx); err != nil {
			return err
		}
	}

	cmd := make([]byte, 0, 2+mfclassic.KeySize+4)
	cmd = append(cmd, kt.AuthCommand(), byte(block))
	cmd = append(cmd, key[:]...)
	cmd = append(cmd, c.authUID()...)
	if _, err := c.dev.DataExchange(ctx, c.target, cmd); err != nil {
		return classify(err, mfclassic.ErrAuthFailed)
	}
	return nil
}

// ReadBlock reads one block from the authenticated sector, or through the
// backdoor when it is open.
func (c *Classic) ReadBlock(ctx context.Context, block mfclassic.BlockIndex) ([mfclassic.BlockSize]byte, error) {
	var out [mfclassic.BlockSize]byte
	var (
		resp []byte
		err  error
	)
	if c.backdoor {
		resp, err = c.dev.CommunicateThru(ctx, AppendCRCA([]byte{mfcRead, byte(block)}))
	} else {
		resp, err = c.dev.DataExchange(ctx, c.target, []byte{mfcRead, byte(block)})
	}
	if err != nil {
		return out, classify(err, mfclassic.ErrReadFailed)
	}
	if len(resp) < mfclassic.BlockSize {
		return out, fmt.Errorf("%w: block %d: %d bytes", mfclassic.ErrReadFailed, block, len(resp))
	}
	copy(out[:], resp)
	return out, nil
}

// IsTagPresent relists the field and compares UIDs. Success leaves the card
// selected.
func (c *Classic) IsTagPresent(ctx context.Context, uid []byte) bool {
	t, err := c.dev.ListPassiveTarget(ctx)
	if err != nil {
		return false
	}
	if !bytes.Equal(t.UID, uid) {
		mfclassic.Debugf("pn532: different tag %X in field", t.UID)
		return false
	}
	c.adopt(t)
	return true
}

// SelectTag wakes and selects the card again.
func (c *Classic) SelectTag(ctx context.Context) error {
	t, err := c.dev.ListPassiveTarget(ctx)
	if err != nil {
		if errors.Is(err, ErrNoTarget) {
			return fmt.Errorf("select: %w", mfclassic.ErrTagRemoved)
		}
		return err
	}
	if len(c.uid) > 0 && !bytes.Equal(t.UID, c.uid) {
		return fmt.Errorf("select: %w: UID changed to %X", mfclassic.ErrTagRemoved, t.UID)
	}
	c.adopt(t)
	return nil
}

// ProbeMagic halts the card and sends the Gen1 unlock sequence. When the
// card acknowledges both steps its blocks are readable without
// authentication until the next select.
func (c *Classic) ProbeMagic(ctx context.Context) (bool, error) {
	// HLTA never answers when it succeeds.
	_, _ = c.dev.CommunicateThru(ctx, AppendCRCA([]byte{mfcHalt, 0x00}))

	if !c.gen1Step(ctx, gen1Wipe) || !c.gen1Step(ctx, gen1Open) {
		if err := c.SelectTag(ctx); err != nil {
			return false, err
		}
		return false, nil
	}
	c.backdoor = true
	return true, nil
}

// gen1Step sends one unlock command. Genuine cards stay silent after HLTA,
// so any answer at all counts as acknowledgement.
func (c *Classic) gen1Step(ctx context.Context, b byte) bool {
	_, err := c.dev.CommunicateThru(ctx, []byte{b})
	return err == nil
}

// classify maps PN532 errors onto the recovery taxonomy. fallback is used
// for card-level errors that are not a removal.
func classify(err error, fallback error) error {
	var pe *Error
	if errors.As(err, &pe) {
		if pe.IsTargetGone() {
			return fmt.Errorf("%w: %w", mfclassic.ErrTagRemoved, err)
		}
		return fmt.Errorf("%w: %w", fallback, err)
	}
	if errors.Is(err, context.Canceled) || IsFatal(err) {
		return err
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
