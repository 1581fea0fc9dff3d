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

// Package pcsc drives MIFARE Classic cards through a PC/SC reader that
// understands the ACR122-style pseudo APDUs (load key, general
// authenticate, read binary).
package pcsc

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ebfe/scard"

	"github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/internal/syncutil"
)

const (
	claReader = 0xFF

	insGetData      = 0xCA
	insLoadKey      = 0x82
	insAuthenticate = 0x86
	insReadBinary   = 0xB0

	// keySlot is the volatile key location used for every authentication.
	keySlot = 0x00
)

// Status words
var (
	swOK         = [2]byte{0x90, 0x00}
	swAuthFailed = [2]byte{0x63, 0x00}
)

// ErrNoReader is returned by Open when no PC/SC reader is attached.
var ErrNoReader = errors.New("no PC/SC reader found")

// Card is the part of *scard.Card the reader uses.
type Card interface {
	Transmit(cmd []byte) ([]byte, error)
	Status() (*scard.CardStatus, error)
	Reconnect(mode scard.ShareMode, proto scard.Protocol, disp scard.Disposition) error
}

// Reader is an mfclassic.Transport over a PC/SC reader.
//
// Thread Safety: calls are serialised; one engine drives a Reader at a time.
type Reader struct {
	card    Card
	ctx     *scard.Context
	connect func() (Card, error)
	name    string
	uid     []byte
	mu      syncutil.Mutex
	key     mfclassic.Key
	hasKey  bool
}

// Open establishes a PC/SC context and picks the reader whose name contains
// match, or the first reader when match is empty. The card connection is
// made by Detect.
func Open(match string) (*Reader, error) {
	sctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish PC/SC context: %w", err)
	}
	readers, err := sctx.ListReaders()
	if err != nil {
		_ = sctx.Release()
		return nil, fmt.Errorf("list readers: %w", err)
	}
	name := ""
	for _, r := range readers {
		if match == "" || bytes.Contains([]byte(r), []byte(match)) {
			name = r
			break
		}
	}
	if name == "" {
		_ = sctx.Release()
		return nil, ErrNoReader
	}

	r := &Reader{ctx: sctx, name: name}
	r.connect = func() (Card, error) {
		c, err := sctx.Connect(name, scard.ShareShared, scard.ProtocolAny)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	mfclassic.Debugf("pcsc: using reader %q", name)
	return r, nil
}

// NewWithCard wraps an already connected card.
func NewWithCard(card Card, name string) *Reader {
	return &Reader{card: card, name: name}
}

// Name returns the PC/SC reader name.
func (r *Reader) Name() string {
	return r.name
}

// Close disconnects the card and releases the context.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.card.(*scard.Card); ok {
		_ = c.Disconnect(scard.LeaveCard)
	}
	r.card = nil
	if r.ctx == nil {
		return nil
	}
	err := r.ctx.Release()
	r.ctx = nil
	if err != nil {
		return fmt.Errorf("release PC/SC context: %w", err)
	}
	return nil
}

// Detect connects to the card on the reader and identifies it from its UID
// and the PC/SC part 3 ATR.
func (r *Reader) Detect(ctx context.Context) (mfclassic.CardIdentity, error) {
	if err := ctx.Err(); err != nil {
		return mfclassic.CardIdentity{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.card == nil {
		if r.connect == nil {
			return mfclassic.CardIdentity{}, mfclassic.ErrNoTag
		}
		c, err := r.connect()
		if err != nil {
			if isCardGone(err) {
				return mfclassic.CardIdentity{}, mfclassic.ErrNoTag
			}
			return mfclassic.CardIdentity{}, fmt.Errorf("connect %s: %w", r.name, err)
		}
		r.card = c
	}

	uid, err := r.getUID()
	if err != nil {
		r.card = nil
		return mfclassic.CardIdentity{}, err
	}
	st, err := r.card.Status()
	if err != nil {
		return mfclassic.CardIdentity{}, fmt.Errorf("card status: %w", err)
	}
	id, err := identityFromATR(uid, st.Atr)
	if err != nil {
		return mfclassic.CardIdentity{}, err
	}
	r.uid = uid
	r.hasKey = false
	mfclassic.Debugf("pcsc: %s UID %X", id.Type().DisplayName(), uid)
	return id, nil
}

// Card names from the PC/SC part 3 supplemental document.
const (
	atrNameClassic1K uint16 = 0x0001
	atrNameClassic4K uint16 = 0x0002
	atrNameMini      uint16 = 0x0026
)

// identityFromATR maps the card name bytes of a contactless storage card
// ATR (3B 8F 80 01 80 4F 0C A0 00 00 03 06 SS NN NN ...) to the ATQA and
// SAK the card would have reported.
func identityFromATR(uid, atr []byte) (mfclassic.CardIdentity, error) {
	if len(atr) < 15 || atr[4] != 0x80 || atr[5] != 0x4F {
		return mfclassic.CardIdentity{}, fmt.Errorf("%w: ATR %X", mfclassic.ErrUnsupportedCard, atr)
	}
	id := mfclassic.CardIdentity{UID: uid}
	switch uint16(atr[13])<<8 | uint16(atr[14]) {
	case atrNameClassic1K:
		id.ATQA, id.SAK = 0x0004, 0x08
	case atrNameClassic4K:
		id.ATQA, id.SAK = 0x0002, 0x18
	case atrNameMini:
		id.ATQA, id.SAK = 0x0004, 0x09
	default:
		return mfclassic.CardIdentity{}, fmt.Errorf("%w: card name %02X%02X", mfclassic.ErrUnsupportedCard, atr[13], atr[14])
	}
	if len(uid) == 7 {
		id.ATQA |= 0x0040
	}
	return id, nil
}

func (r *Reader) getUID() ([]byte, error) {
	resp, err := r.transmit([]byte{claReader, insGetData, 0x00, 0x00, 0x00})
	if err != nil {
		return nil, err
	}
	data, sw := splitSW(resp)
	if sw != swOK || len(data) == 0 {
		return nil, fmt.Errorf("%w: get UID status %X", mfclassic.ErrNoTag, sw)
	}
	return data, nil
}

// AuthBlock loads key into the reader's volatile slot when it changed and
// authenticates block with it.
func (r *Reader) AuthBlock(ctx context.Context, block mfclassic.BlockIndex, kt mfclassic.KeyType, key mfclassic.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if block < 0 || block > 0xFF {
		return fmt.Errorf("%w: block %d", mfclassic.ErrInvalidParameter, block)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.card == nil {
		return mfclassic.ErrTagRemoved
	}

	if !r.hasKey || r.key != key {
		cmd := append([]byte{claReader, insLoadKey, 0x00, keySlot, mfclassic.KeySize}, key[:]...)
		resp, err := r.transmit(cmd)
		if err != nil {
			return err
		}
		if _, sw := splitSW(resp); sw != swOK {
			return fmt.Errorf("%w: load key status %X", mfclassic.ErrAuthFailed, sw)
		}
		r.key, r.hasKey = key, true
	}

	cmd := []byte{claReader, insAuthenticate, 0x00, 0x00, 0x05, 0x01, 0x00, byte(block), kt.AuthCommand(), keySlot}
	resp, err := r.transmit(cmd)
	if err != nil {
		return err
	}
	_, sw := splitSW(resp)
	switch sw {
	case swOK:
		return nil
	case swAuthFailed:
		return fmt.Errorf("%w: block %d key %s", mfclassic.ErrAuthFailed, block, kt)
	default:
		return fmt.Errorf("%w: block %d status %X", mfclassic.ErrAuthFailed, block, sw)
	}
}

// ReadBlock reads one block of the authenticated sector.
func (r *Reader) ReadBlock(ctx context.Context, block mfclassic.BlockIndex) ([mfclassic.BlockSize]byte, error) {
	var out [mfclassic.BlockSize]byte
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if block < 0 || block > 0xFF {
		return out, fmt.Errorf("%w: block %d", mfclassic.ErrInvalidParameter, block)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.card == nil {
		return out, mfclassic.ErrTagRemoved
	}

	resp, err := r.transmit([]byte{claReader, insReadBinary, 0x00, byte(block), mfclassic.BlockSize})
	if err != nil {
		return out, err
	}
	data, sw := splitSW(resp)
	if sw != swOK || len(data) < mfclassic.BlockSize {
		return out, fmt.Errorf("%w: block %d status %X", mfclassic.ErrReadFailed, block, sw)
	}
	copy(out[:], data)
	return out, nil
}

// IsTagPresent reports whether the card with uid is still on the reader.
func (r *Reader) IsTagPresent(ctx context.Context, uid []byte) bool {
	if ctx.Err() != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.card == nil {
		return false
	}
	if err := r.reconnect(); err != nil {
		return false
	}
	got, err := r.getUID()
	return err == nil && bytes.Equal(got, uid)
}

// SelectTag resets the card connection, which makes the reader reactivate
// the card, and checks it is the one Detect saw.
func (r *Reader) SelectTag(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.card == nil {
		return mfclassic.ErrTagRemoved
	}
	if err := r.reconnect(); err != nil {
		return err
	}
	got, err := r.getUID()
	if err != nil || !bytes.Equal(got, r.uid) {
		return fmt.Errorf("%w: UID %X", mfclassic.ErrTagRemoved, got)
	}
	return nil
}

func (r *Reader) reconnect() error {
	r.hasKey = false
	if err := r.card.Reconnect(scard.ShareShared, scard.ProtocolAny, scard.ResetCard); err != nil {
		return classify(err)
	}
	return nil
}

func (r *Reader) transmit(cmd []byte) ([]byte, error) {
	resp, err := r.card.Transmit(cmd)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

func splitSW(resp []byte) (data []byte, sw [2]byte) {
	if len(resp) < 2 {
		return nil, sw
	}
	n := len(resp) - 2
	return resp[:n], [2]byte{resp[n], resp[n+1]}
}

func isCardGone(err error) bool {
	return errors.Is(err, scard.ErrRemovedCard) ||
		errors.Is(err, scard.ErrNoSmartcard) ||
		errors.Is(err, scard.ErrResetCard)
}

func classify(err error) error {
	if isCardGone(err) {
		return fmt.Errorf("%w: %w", mfclassic.ErrTagRemoved, err)
	}
	return fmt.Errorf("pcsc transmit: %w", err)
}

var (
	_ mfclassic.Transport = (*Reader)(nil)
	_ mfclassic.Detector  = (*Reader)(nil)
)
