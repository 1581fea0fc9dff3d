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

// Package i2c implements a PN532 link over an I2C bus using periph.io.
package i2c

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/internal/frame"
	"github.com/ZaparooProject/go-mfclassic/internal/syncutil"
	"github.com/ZaparooProject/go-mfclassic/pn532"
)

const (
	// pn532Addr is the 7-bit address; the datasheet's 0x48 includes the
	// R/W bit.
	pn532Addr = 0x24

	pn532Ready   = 0x01
	maxClockFreq = 400 * physic.KiloHertz

	// maxFrameRead covers the largest frame plus framing bytes. Every read
	// transaction restarts at the beginning of the chip's output buffer, so
	// a frame must be read in one go.
	maxFrameRead = frame.MaxFrameDataLength + 8

	ackAttempts = 3
	maxNACKs    = 3
)

// Link is a pn532.Link over I2C.
type Link struct {
	dev             conn.Conn
	bus             i2c.BusCloser
	busName         string
	mu              syncutil.Mutex
	ackTimeout      time.Duration
	responseTimeout time.Duration
}

// Option configures a Link.
type Option func(*Link)

// WithACKTimeout bounds the wait for the ACK frame.
func WithACKTimeout(d time.Duration) Option {
	return func(l *Link) { l.ackTimeout = d }
}

// WithResponseTimeout bounds the wait for the response frame.
func WithResponseTimeout(d time.Duration) Option {
	return func(l *Link) { l.responseTimeout = d }
}

// parseBusPath strips an address suffix such as ":0x24" from path.
func parseBusPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// Open initialises the periph host drivers and opens busName, for example
// "/dev/i2c-1" or "1".
func Open(busName string, opts ...Option) (*Link, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialize periph host: %w", err)
	}
	bus, err := i2creg.Open(parseBusPath(busName))
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %s: %w", busName, err)
	}
	if err := bus.SetSpeed(maxClockFreq); err != nil {
		mfclassic.Debugf("i2c: %s keeps default speed: %v", busName, err)
	}
	l := NewFromBus(bus, busName, opts...)
	l.bus = bus
	return l, nil
}

// NewFromBus talks to the PN532 on an already open bus. Close does not
// close a bus passed here.
func NewFromBus(bus i2c.Bus, busName string, opts ...Option) *Link {
	l := &Link{
		dev:             &i2c.Dev{Addr: pn532Addr, Bus: bus},
		busName:         busName,
		ackTimeout:      100 * time.Millisecond,
		responseTimeout: 1500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Link) String() string {
	return "i2c:" + l.busName
}

// Close releases the bus opened by Open.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dev = nil
	if l.bus == nil {
		return nil
	}
	err := l.bus.Close()
	l.bus = nil
	if err != nil {
		return fmt.Errorf("close I2C bus: %w", err)
	}
	return nil
}

// SendCommand writes cmd and returns the response body starting with the
// response code. A missing ACK resends the frame.
func (l *Link) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dev == nil {
		return nil, pn532.NewTransportError("send", l.busName, pn532.ErrTransportClosed, pn532.ErrorTypePermanent)
	}

	out, err := frame.EncodeCommand(cmd, args)
	if err != nil {
		return nil, pn532.NewTransportError("encode", l.busName,
			fmt.Errorf("%w: %w", pn532.ErrDataTooLarge, err), pn532.ErrorTypePermanent)
	}

	if err := l.sendWithACK(ctx, out); err != nil {
		return nil, err
	}
	return l.receive(ctx)
}

func (l *Link) sendWithACK(ctx context.Context, out []byte) error {
	var lastErr error
	for attempt := range ackAttempts {
		if err := l.tx("send", out, nil); err != nil {
			return err
		}
		err := l.waitAck(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pn532.ErrNoACK) {
			return err
		}
		lastErr = err
		if attempt < ackAttempts-1 {
			if err := sleepCtx(ctx, time.Duration(attempt+1)*5*time.Millisecond); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func (l *Link) waitAck(ctx context.Context) error {
	if err := l.waitReady(ctx, l.ackTimeout); err != nil {
		if errors.Is(err, pn532.ErrTransportTimeout) {
			return pn532.NewNoACKError("waitAck", l.busName)
		}
		return err
	}
	buf := make([]byte, len(frame.AckFrame))
	if err := l.read(buf); err != nil {
		return err
	}
	f, _, err := frame.Decode(buf)
	if err != nil || f.Kind != frame.KindACK {
		return pn532.NewNoACKError("waitAck", l.busName)
	}
	return nil
}

func (l *Link) receive(ctx context.Context) ([]byte, error) {
	buf := make([]byte, maxFrameRead)
	for nacks := 0; ; nacks++ {
		if err := l.waitReady(ctx, l.responseTimeout); err != nil {
			return nil, err
		}
		if err := l.read(buf); err != nil {
			return nil, err
		}
		f, _, err := frame.Decode(buf)
		switch {
		case err == nil:
		case errors.Is(err, frame.ErrDataChecksum), errors.Is(err, frame.ErrLengthChecksum):
			if nacks >= maxNACKs {
				return nil, pn532.NewFrameCorruptedError("receive", l.busName)
			}
			if err := l.tx("nack", frame.NackFrame, nil); err != nil {
				return nil, err
			}
			continue
		default:
			return nil, pn532.NewFrameCorruptedError("receive", l.busName)
		}

		if f.Kind == frame.KindError {
			return nil, pn532.NewInvalidResponseError("receive", l.busName)
		}
		if f.Kind != frame.KindData || f.TFI != frame.Pn532ToHost || len(f.Data) == 0 {
			return nil, pn532.NewFrameCorruptedError("receive", l.busName)
		}
		_ = l.tx("ack", frame.AckFrame, nil)
		return f.Data, nil
	}
}

// waitReady polls the status byte until the chip has data for us.
func (l *Link) waitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	status := make([]byte, 1)
	delay := time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.tx("ready", nil, status); err == nil && status[0] == pn532Ready {
			return nil
		}
		if time.Now().After(deadline) {
			return pn532.NewTimeoutError("ready", l.busName)
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, 8*time.Millisecond)
	}
}

// read fills buf from the chip, dropping the leading status byte every
// read transaction carries.
func (l *Link) read(buf []byte) error {
	tmp := make([]byte, len(buf)+1)
	if err := l.tx("read", nil, tmp); err != nil {
		return err
	}
	if tmp[0] != pn532Ready {
		return pn532.NewTransportError("read", l.busName, pn532.ErrTransportNotReady, pn532.ErrorTypeTransient)
	}
	copy(buf, tmp[1:])
	return nil
}

func (l *Link) tx(op string, w, r []byte) error {
	if err := l.dev.Tx(w, r); err != nil {
		typ := pn532.ErrorTypeTransient
		if pn532.IsFatal(err) {
			typ = pn532.ErrorTypePermanent
		}
		return pn532.NewTransportError(op, l.busName, err, typ)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ pn532.Link = (*Link)(nil)
