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

// Package spi implements a PN532 link over SPI using periph.io.
//
// The PN532 shifts bytes LSB first while most SPI controllers only do MSB
// first, so every byte is bit reversed on the way in and out.
package spi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-mfclassic/internal/frame"
	"github.com/ZaparooProject/go-mfclassic/internal/syncutil"
	"github.com/ZaparooProject/go-mfclassic/pn532"
)

const (
	spiDataWrite  = 0x01
	spiStatusRead = 0x02
	spiDataRead   = 0x03
	spiReady      = 0x01

	defaultFreq = 1 * physic.MegaHertz
	mode        = spi.Mode0

	maxFrameRead = frame.MaxFrameDataLength + 8
	maxNACKs     = 3
)

// Link is a pn532.Link over SPI.
type Link struct {
	conn            spi.Conn
	port            spi.PortCloser
	portName        string
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

// Open initialises the periph host drivers, opens portName (for example
// "/dev/spidev0.0") and wakes the chip.
func Open(portName string, opts ...Option) (*Link, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialize periph host: %w", err)
	}
	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("open SPI port %s: %w", portName, err)
	}
	c, err := port.Connect(defaultFreq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("connect SPI %s: %w", portName, err)
	}
	l := NewFromConn(c, portName, opts...)
	l.port = port
	l.wakeup()
	return l, nil
}

// NewFromConn uses an already connected SPI device. Close does not close
// its port.
func NewFromConn(c spi.Conn, portName string, opts ...Option) *Link {
	l := &Link{
		conn:            c,
		portName:        portName,
		ackTimeout:      100 * time.Millisecond,
		responseTimeout: 1500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// wakeup toggles chip select with a dummy byte.
func (l *Link) wakeup() {
	time.Sleep(time.Millisecond)
	_ = l.conn.Tx([]byte{0x00}, nil)
	time.Sleep(time.Millisecond)
}

func (l *Link) String() string {
	return "spi:" + l.portName
}

// Close releases the port opened by Open.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = nil
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	if err != nil {
		return fmt.Errorf("close SPI port: %w", err)
	}
	return nil
}

func reverseBit(b byte) byte {
	var r byte
	for range 8 {
		r <<= 1
		r |= b & 1
		b >>= 1
	}
	return r
}

func reverseBytes(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = reverseBit(b)
	}
	return out
}

// SendCommand writes cmd and returns the response body starting with the
// response code.
func (l *Link) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil, pn532.NewTransportError("send", l.portName, pn532.ErrTransportClosed, pn532.ErrorTypePermanent)
	}

	out, err := frame.EncodeCommand(cmd, args)
	if err != nil {
		return nil, pn532.NewTransportError("encode", l.portName,
			fmt.Errorf("%w: %w", pn532.ErrDataTooLarge, err), pn532.ErrorTypePermanent)
	}
	if err := l.write("send", out); err != nil {
		return nil, err
	}
	if err := l.waitAck(ctx); err != nil {
		return nil, err
	}
	return l.receive(ctx)
}

func (l *Link) write(op string, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reverseBit(spiDataWrite))
	w = append(w, reverseBytes(data)...)
	if err := l.conn.Tx(w, nil); err != nil {
		return pn532.NewTransportError(op, l.portName, fmt.Errorf("%w: %w", pn532.ErrTransportWrite, err),
			pn532.ErrorTypeTransient)
	}
	return nil
}

// read clocks len(buf) bytes out of the chip after a data read command.
func (l *Link) read(op string, buf []byte) error {
	w := make([]byte, len(buf)+1)
	w[0] = reverseBit(spiDataRead)
	r := make([]byte, len(w))
	if err := l.conn.Tx(w, r); err != nil {
		return pn532.NewTransportError(op, l.portName, fmt.Errorf("%w: %w", pn532.ErrTransportRead, err),
			pn532.ErrorTypeTransient)
	}
	for i, b := range r[1:] {
		buf[i] = reverseBit(b)
	}
	return nil
}

func (l *Link) waitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	w := []byte{reverseBit(spiStatusRead), 0x00}
	r := make([]byte, 2)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.conn.Tx(w, r); err != nil {
			return pn532.NewTransportError("status", l.portName, err, pn532.ErrorTypeTransient)
		}
		if reverseBit(r[1]) == spiReady {
			return nil
		}
		if time.Now().After(deadline) {
			return pn532.NewTimeoutError("status", l.portName)
		}
		if err := sleepCtx(ctx, 2*time.Millisecond); err != nil {
			return err
		}
	}
}

func (l *Link) waitAck(ctx context.Context) error {
	if err := l.waitReady(ctx, l.ackTimeout); err != nil {
		if errors.Is(err, pn532.ErrTransportTimeout) {
			return pn532.NewNoACKError("waitAck", l.portName)
		}
		return err
	}
	buf := make([]byte, len(frame.AckFrame))
	if err := l.read("waitAck", buf); err != nil {
		return err
	}
	f, _, err := frame.Decode(buf)
	switch {
	case err != nil:
		return pn532.NewNoACKError("waitAck", l.portName)
	case f.Kind == frame.KindNACK:
		return pn532.NewTransportError("waitAck", l.portName, pn532.ErrNACKReceived, pn532.ErrorTypeTransient)
	case f.Kind != frame.KindACK:
		return pn532.NewInvalidResponseError("waitAck", l.portName)
	}
	return nil
}

func (l *Link) receive(ctx context.Context) ([]byte, error) {
	buf := make([]byte, maxFrameRead)
	for nacks := 0; ; nacks++ {
		if err := l.waitReady(ctx, l.responseTimeout); err != nil {
			return nil, err
		}
		if err := l.read("receive", buf); err != nil {
			return nil, err
		}
		f, _, err := frame.Decode(buf)
		switch {
		case err == nil:
		case errors.Is(err, frame.ErrDataChecksum), errors.Is(err, frame.ErrLengthChecksum):
			if nacks >= maxNACKs {
				return nil, pn532.NewTransportError("receive", l.portName, pn532.ErrChecksumMismatch,
					pn532.ErrorTypeTransient)
			}
			if err := l.write("nack", frame.NackFrame); err != nil {
				return nil, err
			}
			continue
		default:
			return nil, pn532.NewFrameCorruptedError("receive", l.portName)
		}

		if f.Kind == frame.KindError {
			return nil, pn532.NewInvalidResponseError("receive", l.portName)
		}
		if f.Kind != frame.KindData || f.TFI != frame.Pn532ToHost || len(f.Data) == 0 {
			return nil, pn532.NewFrameCorruptedError("receive", l.portName)
		}
		_ = l.write("ack", frame.AckFrame)
		return f.Data, nil
	}
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
