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

// Package uart implements a PN532 link over a serial port in HSU mode.
package uart

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-mfclassic/internal/frame"
	"github.com/ZaparooProject/go-mfclassic/internal/syncutil"
	"github.com/ZaparooProject/go-mfclassic/pn532"
)

const (
	baudRate = 115200
	// maxNACKs bounds retransmission requests for one response.
	maxNACKs = 3
	// pollGap is the pause after a read that returned nothing.
	pollGap = time.Millisecond
)

// wakeSequence takes the PN532 out of power down: 0x55 followed by enough
// idle bytes to cover the oscillator start-up time.
var wakeSequence = []byte{
	0x55, 0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Link is a pn532.Link over a serial port.
type Link struct {
	port            serial.Port
	portName        string
	rx              []byte
	chunk           []byte
	mu              syncutil.Mutex
	ackTimeout      time.Duration
	responseTimeout time.Duration
	awake           bool
}

// Option configures a Link.
type Option func(*Link)

// WithACKTimeout bounds the wait for the ACK frame.
func WithACKTimeout(d time.Duration) Option {
	return func(l *Link) { l.ackTimeout = d }
}

// WithResponseTimeout bounds the wait for the response frame. Commands that
// wait for a card, such as InListPassiveTarget, need more than the default
// when passive activation retries are raised.
func WithResponseTimeout(d time.Duration) Option {
	return func(l *Link) { l.responseTimeout = d }
}

// readTimeout is the per-read serial timeout. Windows USB serial drivers
// need a longer one.
func readTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// Open opens portName at 115200 8N1.
func Open(portName string, opts ...Option) (*Link, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open UART port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set UART read timeout: %w", err)
	}
	return NewFromPort(port, portName, opts...), nil
}

// NewFromPort wraps an already open port.
func NewFromPort(port serial.Port, portName string, opts ...Option) *Link {
	l := &Link{
		port:            port,
		portName:        portName,
		chunk:           make([]byte, 64),
		ackTimeout:      100 * time.Millisecond,
		responseTimeout: 1500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Link) String() string {
	return "uart:" + l.portName
}

// Close closes the port.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	if err != nil {
		return fmt.Errorf("close UART port: %w", err)
	}
	return nil
}

// SendCommand writes cmd, waits for the ACK and returns the response body
// starting with the response code.
func (l *Link) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil, pn532.NewTransportError("send", l.portName, pn532.ErrTransportClosed, pn532.ErrorTypePermanent)
	}

	out, err := frame.EncodeCommand(cmd, args)
	if err != nil {
		return nil, pn532.NewTransportError("encode", l.portName,
			fmt.Errorf("%w: %w", pn532.ErrDataTooLarge, err), pn532.ErrorTypePermanent)
	}

	l.rx = l.rx[:0]
	if err := l.port.ResetInputBuffer(); err != nil {
		return nil, l.portError("reset", err)
	}
	if !l.awake {
		if err := l.write("wake", wakeSequence); err != nil {
			return nil, err
		}
		l.awake = true
	}
	if err := l.write("send", out); err != nil {
		return nil, err
	}

	early, err := l.waitAck(ctx)
	if err != nil {
		return nil, err
	}
	return l.receive(ctx, early)
}

// waitAck reads the ACK. Some firmware sends the response first; that
// frame is returned so receive does not wait for it again.
func (l *Link) waitAck(ctx context.Context) (*frame.Frame, error) {
	f, err := l.readFrame(ctx, l.ackTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.awake = false
		if errors.Is(err, pn532.ErrTransportTimeout) {
			return nil, pn532.NewNoACKError("waitAck", l.portName)
		}
		return nil, err
	}
	switch f.Kind {
	case frame.KindACK:
		return nil, nil
	case frame.KindNACK:
		return nil, pn532.NewTransportError("waitAck", l.portName, pn532.ErrNACKReceived, pn532.ErrorTypeTransient)
	case frame.KindData:
		return &f, nil
	default:
		return nil, pn532.NewInvalidResponseError("waitAck", l.portName)
	}
}

// receive reads the response frame, asking for retransmission when the
// checksum is bad.
func (l *Link) receive(ctx context.Context, early *frame.Frame) ([]byte, error) {
	nacks := 0
	for {
		var f frame.Frame
		if early != nil {
			f, early = *early, nil
		} else {
			var err error
			f, err = l.readFrame(ctx, l.responseTimeout)
			switch {
			case err == nil:
			case errors.Is(err, frame.ErrDataChecksum), errors.Is(err, frame.ErrLengthChecksum):
				if nacks++; nacks > maxNACKs {
					return nil, pn532.NewFrameCorruptedError("receive", l.portName)
				}
				if err := l.write("nack", frame.NackFrame); err != nil {
					return nil, err
				}
				continue
			default:
				return nil, err
			}
		}

		switch f.Kind {
		case frame.KindACK:
			continue
		case frame.KindError:
			return nil, pn532.NewInvalidResponseError("receive", l.portName)
		case frame.KindData:
		default:
			return nil, pn532.NewFrameCorruptedError("receive", l.portName)
		}
		if f.TFI != frame.Pn532ToHost || len(f.Data) == 0 {
			return nil, pn532.NewFrameCorruptedError("receive", l.portName)
		}
		// An ACK after the response is optional but clears the chip state.
		_ = l.write("ack", frame.AckFrame)
		return f.Data, nil
	}
}

// readFrame accumulates bytes until a whole frame decodes or timeout passes.
func (l *Link) readFrame(ctx context.Context, timeout time.Duration) (frame.Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		f, n, err := frame.Decode(l.rx)
		l.rx = l.rx[n:]
		if !errors.Is(err, frame.ErrIncomplete) {
			return f, err
		}

		if err := ctx.Err(); err != nil {
			return frame.Frame{}, err
		}
		if time.Now().After(deadline) {
			return frame.Frame{}, pn532.NewTimeoutError("read", l.portName)
		}
		got, err := l.port.Read(l.chunk)
		if err != nil {
			return frame.Frame{}, l.portError("read", err)
		}
		if got == 0 {
			time.Sleep(pollGap)
			continue
		}
		l.rx = append(l.rx, l.chunk[:got]...)
	}
}

func (l *Link) write(op string, data []byte) error {
	n, err := l.port.Write(data)
	if err != nil {
		return l.portError(op, err)
	}
	if n != len(data) {
		return pn532.NewTransportError(op, l.portName, pn532.ErrTransportWrite, pn532.ErrorTypeTransient)
	}
	return l.drain(op)
}

// drain waits for the output buffer to empty, retrying interrupted calls.
func (l *Link) drain(op string) error {
	const attempts = 3
	delay := 2 * time.Millisecond
	var err error
	for range attempts {
		if err = l.port.Drain(); err == nil || !isInterrupted(err) {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	if err != nil {
		return l.portError(op+" drain", err)
	}
	return nil
}

func isInterrupted(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "interrupted system call") || strings.Contains(s, "eintr")
}

func (l *Link) portError(op string, err error) error {
	typ := pn532.ErrorTypeTransient
	var pe *serial.PortError
	if pn532.IsFatal(err) || (errors.As(err, &pe) && pe.Code() == serial.PortClosed) {
		typ = pn532.ErrorTypePermanent
	}
	return pn532.NewTransportError(op, l.portName, err, typ)
}

var _ pn532.Link = (*Link)(nil)
