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
	"errors"
	"fmt"
	"io"
	"runtime"
	"syscall"
)

// Error categories
var (
	// Transport errors, usually retryable
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrTransportWrite    = errors.New("transport write failed")
	ErrTransportRead     = errors.New("transport read failed")
	ErrTransportClosed   = errors.New("transport is closed")
	ErrTransportNotReady = errors.New("transport not ready")

	// Communication errors
	ErrNoACK            = errors.New("no ACK received")
	ErrNACKReceived     = errors.New("NACK received")
	ErrFrameCorrupted   = errors.New("frame corrupted")
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// Device errors
	ErrDeviceNotFound  = errors.New("device not found")
	ErrInvalidResponse = errors.New("invalid response format")
	ErrDataTooLarge    = errors.New("data too large")
	ErrNoTarget        = errors.New("no target in field")
)

// ErrorType categorises transport errors for the retry loop.
type ErrorType int

const (
	// ErrorTypeTransient may succeed when retried.
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent will not succeed when retried.
	ErrorTypePermanent
	// ErrorTypeTimeout is a transient error caused by a deadline.
	ErrorTypeTimeout
)

// TransportError wraps link level errors with the operation and port.
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error, retryable unless permanent.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a timeout error for link operations.
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewNoACKError creates a "no ACK received" error.
func NewNoACKError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrNoACK, ErrorTypeTimeout)
}

// NewFrameCorruptedError creates a frame corruption error.
func NewFrameCorruptedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrFrameCorrupted, ErrorTypeTransient)
}

// NewInvalidResponseError creates a permanent invalid response error.
func NewInvalidResponseError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrInvalidResponse, ErrorTypePermanent)
}

// Status codes returned in the first byte after the response code of
// InDataExchange and InCommunicateThru.
const (
	StatusOK                 byte = 0x00
	StatusTimeout            byte = 0x01
	StatusCRC                byte = 0x02
	StatusParity             byte = 0x03
	StatusMifareFraming      byte = 0x05
	StatusAuth               byte = 0x14
	StatusTargetReleased     byte = 0x29
	StatusCardDisappeared    byte = 0x2B
	StatusCommandUnsupported byte = 0x81
)

// Error is a non-zero status reported by the PN532.
type Error struct {
	Command string
	Code    byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error 0x%02X (%s)", e.Command, e.Code, statusMeaning(e.Code))
}

// IsAuth reports a MIFARE authentication failure.
func (e *Error) IsAuth() bool { return e.Code == StatusAuth }

// IsTimeout reports that the target did not answer.
func (e *Error) IsTimeout() bool { return e.Code == StatusTimeout }

// IsTargetGone reports that the target left the field or was released.
func (e *Error) IsTargetGone() bool {
	return e.Code == StatusCardDisappeared || e.Code == StatusTargetReleased
}

func statusMeaning(code byte) string {
	meanings := map[byte]string{
		0x00: "success",
		0x01: "timeout",
		0x02: "CRC error",
		0x03: "parity error",
		0x04: "erroneous bit count during anti-collision",
		0x05: "framing error during mifare operation",
		0x06: "abnormal bit collision",
		0x07: "communication buffer size insufficient",
		0x09: "RF buffer overflow",
		0x0A: "RF field not activated in time",
		0x0B: "RF protocol error",
		0x0D: "overheating",
		0x0E: "internal buffer overflow",
		0x10: "invalid parameter",
		0x13: "dataformat does not match",
		0x14: "authentication error",
		0x23: "UID check byte is wrong",
		0x25: "DEP invalid state",
		0x26: "operation not allowed",
		0x27: "wrong context for command",
		0x29: "target released by initiator",
		0x2A: "card ID mismatch",
		0x2B: "card disappeared",
		0x2D: "over-current event",
		0x81: "command not supported",
	}
	if m, ok := meanings[code]; ok {
		return m
	}
	return "unknown error"
}

// IsRetryable reports whether a command can be retried after err. PN532
// status errors are answers from the card and are never retried here.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrNoACK),
		errors.Is(err, ErrFrameCorrupted),
		errors.Is(err, ErrChecksumMismatch):
		return true
	default:
		return false
	}
}

// IsFatal reports that the reader itself is gone and polling should stop.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypePermanent {
		return true
	}
	if isDeviceGoneError(err) {
		return true
	}
	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows errnos for unplugged USB serial adapters.
const (
	errAccessDenied syscall.Errno = 5
	errGenFailure   syscall.Errno = 31
	errNoSuchDevice syscall.Errno = 433
)

func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	//nolint:exhaustive // only device-gone errnos matter
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}
	if runtime.GOOS == "windows" {
		//nolint:exhaustive // only device-gone errnos matter
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}
	return false
}
