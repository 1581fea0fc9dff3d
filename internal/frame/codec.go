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

package frame

import (
	"errors"
	"fmt"
)

// Decoding errors
var (
	ErrIncomplete     = errors.New("frame incomplete")
	ErrLengthChecksum = errors.New("frame length checksum mismatch")
	ErrDataChecksum   = errors.New("frame data checksum mismatch")
	ErrEmpty          = errors.New("frame has no TFI")
	ErrTooLarge       = errors.New("frame data too large")
)

// Kind classifies a decoded frame.
type Kind int

// Frame kinds
const (
	KindData Kind = iota
	KindACK
	KindNACK
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindACK:
		return "ACK"
	case KindNACK:
		return "NACK"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is one decoded frame. Data excludes the TFI.
type Frame struct {
	Data []byte
	Kind Kind
	TFI  byte
}

// Encode builds an information frame carrying tfi followed by data. Bodies
// longer than a normal frame allows use the extended format.
func Encode(tfi byte, data []byte) ([]byte, error) {
	n := len(data) + 1
	if n > MaxFrameDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}

	out := make([]byte, 0, n+10)
	out = append(out, Preamble, StartCode1, StartCode2)
	if n <= MaxNormalDataLength {
		out = append(out, byte(n), Complement(byte(n)))
	} else {
		hi, lo := byte(n>>8), byte(n)
		out = append(out, extendedMarker, extendedMarker, hi, lo, Complement(hi, lo))
	}
	out = append(out, tfi)
	out = append(out, data...)
	out = append(out, Complement(append([]byte{tfi}, data...)...), Postamble)
	return out, nil
}

// EncodeCommand builds a host to PN532 frame for cmd and its arguments.
func EncodeCommand(cmd byte, args []byte) ([]byte, error) {
	return Encode(HostToPn532, append([]byte{cmd}, args...))
}

// Decode parses the first frame in buf and returns it with the number of
// bytes consumed. With ErrIncomplete, consumed counts leading garbage that
// can be dropped before more bytes arrive. With a checksum error, consumed
// covers the bad frame so the caller can NACK and continue.
func Decode(buf []byte) (f Frame, consumed int, err error) {
	start := findStart(buf)
	if start < 0 {
		// Keep a trailing 0x00 that may be the first start code byte.
		if n := len(buf); n > 0 && buf[n-1] == StartCode1 {
			return Frame{}, n - 1, ErrIncomplete
		}
		return Frame{}, len(buf), ErrIncomplete
	}
	off := start + 2
	if off+2 > len(buf) {
		return Frame{}, start, ErrIncomplete
	}

	switch {
	case buf[off] == 0x00 && buf[off+1] == 0xFF:
		return Frame{Kind: KindACK}, skipPostamble(buf, off+2), nil
	case buf[off] == 0xFF && buf[off+1] == 0x00:
		return Frame{Kind: KindNACK}, skipPostamble(buf, off+2), nil
	}

	var length, body int
	if buf[off] == extendedMarker && buf[off+1] == extendedMarker {
		if off+5 > len(buf) {
			return Frame{}, start, ErrIncomplete
		}
		hi, lo, lcs := buf[off+2], buf[off+3], buf[off+4]
		if hi+lo+lcs != 0 {
			return Frame{}, off + 5, ErrLengthChecksum
		}
		length = int(hi)<<8 | int(lo)
		body = off + 5
	} else {
		if !ValidLength(buf[off], buf[off+1]) {
			return Frame{}, off + 2, ErrLengthChecksum
		}
		length = int(buf[off])
		body = off + 2
	}
	if length == 0 {
		return Frame{}, body, ErrEmpty
	}
	end := body + length + 1
	if end > len(buf) {
		return Frame{}, start, ErrIncomplete
	}
	if !ValidChecksum(buf, body, end) {
		return Frame{}, skipPostamble(buf, end), ErrDataChecksum
	}

	f = Frame{TFI: buf[body], Data: append([]byte(nil), buf[body+1:end-1]...)}
	if f.TFI == ErrorTFI {
		f.Kind = KindError
	}
	return f, skipPostamble(buf, end), nil
}

func findStart(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == StartCode1 && buf[i+1] == StartCode2 {
			return i
		}
	}
	return -1
}

func skipPostamble(buf []byte, n int) int {
	if n < len(buf) && buf[n] == Postamble {
		return n + 1
	}
	return n
}
