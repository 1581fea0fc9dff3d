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

package enrich

import (
	"encoding/binary"
	"errors"
)

// TLV types of an NFC Forum data area.
const (
	tlvNull       = 0x00
	tlvNDEF       = 0x03
	tlvTerminator = 0xFE
)

var (
	errTLVTruncated = errors.New("TLV truncated")
	errNoNDEFTLV    = errors.New("no NDEF TLV")
)

// findNDEF walks the TLVs in data and returns the NDEF message bytes.
func findNDEF(data []byte) ([]byte, error) {
	for off := 0; off < len(data); {
		switch data[off] {
		case tlvNull:
			off++
			continue
		case tlvTerminator:
			return nil, errNoNDEFTLV
		}

		length, header, err := tlvLength(data, off)
		if err != nil {
			return nil, err
		}
		start := off + header
		if data[off] == tlvNDEF {
			if length == 0 || start+length > len(data) {
				return nil, errTLVTruncated
			}
			return data[start : start+length], nil
		}
		// Lock control, memory control and proprietary TLVs are skipped.
		off = start + length
	}
	return nil, errNoNDEFTLV
}

// tlvLength decodes the one or three byte length field of the TLV at off.
func tlvLength(data []byte, off int) (length, header int, err error) {
	if off+1 >= len(data) {
		return 0, 0, errTLVTruncated
	}
	if data[off+1] != 0xFF {
		return int(data[off+1]), 2, nil
	}
	if off+3 >= len(data) {
		return 0, 0, errTLVTruncated
	}
	return int(binary.BigEndian.Uint16(data[off+2 : off+4])), 4, nil
}
