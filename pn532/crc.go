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

// CRCA computes the ISO14443-A CRC over data and returns it low byte
// first, as it goes on the wire.
func CRCA(data []byte) [2]byte {
	crc := uint16(0x6363)
	for _, d := range data {
		for range 8 {
			mix := (crc ^ uint16(d)) & 0x0001
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8408
			}
			d >>= 1
		}
	}
	return [2]byte{byte(crc), byte(crc >> 8)}
}

// AppendCRCA returns data followed by its CRC_A.
func AppendCRCA(data []byte) []byte {
	crc := CRCA(data)
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, crc[0], crc[1])
}
