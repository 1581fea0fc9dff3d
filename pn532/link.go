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

// Package pn532 drives an NXP PN532 reader and adapts it to the
// mfclassic.Transport contract.
package pn532

import "context"

// Link carries one PN532 command and its response over a physical bus.
// Implementations handle framing, ACK and checksums. The response starts
// with the response code (command + 1).
//
// Thread Safety: a Link is used by one Device at a time. Devices serialise
// their own calls.
type Link interface {
	SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error)
	Close() error
}
