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

package mfclassic

import "context"

// Transport is the card-facing contract the recovery engine needs. Every call
// blocks until the reader answers or ctx expires. Implementations must not
// panic on card errors; they return errors wrapping ErrAuthFailed,
// ErrReadFailed or ErrTagRemoved where they can tell the difference.
//
// A single Transport is driven by one engine goroutine. Sharing the
// underlying bus with other users is the implementation's concern.
type Transport interface {
	// AuthBlock runs MIFARE authentication for the sector containing block.
	AuthBlock(ctx context.Context, block BlockIndex, kt KeyType, key Key) error
	// ReadBlock reads one 16-byte block of the authenticated sector.
	ReadBlock(ctx context.Context, block BlockIndex) ([BlockSize]byte, error)
	// IsTagPresent probes for the tag with the given UID. A true result
	// leaves that tag selected and ready for a fresh authentication.
	IsTagPresent(ctx context.Context, uid []byte) bool
	// SelectTag reselects the current tag, waking it from HALT.
	SelectTag(ctx context.Context) error
}

// Detector is implemented by transports that can find a card in the field.
type Detector interface {
	Detect(ctx context.Context) (CardIdentity, error)
}

// MagicProber is implemented by transports that can check for the Gen1
// unlock backdoor. ProbeMagic must leave the tag selected afterwards.
type MagicProber interface {
	ProbeMagic(ctx context.Context) (bool, error)
}
