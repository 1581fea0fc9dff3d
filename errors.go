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

import (
	"context"
	"errors"
)

// Recovery errors. Transport adapters wrap the first three so the engine can
// classify failures without looking at wire-level details.
var (
	ErrAuthFailed            = errors.New("authentication failed")
	ErrReadFailed            = errors.New("block read failed")
	ErrTagRemoved            = errors.New("tag removed")
	ErrDictionaryUnavailable = errors.New("dictionary unavailable")
	ErrOutOfMemory           = errors.New("cache allocation exceeds memory limit")
	ErrCancelled             = errors.New("recovery cancelled")
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrUnsupportedCard       = errors.New("unsupported card type")
	ErrNoTag                 = errors.New("no tag detected")
)

// SectorResult is the outcome for one sector after a pass.
type SectorResult int

// Sector outcomes
const (
	// SectorFailed means no key was found.
	SectorFailed SectorResult = iota
	// SectorPartiallySolved means one key is known or some blocks could not be read.
	SectorPartiallySolved
	// SectorSolved means both keys and every block are known.
	SectorSolved
)

func (r SectorResult) String() string {
	switch r {
	case SectorSolved:
		return "solved"
	case SectorPartiallySolved:
		return "partial"
	default:
		return "failed"
	}
}

// PassResult is the outcome of a whole recovery pass.
type PassResult int

// Pass outcomes
const (
	PassCompleted PassResult = iota
	PassCancelled
	PassOutOfMemory
)

func (r PassResult) String() string {
	switch r {
	case PassCancelled:
		return "cancelled"
	case PassOutOfMemory:
		return "out of memory"
	default:
		return "completed"
	}
}

// Classify maps an arbitrary transport error onto the recovery taxonomy.
// Errors already in the taxonomy are returned unchanged; context errors
// become ErrCancelled; anything else is treated as an authentication
// failure, which the engine answers by moving to the next candidate.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCancelled),
		errors.Is(err, ErrTagRemoved),
		errors.Is(err, ErrNoTag),
		errors.Is(err, ErrReadFailed),
		errors.Is(err, ErrAuthFailed),
		errors.Is(err, ErrOutOfMemory),
		errors.Is(err, ErrDictionaryUnavailable):
		return err
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	default:
		return ErrAuthFailed
	}
}

// IsTagGone reports whether err says the tag left the field.
func IsTagGone(err error) bool {
	return errors.Is(err, ErrTagRemoved) || errors.Is(err, ErrNoTag)
}
