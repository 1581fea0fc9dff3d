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

package scan

import (
	"time"

	"github.com/ZaparooProject/go-mfclassic"
)

// State is the worker's position in a single read.
type State int

const (
	// StateIdle means Start has not been called.
	StateIdle State = iota
	// StateWaiting means the worker is polling for a card.
	StateWaiting
	// StateReading means a recovery pass is running.
	StateReading
	// StateTagAway means the pass is paused until the tag returns.
	StateTagAway
	// StateDone means the pass ended; Status.Report or Status.Err is set.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting for card"
	case StateReading:
		return "reading"
	case StateTagAway:
		return "tag away"
	case StateDone:
		return "done"
	default:
		return "idle"
	}
}

// Status is a copy of the worker's progress that is safe to keep.
type Status struct {
	Started    time.Time
	Err        error
	Report     *mfclassic.Report
	Card       mfclassic.CardIdentity
	Sector     mfclassic.SectorIndex
	FirstBlock mfclassic.BlockIndex
	Tried      int
	Total      int
	State      State
	KeyB       bool
	CacheMode  bool
}

// Elapsed returns how long the worker has been running.
func (s Status) Elapsed() time.Duration {
	if s.Started.IsZero() {
		return 0
	}
	return time.Since(s.Started)
}

func (s Status) clone() Status {
	s.Card.UID = append([]byte(nil), s.Card.UID...)
	return s
}
