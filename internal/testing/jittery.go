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

package testing

import (
	"io"
	"math/rand/v2"
	"time"
)

// usbPacketSize is the bulk packet size of common USB serial bridges.
const usbPacketSize = 64

// JitterConfig controls how a JitteryConnection distorts reads.
type JitterConfig struct {
	MaxLatency time.Duration
	// FragmentMinBytes is the smallest fragment returned when
	// FragmentReads is set.
	FragmentMinBytes int
	Seed             uint64
	FragmentReads    bool
	// PacketBoundaries stops reads at 64-byte packet edges.
	PacketBoundaries bool
}

// DefaultJitterConfig fragments every read down to single bytes with up to
// 2ms of latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       2 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryConnection wraps an io.ReadWriter and delivers reads late and in
// pieces, the way USB serial bridges do. Writes pass straight through.
// Bytes read from the backend are buffered, never dropped.
type JitteryConnection struct {
	backend io.ReadWriter
	rng     *rand.Rand
	pending []byte
	config  JitterConfig
	offset  int
}

// NewJitteryConnection wraps backend. A zero Seed picks a random one.
func NewJitteryConnection(backend io.ReadWriter, config JitterConfig) *JitteryConnection {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryConnection{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)), //nolint:gosec // test jitter
	}
}

// Write forwards data unchanged.
func (j *JitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // pass-through
}

// Read returns a prefix of the buffered backend data after a random delay.
func (j *JitteryConnection) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	if len(j.pending) == 0 {
		tmp := make([]byte, 512)
		n, err := j.backend.Read(tmp)
		if err != nil {
			return 0, err //nolint:wrapcheck // pass-through
		}
		j.pending = append(j.pending, tmp[:n]...)
	}
	n := min(len(j.pending), len(buf))
	if n == 0 {
		return 0, nil
	}

	if j.config.PacketBoundaries {
		if edge := usbPacketSize - j.offset%usbPacketSize; edge < n {
			n = edge
		}
	}
	if j.config.FragmentReads && n > j.config.FragmentMinBytes {
		n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.pending[:n])
	j.pending = j.pending[n:]
	j.offset += n
	return n, nil
}

// Buffered returns the number of backend bytes not yet delivered.
func (j *JitteryConnection) Buffered() int {
	return len(j.pending)
}
