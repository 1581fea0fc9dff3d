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
	"context"
	"errors"

	"github.com/ZaparooProject/go-mfclassic/internal/syncutil"
)

// ErrLinkClosed is returned by a SimulatorLink after Close.
var ErrLinkClosed = errors.New("simulator link closed")

// SimulatorLink drives a VirtualPN532 at the command level, skipping frame
// encoding. It satisfies the pn532 Link interface.
type SimulatorLink struct {
	sim    *VirtualPN532
	faults []error
	mu     syncutil.Mutex
	sent   int
	closed bool
}

// NewSimulatorLink returns a link to sim.
func NewSimulatorLink(sim *VirtualPN532) *SimulatorLink {
	return &SimulatorLink{sim: sim}
}

// Simulator returns the simulated chip for test setup.
func (l *SimulatorLink) Simulator() *VirtualPN532 {
	return l.sim
}

// FailNext queues errors returned by the next SendCommand calls, one per
// call, before the simulator is consulted.
func (l *SimulatorLink) FailNext(errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults = append(l.faults, errs...)
}

// Sent returns the number of SendCommand calls, failed ones included.
func (l *SimulatorLink) Sent() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent
}

// SendCommand processes cmd on the simulator.
func (l *SimulatorLink) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.sent++
	if l.closed {
		l.mu.Unlock()
		return nil, ErrLinkClosed
	}
	if len(l.faults) > 0 {
		err := l.faults[0]
		l.faults = l.faults[1:]
		l.mu.Unlock()
		return nil, err
	}
	l.mu.Unlock()
	return l.sim.Process(cmd, args)
}

// Close marks the link closed.
func (l *SimulatorLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
