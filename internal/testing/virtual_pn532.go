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

// Package testing provides a simulated PN532 with a MIFARE Classic card in
// its field. VirtualPN532 answers commands either directly through Process
// or at the wire level as an io.ReadWriter speaking the PN532 frame
// protocol; SimulatorLink adapts it to the command-level link interface.
package testing

import (
	"bytes"
	"errors"

	"github.com/ZaparooProject/go-mfclassic/internal/frame"
	"github.com/ZaparooProject/go-mfclassic/internal/syncutil"
)

// PN532 command codes handled by the simulator
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSAMConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInCommunicateThru   = 0x42
	cmdInDeselect          = 0x44
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
	cmdInSelect            = 0x54
)

// PN532 status bytes produced by the simulator
const (
	statusOK            = 0x00
	statusTimeout       = 0x01
	statusAuth          = 0x14
	statusNotAcceptable = 0x27
)

// ErrUnknownCommand is returned by Process for commands the simulator does
// not implement.
var ErrUnknownCommand = errors.New("simulator: unknown command")

// CommandLogEntry records one command the simulator processed.
type CommandLogEntry struct {
	Args []byte
	Cmd  byte
}

// VirtualPN532 simulates a PN532 in initiator mode with at most one
// MIFARE Classic card in its field.
//
// Thread Safety: all methods are safe for concurrent use.
type VirtualPN532 struct {
	card          *VirtualClassic
	lastResponse  []byte
	log           []CommandLogEntry
	rx            bytes.Buffer
	tx            bytes.Buffer
	mu            syncutil.Mutex
	firmware      [4]byte
	samConfigured bool
	fieldOn       bool
	corruptNext   bool
	dropNextACK   bool
}

// NewVirtualPN532 returns a simulator reporting PN532 firmware 1.6 with an
// empty field.
func NewVirtualPN532() *VirtualPN532 {
	return &VirtualPN532{firmware: [4]byte{0x32, 0x01, 0x06, 0x07}}
}

// SetCard places card in the field, replacing any previous one. A nil card
// empties the field.
func (v *VirtualPN532) SetCard(card *VirtualClassic) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.card = card
}

// Card returns the card in the field.
func (v *VirtualPN532) Card() *VirtualClassic {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.card
}

// SetFirmwareVersion changes the GetFirmwareVersion answer.
func (v *VirtualPN532) SetFirmwareVersion(ic, ver, rev, support byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.firmware = [4]byte{ic, ver, rev, support}
}

// SAMConfigured reports whether SAMConfiguration was received.
func (v *VirtualPN532) SAMConfigured() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.samConfigured
}

// InjectChecksumError corrupts the data checksum of the next wire response.
// A NACK afterwards retransmits the intact frame.
func (v *VirtualPN532) InjectChecksumError() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.corruptNext = true
}

// DropNextACK suppresses the ACK frame for the next wire command.
func (v *VirtualPN532) DropNextACK() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropNextACK = true
}

// CommandCount returns how many times cmd was processed.
func (v *VirtualPN532) CommandCount(cmd byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, e := range v.log {
		if e.Cmd == cmd {
			n++
		}
	}
	return n
}

// Commands returns a copy of the command log.
func (v *VirtualPN532) Commands() []CommandLogEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]CommandLogEntry(nil), v.log...)
}

// Process executes one command and returns the response starting with the
// response code (cmd+1).
func (v *VirtualPN532) Process(cmd byte, args []byte) ([]byte, error) {
	v.mu.Lock()
	v.log = append(v.log, CommandLogEntry{Cmd: cmd, Args: append([]byte(nil), args...)})
	card := v.card
	v.mu.Unlock()

	var body []byte
	switch cmd {
	case cmdGetFirmwareVersion:
		v.mu.Lock()
		body = v.firmware[:]
		v.mu.Unlock()
	case cmdSAMConfiguration:
		if len(args) < 1 || args[0] != 0x01 {
			return nil, ErrUnknownCommand
		}
		v.mu.Lock()
		v.samConfigured = true
		v.mu.Unlock()
	case cmdRFConfiguration:
		if len(args) >= 2 && args[0] == 0x01 {
			v.mu.Lock()
			v.fieldOn = args[1]&0x01 != 0
			v.mu.Unlock()
		}
	case cmdInListPassiveTarget:
		body = listTarget(card)
	case cmdInDataExchange:
		body = dataExchange(card, args)
	case cmdInCommunicateThru:
		body = communicateThru(card, args)
	case cmdInSelect:
		body = []byte{statusOK}
		if card == nil || !card.Wake() {
			body[0] = statusTimeout
		}
	case cmdInRelease, cmdInDeselect:
		if card != nil {
			card.Release()
		}
		body = []byte{statusOK}
	default:
		return nil, ErrUnknownCommand
	}
	return append([]byte{cmd + 1}, body...), nil
}

func listTarget(card *VirtualClassic) []byte {
	if card == nil || !card.Wake() {
		return []byte{0x00}
	}
	uid := card.UID()
	atqa := card.ATQA()
	out := []byte{0x01, 0x01, byte(atqa >> 8), byte(atqa), card.SAK(), byte(len(uid))}
	return append(out, uid...)
}

func dataExchange(card *VirtualClassic, args []byte) []byte {
	if len(args) < 2 {
		return []byte{statusNotAcceptable}
	}
	data := args[1:]
	if card == nil || !card.Selected() {
		return []byte{statusTimeout}
	}
	switch data[0] {
	case mfcAuthA, mfcAuthB:
		if len(data) < 12 {
			return []byte{statusNotAcceptable}
		}
		var key [6]byte
		copy(key[:], data[2:8])
		if !card.Authenticate(data[0], data[1], key, data[8:12]) {
			return []byte{statusAuth}
		}
		return []byte{statusOK}
	case mfcRead:
		if len(data) < 2 {
			return []byte{statusNotAcceptable}
		}
		blk, ok := card.Read(data[1])
		if !ok {
			return []byte{statusTimeout}
		}
		return append([]byte{statusOK}, blk[:]...)
	}
	return []byte{statusNotAcceptable}
}

func communicateThru(card *VirtualClassic, args []byte) []byte {
	if card == nil || len(args) == 0 {
		return []byte{statusTimeout}
	}
	resp, ok := card.Raw(args)
	if !ok {
		return []byte{statusTimeout}
	}
	return append([]byte{statusOK}, resp...)
}

// Write accepts host bytes. Complete frames are acknowledged and answered
// into the read buffer; a NACK repeats the last response.
func (v *VirtualPN532) Write(data []byte) (int, error) {
	v.mu.Lock()
	v.rx.Write(data)
	v.mu.Unlock()

	for {
		v.mu.Lock()
		f, consumed, err := frame.Decode(v.rx.Bytes())
		if errors.Is(err, frame.ErrIncomplete) {
			v.rx.Next(consumed)
			v.mu.Unlock()
			return len(data), nil
		}
		v.rx.Next(consumed)
		if err != nil {
			v.mu.Unlock()
			continue
		}
		if f.Kind == frame.KindNACK {
			v.tx.Write(v.lastResponse)
			v.mu.Unlock()
			continue
		}
		if f.Kind != frame.KindData || f.TFI != frame.HostToPn532 || len(f.Data) == 0 {
			v.mu.Unlock()
			continue
		}
		if !v.dropNextACK {
			v.tx.Write(frame.AckFrame)
		}
		v.dropNextACK = false
		v.mu.Unlock()

		v.respond(f.Data[0], f.Data[1:])
	}
}

func (v *VirtualPN532) respond(cmd byte, args []byte) {
	resp, err := v.Process(cmd, args)
	var out []byte
	if err != nil {
		out, _ = frame.Encode(frame.ErrorTFI, nil)
	} else {
		out, err = frame.Encode(frame.Pn532ToHost, resp)
		if err != nil {
			out, _ = frame.Encode(frame.ErrorTFI, nil)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastResponse = out
	if v.corruptNext && len(out) > 2 {
		v.corruptNext = false
		bad := append([]byte(nil), out...)
		bad[len(bad)-2] ^= 0xFF
		v.tx.Write(bad)
		return
	}
	v.tx.Write(out)
}

// Read drains pending response bytes. It returns 0, nil when nothing is
// waiting.
func (v *VirtualPN532) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.tx.Len() == 0 {
		return 0, nil
	}
	n, _ := v.tx.Read(buf)
	return n, nil
}

// Pending reports whether response bytes are waiting to be read.
func (v *VirtualPN532) Pending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tx.Len() > 0
}
