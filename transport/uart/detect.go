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

package uart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/pn532"
)

// AutoPort is the port name that asks for detection instead of a fixed
// device.
const AutoPort = "auto"

// ErrNoReaderFound is returned when no serial port answers as a PN532.
var ErrNoReaderFound = errors.New("no PN532 found on any serial port")

const probeTimeout = 2 * time.Second

// USB serial bridges commonly soldered onto PN532 boards.
var knownBridges = map[string]string{
	"067B:2303": "Prolific PL2303",
	"0403:6001": "FTDI FT232",
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "QinHeng CH340",
}

var productKeywords = []string{"pn532", "nfc", "rfid", "13.56"}

// listPorts is replaced in tests.
var listPorts = enumerator.GetDetailedPortsList

// Candidate is a USB serial port that may host a PN532.
type Candidate struct {
	Path    string
	VIDPID  string
	Product string
	// Likely is set for known bridge chips and NFC product strings.
	Likely bool
}

// Candidates lists USB serial ports, likely readers first. Paths in ignore
// are skipped.
func Candidates(ignore ...string) ([]Candidate, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	skip := make(map[string]bool, len(ignore))
	for _, p := range ignore {
		skip[p] = true
	}

	var out []Candidate
	for _, p := range ports {
		if p == nil || !p.IsUSB || skip[p.Name] {
			continue
		}
		c := Candidate{
			Path:    p.Name,
			VIDPID:  strings.ToUpper(p.VID + ":" + p.PID),
			Product: p.Product,
		}
		c.Likely = isLikelyReader(c)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Likely && !out[j].Likely
	})
	return out, nil
}

func isLikelyReader(c Candidate) bool {
	if _, ok := knownBridges[c.VIDPID]; ok {
		return true
	}
	product := strings.ToLower(c.Product)
	for _, kw := range productKeywords {
		if strings.Contains(product, kw) {
			return true
		}
	}
	return false
}

// Find opens each candidate port in turn and returns the first link whose
// chip answers GetFirmwareVersion. Each port is probed once; a port that
// does not answer is closed and skipped.
func Find(ctx context.Context, opts ...Option) (*Link, error) {
	candidates, err := Candidates()
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		link, err := Open(c.Path, opts...)
		if err != nil {
			mfclassic.Debugf("uart: skip %s: %v", c.Path, err)
			continue
		}
		if probe(ctx, link) {
			mfclassic.Debugf("uart: PN532 found on %s (%s)", c.Path, c.VIDPID)
			return link, nil
		}
		_ = link.Close()
	}
	return nil, ErrNoReaderFound
}

func probe(ctx context.Context, link *Link) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	dev, err := pn532.New(link, pn532.WithRetryConfig(&pn532.RetryConfig{MaxAttempts: 1}))
	if err != nil {
		return false
	}
	_, err = dev.FirmwareVersion(ctx)
	return err == nil
}
