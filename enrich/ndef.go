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

// Package enrich holds mfclassic.Enricher implementations that describe
// recovered card contents.
package enrich

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hsanjuan/go-ndef"

	"github.com/ZaparooProject/go-mfclassic"
)

// maxSummaryLen caps the text of a record summary.
const maxSummaryLen = 64

// NDEF finds an NDEF message in the sectors the MAD assigns to it, or in
// any data sector when the card has no MAD, and summarises its first
// record.
type NDEF struct{}

// TryParse implements mfclassic.Enricher.
func (NDEF) TryParse(view *mfclassic.Snapshot) (string, bool) {
	if view == nil {
		return "", false
	}
	msg, ok := findMessage(view)
	if !ok {
		return "", false
	}
	return describe(msg)
}

// findMessage tries each candidate sector as the start of the TLV area,
// joining the data blocks of the sectors that follow it so a message may
// span sectors.
func findMessage(view *mfclassic.Snapshot) ([]byte, bool) {
	sectors, fromMAD := madNDEFSectors(view)
	if !fromMAD {
		sectors = dataSectors(view.Type)
	}

	for i := range sectors {
		var area []byte
		for _, s := range sectors[i:] {
			data, _ := view.SectorData(s)
			area = append(area, data...)
		}
		raw, err := findNDEF(area)
		if err == nil {
			mfclassic.Debugf("enrich: NDEF message of %d bytes at sector %d", len(raw), sectors[i])
			return raw, true
		}
		if fromMAD {
			// The MAD is authoritative about where the area starts.
			return nil, false
		}
	}
	return nil, false
}

func describe(raw []byte) (string, bool) {
	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(raw); err != nil {
		mfclassic.Debugf("enrich: NDEF message did not decode: %v", err)
		return "", false
	}
	if len(msg.Records) == 0 {
		return "", false
	}
	line := "NDEF: " + recordSummary(msg.Records[0])
	if more := len(msg.Records) - 1; more > 0 {
		line += fmt.Sprintf(" (+%d more)", more)
	}
	return line, true
}

func recordSummary(rec *ndef.Record) string {
	var payload []byte
	if p, err := rec.Payload(); err == nil {
		payload = p.Marshal()
	}

	switch rec.TNF() {
	case ndef.NFCForumWellKnownType:
		switch rec.Type() {
		case "T":
			if text, ok := textPayload(payload); ok {
				return "Text: " + clip(text)
			}
		case "U":
			if uri, ok := uriPayload(payload); ok {
				return "URI: " + clip(uri)
			}
		case "Sp":
			return "Smart Poster"
		}
		return "Well-known: " + rec.Type()
	case ndef.MediaType:
		return fmt.Sprintf("Media: %s (%d bytes)", rec.Type(), len(payload))
	case ndef.AbsoluteURI:
		return "URI: " + clip(rec.Type())
	case ndef.NFCForumExternalType:
		return "External: " + rec.Type()
	case ndef.Empty:
		return "Empty record"
	default:
		return fmt.Sprintf("TNF %d", rec.TNF())
	}
}

// textPayload decodes an RTD Text payload: status byte, language code,
// text.
func textPayload(p []byte) (string, bool) {
	if len(p) < 1 {
		return "", false
	}
	langLen := int(p[0] & 0x3F)
	if len(p) < 1+langLen {
		return "", false
	}
	return string(p[1+langLen:]), true
}

// uriPrefixes are the RTD URI abbreviation codes.
var uriPrefixes = [...]string{
	"", "http://www.", "https://www.", "http://", "https://", "tel:",
	"mailto:", "ftp://anonymous:anonymous@", "ftp://ftp.", "ftps://",
	"sftp://", "smb://", "nfs://", "ftp://", "dav://", "news:",
	"telnet://", "imap:", "rtsp://", "urn:", "pop:", "sip:", "sips:",
	"tftp:", "btspp://", "btl2cap://", "btgoep://", "tcpobex://",
	"irdaobex://", "file://", "urn:epc:id:", "urn:epc:tag:",
	"urn:epc:pat:", "urn:epc:raw:", "urn:epc:", "urn:nfc:",
}

func uriPayload(p []byte) (string, bool) {
	if len(p) < 1 || int(p[0]) >= len(uriPrefixes) {
		return "", false
	}
	return uriPrefixes[p[0]] + string(p[1:]), true
}

// clip shortens s to fit a summary line and drops control characters.
func clip(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
	if utf8.RuneCountInString(s) <= maxSummaryLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxSummaryLen-3]) + "..."
}

var _ mfclassic.Enricher = NDEF{}
