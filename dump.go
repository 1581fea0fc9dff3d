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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Dump file header values
const (
	dumpFiletype          = "Flipper NFC device"
	dumpVersion           = 4
	dumpDeviceType        = "Mifare Classic"
	dumpDataFormatVersion = 2
	dumpUnknownToken      = "??"
	dumpExtension         = ".nfc"
)

// ErrMalformedDump is returned by ParseDump for input it cannot use.
var ErrMalformedDump = errors.New("malformed dump")

// Serialize renders snap in the dump format.
func Serialize(snap *Snapshot) string {
	var sb strings.Builder
	// strings.Builder never fails
	_ = WriteDump(&sb, snap)
	return sb.String()
}

// WriteDump writes snap to w in the dump format. Known blocks are rendered
// as uppercase hex bytes, unknown blocks as ?? tokens.
func WriteDump(w io.Writer, snap *Snapshot) error {
	if snap == nil || snap.Type == CardTypeUnknown {
		return fmt.Errorf("%w: nothing to dump", ErrInvalidParameter)
	}
	bw := bufio.NewWriter(w)
	id := snap.Identity

	fmt.Fprintf(bw, "Filetype: %s\n", dumpFiletype)
	fmt.Fprintf(bw, "Version: %d\n", dumpVersion)
	fmt.Fprintf(bw, "Device type: %s\n", dumpDeviceType)
	fmt.Fprintf(bw, "UID: %s\n", spacedHex(id.UID))
	fmt.Fprintf(bw, "ATQA: %02X %02X\n", byte(id.ATQA>>8), byte(id.ATQA))
	fmt.Fprintf(bw, "SAK: %02X\n", id.SAK)
	fmt.Fprintf(bw, "Mifare Classic type: %s\n", snap.Type)
	fmt.Fprintf(bw, "Data format version: %d\n", dumpDataFormatVersion)

	for i := 0; i < snap.Type.TotalBlocks(); i++ {
		fmt.Fprintf(bw, "Block %d: ", i)
		if data, ok := snap.Block(BlockIndex(i)); ok {
			bw.WriteString(spacedHex(data[:]))
		} else {
			bw.WriteString(unknownBlockTokens)
		}
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write dump: %w", err)
	}
	return nil
}

var unknownBlockTokens = strings.TrimSuffix(strings.Repeat(dumpUnknownToken+" ", BlockSize), " ")

func spacedHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}

// DumpFileName returns the conventional file name for a card.
func DumpFileName(id CardIdentity) string {
	parts := make([]string, len(id.UID))
	for i, b := range id.UID {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return fmt.Sprintf("Classic%s_%s%s", id.Type(), strings.Join(parts, "-"), dumpExtension)
}

// SaveDump writes snap into dir under DumpFileName and returns the path.
func SaveDump(dir string, snap *Snapshot) (string, error) {
	if snap == nil {
		return "", fmt.Errorf("%w: nil snapshot", ErrInvalidParameter)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create dump dir: %w", err)
	}
	path := filepath.Join(dir, DumpFileName(snap.Identity))
	var sb strings.Builder
	if err := WriteDump(&sb, snap); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		return "", fmt.Errorf("save dump: %w", err)
	}
	Debugf("dump: saved %s", path)
	return path, nil
}

// Dump is a parsed dump file. Partial ?? bytes inside a block leave the
// whole block marked unknown but keep the bytes that were present.
type Dump struct {
	Identity CardIdentity
	Type     CardType
	data     []byte
	known    BlockSet
	partial  BlockSet
}

// Block returns block idx and whether every byte of it was present.
func (d *Dump) Block(idx BlockIndex) ([BlockSize]byte, bool) {
	var out [BlockSize]byte
	if !d.Type.ValidBlock(idx) {
		return out, false
	}
	copy(out[:], d.data[int(idx)*BlockSize:])
	return out, d.known.Test(idx)
}

// IsPartial reports whether block idx had some but not all bytes present.
func (d *Dump) IsPartial(idx BlockIndex) bool {
	return d.partial.Test(idx)
}

// KnownBlocks returns the number of fully known blocks.
func (d *Dump) KnownBlocks() int {
	return d.known.Count()
}

// Snapshot converts the dump to a view for display. No keys are derived
// from trailer bytes.
func (d *Dump) Snapshot() *Snapshot {
	return &Snapshot{
		Identity: d.Identity.clone(),
		Type:     d.Type,
		Valid:    true,
		data:     append([]byte(nil), d.data...),
		known:    BlockSet{bits: d.known.bits.clone()},
		keys:     newSectorKeyTable(d.Type.SectorCount()),
	}
}

// ParseDump reads a dump produced by WriteDump. Blank lines, comments and
// unrecognised header keys are ignored.
func ParseDump(r io.Reader) (*Dump, error) {
	d := &Dump{}
	var (
		typeLine CardType
		haveUID  bool
		haveSAK  bool
		pending  = map[int]string{}
	)

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, ":")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: missing ':'", ErrMalformedDump, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case key == "UID":
			uid, err := parseHexBytes(value)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: UID: %w", ErrMalformedDump, line, err)
			}
			d.Identity.UID = uid
			haveUID = true
		case key == "ATQA":
			b, err := parseHexBytes(value)
			if err != nil || len(b) != 2 {
				return nil, fmt.Errorf("%w: line %d: ATQA %q", ErrMalformedDump, line, value)
			}
			d.Identity.ATQA = uint16(b[0])<<8 | uint16(b[1])
		case key == "SAK":
			b, err := parseHexBytes(value)
			if err != nil || len(b) != 1 {
				return nil, fmt.Errorf("%w: line %d: SAK %q", ErrMalformedDump, line, value)
			}
			d.Identity.SAK = b[0]
			haveSAK = true
		case key == "Mifare Classic type":
			typeLine = ParseCardType(value)
		case strings.HasPrefix(key, "Block "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(key, "Block ")))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: line %d: block number %q", ErrMalformedDump, line, key)
			}
			pending[n] = value
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dump: %w", err)
	}
	if !haveUID || !haveSAK {
		return nil, fmt.Errorf("%w: missing UID or SAK", ErrMalformedDump)
	}

	d.Type = d.Identity.Type()
	if d.Type == CardTypeUnknown {
		d.Type = typeLine
	}
	if d.Type == CardTypeUnknown {
		return nil, fmt.Errorf("%w: unknown card type", ErrMalformedDump)
	}
	if typeLine != CardTypeUnknown && typeLine != d.Type {
		Debugf("dump: type line %s disagrees with SAK %02X, using %s", typeLine, d.Identity.SAK, d.Type)
	}

	total := d.Type.TotalBlocks()
	d.data = make([]byte, total*BlockSize)
	d.known = NewBlockSet(total)
	d.partial = NewBlockSet(total)
	for n, value := range pending {
		if n >= total {
			return nil, fmt.Errorf("%w: block %d beyond %s capacity", ErrMalformedDump, n, d.Type)
		}
		if err := d.setBlock(BlockIndex(n), value); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dump) setBlock(idx BlockIndex, value string) error {
	tokens := strings.Fields(value)
	if len(tokens) != BlockSize {
		return fmt.Errorf("%w: block %d has %d tokens", ErrMalformedDump, idx, len(tokens))
	}
	slot := d.data[int(idx)*BlockSize : int(idx+1)*BlockSize]
	unknown := 0
	for i, tok := range tokens {
		if tok == dumpUnknownToken {
			unknown++
			continue
		}
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return fmt.Errorf("%w: block %d byte %d %q", ErrMalformedDump, idx, i, tok)
		}
		slot[i] = byte(v)
	}
	switch unknown {
	case 0:
		d.known.Set(idx)
	case BlockSize:
	default:
		d.partial.Set(idx)
	}
	return nil
}

func parseHexBytes(s string) ([]byte, error) {
	fields := strings.Fields(s)
	if len(fields) == 1 && len(fields[0]) > 2 {
		raw := fields[0]
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("odd hex length %d", len(raw))
		}
		fields = fields[:0]
		for i := 0; i < len(raw); i += 2 {
			fields = append(fields, raw[i:i+2])
		}
	}
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("hex byte %q: %w", f, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}
