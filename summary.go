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
	"fmt"
	"strings"
)

// Summary renders the short details text shown after a read: card line,
// anticollision bytes, key and sector counts, then one line for each
// enricher that recognises the contents.
func Summary(snap *Snapshot, enrichers ...Enricher) string {
	if snap == nil {
		return ""
	}
	id := snap.Identity
	var sb strings.Builder
	fmt.Fprintf(&sb, "Card: %s | UID: %s\n", snap.Type.DisplayName(), id.UIDHex())
	fmt.Fprintf(&sb, "ATQA: %02X %02X | SAK: %02X\n", byte(id.ATQA>>8), byte(id.ATQA), id.SAK)

	found, total := snap.KeysFound()
	read, sectors := snap.SectorsRead()
	fmt.Fprintf(&sb, "Keys: %d/%d | Sectors: %d/%d", found, total, read, sectors)

	for _, line := range Enrich(snap, enrichers...) {
		sb.WriteByte('\n')
		sb.WriteString(line)
	}
	return sb.String()
}
