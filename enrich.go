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

// Enricher turns assembled card contents into a one-line human summary,
// such as a decoded NDEF URI. It returns false when it does not recognise
// the data. Enrichers must not modify the view.
type Enricher interface {
	TryParse(view *Snapshot) (string, bool)
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(view *Snapshot) (string, bool)

// TryParse calls f.
func (f EnricherFunc) TryParse(view *Snapshot) (string, bool) {
	return f(view)
}

// Enrich runs every enricher against view and collects their lines in
// order. A panicking enricher is logged and skipped.
func Enrich(view *Snapshot, enrichers ...Enricher) []string {
	var lines []string
	for _, e := range enrichers {
		if e == nil {
			continue
		}
		if line, ok := tryParse(e, view); ok && line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func tryParse(e Enricher, view *Snapshot) (line string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			Debugf("enrich: %T panicked: %v", e, r)
			line, ok = "", false
		}
	}()
	return e.TryParse(view)
}
