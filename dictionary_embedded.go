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
	_ "embed"
	"sync"
)

//go:embed dict/mf_classic_dict.nfc
var embeddedDict []byte

var (
	embeddedOnce sync.Once
	embeddedKeys []Key
)

// EmbeddedKeys returns the compiled-in dictionary. The blob is parsed once.
func EmbeddedKeys() ([]Key, error) {
	embeddedOnce.Do(func() {
		embeddedKeys, _ = parseKeys(embeddedDict)
	})
	if len(embeddedKeys) == 0 {
		return nil, ErrDictionaryUnavailable
	}
	return embeddedKeys, nil
}
