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
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ZaparooProject/go-mfclassic/internal/syncutil"
)

// UserDictionary is the append-only key file that grows as keys are
// discovered. Its contents are loaded lazily and cached until Invalidate or
// ForceReload.
type UserDictionary struct {
	keys            *keyList
	path            string
	mu              syncutil.Mutex
	loaded          bool
	missing         bool
	endsWithNewline bool
}

// NewUserDictionary returns a dictionary backed by path. Nothing is read
// until first use.
func NewUserDictionary(path string) *UserDictionary {
	return &UserDictionary{path: path, keys: newKeyList(), endsWithNewline: true}
}

// Path returns the backing file path.
func (u *UserDictionary) Path() string {
	return u.path
}

// Load reads the file if it has not been read yet. A missing file yields
// ErrDictionaryUnavailable; the dictionary still accepts appends.
func (u *UserDictionary) Load() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.loadLocked(false)
}

// ForceReload rereads the file, picking up edits made outside this process.
func (u *UserDictionary) ForceReload() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.loadLocked(true)
}

// Invalidate makes the next access reload the file.
func (u *UserDictionary) Invalidate() {
	u.mu.Lock()
	u.loaded = false
	u.mu.Unlock()
}

func (u *UserDictionary) loadLocked(force bool) error {
	if u.loaded && !force {
		if u.missing {
			return ErrDictionaryUnavailable
		}
		return nil
	}
	u.keys = newKeyList()
	u.loaded = true
	u.missing = false
	u.endsWithNewline = true

	data, err := os.ReadFile(u.path)
	if errors.Is(err, fs.ErrNotExist) {
		u.missing = true
		Debugf("dictionary: user file %s not found", u.path)
		return ErrDictionaryUnavailable
	}
	if err != nil {
		u.missing = true
		return fmt.Errorf("%w: read %s: %w", ErrDictionaryUnavailable, u.path, err)
	}

	var keys []Key
	keys, u.endsWithNewline = parseKeys(data)
	for _, k := range keys {
		u.keys.add(k)
	}
	Debugf("dictionary: loaded %d user keys from %s", len(keys), u.path)
	return nil
}

// Keys returns the cached keys, loading the file on first use.
func (u *UserDictionary) Keys() ([]Key, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.loadLocked(false); err != nil {
		return nil, err
	}
	return u.keys.snapshot(), nil
}

// Len returns the number of cached keys.
func (u *UserDictionary) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	_ = u.loadLocked(false)
	return len(u.keys.keys)
}

// Contains reports whether k is already in the dictionary.
func (u *UserDictionary) Contains(k Key) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_ = u.loadLocked(false)
	return u.keys.contains(k)
}

// Append adds k to the file unless it is already present. The file and its
// directory are created when missing.
func (u *UserDictionary) Append(k Key) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.loadLocked(false); err != nil && !errUnavailable(err) {
		return false, err
	}
	if u.keys.contains(k) {
		return false, nil
	}

	if dir := filepath.Dir(u.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return false, fmt.Errorf("create dictionary dir: %w", err)
		}
	}
	//nolint:gosec // path is operator supplied configuration
	f, err := os.OpenFile(u.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open dictionary: %w", err)
	}
	line := k.String() + "\n"
	if !u.endsWithNewline {
		line = "\n" + line
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("append dictionary: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("close dictionary: %w", err)
	}

	u.keys.add(k)
	u.missing = false
	u.endsWithNewline = true
	return true, nil
}

// Import appends every valid key read from r and returns how many were new.
func (u *UserDictionary) Import(r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	added := 0
	for sc.Scan() {
		k, ok := ParseKeyLine(sc.Text())
		if !ok {
			continue
		}
		ok, err := u.Append(k)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	if err := sc.Err(); err != nil {
		return added, fmt.Errorf("read import: %w", err)
	}
	return added, nil
}
