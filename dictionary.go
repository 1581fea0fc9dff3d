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
	"bytes"
	"errors"
)

// Source identifies where a working key came from.
type Source int

// Key sources in search priority order, followed by the engine's own paths.
const (
	SourceLastKey Source = iota
	SourceSession
	SourceCard
	SourceUser
	SourceDefaults
	SourceEmbedded
	SourceTrailer
	SourceSweep
	SourceMagic
)

// searchOrder is the tier order used for a sector's first key.
var searchOrder = []Source{
	SourceLastKey, SourceSession, SourceCard, SourceUser, SourceDefaults, SourceEmbedded,
}

// complementaryOrder is the lighter search used for a sector's second key.
// The embedded dictionary is left out on purpose.
var complementaryOrder = []Source{
	SourceLastKey, SourceSession, SourceUser, SourceDefaults,
}

// IsDictionary reports whether s is one of the tiers that ShouldSkipDict
// aborts.
func (s Source) IsDictionary() bool {
	return s == SourceUser || s == SourceDefaults || s == SourceEmbedded
}

func (s Source) String() string {
	switch s {
	case SourceLastKey:
		return "last key"
	case SourceSession:
		return "session"
	case SourceCard:
		return "card"
	case SourceUser:
		return "user dictionary"
	case SourceDefaults:
		return "defaults"
	case SourceEmbedded:
		return "embedded dictionary"
	case SourceTrailer:
		return "trailer"
	case SourceSweep:
		return "sweep"
	case SourceMagic:
		return "magic"
	default:
		return "unknown"
	}
}

// DefaultKeys is the short hardcoded list tried before the embedded
// dictionary.
var DefaultKeys = []Key{
	{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5},
	{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7},
	{0x4D, 0x3A, 0x99, 0xC3, 0x51, 0xDD},
	{0x1A, 0x98, 0x2C, 0x7E, 0x45, 0x9A},
	{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
	{0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5},
	{0xC0, 0xC1, 0xC2, 0xC3, 0xC4, 0xC5},
	{0xD0, 0xD1, 0xD2, 0xD3, 0xD4, 0xD5},
	{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
	{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC},
}

// keyList is an insertion ordered set of keys.
type keyList struct {
	index map[Key]struct{}
	keys  []Key
}

func newKeyList() *keyList {
	return &keyList{index: make(map[Key]struct{})}
}

func (l *keyList) add(k Key) bool {
	if _, ok := l.index[k]; ok {
		return false
	}
	l.index[k] = struct{}{}
	l.keys = append(l.keys, k)
	return true
}

func (l *keyList) contains(k Key) bool {
	_, ok := l.index[k]
	return ok
}

func (l *keyList) snapshot() []Key {
	return append([]Key(nil), l.keys...)
}

// parseKeys reads dictionary text, skipping malformed lines and duplicates.
// The second result reports whether data ended with a newline.
func parseKeys(data []byte) (keys []Key, endsWithNewline bool) {
	list := newKeyList()
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if k, ok := ParseKeyLine(sc.Text()); ok {
			list.add(k)
		}
	}
	return list.keys, len(data) == 0 || data[len(data)-1] == '\n'
}

// Dictionary aggregates every key source the engine searches. It is used by
// one engine goroutine at a time.
type Dictionary struct {
	user        *UserDictionary
	embeddedErr error
	session     [2]*keyList
	embedded    []Key
	defaults    []Key
	last        [2]Key
	lastValid   [2]bool
}

// DictionaryOption configures a Dictionary.
type DictionaryOption func(*Dictionary)

// WithUserDictionary attaches a file backed user dictionary.
func WithUserDictionary(u *UserDictionary) DictionaryOption {
	return func(d *Dictionary) {
		d.user = u
	}
}

// WithEmbeddedKeys replaces the compiled-in dictionary. A nil slice marks the
// embedded tier unavailable.
func WithEmbeddedKeys(keys []Key) DictionaryOption {
	return func(d *Dictionary) {
		d.embedded = keys
		d.embeddedErr = nil
		if len(keys) == 0 {
			d.embeddedErr = ErrDictionaryUnavailable
		}
	}
}

// WithDefaultKeys replaces the hardcoded default list.
func WithDefaultKeys(keys []Key) DictionaryOption {
	return func(d *Dictionary) {
		d.defaults = keys
	}
}

// NewDictionary builds a dictionary with the compiled-in and default keys.
func NewDictionary(opts ...DictionaryOption) *Dictionary {
	d := &Dictionary{
		defaults: DefaultKeys,
		session:  [2]*keyList{newKeyList(), newKeyList()},
	}
	d.embedded, d.embeddedErr = EmbeddedKeys()
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// User returns the attached user dictionary, which may be nil.
func (d *Dictionary) User() *UserDictionary {
	return d.user
}

// LastKey returns the most recent working key of type kt.
func (d *Dictionary) LastKey(kt KeyType) (Key, bool) {
	return d.last[kt], d.lastValid[kt]
}

// SessionKeys returns the keys of type kt that worked this session.
func (d *Dictionary) SessionKeys(kt KeyType) []Key {
	return d.session[kt].snapshot()
}

// Candidates returns the keys of a tier for key type kt. Tiers backed by
// storage that could not be loaded return ErrDictionaryUnavailable.
// SourceCard is answered by the engine from the cache and returns nothing
// here.
func (d *Dictionary) Candidates(src Source, kt KeyType) ([]Key, error) {
	switch src {
	case SourceLastKey:
		if k, ok := d.LastKey(kt); ok {
			return []Key{k}, nil
		}
		return nil, nil
	case SourceSession:
		return d.SessionKeys(kt), nil
	case SourceUser:
		if d.user == nil {
			return nil, ErrDictionaryUnavailable
		}
		return d.user.Keys()
	case SourceDefaults:
		return d.defaults, nil
	case SourceEmbedded:
		if d.embeddedErr != nil {
			return nil, d.embeddedErr
		}
		return d.embedded, nil
	default:
		return nil, nil
	}
}

// Learn records a key that just authenticated. It becomes the last key for
// its type, joins the session list and is appended to the user dictionary.
// A failure to persist is logged and otherwise ignored.
func (d *Dictionary) Learn(k Key, kt KeyType) {
	d.last[kt] = k
	d.lastValid[kt] = true
	d.session[kt].add(k)
	if d.user == nil {
		return
	}
	added, err := d.user.Append(k)
	switch {
	case err != nil:
		Debugf("dictionary: persist key %s failed: %v", k, err)
	case added:
		Debugf("dictionary: appended key %s to %s", k, d.user.Path())
	}
}

// ResetSession forgets last and session keys and schedules a reload of the
// user dictionary on next use.
func (d *Dictionary) ResetSession() {
	d.last = [2]Key{}
	d.lastValid = [2]bool{}
	d.session = [2]*keyList{newKeyList(), newKeyList()}
	if d.user != nil {
		d.user.Invalidate()
	}
}

// errUnavailable reports whether err only means a tier has nothing to offer.
func errUnavailable(err error) bool {
	return errors.Is(err, ErrDictionaryUnavailable)
}
