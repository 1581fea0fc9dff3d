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

package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/usedbytes/log"
	"golang.org/x/term"

	"github.com/ZaparooProject/go-mfclassic"
)

const barTemplate = `{{string . "phase" | blue}} {{bar . "[" "=" ">" "." "]"}} {{counters .}} {{string . "mode" | yellow}}`

// barHooks draws the key search on a terminal progress bar.
type barHooks struct {
	mfclassic.NopHooks
	bar *pb.ProgressBar
	mu  sync.Mutex
}

func newBarHooks(w io.Writer) *barHooks {
	bar := pb.New(0)
	bar.SetWriter(w)
	bar.SetTemplateString(barTemplate)
	bar.Set("phase", "waiting for card")
	return &barHooks{bar: bar}
}

func (h *barHooks) start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bar.Start()
}

func (h *barHooks) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bar.Finish()
}

func (h *barHooks) OnPhase(s mfclassic.SectorIndex, first mfclassic.BlockIndex, keyB bool, total int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bar.SetTotal(int64(total))
	h.bar.SetCurrent(0)
	h.bar.Set("phase", phaseLabel(s, first, keyB))
}

func (h *barHooks) OnProgress(tried, total int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bar.SetTotal(int64(total))
	h.bar.SetCurrent(int64(tried))
}

func (h *barHooks) OnCacheMode(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if on {
		h.bar.Set("mode", "cached")
	} else {
		h.bar.Set("mode", "")
	}
}

func (h *barHooks) OnPaused(paused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if paused {
		h.bar.Set("mode", "tag away, put it back")
	} else {
		h.bar.Set("mode", "")
	}
}

// logHooks reports phases as log lines when stdout is not a terminal.
type logHooks struct {
	mfclassic.NopHooks
}

func (logHooks) OnPhase(s mfclassic.SectorIndex, first mfclassic.BlockIndex, keyB bool, total int) {
	log.Verbosef("%s: %d candidates\n", phaseLabel(s, first, keyB), total)
}

func (logHooks) OnPaused(paused bool) {
	if paused {
		log.Println("Tag removed, waiting for it to return...")
	} else {
		log.Println("Tag back, resuming")
	}
}

func phaseLabel(s mfclassic.SectorIndex, first mfclassic.BlockIndex, keyB bool) string {
	kt := mfclassic.KeyA
	if keyB {
		kt = mfclassic.KeyB
	}
	return fmt.Sprintf("sector %2d (block %3d) key %s", s, first, kt)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// keyControls puts the terminal in raw mode and maps single key presses to
// scan controls: s skips the dictionary, q or Ctrl-C stops. The returned
// func restores the terminal.
func keyControls(in *os.File, skip, stop func()) (func(), error) {
	fd := int(in.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("raw terminal: %w", err)
	}
	var once sync.Once
	restore := func() {
		once.Do(func() { _ = term.Restore(fd, old) })
	}

	go func() {
		buf := make([]byte, 1)
		for {
			n, err := in.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			if handleKey(buf[0], skip, stop) {
				return
			}
		}
	}()
	return restore, nil
}

// handleKey runs the control bound to b and reports whether the reader
// should stop listening.
func handleKey(b byte, skip, stop func()) bool {
	switch b {
	case 's', 'S':
		skip()
	case 'q', 'Q', 0x03:
		stop()
		return true
	}
	return false
}
