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
	"os"
	"sync/atomic"
	"time"
)

// debugEnabled controls console debug output. The session log, when open,
// receives every line regardless.
var debugEnabled atomic.Bool

func init() {
	if os.Getenv("MFC_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
}

// Debugf logs a formatted debug line.
func Debugf(format string, args ...any) {
	emitDebug(fmt.Sprintf(format, args...))
}

// Debugln logs its arguments as one debug line.
func Debugln(args ...any) {
	msg := fmt.Sprintln(args...)
	emitDebug(msg[:len(msg)-1])
}

func emitDebug(message string) {
	if w := currentSessionLog(); w != nil {
		timestamp := time.Now().Format("15:04:05.000")
		_, _ = fmt.Fprintf(w, "%s DEBUG: %s\n", timestamp, message)
	}
	if debugEnabled.Load() {
		_, _ = fmt.Fprintf(os.Stderr, "DEBUG: %s\n", message)
	}
}

// SetDebugEnabled turns console debug output on or off.
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether console debug output is on.
func DebugEnabled() bool {
	return debugEnabled.Load()
}
