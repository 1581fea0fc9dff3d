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

package pn532

// PN532 command codes
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSAMConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInCommunicateThru   = 0x42
	cmdInDeselect          = 0x44
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
	cmdInSelect            = 0x54
)

// Command parameters
const (
	samModeNormal      = 0x01
	samTimeout         = 0x14 // 50ms units, virtual card mode only
	samUseIRQ          = 0x01
	rfItemMaxRetries   = 0x05
	rfItemField        = 0x01
	brty106TypeA       = 0x00
	allTargets         = 0x00
	defaultTarget      = 0x01
	maxATRRetries      = 0xFF
	maxPSLRetries      = 0x01
	firmwareResponseIC = 0x32
)

func commandName(cmd byte) string {
	switch cmd {
	case cmdGetFirmwareVersion:
		return "GetFirmwareVersion"
	case cmdSAMConfiguration:
		return "SAMConfiguration"
	case cmdRFConfiguration:
		return "RFConfiguration"
	case cmdInDataExchange:
		return "InDataExchange"
	case cmdInCommunicateThru:
		return "InCommunicateThru"
	case cmdInDeselect:
		return "InDeselect"
	case cmdInListPassiveTarget:
		return "InListPassiveTarget"
	case cmdInRelease:
		return "InRelease"
	case cmdInSelect:
		return "InSelect"
	default:
		return "Command"
	}
}
