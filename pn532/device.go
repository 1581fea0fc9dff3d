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

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/internal/syncutil"
)

// Target is one ISO14443-A card reported by InListPassiveTarget.
type Target struct {
	UID    []byte
	ATQA   uint16
	Number byte
	SAK    byte
}

// FirmwareVersion is the GetFirmwareVersion response.
type FirmwareVersion struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

func (f FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X v%d.%d", f.IC, f.Version, f.Revision)
}

// Device is a PN532 reached over a Link.
//
// Thread Safety: all methods are safe for concurrent use; commands are
// serialised.
type Device struct {
	link           Link
	retry          *RetryConfig
	mu             syncutil.Mutex
	passiveRetries byte
}

// Option configures a Device.
type Option func(*Device) error

// WithRetryConfig replaces the link retry policy.
func WithRetryConfig(cfg *RetryConfig) Option {
	return func(d *Device) error {
		if cfg == nil {
			return fmt.Errorf("%w: nil retry config", mfclassic.ErrInvalidParameter)
		}
		d.retry = cfg
		return nil
	}
}

// WithPassiveActivationRetries sets the MxRtyPassiveActivation value written
// during Init.
func WithPassiveActivationRetries(n byte) Option {
	return func(d *Device) error {
		d.passiveRetries = n
		return nil
	}
}

// New wraps link. Call Init before issuing card commands.
func New(link Link, opts ...Option) (*Device, error) {
	if link == nil {
		return nil, fmt.Errorf("%w: nil link", mfclassic.ErrInvalidParameter)
	}
	d := &Device{
		link:           link,
		retry:          DefaultRetryConfig(),
		passiveRetries: DefaultPassiveActivationRetries,
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Close closes the underlying link.
func (d *Device) Close() error {
	if err := d.link.Close(); err != nil {
		return fmt.Errorf("close link: %w", err)
	}
	return nil
}

// Init configures the SAM for normal mode and bounds passive activation
// retries so a missing card cannot block a command indefinitely.
func (d *Device) Init(ctx context.Context) (FirmwareVersion, error) {
	fw, err := d.FirmwareVersion(ctx)
	if err != nil {
		return fw, err
	}
	if _, err := d.command(ctx, cmdSAMConfiguration, []byte{samModeNormal, samTimeout, samUseIRQ}); err != nil {
		return fw, err
	}
	if err := d.SetPassiveActivationRetries(ctx, d.passiveRetries); err != nil {
		return fw, err
	}
	mfclassic.Debugf("pn532: %s ready, passive retries %d", fw, d.passiveRetries)
	return fw, nil
}

// FirmwareVersion queries the chip version.
func (d *Device) FirmwareVersion(ctx context.Context) (FirmwareVersion, error) {
	resp, err := d.command(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		return FirmwareVersion{}, err
	}
	if len(resp) < 4 {
		return FirmwareVersion{}, fmt.Errorf("%w: firmware response %X", ErrInvalidResponse, resp)
	}
	fw := FirmwareVersion{IC: resp[0], Version: resp[1], Revision: resp[2], Support: resp[3]}
	if fw.IC != firmwareResponseIC {
		mfclassic.Debugf("pn532: unexpected IC 0x%02X, continuing", fw.IC)
	}
	return fw, nil
}

// SetPassiveActivationRetries writes the RFConfiguration MaxRetries item.
func (d *Device) SetPassiveActivationRetries(ctx context.Context, n byte) error {
	_, err := d.command(ctx, cmdRFConfiguration, []byte{rfItemMaxRetries, maxATRRetries, maxPSLRetries, n})
	return err
}

// SetField switches the RF field on or off.
func (d *Device) SetField(ctx context.Context, on bool) error {
	v := byte(0x00)
	if on {
		v = 0x01
	}
	_, err := d.command(ctx, cmdRFConfiguration, []byte{rfItemField, v})
	return err
}

// ListPassiveTarget activates one 106 kbps type A target. It returns
// ErrNoTarget when the field is empty.
func (d *Device) ListPassiveTarget(ctx context.Context) (Target, error) {
	resp, err := d.command(ctx, cmdInListPassiveTarget, []byte{0x01, brty106TypeA})
	if err != nil {
		return Target{}, err
	}
	return parseTarget(resp)
}

// parseTarget decodes NbTg, Tg, SENS_RES, SEL_RES, NFCIDLength, NFCID.
func parseTarget(resp []byte) (Target, error) {
	if len(resp) < 1 {
		return Target{}, fmt.Errorf("%w: empty InListPassiveTarget response", ErrInvalidResponse)
	}
	if resp[0] == 0 {
		return Target{}, ErrNoTarget
	}
	if len(resp) < 6 {
		return Target{}, fmt.Errorf("%w: target record %X", ErrInvalidResponse, resp)
	}
	uidLen := int(resp[5])
	if len(resp) < 6+uidLen {
		return Target{}, fmt.Errorf("%w: UID length %d in %X", ErrInvalidResponse, uidLen, resp)
	}
	return Target{
		Number: resp[1],
		ATQA:   uint16(resp[2])<<8 | uint16(resp[3]),
		SAK:    resp[4],
		UID:    append([]byte(nil), resp[6:6+uidLen]...),
	}, nil
}

// DataExchange sends data to target tg with CRC and crypto handled by the
// chip. A non-zero status is returned as *Error.
func (d *Device) DataExchange(ctx context.Context, tg byte, data []byte) ([]byte, error) {
	resp, err := d.command(ctx, cmdInDataExchange, append([]byte{tg}, data...))
	if err != nil {
		return nil, err
	}
	return statusPayload(cmdInDataExchange, resp)
}

// CommunicateThru sends raw bytes to the current target. The caller adds
// any CRC the card expects.
func (d *Device) CommunicateThru(ctx context.Context, data []byte) ([]byte, error) {
	resp, err := d.command(ctx, cmdInCommunicateThru, data)
	if err != nil {
		return nil, err
	}
	return statusPayload(cmdInCommunicateThru, resp)
}

// Select reselects target tg.
func (d *Device) Select(ctx context.Context, tg byte) error {
	return d.statusCommand(ctx, cmdInSelect, tg)
}

// Deselect puts target tg to sleep while keeping it known to the chip.
func (d *Device) Deselect(ctx context.Context, tg byte) error {
	return d.statusCommand(ctx, cmdInDeselect, tg)
}

// Release drops target tg; 0 releases all targets.
func (d *Device) Release(ctx context.Context, tg byte) error {
	return d.statusCommand(ctx, cmdInRelease, tg)
}

func (d *Device) statusCommand(ctx context.Context, cmd, tg byte) error {
	resp, err := d.command(ctx, cmd, []byte{tg})
	if err != nil {
		return err
	}
	_, err = statusPayload(cmd, resp)
	return err
}

func statusPayload(cmd byte, resp []byte) ([]byte, error) {
	if len(resp) < 1 {
		return nil, fmt.Errorf("%w: %s returned no status", ErrInvalidResponse, commandName(cmd))
	}
	// Bits 6 and 7 flag NAD and MI; the error code is the low six bits.
	if code := resp[0] & 0x3F; code != StatusOK {
		return nil, &Error{Command: commandName(cmd), Code: code}
	}
	return resp[1:], nil
}

// command sends cmd and returns the response without its response code.
func (d *Device) command(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var resp []byte
	err := RetryWithConfig(ctx, d.retry, func() error {
		r, err := d.link.SendCommand(ctx, cmd, args)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", commandName(cmd), err)
	}
	if len(resp) < 1 || resp[0] != cmd+1 {
		return nil, fmt.Errorf("%s: %w: %X", commandName(cmd), ErrInvalidResponse, resp)
	}
	return resp[1:], nil
}
