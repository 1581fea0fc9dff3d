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
	"context"
	"fmt"

	"github.com/usedbytes/log"

	"github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/internal/config"
	"github.com/ZaparooProject/go-mfclassic/pcsc"
	"github.com/ZaparooProject/go-mfclassic/pn532"
	"github.com/ZaparooProject/go-mfclassic/transport/i2c"
	"github.com/ZaparooProject/go-mfclassic/transport/spi"
	"github.com/ZaparooProject/go-mfclassic/transport/uart"
)

// reader is a card transport that owns hardware.
type reader interface {
	mfclassic.Transport
	Close() error
}

type pn532Reader struct {
	*pn532.Classic
}

func (r pn532Reader) Close() error {
	return r.Device().Close()
}

func openLink(ctx context.Context, cfg config.ReaderConfig) (pn532.Link, error) {
	switch cfg.Transport {
	case config.TransportUART:
		if cfg.Port == uart.AutoPort {
			return uart.Find(ctx)
		}
		return uart.Open(cfg.Port)
	case config.TransportI2C:
		return i2c.Open(cfg.Port)
	case config.TransportSPI:
		return spi.Open(cfg.Port)
	default:
		return nil, fmt.Errorf("%w: transport %q", mfclassic.ErrInvalidParameter, cfg.Transport)
	}
}

func openReader(ctx context.Context, cfg config.ReaderConfig) (reader, error) {
	if cfg.Transport == config.TransportPCSC {
		r, err := pcsc.Open(cfg.Port)
		if err != nil {
			return nil, fmt.Errorf("open PC/SC reader: %w", err)
		}
		log.Verbosef("Using PC/SC reader %s\n", r.Name())
		return r, nil
	}

	link, err := openLink(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s link %s: %w", cfg.Transport, cfg.Port, err)
	}
	var opts []pn532.Option
	if cfg.PassiveRetries != nil {
		opts = append(opts, pn532.WithPassiveActivationRetries(byte(*cfg.PassiveRetries)))
	}
	dev, err := pn532.New(link, opts...)
	if err != nil {
		_ = link.Close()
		return nil, err
	}
	fw, err := dev.Init(ctx)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("initialise PN532: %w", err)
	}
	log.Verbosef("PN532 firmware %s on %s\n", fw, cfg.Port)
	return pn532Reader{pn532.NewClassic(dev)}, nil
}

func newDictionary(cfg config.DictionaryConfig) *mfclassic.Dictionary {
	var opts []mfclassic.DictionaryOption
	if cfg.UserFile != "" {
		opts = append(opts, mfclassic.WithUserDictionary(mfclassic.NewUserDictionary(cfg.UserFile)))
	}
	if cfg.NoEmbedded {
		opts = append(opts, mfclassic.WithEmbeddedKeys(nil))
	}
	return mfclassic.NewDictionary(opts...)
}
