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

// Package config loads the mfcrack YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZaparooProject/go-mfclassic"
)

// Transport names accepted in reader.transport.
const (
	TransportUART = "uart"
	TransportI2C  = "i2c"
	TransportSPI  = "spi"
	TransportPCSC = "pcsc"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the file layout.
type Config struct {
	Reader     ReaderConfig     `yaml:"reader"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Dump       DumpConfig       `yaml:"dump"`
	Log        LogConfig        `yaml:"log"`
	Engine     EngineConfig     `yaml:"engine"`
}

// ReaderConfig selects the reader hardware.
type ReaderConfig struct {
	Transport string `yaml:"transport"`
	// Port is a serial device, I2C bus, SPI port or PC/SC reader name match.
	Port           string        `yaml:"port"`
	CardTimeout    time.Duration `yaml:"card_timeout"`
	PassiveRetries *int          `yaml:"passive_retries"`
}

// DictionaryConfig points at the user key file.
type DictionaryConfig struct {
	UserFile string `yaml:"user_file"`
	// NoEmbedded leaves the compiled-in dictionary out of the search.
	NoEmbedded bool `yaml:"no_embedded"`
}

// DumpConfig controls where dumps are written.
type DumpConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig controls diagnostics.
type LogConfig struct {
	SessionDir string `yaml:"session_dir"`
	Debug      bool   `yaml:"debug"`
	Verbose    bool   `yaml:"verbose"`
}

// EngineConfig mirrors mfclassic.EngineConfig. Zero values keep the
// library defaults.
type EngineConfig struct {
	VerifyPass      *bool         `yaml:"verify_pass"`
	ProbeMagic      *bool         `yaml:"probe_magic"`
	AuthTimeout     time.Duration `yaml:"auth_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	PresenceTimeout time.Duration `yaml:"presence_timeout"`
	SelectTimeout   time.Duration `yaml:"select_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxWait         time.Duration `yaml:"max_wait"`
	SweptKeyLimit   int           `yaml:"swept_key_limit"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Reader: ReaderConfig{Transport: TransportUART},
		Dump:   DumpConfig{Dir: "."},
	}
}

// Load reads path, rejecting unknown keys, and resolves relative paths
// against the file's directory.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the CLI cannot run with.
func (c *Config) Validate() error {
	switch c.Reader.Transport {
	case TransportUART, TransportI2C, TransportSPI, TransportPCSC:
	default:
		return fmt.Errorf("%w: reader.transport %q must be one of uart, i2c, spi, pcsc", ErrInvalid, c.Reader.Transport)
	}
	if c.Reader.Transport != TransportPCSC && strings.TrimSpace(c.Reader.Port) == "" {
		return fmt.Errorf("%w: reader.port is required for %s", ErrInvalid, c.Reader.Transport)
	}
	if r := c.Reader.PassiveRetries; r != nil && (*r < 0 || *r > 0xFF) {
		return fmt.Errorf("%w: reader.passive_retries must be 0-255", ErrInvalid)
	}
	if c.Reader.CardTimeout < 0 {
		return fmt.Errorf("%w: reader.card_timeout must not be negative", ErrInvalid)
	}
	if c.Engine.SweptKeyLimit < 0 {
		return fmt.Errorf("%w: engine.swept_key_limit must not be negative", ErrInvalid)
	}
	if _, err := c.EngineConfig(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// EngineConfig overlays the file's engine section on the defaults.
func (c *Config) EngineConfig() (*mfclassic.EngineConfig, error) {
	out := mfclassic.DefaultEngineConfig()
	e := c.Engine
	setDuration(&out.AuthTimeout, e.AuthTimeout)
	setDuration(&out.ReadTimeout, e.ReadTimeout)
	setDuration(&out.PresenceTimeout, e.PresenceTimeout)
	setDuration(&out.SelectTimeout, e.SelectTimeout)
	setDuration(&out.PollInterval, e.PollInterval)
	setDuration(&out.MaxWait, e.MaxWait)
	if e.SweptKeyLimit > 0 {
		out.SweptKeyLimit = e.SweptKeyLimit
	}
	if e.VerifyPass != nil {
		out.VerifyPass = *e.VerifyPass
	}
	if e.ProbeMagic != nil {
		out.ProbeMagic = *e.ProbeMagic
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func (c *Config) resolvePaths(dir string) {
	c.Dictionary.UserFile = resolvePath(dir, c.Dictionary.UserFile)
	c.Dump.Dir = resolvePath(dir, c.Dump.Dir)
	c.Log.SessionDir = resolvePath(dir, c.Log.SessionDir)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(baseDir, trimmed)
}
