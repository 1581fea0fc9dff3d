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

// Command mfcrack recovers MIFARE Classic keys and dumps cards through a
// PN532 or PC/SC reader.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/usedbytes/log"

	"github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/internal/config"
)

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := ctx.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if ctx.IsSet("transport") {
		cfg.Reader.Transport = ctx.String("transport")
	}
	if ctx.IsSet("port") {
		cfg.Reader.Port = ctx.String("port")
	}
	if ctx.IsSet("dict") {
		cfg.Dictionary.UserFile = ctx.String("dict")
	}
	if ctx.Bool("debug") {
		cfg.Log.Debug = true
	}
	if ctx.Bool("verbose") {
		cfg.Log.Verbose = true
	}
	return cfg, nil
}

func userDictionary(ctx *cli.Context) (*mfclassic.UserDictionary, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Dictionary.UserFile == "" {
		return nil, errors.New("no user dictionary configured, use --dict or dictionary.user_file")
	}
	return mfclassic.NewUserDictionary(cfg.Dictionary.UserFile), nil
}

func newApp() *cli.App {
	app := &cli.App{
		Name:  "mfcrack",
		Usage: "Recover MIFARE Classic keys and dump cards",
		// Errors are printed by main.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"MFCRACK_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Usage:   "Reader transport: uart, i2c, spi or pcsc",
			},
			&cli.StringFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Serial device (or auto), I2C bus, SPI port or PC/SC reader name",
			},
			&cli.StringFlag{
				Name:  "dict",
				Usage: "User dictionary file",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable more output",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Log reader traffic and engine decisions",
			},
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:   "read",
			Usage:  "Wait for a card, recover its keys and save a dump",
			Action: readAction,
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "timeout",
					Usage: "Give up when no card arrives within this time",
				},
				&cli.BoolFlag{
					Name:  "no-save",
					Usage: "Do not write a dump file",
				},
				&cli.BoolFlag{
					Name:  "save-keys",
					Usage: "Append recovered keys to the user dictionary",
				},
			},
		},
		{
			Name:  "dump",
			Usage: "Work with saved dumps",
			Subcommands: []*cli.Command{
				{
					Name:      "show",
					ArgsUsage: "DUMP_FILE",
					Usage:     "Print the summary of a dump",
					Action:    dumpShowAction,
					Flags: []cli.Flag{
						&cli.BoolFlag{
							Name:  "blocks",
							Usage: "Print every block",
						},
					},
				},
			},
		},
		{
			Name:  "dict",
			Usage: "Manage the user dictionary",
			Subcommands: []*cli.Command{
				{
					Name:   "list",
					Usage:  "Print the user dictionary",
					Action: dictListAction,
				},
				{
					Name:      "add",
					ArgsUsage: "KEY...",
					Usage:     "Append keys given as 12 hex digits",
					Action:    dictAddAction,
				},
				{
					Name:      "import",
					ArgsUsage: "FILE",
					Usage:     "Append every key found in a dictionary file",
					Action:    dictImportAction,
				},
			},
		},
	}

	app.Before = func(ctx *cli.Context) error {
		log.SetUseLog(false)

		log.SetVerbose(ctx.Bool("verbose"))
		mfclassic.SetDebugEnabled(ctx.Bool("debug"))
		log.Verboseln("Extra output enabled.")
		return nil
	}
	return app
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Println("ERROR:", err)
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			os.Exit(ec.ExitCode())
		}
		os.Exit(1)
	}
}

func exitf(code int, format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), code)
}
