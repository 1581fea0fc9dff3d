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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/enrich"
)

func dumpShowAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return errors.New("DUMP_FILE is required")
	}
	f, err := os.Open(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("open dump: %w", err)
	}
	defer f.Close()

	return showDump(ctx.App.Writer, f, ctx.Bool("blocks"))
}

func showDump(w io.Writer, r io.Reader, blocks bool) error {
	d, err := mfclassic.ParseDump(r)
	if err != nil {
		return err
	}
	snap := d.Snapshot()
	if _, err := fmt.Fprintln(w, mfclassic.Summary(snap, enrich.NDEF{})); err != nil {
		return err
	}
	if !blocks {
		return nil
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	return mfclassic.WriteDump(w, snap)
}
