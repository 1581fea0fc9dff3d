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
	"os"

	"github.com/urfave/cli/v2"
	"github.com/usedbytes/log"

	"github.com/ZaparooProject/go-mfclassic"
)

func dictListAction(ctx *cli.Context) error {
	user, err := userDictionary(ctx)
	if err != nil {
		return err
	}
	keys, err := user.Keys()
	if errors.Is(err, mfclassic.ErrDictionaryUnavailable) {
		log.Verboseln("Dictionary", user.Path(), "is empty or missing")
		return nil
	}
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(ctx.App.Writer, k)
	}
	log.Verbosef("%d keys in %s\n", len(keys), user.Path())
	return nil
}

func dictAddAction(ctx *cli.Context) error {
	if ctx.Args().Len() == 0 {
		return errors.New("at least one KEY is required")
	}
	user, err := userDictionary(ctx)
	if err != nil {
		return err
	}
	for _, arg := range ctx.Args().Slice() {
		k, err := mfclassic.ParseKey(arg)
		if err != nil {
			return fmt.Errorf("key %q: %w", arg, err)
		}
		added, err := user.Append(k)
		if err != nil {
			return err
		}
		if added {
			log.Println("Added", k)
		} else {
			log.Println("Already present", k)
		}
	}
	return nil
}

func dictImportAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return errors.New("FILE is required")
	}
	user, err := userDictionary(ctx)
	if err != nil {
		return err
	}
	f, err := os.Open(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("open key file: %w", err)
	}
	defer f.Close()

	n, err := user.Import(f)
	if err != nil {
		return err
	}
	log.Printf("Imported %d new keys into %s\n", n, user.Path())
	return nil
}
