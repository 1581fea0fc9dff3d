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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/usedbytes/log"

	"github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/enrich"
	"github.com/ZaparooProject/go-mfclassic/scan"
)

func readAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Log.SessionDir != "" {
		path, err := mfclassic.InitSessionLog(cfg.Log.SessionDir)
		if err != nil {
			return err
		}
		defer func() { _ = mfclassic.CloseSessionLog() }()
		log.Verbosef("Session log %s\n", path)
	}
	if cfg.Log.Debug {
		mfclassic.SetDebugEnabled(true)
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rd, err := openReader(sigCtx, cfg.Reader)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rd.Close(); cerr != nil {
			log.Verboseln("Closing reader:", cerr)
		}
	}()

	dict := newDictionary(cfg.Dictionary)
	engine, err := mfclassic.NewEngine(rd, dict, mfclassic.WithConfig(engineCfg))
	if err != nil {
		return err
	}

	scanCfg := scan.DefaultConfig()
	scanCfg.PollInterval = engineCfg.PollInterval
	scanCfg.CardTimeout = cfg.Reader.CardTimeout
	if ctx.IsSet("timeout") {
		scanCfg.CardTimeout = ctx.Duration("timeout")
	}

	interactive := isTerminal(os.Stdout) && isTerminal(os.Stdin)
	var (
		observer mfclassic.ProgressHooks = logHooks{}
		bar      *barHooks
	)
	if interactive {
		bar = newBarHooks(os.Stdout)
		observer = bar
	}

	worker, err := scan.New(engine, scanCfg, scan.WithObserver(observer))
	if err != nil {
		return err
	}

	log.Println("Waiting for a MIFARE Classic card...")
	if err := worker.Start(sigCtx); err != nil {
		return err
	}
	go func() {
		select {
		case <-sigCtx.Done():
			worker.Stop()
		case <-worker.Done():
		}
	}()

	if interactive {
		restore, kerr := keyControls(os.Stdin, worker.SkipDict, func() { go worker.Stop() })
		if kerr != nil {
			log.Verboseln(kerr)
		} else {
			defer restore()
		}
		bar.start()
	}

	report, err := worker.Wait(context.Background())
	if bar != nil {
		bar.finish()
	}
	if errors.Is(err, mfclassic.ErrNoTag) {
		return exitf(2, "no card: %v", err)
	}
	if report == nil {
		return err
	}
	if err != nil && !errors.Is(err, mfclassic.ErrCancelled) {
		log.Println("Read stopped:", err)
	}

	snap := engine.Session().Snapshot()
	printReport(report)
	fmt.Println(mfclassic.Summary(snap, enrich.NDEF{}))

	if ctx.Bool("save-keys") {
		if err := saveKeys(dict.User(), snap); err != nil {
			return err
		}
	}
	if !ctx.Bool("no-save") && snap.Valid {
		path, err := mfclassic.SaveDump(cfg.Dump.Dir, snap)
		if err != nil {
			return fmt.Errorf("save dump: %w", err)
		}
		log.Println("Saved", path)
	}
	return nil
}

func printReport(r *mfclassic.Report) {
	log.Printf("Pass %s in %s, %d sectors solved, %d authentications\n",
		r.Result, r.Duration.Round(time.Millisecond), r.Solved(), r.AuthAttempts)
	if r.Magic {
		log.Println("Card answers the Gen1 backdoor")
	}

	sources := make([]mfclassic.Source, 0, len(r.Sources))
	for s := range r.Sources {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	for _, s := range sources {
		log.Verbosef("  %-20s %d keys\n", s, r.Sources[s])
	}
	for i, res := range r.Sectors {
		if res != mfclassic.SectorSolved {
			log.Verbosef("  sector %2d %s\n", i, res)
		}
	}
}

// saveKeys appends every recovered key to the user dictionary.
func saveKeys(user *mfclassic.UserDictionary, snap *mfclassic.Snapshot) error {
	if user == nil {
		return errors.New("--save-keys needs a user dictionary")
	}
	added := 0
	for s := 0; s < snap.Type.SectorCount(); s++ {
		for _, kt := range []mfclassic.KeyType{mfclassic.KeyA, mfclassic.KeyB} {
			k, ok := snap.SectorKey(mfclassic.SectorIndex(s), kt)
			if !ok {
				continue
			}
			isNew, err := user.Append(k)
			if err != nil {
				return fmt.Errorf("save key: %w", err)
			}
			if isNew {
				added++
			}
		}
	}
	log.Printf("Added %d keys to %s\n", added, user.Path())
	return nil
}
