// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command mautrix-telegram runs the appservice core of a Matrix-Telegram
// bridge: it answers room alias lookups from the homeserver and processes
// pushed event transactions, maintaining the room↔chat link mapping.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/util/dbutil"
	flag "maunium.net/go/mauflag"

	"github.com/aiku/mautrix-telegram/pkg/bridge"
	"github.com/aiku/mautrix-telegram/pkg/bridge/database"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath     = flag.MakeFull("c", "config", "The path to your config file.", "config.yaml").String()
	generateConfig = flag.MakeFull("g", "generate-example-config", "Save the example config and quit.", "false").Bool()
	noSaveConfig   = flag.MakeFull("n", "no-update", "Don't save updated config to disk.", "false").Bool()
	wantHelp, _    = flag.MakeHelpFlag()
)

const defaultListenAddr = ":29317"

func main() {
	flag.SetHelpTitles(
		"mautrix-telegram - A Matrix-Telegram bridge appservice core.",
		"mautrix-telegram [-h] [-c <path>] [-n] [-g]",
	)
	if err := flag.Parse(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.PrintHelp()
		os.Exit(1)
	} else if *wantHelp {
		flag.PrintHelp()
		return
	}

	if *generateConfig {
		if err := os.WriteFile(*configPath, []byte(bridge.ExampleConfig), 0o600); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to write example config:", err)
			os.Exit(2)
		}
		fmt.Println("Wrote example config to", *configPath)
		return
	}

	cfg, err := bridge.LoadConfig(*configPath, !*noSaveConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		fmt.Fprintln(os.Stderr, "Use -g to generate an example config.")
		os.Exit(2)
	}

	log, err := cfg.Logging.Compile()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to configure logger:", err)
		os.Exit(2)
	}
	log.Info().
		Str("version", Tag).
		Str("commit", Commit).
		Str("built_at", BuildTime).
		Msg("Initializing mautrix-telegram")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rawDB, err := dbutil.NewFromConfig("mautrix-telegram", cfg.Database, dbutil.ZeroLogger(*log))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	db := database.New(rawDB)
	if err = db.Upgrade(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to upgrade database schema")
	}

	creator, err := bridge.NewMatrixRoomCreator(cfg, *log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up room provisioner")
	}

	appservice, err := bridge.NewAppService(cfg, db.Link, creator, nil, *log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up appservice")
	}

	listenAddr := cfg.Appservice.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}
	server := &http.Server{
		Addr:         listenAddr,
		Handler:      appservice.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", listenAddr).Msg("Starting appservice listener")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Appservice listener error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Error shutting down listener")
	}
	if err = db.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing database")
	}
}
