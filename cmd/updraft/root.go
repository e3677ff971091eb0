// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/updraft-project/updraft/cmd/updraft/cli"
	"github.com/updraft-project/updraft/lib/config"
	"github.com/updraft-project/updraft/lib/updater"
	"github.com/updraft-project/updraft/lib/version"
)

func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "updraft",
		Description: `Updraft: over-the-air bundle update engine.

Checks a release manifest, downloads and verifies update bundles,
and switches the active bundle atomically with crash-safe rollback.`,
		Subcommands: []*cli.Command{
			checkCommand(),
			syncCommand(),
			statusCommand(),
			listCommand(),
			confirmCommand(),
			startupCheckCommand(),
			historyCommand(),
			cleanupCommand(),
			deleteCommand(),
			resetCommand(),
			extractCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("updraft %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

// configParams is embedded in every subcommand's params struct.
type configParams struct {
	ConfigPath string `flag:"config,c" desc:"path to the configuration file (YAML or JSONC)"`
}

// newLogger builds the standard logger: JSON handler on stderr at
// Info level, installed as the slog default.
func newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

// openUpdater loads the configuration file and builds the updater.
// The caller must Close it.
func openUpdater(params configParams) (*updater.Updater, error) {
	if params.ConfigPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.LoadFile(params.ConfigPath)
	if err != nil {
		return nil, err
	}
	return updater.New(cfg, updater.Options{Logger: newLogger()})
}
