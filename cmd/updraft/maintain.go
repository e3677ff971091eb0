// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/updraft-project/updraft/cmd/updraft/cli"
)

type maintainParams struct {
	configParams
}

func cleanupCommand() *cli.Command {
	var params maintainParams

	return &cli.Command{
		Name:    "cleanup",
		Summary: "Delete old bundles beyond the retention count",
		Usage:   "updraft cleanup --config <file>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("cleanup", &params)
		},
		Run: func(args []string) error {
			u, err := openUpdater(params.configParams)
			if err != nil {
				return err
			}
			defer u.Close()

			deleted, err := u.Cleanup()
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d bundle(s)\n", deleted)
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	var params maintainParams

	return &cli.Command{
		Name:    "delete",
		Summary: "Delete a bundle by ID",
		Description: `Delete a single bundle. The active bundle and a bundle awaiting
readiness confirmation are refused.`,
		Usage: "updraft delete --config <file> <bundle-id>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("delete", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("delete takes exactly one bundle ID")
			}
			u, err := openUpdater(params.configParams)
			if err != nil {
				return err
			}
			defer u.Close()

			if err := u.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

func resetCommand() *cli.Command {
	var params maintainParams

	return &cli.Command{
		Name:    "reset",
		Summary: "Revert to the original bundle and delete the rest",
		Description: `Reactivate the earliest-installed bundle and delete every other
bundle from the store. Intended for recovery and testing; there is no
undo.`,
		Usage: "updraft reset --config <file>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("reset", &params)
		},
		Run: func(args []string) error {
			u, err := openUpdater(params.configParams)
			if err != nil {
				return err
			}
			defer u.Close()

			if err := u.Reset(); err != nil {
				return err
			}
			fmt.Println("store reset")
			return nil
		},
	}
}
