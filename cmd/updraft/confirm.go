// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/updraft-project/updraft/cmd/updraft/cli"
)

type confirmParams struct {
	configParams
}

func confirmCommand() *cli.Command {
	var params confirmParams

	return &cli.Command{
		Name:    "confirm",
		Summary: "Confirm the awaiting bundle is healthy",
		Description: `Mark the provisionally active bundle as confirmed. Run this after the
application has booted successfully on the new bundle and before the
readiness deadline; a bundle that is never confirmed is rolled back at
the next startup check.`,
		Usage: "updraft confirm --config <file>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("confirm", &params)
		},
		Run: func(args []string) error {
			u, err := openUpdater(params.configParams)
			if err != nil {
				return err
			}
			defer u.Close()

			if _, awaiting, err := u.AwaitingConfirmation(); err != nil {
				return err
			} else if !awaiting {
				fmt.Println("nothing awaiting confirmation")
				return nil
			}
			if err := u.NotifyAppReady(); err != nil {
				return err
			}
			fmt.Println("bundle confirmed")
			return nil
		},
	}
}

func startupCheckCommand() *cli.Command {
	var params confirmParams

	return &cli.Command{
		Name:    "startup-check",
		Summary: "Run the readiness check and roll back if needed",
		Description: `Inspect the readiness record left by the last activation. If its
deadline passed without confirmation, roll back to the previous
bundle and mark the unconfirmed one failed. Run this once at process
start, before the application touches bundle content.`,
		Usage: "updraft startup-check --config <file>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("startup-check", &params)
		},
		Run: func(args []string) error {
			u, err := openUpdater(params.configParams)
			if err != nil {
				return err
			}
			defer u.Close()

			if err := u.StartupCheck(); err != nil {
				return err
			}
			fmt.Println("startup check complete")
			return nil
		},
	}
}
