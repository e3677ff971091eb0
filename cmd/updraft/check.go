// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/updraft-project/updraft/cmd/updraft/cli"
)

type checkParams struct {
	cli.JSONOutput
	configParams
}

func checkCommand() *cli.Command {
	var params checkParams

	return &cli.Command{
		Name:    "check",
		Summary: "Query the manifest endpoint without downloading",
		Description: `Ask the release server whether an update is available for this
device. Nothing is downloaded or installed; sync performs the full
cycle.`,
		Usage: "updraft check --config <file>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("check", &params)
		},
		Examples: []cli.Example{
			{
				Description: "Check for an update",
				Command:     "updraft check --config /etc/updraft.yaml",
			},
		},
		Run: func(args []string) error {
			u, err := openUpdater(params.configParams)
			if err != nil {
				return err
			}
			defer u.Close()

			decision, err := u.Check(context.Background())
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(decision); done {
				return err
			}
			if !decision.Available {
				fmt.Printf("no update available (%s)\n", decision.Reason)
				return nil
			}
			fmt.Printf("update available: %s", decision.Version)
			if decision.Mandatory {
				fmt.Printf(" (mandatory)")
			}
			fmt.Println()
			if decision.ReleaseNotes != "" {
				fmt.Println(decision.ReleaseNotes)
			}
			return nil
		},
	}
}
