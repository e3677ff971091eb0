// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/updraft-project/updraft/cmd/updraft/cli"
)

type historyParams struct {
	cli.JSONOutput
	configParams
	Limit int `flag:"limit,n" default:"20" desc:"maximum entries to show"`
}

func historyCommand() *cli.Command {
	var params historyParams

	return &cli.Command{
		Name:    "history",
		Summary: "Show recent update cycles",
		Usage:   "updraft history --config <file> [--limit n]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("history", &params)
		},
		Run: func(args []string) error {
			u, err := openUpdater(params.configParams)
			if err != nil {
				return err
			}
			defer u.Close()

			entries, err := u.History(context.Background(), params.Limit)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(entries); done {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no history")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "FINISHED\tFROM\tTO\tOUTCOME\tDETAIL")
			for _, entry := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					entry.FinishedAt.Format(time.RFC3339),
					entry.FromVersion,
					entry.ToVersion,
					entry.Outcome,
					entry.Detail,
				)
			}
			return tw.Flush()
		},
	}
}
