// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/updraft-project/updraft/cmd/updraft/cli"
)

type listParams struct {
	cli.JSONOutput
	configParams
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List every bundle in the store",
		Usage:   "updraft list --config <file>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(args []string) error {
			u, err := openUpdater(params.configParams)
			if err != nil {
				return err
			}
			defer u.Close()

			bundles, err := u.List()
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(bundles); done {
				return err
			}
			if len(bundles) == 0 {
				fmt.Println("no bundles")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "BUNDLE\tVERSION\tCHANNEL\tSTATUS\tSIZE\tINSTALLED")
			for _, meta := range bundles {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					meta.BundleID,
					meta.Version,
					meta.Channel,
					meta.Status,
					humanize.Bytes(uint64(meta.SizeBytes)),
					meta.InstalledAt.Format(time.RFC3339),
				)
			}
			return tw.Flush()
		},
	}
}
