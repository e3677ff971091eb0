// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/updraft-project/updraft/cmd/updraft/cli"
	"github.com/updraft-project/updraft/lib/updater"
)

type syncParams struct {
	cli.JSONOutput
	configParams
	Quiet bool `flag:"quiet,q" desc:"suppress progress output"`
}

func syncCommand() *cli.Command {
	var params syncParams

	return &cli.Command{
		Name:    "sync",
		Summary: "Run a full update cycle",
		Description: `Check the manifest, and when an update is offered: download, verify,
install, and activate it. The new bundle stays provisional until
"updraft confirm" runs before the readiness deadline; otherwise the
next startup check rolls back to the previous bundle.`,
		Usage: "updraft sync --config <file>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("sync", &params)
		},
		Examples: []cli.Example{
			{
				Description: "Apply any pending update",
				Command:     "updraft sync --config /etc/updraft.yaml",
			},
		},
		Run: func(args []string) error {
			u, err := openUpdater(params.configParams)
			if err != nil {
				return err
			}
			defer u.Close()

			events, cancel := u.Subscribe()
			defer cancel()
			progressDone := make(chan struct{})
			go func() {
				defer close(progressDone)
				for event := range events {
					if params.Quiet {
						continue
					}
					if event.State == updater.StateDownloading && event.Progress != nil {
						if event.Progress.TotalBytes > 0 {
							fmt.Printf("downloading: %d/%d bytes\n",
								event.Progress.BytesDownloaded, event.Progress.TotalBytes)
						} else {
							fmt.Printf("downloading: %d bytes\n", event.Progress.BytesDownloaded)
						}
						continue
					}
					fmt.Printf("%s\n", event.State)
				}
			}()

			result, err := u.Sync(context.Background())
			cancel()
			<-progressDone
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(result); done {
				return err
			}
			switch result.State {
			case updater.StateAwaitingConfirmation:
				fmt.Printf("activated %s (bundle %s), awaiting confirmation\n",
					result.Decision.Version, result.BundleID)
			default:
				fmt.Printf("up to date (%s)\n", result.Decision.Reason)
			}
			return nil
		},
	}
}
