// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/updraft-project/updraft/cmd/updraft/cli"
	"github.com/updraft-project/updraft/lib/store"
)

type statusParams struct {
	cli.JSONOutput
	configParams
}

// statusReport is the JSON shape of "updraft status".
type statusReport struct {
	ActiveBundleID   string     `json:"activeBundleId,omitempty"`
	ActiveVersion    string     `json:"activeVersion,omitempty"`
	Channel          string     `json:"channel,omitempty"`
	ActivatedAt      *time.Time `json:"activatedAt,omitempty"`
	AwaitingBundleID string     `json:"awaitingBundleId,omitempty"`
	Deadline         *time.Time `json:"deadline,omitempty"`
}

func statusCommand() *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "status",
		Summary: "Show the active bundle and readiness state",
		Usage:   "updraft status --config <file>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(args []string) error {
			u, err := openUpdater(params.configParams)
			if err != nil {
				return err
			}
			defer u.Close()

			var report statusReport
			active, err := u.Active()
			switch {
			case err == nil:
				report.ActiveBundleID = active.BundleID
				report.ActiveVersion = active.Version
				report.Channel = active.Channel
				if !active.ActivatedAt.IsZero() {
					activatedAt := active.ActivatedAt
					report.ActivatedAt = &activatedAt
				}
			case errors.Is(err, store.ErrNoActiveBundle):
				// Fresh install, nothing activated yet.
			default:
				return err
			}

			record, awaiting, err := u.AwaitingConfirmation()
			if err != nil {
				return err
			}
			if awaiting {
				report.AwaitingBundleID = record.BundleID
				deadline := record.Deadline
				report.Deadline = &deadline
			}

			if done, err := params.EmitJSON(report); done {
				return err
			}

			if report.ActiveBundleID == "" {
				fmt.Println("no active bundle")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "active bundle:\t%s\n", report.ActiveBundleID)
			fmt.Fprintf(tw, "version:\t%s\n", report.ActiveVersion)
			fmt.Fprintf(tw, "channel:\t%s\n", report.Channel)
			if report.ActivatedAt != nil {
				fmt.Fprintf(tw, "activated:\t%s\n", report.ActivatedAt.Format(time.RFC3339))
			}
			if awaiting {
				fmt.Fprintf(tw, "awaiting confirmation:\tyes (deadline %s)\n",
					record.Deadline.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}
