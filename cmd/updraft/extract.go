// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/updraft-project/updraft/cmd/updraft/cli"
	"github.com/updraft-project/updraft/lib/archive"
)

type extractParams struct {
	configParams
	Bundle string `flag:"bundle,b" desc:"bundle ID to extract (default: the active bundle)"`
}

func extractCommand() *cli.Command {
	var params extractParams

	return &cli.Command{
		Name:    "extract",
		Summary: "Extract a bundle's payload archive to a directory",
		Description: `Unpack a stored bundle payload (tar, optionally zstd, lz4, or gzip
compressed) into a directory. The compression format is detected from
the payload itself.`,
		Usage: "updraft extract --config <file> [--bundle <id>] <dest>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("extract", &params)
		},
		Examples: []cli.Example{
			{
				Description: "Extract the active bundle for inspection",
				Command:     "updraft extract --config /etc/updraft.yaml /tmp/bundle",
			},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("extract takes exactly one destination directory")
			}
			u, err := openUpdater(params.configParams)
			if err != nil {
				return err
			}
			defer u.Close()

			bundleID := params.Bundle
			if bundleID == "" {
				active, err := u.Active()
				if err != nil {
					return err
				}
				bundleID = active.BundleID
			}

			payload, err := u.Payload(bundleID)
			if err != nil {
				return err
			}
			defer payload.Close()

			if err := archive.Extract(args[0], payload); err != nil {
				return err
			}
			fmt.Printf("extracted %s to %s\n", bundleID, args[0])
			return nil
		},
	}
}
