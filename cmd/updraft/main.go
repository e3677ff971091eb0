// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// The updraft command manages over-the-air bundle updates on a
// device: checking the release manifest, downloading and verifying
// bundles, switching the active bundle, and rolling back unconfirmed
// updates.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCommand().Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
