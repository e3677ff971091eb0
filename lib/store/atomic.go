// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// atomicWrite writes data to path so that readers never observe a
// partial file: write to a temporary file in tmpDir, fsync, rename
// into place, fsync the parent directory. tmpDir must be on the same
// filesystem as path for the rename to be atomic.
func atomicWrite(tmpDir, path string, data []byte) error {
	tmpFile, err := os.CreateTemp(tmpDir, "write-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Write, sync, close — in that order. If any step fails, remove
	// the temporary file and report the first error.
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}

	syncDir(filepath.Dir(path))
	return nil
}

// syncDir fsyncs a directory so a completed rename survives power
// loss. Best-effort: some filesystems reject directory fsync.
func syncDir(dir string) {
	handle, err := os.Open(dir)
	if err != nil {
		return
	}
	handle.Sync()
	handle.Close()
}
