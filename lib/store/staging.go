// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// StagingFile is a bundle payload being downloaded. It lives in the
// store's staging directory and has no metadata record — if the
// download is cancelled or the process crashes, Discard (or the
// store's startup sweep) removes the partial file and no trace of the
// bundle remains.
//
// A StagingFile moves through exactly one of two exits: Discard, or
// verification followed by [Store.Install].
type StagingFile struct {
	store   *Store
	id      string
	version string
	channel string
	path    string
	file    *os.File

	size     int64
	status   Status
	checksum string
	closed   bool
	gone     bool
}

// NewStagingFile creates a staging file for a bundle of the given
// version and channel and assigns its bundle ID.
func (s *Store) NewStagingFile(version, channel string) (*StagingFile, error) {
	id := uuid.NewString()
	path := s.stagingPath(id)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}

	return &StagingFile{
		store:   s,
		id:      id,
		version: version,
		channel: channel,
		path:    path,
		file:    file,
		status:  StatusStaging,
	}, nil
}

// BundleID returns the bundle identifier assigned at creation.
func (f *StagingFile) BundleID() string { return f.id }

// Version returns the manifest-declared version being staged.
func (f *StagingFile) Version() string { return f.version }

// Channel returns the release track being staged.
func (f *StagingFile) Channel() string { return f.channel }

// Size returns the number of bytes written so far.
func (f *StagingFile) Size() int64 { return f.size }

// Status returns the staging lifecycle state (staging or verified).
func (f *StagingFile) Status() Status { return f.status }

// Write appends payload bytes. Implements io.Writer for the
// downloader's streaming copy.
func (f *StagingFile) Write(p []byte) (int, error) {
	if f.gone {
		return 0, fmt.Errorf("staging file %s already discarded", f.id)
	}
	if f.closed {
		return 0, fmt.Errorf("staging file %s already closed", f.id)
	}
	n, err := f.file.Write(p)
	f.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing staging file: %w", err)
	}
	return n, nil
}

// Open returns a read handle over the staged bytes, for the single
// verification pass. The write handle is flushed and closed first.
func (f *StagingFile) Open() (io.ReadCloser, error) {
	if f.gone {
		return nil, fmt.Errorf("staging file %s already discarded", f.id)
	}
	if err := f.finish(); err != nil {
		return nil, err
	}
	reader, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("opening staging file for read: %w", err)
	}
	return reader, nil
}

// MarkVerified records a passed integrity check: the measured
// checksum is stored and the staging file becomes installable. Only
// the integrity verifier calls this.
func (f *StagingFile) MarkVerified(checksum string) {
	f.checksum = checksum
	f.status = StatusVerified
}

// Discard closes and deletes the partial file. Idempotent; safe to
// defer alongside the success path.
func (f *StagingFile) Discard() error {
	if f.gone {
		return nil
	}
	f.gone = true
	if !f.closed {
		f.closed = true
		f.file.Close()
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing staging file: %w", err)
	}
	return nil
}

// finish fsyncs and closes the write handle. Idempotent.
func (f *StagingFile) finish() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if err := f.file.Sync(); err != nil {
		f.file.Close()
		return fmt.Errorf("syncing staging file: %w", err)
	}
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("closing staging file: %w", err)
	}
	return nil
}

// stagingPath returns the partial-download path for a bundle ID.
func (s *Store) stagingPath(id string) string {
	return filepath.Join(s.stagingDir(), id+".partial")
}
