// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package store owns the on-disk representation of every known bundle
// and the single activation pointer.
//
// Layout under the store root:
//
//	bundles/<bundleId>/payload        raw verified payload
//	bundles/<bundleId>/content/       extracted payload (optional)
//	bundles/<bundleId>/metadata.cbor  per-bundle record
//	staging/<bundleId>.partial        in-flight downloads
//	active.cbor                       activation pointer
//	readiness.cbor                    open readiness record
//	tmp/                              atomic-write scratch
//
// Every record write goes through temp-file + fsync + rename + parent
// directory fsync, and the activation pointer is the commit point of
// an activation: a crash between any two steps is repaired by Open,
// which reconciles bundle statuses against the pointer and sweeps
// orphaned staging and tmp files. No other package reads or writes
// these locations.
package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/updraft-project/updraft/lib/archive"
	"github.com/updraft-project/updraft/lib/clock"
	"github.com/updraft-project/updraft/lib/codec"
)

// Directory and file names within the store root.
const (
	bundlesDirName = "bundles"
	stagingDirName = "staging"
	tmpDirName     = "tmp"

	payloadName   = "payload"
	contentName   = "content"
	metadataName  = "metadata.cbor"
	pointerName   = "active.cbor"
	readinessName = "readiness.cbor"
)

// Options configures a Store.
type Options struct {
	// Clock supplies install and activation timestamps. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives recovery and invariant warnings. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// ExtractOnInstall extracts the payload archive into the
	// bundle's content directory during Install. Payloads that are
	// not recognized archives fail the install.
	ExtractOnInstall bool
}

// Store is the bundle store. All mutating operations are serialized
// by an internal mutex; reads of the activation pointer verify
// pointer/status consistency on every call.
type Store struct {
	root    string
	clock   clock.Clock
	logger  *slog.Logger
	extract bool

	mu sync.Mutex
}

// activePointer is the single persisted record naming the active
// bundle. Rewritten atomically on every activation.
type activePointer struct {
	BundleID  string    `cbor:"bundle_id"`
	UpdatedAt time.Time `cbor:"updated_at"`
}

// Open opens (or creates) a store rooted at the given directory and
// runs crash recovery: orphaned staging and tmp files are removed,
// and bundle statuses are reconciled against the activation pointer.
func Open(root string, opts Options) (*Store, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Store{
		root:    root,
		clock:   opts.Clock,
		logger:  opts.Logger,
		extract: opts.ExtractOnInstall,
	}

	for _, dir := range []string{root, s.bundlesDir(), s.stagingDir(), s.tmpDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}

	if err := s.recover(); err != nil {
		return nil, fmt.Errorf("recovering store state: %w", err)
	}
	return s, nil
}

// Install atomically moves a verified staging file into permanent
// storage and records it as installed. The move is a rename, never a
// copy, so a crash mid-install cannot leave a half-written bundle: a
// bundle directory either has a complete metadata record or is swept
// as garbage by recovery.
func (s *Store) Install(staged *StagingFile) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if staged.status != StatusVerified {
		staged.Discard()
		return Metadata{}, ErrNotVerified
	}
	if err := staged.finish(); err != nil {
		staged.Discard()
		return Metadata{}, err
	}

	bundleDir := s.bundleDir(staged.id)
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		staged.Discard()
		return Metadata{}, wrapStorage("creating bundle directory", err)
	}

	cleanup := func() {
		os.RemoveAll(bundleDir)
		staged.Discard()
	}

	if err := os.Rename(staged.path, filepath.Join(bundleDir, payloadName)); err != nil {
		cleanup()
		return Metadata{}, wrapStorage("moving payload into place", err)
	}
	staged.gone = true
	syncDir(s.stagingDir())
	syncDir(bundleDir)

	if s.extract {
		if err := s.extractPayload(staged.id); err != nil {
			os.RemoveAll(bundleDir)
			return Metadata{}, wrapStorage("extracting payload", err)
		}
	}

	meta := Metadata{
		BundleID:    staged.id,
		Version:     staged.version,
		Channel:     staged.channel,
		Checksum:    staged.checksum,
		SizeBytes:   staged.size,
		Status:      StatusInstalled,
		InstalledAt: s.clock.Now(),
	}
	if err := s.saveMetadata(meta); err != nil {
		os.RemoveAll(bundleDir)
		return Metadata{}, wrapStorage("writing bundle metadata", err)
	}
	return meta, nil
}

// Activate makes the named installed bundle the active one. The
// previously active bundle is demoted to installed and retained as
// the rollback target. The pointer rewrite is the commit point; a
// crash before it leaves the previous activation in effect, and Open
// reconciles any half-updated statuses.
func (s *Store) Activate(bundleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadMetadata(bundleID)
	if err != nil {
		return err
	}

	pointer, hasPointer, err := s.readPointer()
	if err != nil {
		return err
	}
	if hasPointer && pointer.BundleID == bundleID {
		// Re-activating the active bundle is a no-op.
		return nil
	}

	if hasPointer {
		previous, err := s.loadMetadata(pointer.BundleID)
		if err == nil && previous.Status == StatusActive {
			previous.Status = StatusInstalled
			if err := s.saveMetadata(previous); err != nil {
				return fmt.Errorf("demoting previous bundle: %w", err)
			}
		}
	}

	meta.Status = StatusActive
	meta.ActivatedAt = s.clock.Now()
	if err := s.saveMetadata(meta); err != nil {
		return fmt.Errorf("promoting bundle %s: %w", bundleID, err)
	}

	if err := s.writePointer(activePointer{BundleID: bundleID, UpdatedAt: s.clock.Now()}); err != nil {
		return fmt.Errorf("writing activation pointer: %w", err)
	}

	return s.checkActiveInvariant()
}

// Active returns the metadata of the active bundle, verifying that
// the pointer and the bundle's status agree. A status left behind by
// a crash is repaired on read.
func (s *Store) Active() (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

func (s *Store) activeLocked() (Metadata, error) {
	pointer, hasPointer, err := s.readPointer()
	if err != nil {
		return Metadata{}, err
	}
	if !hasPointer {
		return Metadata{}, ErrNoActiveBundle
	}

	meta, err := s.loadMetadata(pointer.BundleID)
	if err != nil {
		return Metadata{}, fmt.Errorf("activation pointer names %s: %w", pointer.BundleID, err)
	}
	if meta.Status != StatusActive {
		meta.Status = StatusActive
		if err := s.saveMetadata(meta); err != nil {
			return Metadata{}, fmt.Errorf("repairing active status: %w", err)
		}
	}
	return meta, nil
}

// Get returns the metadata record for a bundle.
func (s *Store) Get(bundleID string) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadMetadata(bundleID)
}

// List returns every known bundle, ordered oldest install first.
func (s *Store) List() ([]Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Store) listLocked() ([]Metadata, error) {
	entries, err := os.ReadDir(s.bundlesDir())
	if err != nil {
		return nil, fmt.Errorf("reading bundles directory: %w", err)
	}

	var bundles []Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.loadMetadata(entry.Name())
		if err != nil {
			// A bundle directory without a readable metadata record
			// is install garbage from a crash. Skip it; recovery
			// sweeps it on the next Open.
			s.logger.Warn("skipping bundle with unreadable metadata",
				"bundle_id", entry.Name(), "error", err)
			continue
		}
		bundles = append(bundles, meta)
	}

	sort.Slice(bundles, func(i, j int) bool {
		return bundles[i].InstalledAt.Before(bundles[j].InstalledAt)
	})
	return bundles, nil
}

// Delete removes a bundle. Refused with ErrBundleBusy for the active
// bundle or a bundle covered by an open readiness record.
func (s *Store) Delete(bundleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(bundleID)
}

func (s *Store) deleteLocked(bundleID string) error {
	if _, err := s.loadMetadata(bundleID); err != nil {
		return err
	}

	pointer, hasPointer, err := s.readPointer()
	if err != nil {
		return err
	}
	if hasPointer && pointer.BundleID == bundleID {
		return fmt.Errorf("deleting bundle %s: %w", bundleID, ErrBundleBusy)
	}
	if record, ok, err := s.readinessLocked(); err != nil {
		return err
	} else if ok && record.BundleID == bundleID {
		return fmt.Errorf("deleting bundle %s: %w", bundleID, ErrBundleBusy)
	}

	if err := os.RemoveAll(s.bundleDir(bundleID)); err != nil {
		return fmt.Errorf("removing bundle %s: %w", bundleID, err)
	}
	syncDir(s.bundlesDir())
	return nil
}

// MarkFailed records a bundle as failed (readiness rollback outcome).
// The payload is retained for diagnostics until retention cleanup.
func (s *Store) MarkFailed(bundleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadMetadata(bundleID)
	if err != nil {
		return err
	}
	pointer, hasPointer, err := s.readPointer()
	if err != nil {
		return err
	}
	if hasPointer && pointer.BundleID == bundleID {
		return fmt.Errorf("marking bundle %s failed: %w", bundleID, ErrBundleBusy)
	}

	meta.Status = StatusFailed
	return s.saveMetadata(meta)
}

// Cleanup deletes the oldest non-active installed bundles beyond the
// most recent retain, by install time. The active bundle and bundles
// under an open readiness record are never touched. Returns the
// number of bundles deleted.
func (s *Store) Cleanup(retain int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if retain < 0 {
		return 0, fmt.Errorf("retain count must be non-negative, got %d", retain)
	}

	bundles, err := s.listLocked()
	if err != nil {
		return 0, err
	}

	pointer, hasPointer, err := s.readPointer()
	if err != nil {
		return 0, err
	}
	record, hasRecord, err := s.readinessLocked()
	if err != nil {
		return 0, err
	}

	// Candidates oldest-first: installed or failed, not active, not
	// readiness-referenced.
	var candidates []Metadata
	for _, meta := range bundles {
		if hasPointer && meta.BundleID == pointer.BundleID {
			continue
		}
		if hasRecord && meta.BundleID == record.BundleID {
			continue
		}
		if meta.Status != StatusInstalled && meta.Status != StatusFailed {
			continue
		}
		candidates = append(candidates, meta)
	}

	if len(candidates) <= retain {
		return 0, nil
	}

	deleted := 0
	for _, victim := range candidates[:len(candidates)-retain] {
		if err := s.deleteLocked(victim.BundleID); err != nil {
			return deleted, fmt.Errorf("cleanup of %s: %w", victim.BundleID, err)
		}
		deleted++
	}
	return deleted, nil
}

// PreviousInstalled returns the rollback target: the installed bundle
// with the most recent activation time, excluding excludeID. ok is
// false when no previously-activated bundle remains.
func (s *Store) PreviousInstalled(excludeID string) (Metadata, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bundles, err := s.listLocked()
	if err != nil {
		return Metadata{}, false, err
	}

	var best Metadata
	found := false
	for _, meta := range bundles {
		if meta.BundleID == excludeID || meta.Status != StatusInstalled || meta.ActivatedAt.IsZero() {
			continue
		}
		if !found || meta.ActivatedAt.After(best.ActivatedAt) {
			best = meta
			found = true
		}
	}
	return best, found, nil
}

// Oldest returns the earliest-installed bundle (the factory-state
// target for Reset). ok is false when the store is empty.
func (s *Store) Oldest() (Metadata, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bundles, err := s.listLocked()
	if err != nil {
		return Metadata{}, false, err
	}
	if len(bundles) == 0 {
		return Metadata{}, false, nil
	}
	return bundles[0], true, nil
}

// Payload opens the raw payload of an installed bundle for reading.
func (s *Store) Payload(bundleID string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.loadMetadata(bundleID); err != nil {
		return nil, err
	}
	reader, err := os.Open(filepath.Join(s.bundleDir(bundleID), payloadName))
	if err != nil {
		return nil, fmt.Errorf("opening payload for %s: %w", bundleID, err)
	}
	return reader, nil
}

// ContentDir returns the extracted-content directory of an installed
// bundle. It exists only when the store extracts on install.
func (s *Store) ContentDir(bundleID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.loadMetadata(bundleID); err != nil {
		return "", err
	}
	dir := filepath.Join(s.bundleDir(bundleID), contentName)
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("bundle %s has no extracted content: %w", bundleID, err)
	}
	return dir, nil
}

// --- recovery and invariants ---

// recover sweeps staging and tmp garbage and reconciles bundle
// statuses against the activation pointer. Called from Open, before
// any other operation.
func (s *Store) recover() error {
	for _, dir := range []string{s.stagingDir(), s.tmpDir()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("sweeping %s: %w", path, err)
			}
			s.logger.Info("swept orphaned file", "path", path)
		}
	}

	pointer, hasPointer, err := s.readPointer()
	if err != nil {
		return err
	}

	// The pointer names a bundle that no longer exists: the pointer
	// itself is the garbage. Drop it rather than refuse to open.
	if hasPointer {
		if _, err := s.loadMetadata(pointer.BundleID); err != nil {
			s.logger.Warn("activation pointer names missing bundle, dropping pointer",
				"bundle_id", pointer.BundleID, "error", err)
			if err := os.Remove(s.pointerPath()); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing stale pointer: %w", err)
			}
			hasPointer = false
		}
	}

	bundles, err := s.listLocked()
	if err != nil {
		return err
	}
	for _, meta := range bundles {
		// Bundle directories whose payload rename completed but whose
		// metadata write did not are skipped by listLocked and swept
		// here.
		isActive := hasPointer && meta.BundleID == pointer.BundleID
		switch {
		case isActive && meta.Status != StatusActive:
			meta.Status = StatusActive
			if err := s.saveMetadata(meta); err != nil {
				return fmt.Errorf("repairing status of %s: %w", meta.BundleID, err)
			}
			s.logger.Info("repaired active status", "bundle_id", meta.BundleID)
		case !isActive && meta.Status == StatusActive:
			meta.Status = StatusInstalled
			if err := s.saveMetadata(meta); err != nil {
				return fmt.Errorf("repairing status of %s: %w", meta.BundleID, err)
			}
			s.logger.Info("demoted stale active status", "bundle_id", meta.BundleID)
		}
	}

	// Sweep bundle directories with no readable metadata.
	entries, err := os.ReadDir(s.bundlesDir())
	if err != nil {
		return fmt.Errorf("reading bundles directory: %w", err)
	}
	known := make(map[string]bool, len(bundles))
	for _, meta := range bundles {
		known[meta.BundleID] = true
	}
	for _, entry := range entries {
		if entry.IsDir() && !known[entry.Name()] {
			path := filepath.Join(s.bundlesDir(), entry.Name())
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("sweeping incomplete bundle %s: %w", path, err)
			}
			s.logger.Warn("swept incomplete bundle directory", "path", path)
		}
	}

	return nil
}

// checkActiveInvariant verifies that exactly one bundle is active and
// that it is the one the pointer names. Called after every
// activation; a violation indicates store corruption.
func (s *Store) checkActiveInvariant() error {
	pointer, hasPointer, err := s.readPointer()
	if err != nil {
		return err
	}
	bundles, err := s.listLocked()
	if err != nil {
		return err
	}

	activeCount := 0
	for _, meta := range bundles {
		if meta.Status == StatusActive {
			activeCount++
			if !hasPointer || meta.BundleID != pointer.BundleID {
				return fmt.Errorf("invariant violation: bundle %s is active but pointer names %q",
					meta.BundleID, pointer.BundleID)
			}
		}
	}
	if hasPointer && activeCount != 1 {
		return fmt.Errorf("invariant violation: %d active bundles with pointer set", activeCount)
	}
	return nil
}

// --- record I/O ---

func (s *Store) saveMetadata(meta Metadata) error {
	data, err := codec.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", meta.BundleID, err)
	}
	return atomicWrite(s.tmpDir(), filepath.Join(s.bundleDir(meta.BundleID), metadataName), data)
}

func (s *Store) loadMetadata(bundleID string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(s.bundleDir(bundleID), metadataName))
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, fmt.Errorf("bundle %s: %w", bundleID, ErrBundleNotFound)
		}
		return Metadata{}, fmt.Errorf("reading metadata for %s: %w", bundleID, err)
	}
	var meta Metadata
	if err := codec.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decoding metadata for %s: %w", bundleID, err)
	}
	return meta, nil
}

func (s *Store) readPointer() (activePointer, bool, error) {
	data, err := os.ReadFile(s.pointerPath())
	if err != nil {
		if os.IsNotExist(err) {
			return activePointer{}, false, nil
		}
		return activePointer{}, false, fmt.Errorf("reading activation pointer: %w", err)
	}
	var pointer activePointer
	if err := codec.Unmarshal(data, &pointer); err != nil {
		return activePointer{}, false, fmt.Errorf("decoding activation pointer: %w", err)
	}
	return pointer, true, nil
}

func (s *Store) writePointer(pointer activePointer) error {
	data, err := codec.Marshal(pointer)
	if err != nil {
		return fmt.Errorf("encoding activation pointer: %w", err)
	}
	return atomicWrite(s.tmpDir(), s.pointerPath(), data)
}

// extractPayload unpacks the payload archive into the bundle's
// content directory.
func (s *Store) extractPayload(bundleID string) error {
	payload, err := os.Open(filepath.Join(s.bundleDir(bundleID), payloadName))
	if err != nil {
		return fmt.Errorf("opening payload: %w", err)
	}
	defer payload.Close()
	return archive.Extract(filepath.Join(s.bundleDir(bundleID), contentName), payload)
}

// wrapStorage classifies a filesystem error, mapping an exhausted
// disk to ErrStorageFull.
func wrapStorage(operation string, err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%s: %w", operation, ErrStorageFull)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// --- paths ---

func (s *Store) bundlesDir() string          { return filepath.Join(s.root, bundlesDirName) }
func (s *Store) stagingDir() string          { return filepath.Join(s.root, stagingDirName) }
func (s *Store) tmpDir() string              { return filepath.Join(s.root, tmpDirName) }
func (s *Store) pointerPath() string         { return filepath.Join(s.root, pointerName) }
func (s *Store) readinessPath() string       { return filepath.Join(s.root, readinessName) }
func (s *Store) bundleDir(id string) string  { return filepath.Join(s.bundlesDir(), id) }
