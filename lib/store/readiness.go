// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"os"
	"time"

	"github.com/updraft-project/updraft/lib/codec"
)

// ReadinessRecord marks a freshly activated bundle that has not yet
// proven itself healthy. Created the moment a bundle becomes active,
// deleted when the application confirms readiness or when rollback
// completes. At most one record is open at a time — activations are
// serialized by the orchestrator.
type ReadinessRecord struct {
	// BundleID names the bundle awaiting confirmation.
	BundleID string `cbor:"bundle_id"`

	// ActivatedAt is when the bundle became active.
	ActivatedAt time.Time `cbor:"activated_at"`

	// Deadline is when the grace window closes. Past the deadline,
	// the startup check rolls back to the previous bundle.
	Deadline time.Time `cbor:"deadline"`
}

// PutReadiness atomically writes the open readiness record,
// replacing any existing one.
func (s *Store) PutReadiness(record ReadinessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding readiness record: %w", err)
	}
	return atomicWrite(s.tmpDir(), s.readinessPath(), data)
}

// Readiness returns the open readiness record, if any.
func (s *Store) Readiness() (ReadinessRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readinessLocked()
}

// ClearReadiness deletes the open readiness record. No-op when none
// is open.
func (s *Store) ClearReadiness() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.readinessPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing readiness record: %w", err)
	}
	syncDir(s.root)
	return nil
}

func (s *Store) readinessLocked() (ReadinessRecord, bool, error) {
	data, err := os.ReadFile(s.readinessPath())
	if err != nil {
		if os.IsNotExist(err) {
			return ReadinessRecord{}, false, nil
		}
		return ReadinessRecord{}, false, fmt.Errorf("reading readiness record: %w", err)
	}
	var record ReadinessRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return ReadinessRecord{}, false, fmt.Errorf("decoding readiness record: %w", err)
	}
	return record, true, nil
}
