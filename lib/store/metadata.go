// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "time"

// Status is the lifecycle state of a bundle. Transitions:
// staging → verified → installed → active → installed (demoted on a
// later activation) or failed (readiness rollback). Bundles only ever
// leave the store through Delete, Cleanup, or Reset; there is no
// persisted "deleted" state — a deleted bundle's directory is gone.
type Status string

const (
	StatusStaging   Status = "staging"
	StatusVerified  Status = "verified"
	StatusInstalled Status = "installed"
	StatusActive    Status = "active"
	StatusFailed    Status = "failed"
)

// Metadata is the per-bundle record persisted next to the payload as
// deterministic CBOR. It is the store's source of truth for a bundle;
// the activation pointer is the source of truth for which bundle is
// active, and Open reconciles the two after a crash.
type Metadata struct {
	// BundleID is an opaque unique identifier assigned when the
	// staging file is created.
	BundleID string `cbor:"bundle_id"`

	// Version is the semantic version declared by the manifest.
	Version string `cbor:"version"`

	// Channel is the release track this bundle was fetched from.
	Channel string `cbor:"channel"`

	// Checksum is the hex SHA-256 of the payload, recorded at
	// verification time.
	Checksum string `cbor:"checksum"`

	// SizeBytes is the measured payload size.
	SizeBytes int64 `cbor:"size_bytes"`

	// Status is the bundle's lifecycle state.
	Status Status `cbor:"status"`

	// InstalledAt is when the payload was renamed into permanent
	// storage.
	InstalledAt time.Time `cbor:"installed_at"`

	// ActivatedAt is when this bundle last became active. Zero for
	// bundles that were never activated. Retained on demotion — the
	// rollback target is the demoted bundle with the most recent
	// ActivatedAt.
	ActivatedAt time.Time `cbor:"activated_at,omitempty"`
}
