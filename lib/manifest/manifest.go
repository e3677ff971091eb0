// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest queries the remote update source and decides
// whether an update applies to this device.
//
// The manifest is the one external JSON interface of the engine
// (on-disk state is CBOR). A manifest describes the latest bundle for
// a channel; the resolver turns it into a Decision by applying the
// version gate, the minimum-app-version gate, and the deterministic
// staged-rollout gate.
package manifest

import (
	"errors"
	"time"
)

// ErrInvalidManifest means the server response could not be parsed or
// is missing required fields. Fatal to this check, not to the app:
// the caller reports "no update" and the device keeps running.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest is the server-declared latest state for a channel. Field
// names follow the manifest wire contract.
type Manifest struct {
	Available         bool    `json:"available"`
	Version           string  `json:"version"`
	DownloadURL       string  `json:"downloadUrl"`
	Checksum          string  `json:"checksum"`
	Signature         string  `json:"signature,omitempty"`
	Mandatory         bool    `json:"mandatory,omitempty"`
	MinAppVersion     string  `json:"minAppVersion,omitempty"`
	RolloutPercentage *int    `json:"rolloutPercentage,omitempty"`
	ReleaseNotes      string  `json:"releaseNotes,omitempty"`
}

// Reason explains why an update is not offered. Policy outcomes, not
// errors: the check succeeded, the answer is "no".
type Reason string

const (
	// ReasonUpToDate: the device already runs the latest version.
	ReasonUpToDate Reason = "up-to-date"

	// ReasonNoRelease: the server declared nothing available for the
	// channel.
	ReasonNoRelease Reason = "no-release"

	// ReasonDowngradeBlocked: the manifest names an older version and
	// no downgrade override is set.
	ReasonDowngradeBlocked Reason = "downgrade-blocked"

	// ReasonAppUpdateRequired: the device's app version is below the
	// manifest's minimum; the update is withheld.
	ReasonAppUpdateRequired Reason = "app-update-required"

	// ReasonRolloutExcluded: this device's rollout bucket falls
	// outside the staged-rollout percentage.
	ReasonRolloutExcluded Reason = "rollout-excluded"
)

// Decision is the resolver's answer for one check.
type Decision struct {
	// Available reports whether the device should download the
	// update.
	Available bool `json:"available"`

	// Version, DownloadURL, Checksum, and Signature carry the
	// manifest values when Available.
	Version     string `json:"version,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
	Signature   string `json:"signature,omitempty"`

	// Mandatory marks updates the server wants applied without user
	// consent. Surfaced to the embedding app; the engine itself does
	// not change behavior.
	Mandatory bool `json:"mandatory,omitempty"`

	// RequiresAppUpdate is set when the bundle needs a newer native
	// app than the device runs; the bundle update is withheld.
	RequiresAppUpdate bool `json:"requiresAppUpdate,omitempty"`

	// Reason explains a false Available.
	Reason Reason `json:"reason,omitempty"`

	// ReleaseNotes are passed through for display.
	ReleaseNotes string `json:"releaseNotes,omitempty"`

	// CheckedAt is when the resolver produced this decision.
	CheckedAt time.Time `json:"checkedAt"`
}
