// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package config defines the updater's configuration.
//
// Every recognized option is an explicit struct field with a
// documented default, validated eagerly by Validate — never at point
// of use, and never through an ambient global. Configuration is
// loaded from a single file given explicitly (YAML or JSONC by
// extension); there is no discovery and no hidden override.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/updraft-project/updraft/lib/semver"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultChannel              = "production"
	DefaultMaxBundleSize        = 512 << 20 // 512 MiB
	DefaultRetainBundles        = 2
	DefaultReadinessGracePeriod = 10 * time.Minute
	DefaultProgressInterval     = 200 * time.Millisecond
)

// Config is the complete updater configuration.
type Config struct {
	// ManifestURL is the update server's manifest endpoint.
	// Required.
	ManifestURL string

	// AppID identifies this application to the update server.
	// Required.
	AppID string

	// AppVersion is the native application's semantic version, used
	// as the baseline bundle version before any bundle is installed
	// and gated against the manifest's minAppVersion. Required.
	AppVersion string

	// DeviceID is the stable device identity for staged-rollout
	// bucketing. Required.
	DeviceID string

	// Channel is the release track to follow. Default: production.
	Channel string

	// StorageRoot is the bundle store directory. Required.
	StorageRoot string

	// HistoryPath is the update-history SQLite file. Empty disables
	// the journal.
	HistoryPath string

	// PublicKeyPEM is a PEM-encoded PKIX public key (RSA or ECDSA)
	// for bundle signature verification. Empty disables signature
	// checks.
	PublicKeyPEM string

	// RequireSignature rejects unsigned bundles. Requires
	// PublicKeyPEM.
	RequireSignature bool

	// AllowDowngrade permits the manifest to name a version older
	// than the current one. Default: false.
	AllowDowngrade bool

	// ExtractOnInstall unpacks payload archives into the bundle's
	// content directory at install time. Default: false (payloads
	// kept opaque).
	ExtractOnInstall bool

	// MaxBundleSize caps payload downloads in bytes. Default:
	// 512 MiB.
	MaxBundleSize int64

	// RetainBundles is how many non-active installed bundles
	// retention cleanup keeps. Default: 2.
	RetainBundles int

	// ReadinessGracePeriod is how long a newly activated bundle has
	// to be confirmed before the startup check rolls it back. The
	// default spans a full app restart cycle. Default: 10m.
	ReadinessGracePeriod time.Duration

	// ProgressInterval bounds download progress emission. Default:
	// 200ms.
	ProgressInterval time.Duration
}

// ApplyDefaults fills zero-valued optional fields.
func (c *Config) ApplyDefaults() {
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.MaxBundleSize == 0 {
		c.MaxBundleSize = DefaultMaxBundleSize
	}
	if c.RetainBundles == 0 {
		c.RetainBundles = DefaultRetainBundles
	}
	if c.ReadinessGracePeriod == 0 {
		c.ReadinessGracePeriod = DefaultReadinessGracePeriod
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
}

// Validate checks the configuration eagerly, before any component is
// built. Returns the first problem found.
func (c *Config) Validate() error {
	if c.ManifestURL == "" {
		return fmt.Errorf("manifest_url is required")
	}
	parsed, err := url.Parse(c.ManifestURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("manifest_url %q is not an absolute URL", c.ManifestURL)
	}
	if c.AppID == "" {
		return fmt.Errorf("app_id is required")
	}
	if c.AppVersion == "" {
		return fmt.Errorf("app_version is required")
	}
	if !semver.IsValid(c.AppVersion) {
		return fmt.Errorf("app_version %q is not a semantic version", c.AppVersion)
	}
	if c.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if c.StorageRoot == "" {
		return fmt.Errorf("storage_root is required")
	}
	if c.RequireSignature && c.PublicKeyPEM == "" {
		return fmt.Errorf("require_signature is set but public_key_pem is empty")
	}
	if c.MaxBundleSize < 0 {
		return fmt.Errorf("max_bundle_size must be non-negative, got %d", c.MaxBundleSize)
	}
	if c.RetainBundles < 0 {
		return fmt.Errorf("retain_bundles must be non-negative, got %d", c.RetainBundles)
	}
	if c.ReadinessGracePeriod < 0 {
		return fmt.Errorf("readiness_grace_period must be non-negative, got %v", c.ReadinessGracePeriod)
	}
	return nil
}
