// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/updraft-project/updraft/lib/clock"
	"github.com/updraft-project/updraft/lib/semver"
)

// maxManifestSize caps the manifest response body. A manifest is a
// few hundred bytes; anything near this limit is a misbehaving
// server.
const maxManifestSize = 1 << 20

// Config configures a Resolver.
type Config struct {
	// ManifestURL is the manifest endpoint. The resolver appends
	// channel, currentVersion, and appId query parameters.
	ManifestURL string

	// AppID identifies the application to the update server.
	AppID string

	// Channel is the release track this device follows.
	Channel string

	// HTTPClient performs the manifest request. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Clock timestamps decisions. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives check outcomes. Defaults to slog.Default().
	Logger *slog.Logger
}

// Resolver fetches manifests and decides update availability.
type Resolver struct {
	manifestURL string
	appID       string
	channel     string
	client      *http.Client
	clock       clock.Clock
	logger      *slog.Logger
}

// NewResolver creates a Resolver. ManifestURL, AppID, and Channel are
// required.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.ManifestURL == "" {
		return nil, fmt.Errorf("manifest URL is required")
	}
	if _, err := url.Parse(cfg.ManifestURL); err != nil {
		return nil, fmt.Errorf("invalid manifest URL: %w", err)
	}
	if cfg.AppID == "" {
		return nil, fmt.Errorf("app ID is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("channel is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		manifestURL: cfg.ManifestURL,
		appID:       cfg.AppID,
		channel:     cfg.Channel,
		client:      cfg.HTTPClient,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}, nil
}

// CheckParams are the per-check inputs.
type CheckParams struct {
	// CurrentVersion is the version of the bundle the device runs
	// now.
	CurrentVersion string

	// AppVersion is the native application version, gated against
	// the manifest's minAppVersion.
	AppVersion string

	// DeviceID is the stable device identity used for rollout
	// bucketing.
	DeviceID string

	// AllowDowngrade offers the manifest version even when it is
	// older than CurrentVersion.
	AllowDowngrade bool
}

// Check fetches the channel manifest and applies the gates. Transport
// failures are returned wrapped for the caller to classify; a
// manifest that parses but fails validation is ErrInvalidManifest.
// Gate outcomes are not errors — they come back as a Decision with
// Available false and a Reason.
func (r *Resolver) Check(ctx context.Context, params CheckParams) (Decision, error) {
	decision := Decision{CheckedAt: r.clock.Now()}

	manifest, err := r.fetch(ctx, params.CurrentVersion)
	if err != nil {
		return decision, err
	}

	if !manifest.Available {
		decision.Reason = ReasonNoRelease
		return decision, nil
	}
	if err := validate(manifest); err != nil {
		return decision, err
	}

	decision.ReleaseNotes = manifest.ReleaseNotes
	decision.Mandatory = manifest.Mandatory

	// Version gate.
	comparison, err := semver.Compare(manifest.Version, params.CurrentVersion)
	if err != nil {
		return decision, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	switch {
	case comparison == 0:
		decision.Reason = ReasonUpToDate
		return decision, nil
	case comparison < 0 && !params.AllowDowngrade:
		decision.Reason = ReasonDowngradeBlocked
		r.logger.Info("downgrade withheld",
			"current", params.CurrentVersion,
			"manifest", manifest.Version,
		)
		return decision, nil
	}

	// Minimum app version gate.
	if manifest.MinAppVersion != "" {
		newEnough, err := atLeast(params.AppVersion, manifest.MinAppVersion)
		if err != nil {
			return decision, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
		if !newEnough {
			decision.Reason = ReasonAppUpdateRequired
			decision.RequiresAppUpdate = true
			return decision, nil
		}
	}

	// Staged rollout gate. Deterministic per (device, version), so
	// repeated checks are stable.
	if !rolloutOffered(manifest.RolloutPercentage, params.DeviceID, manifest.Version) {
		decision.Reason = ReasonRolloutExcluded
		return decision, nil
	}

	decision.Available = true
	decision.Version = manifest.Version
	decision.DownloadURL = manifest.DownloadURL
	decision.Checksum = strings.ToLower(manifest.Checksum)
	decision.Signature = manifest.Signature

	r.logger.Info("update available",
		"channel", r.channel,
		"current", params.CurrentVersion,
		"version", manifest.Version,
		"mandatory", manifest.Mandatory,
	)
	return decision, nil
}

// fetch performs the manifest GET and decodes the JSON body.
func (r *Resolver) fetch(ctx context.Context, currentVersion string) (Manifest, error) {
	endpoint, err := url.Parse(r.manifestURL)
	if err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest URL: %w", err)
	}
	query := endpoint.Query()
	query.Set("channel", r.channel)
	query.Set("currentVersion", currentVersion)
	query.Set("appId", r.appID)
	endpoint.RawQuery = query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Manifest{}, fmt.Errorf("building manifest request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := r.client.Do(request)
	if err != nil {
		return Manifest{}, fmt.Errorf("fetching manifest: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return Manifest{}, fmt.Errorf("fetching manifest: server returned %s", response.Status)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxManifestSize))
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest body: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return manifest, nil
}

// validate checks the fields an available manifest must carry.
func validate(m Manifest) error {
	if m.Version == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidManifest)
	}
	if !semver.IsValid(m.Version) {
		return fmt.Errorf("%w: version %q is not a semantic version", ErrInvalidManifest, m.Version)
	}
	if m.DownloadURL == "" {
		return fmt.Errorf("%w: missing downloadUrl", ErrInvalidManifest)
	}
	if _, err := url.Parse(m.DownloadURL); err != nil {
		return fmt.Errorf("%w: downloadUrl: %v", ErrInvalidManifest, err)
	}
	checksum := strings.ToLower(strings.TrimSpace(m.Checksum))
	if len(checksum) != 64 {
		return fmt.Errorf("%w: checksum is not a SHA-256 hex digest", ErrInvalidManifest)
	}
	if _, err := hex.DecodeString(checksum); err != nil {
		return fmt.Errorf("%w: checksum is not hex", ErrInvalidManifest)
	}
	if m.RolloutPercentage != nil && (*m.RolloutPercentage < 0 || *m.RolloutPercentage > 100) {
		return fmt.Errorf("%w: rolloutPercentage %d out of range", ErrInvalidManifest, *m.RolloutPercentage)
	}
	return nil
}

// atLeast reports whether version >= minimum.
func atLeast(version, minimum string) (bool, error) {
	comparison, err := semver.Compare(version, minimum)
	if err != nil {
		return false, err
	}
	return comparison >= 0, nil
}
