// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package native covers the parts of the update story that bundles
// cannot deliver: checking the platform app store for a new native
// binary, and prompting for a store review without nagging.
package native

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/updraft-project/updraft/lib/semver"
)

// maxStoreResponseSize bounds the store metadata response.
const maxStoreResponseSize = 1 << 20

// StoreResult is the answer to a native update check.
type StoreResult struct {
	// UpdateAvailable is true when the store carries a version newer
	// than the running binary.
	UpdateAvailable bool

	// StoreVersion is the version the store offers.
	StoreVersion string

	// StoreURL is where the user installs the update (store listing
	// page). Empty when no update is available.
	StoreURL string
}

// StoreChecker reports whether the platform app store has a newer
// native binary than the one running.
type StoreChecker interface {
	CheckNativeUpdate(ctx context.Context, currentVersion string) (StoreResult, error)
}

// storeResponse is the JSON shape of the store metadata endpoint.
type storeResponse struct {
	Version  string `json:"version"`
	StoreURL string `json:"storeUrl"`
}

// HTTPStoreChecker queries a store metadata endpoint over HTTP. Each
// call is one request; nothing is cached or persisted.
type HTTPStoreChecker struct {
	endpoint   string
	appID      string
	httpClient *http.Client
	logger     *slog.Logger
}

// StoreCheckerConfig configures HTTPStoreChecker.
type StoreCheckerConfig struct {
	// Endpoint is the store metadata URL.
	Endpoint string

	// AppID identifies the application to the endpoint.
	AppID string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewHTTPStoreChecker validates the configuration and builds a
// checker.
func NewHTTPStoreChecker(cfg StoreCheckerConfig) (*HTTPStoreChecker, error) {
	parsed, err := url.Parse(cfg.Endpoint)
	if err != nil || !parsed.IsAbs() {
		return nil, fmt.Errorf("store endpoint %q is not an absolute URL", cfg.Endpoint)
	}
	if cfg.AppID == "" {
		return nil, fmt.Errorf("store checker requires an app ID")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPStoreChecker{
		endpoint:   cfg.Endpoint,
		appID:      cfg.AppID,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CheckNativeUpdate fetches the store's current version and compares
// it with the running one.
func (c *HTTPStoreChecker) CheckNativeUpdate(ctx context.Context, currentVersion string) (StoreResult, error) {
	if _, err := semver.Canonical(currentVersion); err != nil {
		return StoreResult{}, fmt.Errorf("current version: %w", err)
	}

	requestURL, err := url.Parse(c.endpoint)
	if err != nil {
		return StoreResult{}, err
	}
	query := requestURL.Query()
	query.Set("appId", c.appID)
	requestURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return StoreResult{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StoreResult{}, fmt.Errorf("store check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StoreResult{}, fmt.Errorf("store check: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStoreResponseSize))
	if err != nil {
		return StoreResult{}, fmt.Errorf("store check: reading response: %w", err)
	}
	var payload storeResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return StoreResult{}, fmt.Errorf("store check: decoding response: %w", err)
	}
	if !semver.IsValid(payload.Version) {
		return StoreResult{}, fmt.Errorf("store check: invalid store version %q", payload.Version)
	}

	newer, err := semver.Newer(payload.Version, currentVersion)
	if err != nil {
		return StoreResult{}, err
	}
	if !newer {
		c.logger.Debug("native binary is current", "store_version", payload.Version)
		return StoreResult{StoreVersion: payload.Version}, nil
	}

	c.logger.Info("native update available in store",
		"store_version", payload.Version,
		"current_version", currentVersion,
	)
	return StoreResult{
		UpdateAvailable: true,
		StoreVersion:    payload.Version,
		StoreURL:        payload.StoreURL,
	}, nil
}
