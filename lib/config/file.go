// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk schema. It mirrors Config but carries
// durations as strings ("10m", "200ms") so config files stay
// readable.
type fileConfig struct {
	ManifestURL          string `yaml:"manifest_url" json:"manifest_url"`
	AppID                string `yaml:"app_id" json:"app_id"`
	AppVersion           string `yaml:"app_version" json:"app_version"`
	DeviceID             string `yaml:"device_id" json:"device_id"`
	Channel              string `yaml:"channel" json:"channel"`
	StorageRoot          string `yaml:"storage_root" json:"storage_root"`
	HistoryPath          string `yaml:"history_path" json:"history_path"`
	PublicKeyPEM         string `yaml:"public_key_pem" json:"public_key_pem"`
	RequireSignature     bool   `yaml:"require_signature" json:"require_signature"`
	AllowDowngrade       bool   `yaml:"allow_downgrade" json:"allow_downgrade"`
	ExtractOnInstall     bool   `yaml:"extract_on_install" json:"extract_on_install"`
	MaxBundleSize        int64  `yaml:"max_bundle_size" json:"max_bundle_size"`
	RetainBundles        int    `yaml:"retain_bundles" json:"retain_bundles"`
	ReadinessGracePeriod string `yaml:"readiness_grace_period" json:"readiness_grace_period"`
	ProgressInterval     string `yaml:"progress_interval" json:"progress_interval"`
}

// LoadFile reads a configuration file, chosen by extension: .yaml and
// .yml parse as YAML; .json and .jsonc parse as JSON with comments
// and trailing commas tolerated. Defaults are applied and the result
// is validated before it is returned.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var onDisk fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &onDisk); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &onDisk); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config extension %q (want .yaml, .yml, .json, or .jsonc)", filepath.Ext(path))
	}

	cfg := Config{
		ManifestURL:      onDisk.ManifestURL,
		AppID:            onDisk.AppID,
		AppVersion:       onDisk.AppVersion,
		DeviceID:         onDisk.DeviceID,
		Channel:          onDisk.Channel,
		StorageRoot:      onDisk.StorageRoot,
		HistoryPath:      onDisk.HistoryPath,
		PublicKeyPEM:     onDisk.PublicKeyPEM,
		RequireSignature: onDisk.RequireSignature,
		AllowDowngrade:   onDisk.AllowDowngrade,
		ExtractOnInstall: onDisk.ExtractOnInstall,
		MaxBundleSize:    onDisk.MaxBundleSize,
		RetainBundles:    onDisk.RetainBundles,
	}
	if cfg.ReadinessGracePeriod, err = parseDuration(onDisk.ReadinessGracePeriod, "readiness_grace_period"); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.ProgressInterval, err = parseDuration(onDisk.ProgressInterval, "progress_interval"); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func parseDuration(value, field string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return parsed, nil
}
