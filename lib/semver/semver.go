// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package semver compares semantic version strings as they appear in
// update manifests: "major.minor.patch" with numeric per-segment
// ordering, missing segments treated as zero ("1.2" == "1.2.0").
//
// The heavy lifting is done by golang.org/x/mod/semver; this package
// normalizes the manifest form (no leading "v", possibly fewer than
// three segments) into the canonical form x/mod expects.
package semver

import (
	"fmt"
	"strings"

	xsemver "golang.org/x/mod/semver"
)

// Canonical normalizes a manifest version string into the canonical
// "vMAJOR.MINOR.PATCH" form. Returns an error for strings that are
// not semantic versions.
func Canonical(v string) (string, error) {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "", fmt.Errorf("empty version string")
	}
	if !strings.HasPrefix(trimmed, "v") {
		trimmed = "v" + trimmed
	}
	if !xsemver.IsValid(trimmed) {
		return "", fmt.Errorf("invalid semantic version %q", v)
	}
	return xsemver.Canonical(trimmed), nil
}

// IsValid reports whether v parses as a semantic version after
// normalization.
func IsValid(v string) bool {
	_, err := Canonical(v)
	return err == nil
}

// Compare returns -1, 0, or +1 when a is respectively older than,
// equal to, or newer than b. Returns an error if either string is not
// a semantic version.
func Compare(a, b string) (int, error) {
	canonicalA, err := Canonical(a)
	if err != nil {
		return 0, err
	}
	canonicalB, err := Canonical(b)
	if err != nil {
		return 0, err
	}
	return xsemver.Compare(canonicalA, canonicalB), nil
}

// Newer reports whether a is strictly newer than b. Returns an error
// if either string is not a semantic version.
func Newer(a, b string) (bool, error) {
	comparison, err := Compare(a, b)
	if err != nil {
		return false, err
	}
	return comparison > 0, nil
}
