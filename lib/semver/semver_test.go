// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package semver

import "testing"

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"2.0.0", "1.0.0", 1},
		{"1.0.0", "2.0.0", -1},
		{"1.2.3", "1.2.4", -1},
		{"1.10.0", "1.9.0", 1},
		// Missing segments are zero.
		{"1.2", "1.2.0", 0},
		{"1", "1.0.0", 0},
		{"1.2", "1.2.1", -1},
		// Leading v is tolerated.
		{"v1.0.0", "1.0.0", 0},
		// Prerelease orders below release.
		{"2.0.0-rc.1", "2.0.0", -1},
	}
	for _, tt := range tests {
		got, err := Compare(tt.a, tt.b)
		if err != nil {
			t.Errorf("Compare(%q, %q): %v", tt.a, tt.b, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCompareInvalid(t *testing.T) {
	for _, invalid := range []string{"", "abc", "1.x.0", "1.0.0.0"} {
		if _, err := Compare(invalid, "1.0.0"); err == nil {
			t.Errorf("Compare(%q, ...) succeeded, want error", invalid)
		}
	}
}

func TestNewer(t *testing.T) {
	newer, err := Newer("2.0.0", "1.9.9")
	if err != nil {
		t.Fatalf("Newer: %v", err)
	}
	if !newer {
		t.Error("2.0.0 should be newer than 1.9.9")
	}

	newer, err = Newer("1.0.0", "1.0.0")
	if err != nil {
		t.Fatalf("Newer: %v", err)
	}
	if newer {
		t.Error("a version is not newer than itself")
	}
}

func TestIsValid(t *testing.T) {
	for _, valid := range []string{"1.0.0", "0.0.1", "1.2", "3", "v2.1.0", "1.0.0-beta.2"} {
		if !IsValid(valid) {
			t.Errorf("IsValid(%q) = false, want true", valid)
		}
	}
	for _, invalid := range []string{"", "latest", "1.0.0.0", "one.two"} {
		if IsValid(invalid) {
			t.Errorf("IsValid(%q) = true, want false", invalid)
		}
	}
}
