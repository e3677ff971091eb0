// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// RolloutBucket maps a device and version to a stable bucket in
// [0,100). The update is offered when the bucket is below the
// manifest's rollout percentage. Hashing the version alongside the
// device ID reshuffles the population every release, so the same
// devices are not always the canaries — while staying deterministic
// for a given (device, version) pair across repeated checks.
func RolloutBucket(deviceID, version string) int {
	digest := blake3.Sum256([]byte(deviceID + "\x00" + version))
	return int(binary.BigEndian.Uint64(digest[:8]) % 100)
}

// rolloutOffered applies the staged-rollout gate. A nil percentage
// means full rollout; 0 means no device is offered the update.
func rolloutOffered(percentage *int, deviceID, version string) bool {
	if percentage == nil {
		return true
	}
	return RolloutBucket(deviceID, version) < *percentage
}
