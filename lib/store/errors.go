// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "errors"

var (
	// ErrBundleNotFound is returned when the named bundle has no
	// record in the store.
	ErrBundleNotFound = errors.New("bundle not found")

	// ErrNoActiveBundle is returned by Active when no bundle has ever
	// been activated.
	ErrNoActiveBundle = errors.New("no active bundle")

	// ErrBundleBusy is returned when an operation would remove the
	// currently active bundle or a bundle still covered by an open
	// readiness record. The prior state is left unchanged.
	ErrBundleBusy = errors.New("bundle is active or awaiting readiness confirmation")

	// ErrNotVerified is returned by Install for a staging file that
	// has not passed integrity verification.
	ErrNotVerified = errors.New("staged bundle has not been verified")

	// ErrStorageFull is returned when the filesystem runs out of
	// space during install. The staged data is discarded and the
	// previously active bundle is untouched.
	ErrStorageFull = errors.New("storage full")
)
