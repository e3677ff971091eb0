// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"errors"
	"fmt"

	"github.com/updraft-project/updraft/lib/store"
)

// NotifyAppReady confirms that the application booted successfully on
// the awaiting bundle. The readiness record is cleared and the bundle
// becomes permanent. A no-op when nothing is awaiting confirmation.
func (u *Updater) NotifyAppReady() error {
	if err := u.ensureStartupChecked(); err != nil {
		return err
	}

	record, ok, err := u.store.Readiness()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := u.store.ClearReadiness(); err != nil {
		return fmt.Errorf("confirming bundle %s: %w", record.BundleID, err)
	}

	u.transition(StateConfirmed, nil, nil)
	u.logger.Info("bundle confirmed healthy", "bundle_id", record.BundleID)
	return nil
}

// AwaitingConfirmation reports the open readiness record, if any.
func (u *Updater) AwaitingConfirmation() (store.ReadinessRecord, bool, error) {
	if err := u.ensureStartupChecked(); err != nil {
		return store.ReadinessRecord{}, false, err
	}
	return u.store.Readiness()
}

// StartupCheck inspects the readiness record and rolls back an
// unconfirmed bundle whose deadline has passed. It runs at most once
// per process; later calls are no-ops. Sync, Active, and
// NotifyAppReady run it implicitly on first use, so calling it
// explicitly at process start is recommended but not required.
func (u *Updater) StartupCheck() error {
	u.startupMu.Lock()
	defer u.startupMu.Unlock()

	u.mu.Lock()
	checked := u.startupChecked
	u.mu.Unlock()
	if checked {
		return nil
	}

	if err := u.runStartupCheck(); err != nil {
		return err
	}

	u.mu.Lock()
	u.startupChecked = true
	u.mu.Unlock()
	return nil
}

func (u *Updater) ensureStartupChecked() error {
	u.mu.Lock()
	checked := u.startupChecked
	u.mu.Unlock()
	if checked {
		return nil
	}
	return u.StartupCheck()
}

func (u *Updater) runStartupCheck() error {
	record, ok, err := u.store.Readiness()
	if err != nil {
		return fmt.Errorf("startup check: %w", err)
	}
	if !ok {
		return nil
	}

	active, err := u.store.Active()
	if err != nil {
		if errors.Is(err, store.ErrNoActiveBundle) {
			// Record for a bundle that never became active: the
			// process died between the readiness write and the
			// pointer swap.
			u.logger.Warn("clearing readiness record with no active bundle", "bundle_id", record.BundleID)
			return u.store.ClearReadiness()
		}
		return fmt.Errorf("startup check: %w", err)
	}
	if record.BundleID != active.BundleID {
		u.logger.Warn("clearing readiness record for non-active bundle",
			"record_bundle_id", record.BundleID,
			"active_bundle_id", active.BundleID,
		)
		return u.store.ClearReadiness()
	}

	if u.clock.Now().Before(record.Deadline) {
		// Still within the grace period: the app may yet confirm.
		return nil
	}

	// Deadline passed without confirmation: roll back.
	previous, found, err := u.store.PreviousInstalled(record.BundleID)
	if err != nil {
		return fmt.Errorf("startup check: %w", err)
	}
	if !found {
		// Nothing to roll back to. The device keeps running the
		// unconfirmed bundle rather than ending up with no bundle at
		// all.
		u.logger.Warn("readiness deadline passed with no rollback target, keeping unconfirmed bundle",
			"bundle_id", record.BundleID,
		)
		return u.store.ClearReadiness()
	}

	if err := u.store.Activate(previous.BundleID); err != nil {
		return fmt.Errorf("rolling back to %s: %w", previous.BundleID, err)
	}
	if err := u.store.MarkFailed(record.BundleID); err != nil {
		u.logger.Warn("marking rolled-back bundle failed", "bundle_id", record.BundleID, "error", err)
	}
	if err := u.store.ClearReadiness(); err != nil {
		return fmt.Errorf("clearing readiness after rollback: %w", err)
	}

	u.transition(StateRolledBack, nil, nil)
	u.logger.Warn("rolled back unconfirmed bundle",
		"failed_bundle_id", record.BundleID,
		"restored_bundle_id", previous.BundleID,
		"restored_version", previous.Version,
	)
	u.record(record.ActivatedAt, active.Version, previous.Version, string(StateRolledBack), "readiness deadline passed")
	return nil
}
