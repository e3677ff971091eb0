// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"time"

	"github.com/updraft-project/updraft/lib/download"
)

// State names a phase of the update lifecycle.
type State string

const (
	StateIdle                 State = "idle"
	StateChecking             State = "checking"
	StateUpdateAvailable      State = "update-available"
	StateDownloading          State = "downloading"
	StateVerifying            State = "verifying"
	StateInstalling           State = "installing"
	StateActivating           State = "activating"
	StateAwaitingConfirmation State = "awaiting-confirmation"
	StateConfirmed            State = "confirmed"
	StateRolledBack           State = "rolled-back"
	StateFailed               State = "failed"
)

// Event is one lifecycle transition. Progress is set only for
// StateDownloading events; Err only for StateFailed.
type Event struct {
	State    State
	Time     time.Time
	Progress *download.Progress
	Err      error
}

// Per-subscriber channel capacity. A subscriber that falls this far
// behind starts losing events rather than stalling the cycle.
const eventBuffer = 16

// Subscribe registers a lifecycle event listener. The returned cancel
// function unregisters it and closes the channel. Delivery is
// best-effort: events to a full channel are dropped with a warning.
func (u *Updater) Subscribe() (<-chan Event, func()) {
	u.mu.Lock()
	defer u.mu.Unlock()

	id := u.nextSubscriber
	u.nextSubscriber++
	ch := make(chan Event, eventBuffer)
	u.subscribers[id] = ch

	cancel := func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		if existing, ok := u.subscribers[id]; ok {
			delete(u.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}

// transition publishes a lifecycle event to every subscriber. Sends
// happen under the lock so a concurrent cancel cannot close a channel
// mid-send; the non-blocking send keeps the lock hold time bounded.
func (u *Updater) transition(state State, progress *download.Progress, err error) {
	event := Event{State: state, Time: u.clock.Now(), Progress: progress, Err: err}

	u.mu.Lock()
	defer u.mu.Unlock()
	for _, ch := range u.subscribers {
		select {
		case ch <- event:
		default:
			u.logger.Warn("dropping lifecycle event for slow subscriber", "state", state)
		}
	}
}
