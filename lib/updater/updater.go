// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package updater sequences manifest resolution, download,
// verification, installation, and activation into one update cycle,
// and enforces the readiness safety net: a bundle that is never
// confirmed healthy is rolled back at the next process start.
//
// One cycle runs at a time. Callers invoking Sync while a cycle is in
// flight join it and receive its result — the activation pointer
// changes at most once per cycle. The in-flight guard only serializes
// orchestration; the byte transfer itself runs outside any lock.
package updater

import (
	"context"
	"crypto"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/updraft-project/updraft/lib/clock"
	"github.com/updraft-project/updraft/lib/config"
	"github.com/updraft-project/updraft/lib/download"
	"github.com/updraft-project/updraft/lib/history"
	"github.com/updraft-project/updraft/lib/integrity"
	"github.com/updraft-project/updraft/lib/manifest"
	"github.com/updraft-project/updraft/lib/store"
)

// Result is the outcome of one Sync call.
type Result struct {
	// State is the terminal state of the cycle: StateIdle (no update
	// applied), StateAwaitingConfirmation (update activated, pending
	// readiness), or StateFailed.
	State State

	// Decision is the resolver's answer, including the reason when
	// no update was offered.
	Decision manifest.Decision

	// BundleID names the activated bundle when State is
	// StateAwaitingConfirmation.
	BundleID string
}

// Options carries the injectable collaborators. Zero values select
// production defaults.
type Options struct {
	// Clock defaults to clock.Real(). Tests inject clock.Fake to
	// drive readiness deadlines.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// HTTPClient is shared by the manifest resolver and the
	// downloader. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Updater is the update orchestrator.
type Updater struct {
	cfg        config.Config
	store      *store.Store
	resolver   *manifest.Resolver
	downloader *download.Downloader
	verifier   *integrity.Verifier
	journal    *history.Journal
	clock      clock.Clock
	logger     *slog.Logger

	// mu guards inflight, startupChecked, and the subscriber map.
	mu             sync.Mutex
	inflight       *inflightSync
	startupChecked bool
	subscribers    map[int]chan Event
	nextSubscriber int

	// startupMu serializes the startup readiness check itself.
	startupMu sync.Mutex
}

// inflightSync is the shared result of a cycle in progress. Fields
// are written before done is closed and read only after.
type inflightSync struct {
	done   chan struct{}
	result Result
	err    error
}

// New builds an Updater from a validated configuration. The bundle
// store is opened (running crash recovery) but the startup readiness
// check is not performed here — it runs lazily on the first call that
// could expose bundle content, or eagerly via StartupCheck.
func New(cfg config.Config, opts Options) (*Updater, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("updater config: %w", err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	bundleStore, err := store.Open(cfg.StorageRoot, store.Options{
		Clock:            clk,
		Logger:           logger,
		ExtractOnInstall: cfg.ExtractOnInstall,
	})
	if err != nil {
		return nil, fmt.Errorf("opening bundle store: %w", err)
	}

	resolver, err := manifest.NewResolver(manifest.Config{
		ManifestURL: cfg.ManifestURL,
		AppID:       cfg.AppID,
		Channel:     cfg.Channel,
		HTTPClient:  httpClient,
		Clock:       clk,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building manifest resolver: %w", err)
	}

	var publicKey crypto.PublicKey
	if cfg.PublicKeyPEM != "" {
		publicKey, err = integrity.LoadPublicKey([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("loading bundle public key: %w", err)
		}
	}

	var journal *history.Journal
	if cfg.HistoryPath != "" {
		journal, err = history.Open(cfg.HistoryPath)
		if err != nil {
			return nil, fmt.Errorf("opening update history: %w", err)
		}
	}

	return &Updater{
		cfg:      cfg,
		store:    bundleStore,
		resolver: resolver,
		downloader: download.New(download.Config{
			HTTPClient:       httpClient,
			MaxBundleSize:    cfg.MaxBundleSize,
			ProgressInterval: cfg.ProgressInterval,
			Clock:            clk,
			Logger:           logger,
		}),
		verifier: integrity.New(integrity.Config{
			PublicKey:        publicKey,
			RequireSignature: cfg.RequireSignature,
			Logger:           logger,
		}),
		journal:     journal,
		clock:       clk,
		logger:      logger,
		subscribers: make(map[int]chan Event),
	}, nil
}

// Close releases the updater's resources (the history journal).
func (u *Updater) Close() error {
	if u.journal != nil {
		return u.journal.Close()
	}
	return nil
}

// Sync runs one end-to-end update cycle. Idempotent under
// concurrency: a Sync arriving while a cycle is in flight waits for
// and returns that cycle's result rather than starting a second one.
func (u *Updater) Sync(ctx context.Context) (Result, error) {
	if err := u.ensureStartupChecked(); err != nil {
		return Result{}, err
	}

	u.mu.Lock()
	if existing := u.inflight; existing != nil {
		u.mu.Unlock()
		select {
		case <-existing.done:
			return existing.result, existing.err
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	current := &inflightSync{done: make(chan struct{})}
	u.inflight = current
	u.mu.Unlock()

	result, err := u.runCycle(ctx)

	current.result, current.err = result, err
	close(current.done)

	u.mu.Lock()
	u.inflight = nil
	u.mu.Unlock()

	return result, err
}

// runCycle drives check → download → verify → install → activate.
func (u *Updater) runCycle(ctx context.Context) (Result, error) {
	startedAt := u.clock.Now()
	currentVersion := u.currentVersion()

	u.transition(StateChecking, nil, nil)
	decision, err := u.resolver.Check(ctx, manifest.CheckParams{
		CurrentVersion: currentVersion,
		AppVersion:     u.cfg.AppVersion,
		DeviceID:       u.cfg.DeviceID,
		AllowDowngrade: u.cfg.AllowDowngrade,
	})
	if err != nil {
		return u.fail(startedAt, currentVersion, "", err)
	}
	if !decision.Available {
		u.transition(StateIdle, nil, nil)
		u.record(startedAt, currentVersion, decision.Version, string(StateIdle), string(decision.Reason))
		return Result{State: StateIdle, Decision: decision}, nil
	}

	u.transition(StateUpdateAvailable, nil, nil)

	staged, err := u.store.NewStagingFile(decision.Version, u.cfg.Channel)
	if err != nil {
		return u.fail(startedAt, currentVersion, decision.Version, err)
	}

	u.transition(StateDownloading, nil, nil)
	if err := u.downloadPayload(ctx, decision.DownloadURL, staged); err != nil {
		return u.fail(startedAt, currentVersion, decision.Version, err)
	}

	u.transition(StateVerifying, nil, nil)
	signature, err := integrity.DecodeSignature(decision.Signature)
	if err != nil {
		staged.Discard()
		return u.fail(startedAt, currentVersion, decision.Version, err)
	}
	if err := u.verifier.Verify(staged, decision.Checksum, signature); err != nil {
		return u.fail(startedAt, currentVersion, decision.Version, err)
	}

	u.transition(StateInstalling, nil, nil)
	meta, err := u.store.Install(staged)
	if err != nil {
		return u.fail(startedAt, currentVersion, decision.Version, err)
	}

	u.transition(StateActivating, nil, nil)
	now := u.clock.Now()
	record := store.ReadinessRecord{
		BundleID:    meta.BundleID,
		ActivatedAt: now,
		Deadline:    now.Add(u.cfg.ReadinessGracePeriod),
	}
	// The readiness record is written before the pointer swap: if the
	// process dies between the two, the startup check finds a record
	// for a never-activated bundle and clears it. The reverse order
	// would leave an activated bundle with no safety net.
	if err := u.store.PutReadiness(record); err != nil {
		return u.fail(startedAt, currentVersion, decision.Version, err)
	}
	if err := u.store.Activate(meta.BundleID); err != nil {
		u.store.ClearReadiness()
		return u.fail(startedAt, currentVersion, decision.Version, err)
	}

	u.transition(StateAwaitingConfirmation, nil, nil)

	if _, err := u.store.Cleanup(u.cfg.RetainBundles); err != nil {
		u.logger.Warn("retention cleanup failed", "error", err)
	}

	u.record(startedAt, currentVersion, decision.Version, string(StateAwaitingConfirmation), "")
	u.logger.Info("update activated, awaiting readiness confirmation",
		"bundle_id", meta.BundleID,
		"version", decision.Version,
		"deadline", record.Deadline,
	)
	return Result{State: StateAwaitingConfirmation, Decision: decision, BundleID: meta.BundleID}, nil
}

// downloadPayload runs the transfer and a progress forwarder as a
// worker group. The downloader's callback hands progress to a
// buffered channel without blocking the transfer; the forwarder turns
// it into events.
func (u *Updater) downloadPayload(ctx context.Context, url string, staged *store.StagingFile) error {
	progressCh := make(chan download.Progress, 1)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(progressCh)
		return u.downloader.Download(groupCtx, url, staged, func(p download.Progress) {
			select {
			case progressCh <- p:
			default: // forwarder behind; at-most-once is fine
			}
		})
	})
	group.Go(func() error {
		for p := range progressCh {
			progress := p
			u.transition(StateDownloading, &progress, nil)
		}
		return nil
	})
	return group.Wait()
}

// fail emits the failure event, records the cycle, and returns the
// terminal result.
func (u *Updater) fail(startedAt time.Time, fromVersion, toVersion string, err error) (Result, error) {
	u.transition(StateFailed, nil, err)
	u.record(startedAt, fromVersion, toVersion, string(StateFailed), err.Error())
	return Result{State: StateFailed}, err
}

// record appends a cycle outcome to the history journal, when one is
// configured. Journal failures are logged, never propagated — history
// is diagnostic only.
func (u *Updater) record(startedAt time.Time, fromVersion, toVersion, outcome, detail string) {
	if u.journal == nil {
		return
	}
	err := u.journal.Append(context.Background(), history.Entry{
		StartedAt:   startedAt,
		FinishedAt:  u.clock.Now(),
		FromVersion: fromVersion,
		ToVersion:   toVersion,
		Outcome:     outcome,
		Detail:      detail,
	})
	if err != nil {
		u.logger.Warn("recording update cycle failed", "error", err)
	}
}

// currentVersion is the active bundle's version, or the native app
// version when no bundle has ever been activated.
func (u *Updater) currentVersion() string {
	meta, err := u.store.Active()
	if err != nil {
		return u.cfg.AppVersion
	}
	return meta.Version
}

// Active returns the active bundle's metadata. The startup readiness
// check runs first if it has not yet — bundle content is never
// exposed before a crashed update has been rolled back.
func (u *Updater) Active() (store.Metadata, error) {
	if err := u.ensureStartupChecked(); err != nil {
		return store.Metadata{}, err
	}
	return u.store.Active()
}

// ContentDir returns the active bundle's extracted content directory
// (stores configured with ExtractOnInstall only). Runs the startup
// check first, like Active.
func (u *Updater) ContentDir() (string, error) {
	meta, err := u.Active()
	if err != nil {
		return "", err
	}
	return u.store.ContentDir(meta.BundleID)
}

// Check queries the manifest endpoint without downloading anything:
// the dry-run form of Sync.
func (u *Updater) Check(ctx context.Context) (manifest.Decision, error) {
	if err := u.ensureStartupChecked(); err != nil {
		return manifest.Decision{}, err
	}
	return u.resolver.Check(ctx, manifest.CheckParams{
		CurrentVersion: u.currentVersion(),
		AppVersion:     u.cfg.AppVersion,
		DeviceID:       u.cfg.DeviceID,
		AllowDowngrade: u.cfg.AllowDowngrade,
	})
}

// Payload opens a bundle's stored payload for reading.
func (u *Updater) Payload(bundleID string) (io.ReadCloser, error) {
	return u.store.Payload(bundleID)
}

// List returns every bundle known to the store.
func (u *Updater) List() ([]store.Metadata, error) {
	return u.store.List()
}

// Delete removes a non-active, non-pending bundle.
func (u *Updater) Delete(bundleID string) error {
	return u.store.Delete(bundleID)
}

// Cleanup applies retention to non-active bundles. Returns the number
// deleted.
func (u *Updater) Cleanup() (int, error) {
	return u.store.Cleanup(u.cfg.RetainBundles)
}

// History returns the most recent n journal entries, newest first.
// Returns nil when no journal is configured.
func (u *Updater) History(ctx context.Context, n int) ([]history.Entry, error) {
	if u.journal == nil {
		return nil, nil
	}
	return u.journal.Recent(ctx, n)
}

// Reset deletes all non-active bundles and reactivates the original
// (earliest-installed) bundle: factory state, for recovery testing.
func (u *Updater) Reset() error {
	u.mu.Lock()
	if u.inflight != nil {
		u.mu.Unlock()
		return fmt.Errorf("update cycle in progress")
	}
	u.mu.Unlock()

	if err := u.store.ClearReadiness(); err != nil {
		return err
	}

	oldest, ok, err := u.store.Oldest()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := u.store.Activate(oldest.BundleID); err != nil {
		return err
	}

	bundles, err := u.store.List()
	if err != nil {
		return err
	}
	for _, meta := range bundles {
		if meta.BundleID == oldest.BundleID {
			continue
		}
		if err := u.store.Delete(meta.BundleID); err != nil {
			return fmt.Errorf("reset: deleting %s: %w", meta.BundleID, err)
		}
	}

	u.transition(StateIdle, nil, nil)
	u.logger.Info("store reset to original bundle", "bundle_id", oldest.BundleID, "version", oldest.Version)
	return nil
}
