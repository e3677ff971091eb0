// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package native

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/updraft-project/updraft/lib/clock"
	"github.com/updraft-project/updraft/lib/codec"
)

// Review prompt rate limits. OS review dialogs are a scarce resource:
// most platforms silently swallow prompts past a quota, so the
// limiter refuses locally instead of burning the quota.
const (
	DefaultMinReviewInterval   = 90 * 24 * time.Hour
	DefaultMaxPromptsPerInstall = 3
)

// ErrReviewRateLimited reports that RequestReview was refused by the
// local rate limiter.
var ErrReviewRateLimited = errors.New("review prompt rate limited")

// reviewState is the persisted limiter record.
type reviewState struct {
	LastPromptAt time.Time `cbor:"last_prompt_at"`
	PromptCount  int       `cbor:"prompt_count"`
}

// ReviewPrompter rate-limits store review prompts. State lives in a
// single CBOR file, replaced atomically on every accepted prompt.
type ReviewPrompter struct {
	path        string
	minInterval time.Duration
	maxPrompts  int
	clock       clock.Clock
	logger      *slog.Logger

	mu sync.Mutex
}

// ReviewConfig configures ReviewPrompter.
type ReviewConfig struct {
	// StatePath is the limiter state file. Its parent directory must
	// exist.
	StatePath string

	// MinInterval is the minimum time between accepted prompts.
	// Defaults to DefaultMinReviewInterval.
	MinInterval time.Duration

	// MaxPrompts caps accepted prompts over the lifetime of the state
	// file. Defaults to DefaultMaxPromptsPerInstall.
	MaxPrompts int

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewReviewPrompter builds a prompter from the configuration.
func NewReviewPrompter(cfg ReviewConfig) (*ReviewPrompter, error) {
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("review prompter requires a state path")
	}
	if cfg.MinInterval < 0 {
		return nil, fmt.Errorf("review interval must not be negative")
	}
	minInterval := cfg.MinInterval
	if minInterval == 0 {
		minInterval = DefaultMinReviewInterval
	}
	maxPrompts := cfg.MaxPrompts
	if maxPrompts == 0 {
		maxPrompts = DefaultMaxPromptsPerInstall
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewPrompter{
		path:        cfg.StatePath,
		minInterval: minInterval,
		maxPrompts:  maxPrompts,
		clock:       clk,
		logger:      logger,
	}, nil
}

// RequestReview asks permission to show a review prompt. On success
// the accepted prompt is recorded before returning; the caller then
// shows the platform dialog. Returns ErrReviewRateLimited when the
// prompt must be suppressed.
func (p *ReviewPrompter) RequestReview() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.load()
	if err != nil {
		return err
	}

	now := p.clock.Now()
	if state.PromptCount >= p.maxPrompts {
		p.logger.Debug("review prompt suppressed, quota exhausted", "prompt_count", state.PromptCount)
		return fmt.Errorf("%w: prompt quota exhausted", ErrReviewRateLimited)
	}
	if !state.LastPromptAt.IsZero() && now.Sub(state.LastPromptAt) < p.minInterval {
		p.logger.Debug("review prompt suppressed, too soon",
			"last_prompt_at", state.LastPromptAt,
			"min_interval", p.minInterval,
		)
		return fmt.Errorf("%w: last prompt at %s", ErrReviewRateLimited, state.LastPromptAt.Format(time.RFC3339))
	}

	state.LastPromptAt = now
	state.PromptCount++
	if err := p.save(state); err != nil {
		return fmt.Errorf("recording review prompt: %w", err)
	}
	p.logger.Info("review prompt accepted", "prompt_count", state.PromptCount)
	return nil
}

// load reads the state file. A missing file is the zero state.
func (p *ReviewPrompter) load() (reviewState, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return reviewState{}, nil
		}
		return reviewState{}, fmt.Errorf("reading review state: %w", err)
	}
	var state reviewState
	if err := codec.Unmarshal(data, &state); err != nil {
		// Corrupt state file: start over rather than lock the
		// prompter forever.
		p.logger.Warn("review state unreadable, resetting", "error", err)
		return reviewState{}, nil
	}
	return state, nil
}

// save atomically replaces the state file.
func (p *ReviewPrompter) save(state reviewState) error {
	data, err := codec.Marshal(state)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, ".review-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
