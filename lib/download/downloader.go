// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package download streams bundle payloads from the update server
// into the store's staging area.
//
// The downloader keeps a simple contract: it does not retry (the
// caller decides retry policy), it never holds the full payload in
// memory, and on any failure — transport error, size cap, or
// cancellation — the partial staging file is discarded before the
// call returns, leaving no trace in the store.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/updraft-project/updraft/lib/clock"
	"github.com/updraft-project/updraft/lib/store"
)

var (
	// ErrNetwork wraps transport failures: connection errors,
	// non-2xx responses, truncated bodies. Recoverable — the caller
	// may retry a later sync; the device keeps its last good bundle.
	ErrNetwork = errors.New("network error")

	// ErrSizeLimitExceeded means the payload exceeded the configured
	// maximum (declared or measured). Fatal to this download; the
	// partial file is discarded.
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
)

// copyBufferSize is the streaming chunk size. Also the granularity of
// cancellation checks and progress accounting.
const copyBufferSize = 64 * 1024

// Progress reports transfer state. TotalBytes is -1 when the server
// did not declare a Content-Length.
type Progress struct {
	BytesDownloaded int64
	TotalBytes      int64
}

// Config configures a Downloader.
type Config struct {
	// HTTPClient performs the payload request. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// MaxBundleSize caps the payload size in bytes. Zero means no
	// cap.
	MaxBundleSize int64

	// ProgressInterval bounds the progress callback rate. A final
	// emission always follows a completed transfer. Defaults to
	// 200ms.
	ProgressInterval time.Duration

	// Clock throttles progress emission. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives transfer outcomes. Defaults to slog.Default().
	Logger *slog.Logger
}

// Downloader streams payloads into staging files.
type Downloader struct {
	client   *http.Client
	maxSize  int64
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates a Downloader.
func New(cfg Config) *Downloader {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 200 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Downloader{
		client:   cfg.HTTPClient,
		maxSize:  cfg.MaxBundleSize,
		interval: cfg.ProgressInterval,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

// Download streams the payload at url into staged. onProgress, if
// non-nil, is called at a bounded rate plus once after the final
// byte; it must return quickly (publish-and-forget — the orchestrator
// forwards into a non-blocking event channel).
//
// Cancellation is cooperative via ctx, checked every copy chunk; the
// partial file is discarded before the cancellation error returns.
func (d *Downloader) Download(ctx context.Context, url string, staged *store.StagingFile, onProgress func(Progress)) error {
	if err := d.download(ctx, url, staged, onProgress); err != nil {
		staged.Discard()
		return err
	}
	return nil
}

func (d *Downloader) download(ctx context.Context, url string, staged *store.StagingFile, onProgress func(Progress)) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building payload request: %w", err)
	}

	response, err := d.client.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: requesting %s: %v", ErrNetwork, url, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %s", ErrNetwork, url, response.Status)
	}

	total := response.ContentLength
	if d.maxSize > 0 && total > d.maxSize {
		return fmt.Errorf("%w: declared size %d exceeds limit %d", ErrSizeLimitExceeded, total, d.maxSize)
	}

	buffer := make([]byte, copyBufferSize)
	var written int64
	lastEmit := d.clock.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := response.Body.Read(buffer)
		if n > 0 {
			written += int64(n)
			if d.maxSize > 0 && written > d.maxSize {
				return fmt.Errorf("%w: transfer passed %d bytes, limit %d", ErrSizeLimitExceeded, written, d.maxSize)
			}
			if _, err := staged.Write(buffer[:n]); err != nil {
				return err
			}
			if onProgress != nil {
				now := d.clock.Now()
				if now.Sub(lastEmit) >= d.interval {
					lastEmit = now
					onProgress(Progress{BytesDownloaded: written, TotalBytes: total})
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: reading payload: %v", ErrNetwork, readErr)
		}
	}

	// The declared and measured sizes must agree; a short body is a
	// truncated transfer, not a smaller bundle.
	if total >= 0 && written != total {
		return fmt.Errorf("%w: received %d of %d declared bytes", ErrNetwork, written, total)
	}

	if onProgress != nil {
		onProgress(Progress{BytesDownloaded: written, TotalBytes: total})
	}

	d.logger.Info("payload downloaded",
		"bundle_id", staged.BundleID(),
		"url", url,
		"bytes", written,
	)
	return nil
}
