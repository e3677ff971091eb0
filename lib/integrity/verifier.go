// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package integrity validates staged bundle bytes against the
// manifest checksum and, when a public key is configured, a detached
// signature. One streaming pass computes the SHA-256 digest; the
// signature check reuses that digest, so the payload is never read
// twice.
package integrity

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/updraft-project/updraft/lib/store"
)

var (
	// ErrChecksumMismatch means the staged bytes do not hash to the
	// manifest checksum. The staged file is discarded; the bundle is
	// never installed.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrSignatureInvalid means the detached signature did not verify
	// against the configured public key (or a required signature was
	// absent or unparseable). Same discard behavior as a checksum
	// mismatch.
	ErrSignatureInvalid = errors.New("signature invalid")
)

// Config configures a Verifier.
type Config struct {
	// PublicKey verifies detached signatures. RSA (PKCS#1 v1.5 over
	// SHA-256) and ECDSA (ASN.1 over SHA-256) keys are supported.
	// When nil, signatures are not checked.
	PublicKey crypto.PublicKey

	// RequireSignature rejects bundles that arrive without a
	// signature. Only meaningful with a PublicKey.
	RequireSignature bool

	// Logger receives verification outcomes. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Verifier validates staged bundles.
type Verifier struct {
	publicKey        crypto.PublicKey
	requireSignature bool
	logger           *slog.Logger
}

// New creates a Verifier.
func New(cfg Config) *Verifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		publicKey:        cfg.PublicKey,
		requireSignature: cfg.RequireSignature,
		logger:           logger,
	}
}

// LoadPublicKey parses a PEM-encoded PKIX public key (RSA or ECDSA).
func LoadPublicKey(pemBytes []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in public key data")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	switch key.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported public key type %T", key)
	}
}

// DecodeSignature decodes the manifest's base64 signature field.
// A malformed signature is an ErrSignatureInvalid, not a transport
// error.
func DecodeSignature(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	signature, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding signature: %v", ErrSignatureInvalid, err)
	}
	return signature, nil
}

// Verify streams the staged bytes once, checking the SHA-256 digest
// against expectedChecksum (case-insensitive hex) and, when both a
// key and a signature are present, the detached signature over the
// same digest. On any failure the staged file is discarded and the
// bundle does not progress. On success the staging file is marked
// verified and becomes installable.
func (v *Verifier) Verify(staged *store.StagingFile, expectedChecksum string, signature []byte) error {
	if err := v.verify(staged, expectedChecksum, signature); err != nil {
		staged.Discard()
		return err
	}
	return nil
}

func (v *Verifier) verify(staged *store.StagingFile, expectedChecksum string, signature []byte) error {
	expected := strings.ToLower(strings.TrimSpace(expectedChecksum))
	if len(expected) != hex.EncodedLen(sha256.Size) {
		return fmt.Errorf("%w: expected checksum %q is not a SHA-256 hex digest", ErrChecksumMismatch, expectedChecksum)
	}
	if _, err := hex.DecodeString(expected); err != nil {
		return fmt.Errorf("%w: expected checksum %q is not hex", ErrChecksumMismatch, expectedChecksum)
	}

	reader, err := staged.Open()
	if err != nil {
		return fmt.Errorf("opening staged bundle: %w", err)
	}
	defer reader.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, reader); err != nil {
		return fmt.Errorf("hashing staged bundle: %w", err)
	}
	digest := hasher.Sum(nil)
	measured := hex.EncodeToString(digest)

	if measured != expected {
		v.logger.Warn("bundle checksum mismatch",
			"bundle_id", staged.BundleID(),
			"expected", expected,
			"measured", measured,
		)
		return fmt.Errorf("%w: expected %s, measured %s", ErrChecksumMismatch, expected, measured)
	}

	if v.publicKey != nil {
		if len(signature) == 0 {
			if v.requireSignature {
				return fmt.Errorf("%w: signature required but absent", ErrSignatureInvalid)
			}
		} else if err := verifySignature(v.publicKey, digest, signature); err != nil {
			v.logger.Warn("bundle signature rejected",
				"bundle_id", staged.BundleID(),
				"error", err,
			)
			return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
	}

	staged.MarkVerified(measured)
	v.logger.Info("bundle verified",
		"bundle_id", staged.BundleID(),
		"version", staged.Version(),
		"size_bytes", staged.Size(),
	)
	return nil
}

// verifySignature checks a detached signature over the payload's
// SHA-256 digest.
func verifySignature(key crypto.PublicKey, digest, signature []byte) error {
	switch typed := key.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(typed, crypto.SHA256, digest, signature)
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(typed, digest, signature) {
			return fmt.Errorf("ECDSA verification failed")
		}
		return nil
	default:
		return fmt.Errorf("unsupported public key type %T", key)
	}
}
