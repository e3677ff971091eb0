// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive detects and extracts bundle payload archives.
//
// A payload is a tar stream, optionally compressed with zstd, lz4, or
// gzip. The format is probed from magic bytes rather than declared,
// so a manifest never has to carry a format field and a server can
// switch compression without a client change.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format identifies a payload compression envelope.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatTar
	FormatZstd
	FormatLZ4
	FormatGzip
)

// String returns the human-readable name of a format.
func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatZstd:
		return "zstd"
	case FormatLZ4:
		return "lz4"
	case FormatGzip:
		return "gzip"
	default:
		return "unknown"
	}
}

// Magic byte sequences. Tar has no leading magic; its "ustar" marker
// sits at offset 257 of the first header block.
var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
	gzipMagic = []byte{0x1f, 0x8b}
	tarMagic  = []byte("ustar")
)

const tarMagicOffset = 257

// probeSize covers the tar magic at offset 257 plus its 5 bytes.
const probeSize = tarMagicOffset + len("ustar")

// Detect identifies the payload format from its leading bytes. header
// may be shorter than probeSize; detection uses what is available.
func Detect(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, zstdMagic):
		return FormatZstd
	case bytes.HasPrefix(header, lz4Magic):
		return FormatLZ4
	case bytes.HasPrefix(header, gzipMagic):
		return FormatGzip
	case len(header) >= probeSize && bytes.Equal(header[tarMagicOffset:tarMagicOffset+len(tarMagic)], tarMagic):
		return FormatTar
	default:
		return FormatUnknown
	}
}

// Extract unpacks a payload archive into dst, creating it if needed.
// The compression envelope is probed from magic bytes. Entries that
// would escape dst (absolute paths, ".." traversal) fail the
// extraction; symlinks and other non-regular entries are skipped.
func Extract(dst string, r io.Reader) error {
	buffered := bufio.NewReaderSize(r, probeSize)
	header, err := buffered.Peek(probeSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("probing payload format: %w", err)
	}

	var tarStream io.Reader
	switch format := Detect(header); format {
	case FormatZstd:
		decoder, err := zstd.NewReader(buffered)
		if err != nil {
			return fmt.Errorf("opening zstd stream: %w", err)
		}
		defer decoder.Close()
		tarStream = decoder
	case FormatLZ4:
		tarStream = lz4.NewReader(buffered)
	case FormatGzip:
		gzipReader, err := gzip.NewReader(buffered)
		if err != nil {
			return fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gzipReader.Close()
		tarStream = gzipReader
	case FormatTar:
		tarStream = buffered
	default:
		return fmt.Errorf("unrecognized payload format")
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("creating extraction directory: %w", err)
	}
	return extractTar(dst, tar.NewReader(tarStream))
}

// extractTar writes the entries of a tar stream under dst.
func extractTar(dst string, reader *tar.Reader) error {
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		name := filepath.FromSlash(header.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("tar entry %q escapes extraction directory", header.Name)
		}
		target := filepath.Join(dst, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating parent of %s: %w", header.Name, err)
			}
			if err := writeEntry(target, reader, header.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
		default:
			// Symlinks, devices, and the rest have no place in a
			// content bundle.
			continue
		}
	}
}

func writeEntry(target string, r io.Reader, perm os.FileMode) error {
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
