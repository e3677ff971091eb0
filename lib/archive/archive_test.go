// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// tarball builds a tar stream from path → content pairs.
func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}); err != nil {
			t.Fatalf("WriteHeader %s: %v", name, err)
		}
		if _, err := io.WriteString(tw, content); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   Format
	}{
		{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}, FormatZstd},
		{"lz4", []byte{0x04, 0x22, 0x4d, 0x18, 0x00}, FormatLZ4},
		{"gzip", []byte{0x1f, 0x8b, 0x08}, FormatGzip},
		{"short garbage", []byte{0x00, 0x01}, FormatUnknown},
		{"empty", nil, FormatUnknown},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Detect(test.header); got != test.want {
				t.Errorf("Detect = %v, want %v", got, test.want)
			}
		})
	}

	// A real tar header carries "ustar" at offset 257.
	plain := tarball(t, map[string]string{"f": "x"})
	if got := Detect(plain[:probeSize]); got != FormatTar {
		t.Errorf("Detect(tar header) = %v, want %v", got, FormatTar)
	}
}

func TestExtractRoundTrip(t *testing.T) {
	files := map[string]string{
		"index.html":     "<html></html>",
		"js/app.js":      "console.log('v2')",
		"assets/logo.sv": "svg-bytes",
	}
	plain := tarball(t, files)

	compress := map[string]func([]byte) []byte{
		"plain tar": func(b []byte) []byte { return b },
		"zstd": func(b []byte) []byte {
			var buf bytes.Buffer
			w, err := zstd.NewWriter(&buf)
			if err != nil {
				t.Fatalf("zstd.NewWriter: %v", err)
			}
			w.Write(b)
			w.Close()
			return buf.Bytes()
		},
		"lz4": func(b []byte) []byte {
			var buf bytes.Buffer
			w := lz4.NewWriter(&buf)
			w.Write(b)
			w.Close()
			return buf.Bytes()
		},
		"gzip": func(b []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			w.Write(b)
			w.Close()
			return buf.Bytes()
		},
	}

	for name, wrap := range compress {
		t.Run(name, func(t *testing.T) {
			dst := t.TempDir()
			if err := Extract(dst, bytes.NewReader(wrap(plain))); err != nil {
				t.Fatalf("Extract: %v", err)
			}
			for path, want := range files {
				got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(path)))
				if err != nil {
					t.Fatalf("reading %s: %v", path, err)
				}
				if string(got) != want {
					t.Errorf("%s = %q, want %q", path, got, want)
				}
			}
		})
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	for _, name := range []string{"../escape", "/etc/passwd", "a/../../b"} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			tw := tar.NewWriter(&buf)
			content := "evil"
			if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}); err != nil {
				t.Fatal(err)
			}
			io.WriteString(tw, content)
			tw.Close()

			parent := t.TempDir()
			dst := filepath.Join(parent, "content")
			if err := Extract(dst, bytes.NewReader(buf.Bytes())); err == nil {
				t.Fatalf("Extract accepted entry %q", name)
			}
			if _, err := os.Stat(filepath.Join(parent, "escape")); !os.IsNotExist(err) {
				t.Errorf("traversal entry escaped the destination")
			}
		})
	}
}

func TestExtractSkipsSpecialEntries(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name:     "link",
		Typeflag: tar.TypeSymlink,
		Linkname: "/etc/passwd",
	}); err != nil {
		t.Fatal(err)
	}
	content := "kept"
	if err := tw.WriteHeader(&tar.Header{Name: "regular", Mode: 0o644, Size: int64(len(content))}); err != nil {
		t.Fatal(err)
	}
	io.WriteString(tw, content)
	tw.Close()

	dst := t.TempDir()
	if err := Extract(dst, bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dst, "link")); !os.IsNotExist(err) {
		t.Errorf("symlink entry was materialized")
	}
	if got, err := os.ReadFile(filepath.Join(dst, "regular")); err != nil || string(got) != content {
		t.Errorf("regular file after symlink skip: %q, %v", got, err)
	}
}

func TestExtractUnknownFormat(t *testing.T) {
	if err := Extract(t.TempDir(), bytes.NewReader([]byte("definitely not an archive"))); err == nil {
		t.Fatalf("Extract accepted garbage input")
	}
}
