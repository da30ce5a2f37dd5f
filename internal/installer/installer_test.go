package installer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func fastOpts() Options {
	return Options{MaxRetries: 3, BaseDelay: time.Millisecond}
}

func TestDownloadRetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("server binary"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "bin", "server")
	if err := Download(context.Background(), testLogger(), srv.URL, dest, fastOpts()); err != nil {
		t.Fatalf("Download: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "server binary" {
		t.Errorf("content = %q", data)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestDownloadGivesUpAfterBoundedRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "server")
	err := Download(context.Background(), testLogger(), srv.URL, dest, fastOpts())
	if lspDomain.KindOf(err) != lspDomain.KindInstaller {
		t.Fatalf("err = %v, want installer kind", err)
	}
	if attempts.Load() != 4 { // initial try + 3 retries
		t.Errorf("attempts = %d, want 4", attempts.Load())
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("failed download should leave no file behind")
	}
}

func TestDownloadVerifiesSHA256(t *testing.T) {
	payload := []byte("verified payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	sum := sha256.Sum256(payload)
	good := hex.EncodeToString(sum[:])

	dest := filepath.Join(t.TempDir(), "ok")
	opts := fastOpts()
	opts.SHA256 = good
	if err := Download(context.Background(), testLogger(), srv.URL, dest, opts); err != nil {
		t.Fatalf("Download with matching digest: %v", err)
	}

	dest = filepath.Join(t.TempDir(), "bad")
	opts.SHA256 = "deadbeef"
	err := Download(context.Background(), testLogger(), srv.URL, dest, opts)
	if lspDomain.KindOf(err) != lspDomain.KindInstaller {
		t.Fatalf("err = %v, want installer kind", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("mismatched download should be removed")
	}
}

func makeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "archive.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractZip(t *testing.T) {
	archive := makeZip(t, map[string]string{
		"bin/server":  "binary",
		"LICENSE.txt": "license",
	})
	dest := t.TempDir()

	if err := ExtractZip(archive, dest); err != nil {
		t.Fatalf("ExtractZip: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "bin", "server"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "binary" {
		t.Errorf("content = %q", data)
	}
}

func TestExtractZipRejectsTraversal(t *testing.T) {
	archive := makeZip(t, map[string]string{
		"../evil.sh": "#!/bin/sh",
	})
	dest := t.TempDir()

	err := ExtractZip(archive, dest)
	if lspDomain.KindOf(err) != lspDomain.KindExtraction {
		t.Fatalf("err = %v, want extraction kind", err)
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "evil.sh")); !os.IsNotExist(statErr) {
		t.Error("traversal entry must not be written")
	}
}

func makeTarGz(t *testing.T, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		if err := tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o755,
			Size: int64(len(content)),
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractTarGz(t *testing.T) {
	archive := makeTarGz(t, map[string]string{"server": "binary"})
	dest := t.TempDir()

	if err := ExtractTarGz(archive, dest); err != nil {
		t.Fatalf("ExtractTarGz: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "server"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "binary" {
		t.Errorf("content = %q", data)
	}
}

func TestExtractTarGzRejectsTraversal(t *testing.T) {
	archive := makeTarGz(t, map[string]string{"../../escape": "nope"})
	dest := t.TempDir()

	err := ExtractTarGz(archive, dest)
	if lspDomain.KindOf(err) != lspDomain.KindExtraction {
		t.Fatalf("err = %v, want extraction kind", err)
	}
}
