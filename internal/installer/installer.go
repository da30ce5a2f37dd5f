// Package installer downloads and unpacks language server binaries. Which
// binary a given server needs stays with the caller; this package only
// provides the hardened download and extraction primitives.
package installer

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

// Options tunes download behavior.
type Options struct {
	MaxRetries int           // attempts beyond the first, default 3
	BaseDelay  time.Duration // first backoff step, default 500ms
	SHA256     string        // hex digest; verified when non-empty
	Client     *http.Client  // default http.DefaultClient
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	return o
}

// Download fetches url into dest with bounded retries and exponential
// backoff plus jitter. When opts.SHA256 is set the downloaded bytes must
// match or the file is removed and the download fails. The returned error
// wraps the last underlying failure.
func Download(ctx context.Context, logger *slog.Logger, url, dest string, opts Options) error {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := opts.BaseDelay * (1 << (attempt - 1))
			delay += time.Duration(rand.Int63n(int64(delay) / 2)) //nolint:gosec // jitter, not crypto
			logger.Debug("retrying download", "url", url, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fetchOnce(ctx, opts.Client, url, dest, opts.SHA256)
		if lastErr == nil {
			return nil
		}
	}
	return lspDomain.WrapError(lspDomain.KindInstaller, lastErr, "download %s after %d attempts", url, opts.MaxRetries+1)
}

func fetchOnce(ctx context.Context, client *http.Client, url, dest, wantSHA string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	out, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := out.Name()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, hasher), resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write body: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if wantSHA != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(got, wantSHA) {
			_ = os.Remove(tmpName)
			return fmt.Errorf("sha256 mismatch: got %s, want %s", got, wantSHA)
		}
	}

	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("move into place: %w", err)
	}
	return nil
}

// ExtractZip unpacks a zip archive into destDir, rejecting any entry whose
// resolved path would escape destDir. A single bad entry aborts the whole
// extraction.
func ExtractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return lspDomain.WrapError(lspDomain.KindExtraction, err, "open zip %s", archivePath)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir: %w", err)
			}
			continue
		}
		if err := writeZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil { //nolint:gosec // archives come from pinned release URLs
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

// ExtractTarGz unpacks a gzipped tarball into destDir with the same
// traversal policy as ExtractZip. Symlink entries are skipped.
func ExtractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return lspDomain.WrapError(lspDomain.KindExtraction, err, "open tarball %s", archivePath)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return lspDomain.WrapError(lspDomain.KindExtraction, err, "gzip reader")
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return lspDomain.WrapError(lspDomain.KindExtraction, err, "read tar entry")
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent dir: %w", err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil { //nolint:gosec // archives come from pinned release URLs
				_ = out.Close()
				return fmt.Errorf("write %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("close %s: %w", target, err)
			}
		default:
			// Symlinks and specials are not extracted.
		}
	}
}

// safeJoin resolves name inside destDir and fails closed on traversal.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, name)
	cleanDest := filepath.Clean(destDir) + string(os.PathSeparator)
	if !strings.HasPrefix(target, cleanDest) {
		return "", lspDomain.NewError(lspDomain.KindExtraction, "entry %q escapes extraction dir", name)
	}
	return target, nil
}
