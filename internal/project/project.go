// Package project gives the runtime its view of the workspace on disk: file
// contents and lines for position correction, mtimes for cache validation,
// and ignore-aware walking for the fallback reference scan.
package project

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileProvider is the boundary the engines depend on; tests substitute an
// in-memory implementation.
type FileProvider interface {
	// ReadFile returns the contents of a file by project-relative path.
	ReadFile(relPath string) ([]byte, error)
	// ReadLines returns the file's lines without trailing newlines.
	ReadLines(relPath string) ([]string, error)
	// Mtime returns the file's current modification time.
	Mtime(relPath string) (time.Time, error)
	// Walk visits every non-ignored file with the given extensions,
	// yielding project-relative paths.
	Walk(extensions []string, visit func(relPath string) error) error
	// Root returns the absolute project root.
	Root() string
}

// Dir is the local filesystem FileProvider rooted at a project directory.
type Dir struct {
	root        string
	ignoreDirs  []string // directory names skipped during walks
	ignorePaths []string // path segments (vendored markers) skipped during walks
}

// NewDir creates a provider rooted at root. ignoredSegments lists path
// segments (like vendor or node_modules) excluded from walks; dot
// directories are always excluded.
func NewDir(root string, ignoredSegments []string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", abs)
	}
	return &Dir{root: abs, ignorePaths: ignoredSegments}, nil
}

func (d *Dir) Root() string { return d.root }

func (d *Dir) abs(relPath string) string {
	return filepath.Join(d.root, filepath.FromSlash(relPath))
}

func (d *Dir) ReadFile(relPath string) ([]byte, error) {
	return os.ReadFile(d.abs(relPath))
}

func (d *Dir) ReadLines(relPath string) ([]string, error) {
	data, err := d.ReadFile(relPath)
	if err != nil {
		return nil, err
	}
	return SplitLines(string(data)), nil
}

func (d *Dir) Mtime(relPath string) (time.Time, error) {
	info, err := os.Stat(d.abs(relPath))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Walk visits matching files depth-first, skipping dot directories and any
// directory whose name matches an ignored segment.
func (d *Dir) Walk(extensions []string, visit func(relPath string) error) error {
	return filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			name := entry.Name()
			if path != d.root && (strings.HasPrefix(name, ".") || d.ignored(name)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasAnySuffix(entry.Name(), extensions) {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		return visit(filepath.ToSlash(rel))
	})
}

func (d *Dir) ignored(name string) bool {
	for _, seg := range d.ignorePaths {
		if name == seg {
			return true
		}
	}
	return false
}

func hasAnySuffix(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// SplitLines splits source text into lines without trailing newlines,
// tolerating both \n and \r\n endings.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
