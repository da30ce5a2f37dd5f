package project

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadLines(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\r\n\nfunc main() {}\n")

	d, err := NewDir(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	lines, err := d.ReadLines("main.go")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"package main", "", "func main() {}", ""}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestMtimeAdvancesOnWrite(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")

	d, err := NewDir(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	first, err := d.Mtime("a.go")
	if err != nil {
		t.Fatal(err)
	}

	future := first.Add(2 * time.Second)
	if err := os.Chtimes(filepath.Join(root, "a.go"), future, future); err != nil {
		t.Fatal(err)
	}
	second, err := d.Mtime("a.go")
	if err != nil {
		t.Fatal(err)
	}
	if !second.After(first) {
		t.Errorf("mtime did not advance: %v -> %v", first, second)
	}
}

func TestWalkSkipsIgnoredAndDotDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "pkg/util.go", "package pkg")
	writeFile(t, root, "vendor/dep/dep.go", "package dep")
	writeFile(t, root, ".git/objects/x.go", "not code")
	writeFile(t, root, "README.md", "docs")

	d, err := NewDir(root, []string{"vendor"})
	if err != nil {
		t.Fatal(err)
	}

	var visited []string
	err = d.Walk([]string{".go"}, func(rel string) error {
		visited = append(visited, rel)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(visited)

	want := []string{"main.go", "pkg/util.go"}
	if len(visited) != len(want) {
		t.Fatalf("visited = %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("visited[%d] = %q, want %q", i, visited[i], want[i])
		}
	}
}

func TestNewDirRejectsFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file.txt", "x")

	if _, err := NewDir(filepath.Join(root, "file.txt"), nil); err == nil {
		t.Fatal("expected error for non-directory root")
	}
}

func TestSplitLines(t *testing.T) {
	lines := SplitLines("a\r\nb\nc")
	want := []string{"a", "b", "c"}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
