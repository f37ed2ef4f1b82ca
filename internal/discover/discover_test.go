package discover

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/phobologic/pydependra/internal/ignore"
	"github.com/phobologic/pydependra/internal/model"
)

func rels(entries []FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Rel
	}
	return out
}

func TestDiscoverPythonFiles(t *testing.T) {
	t.Parallel()

	dir := resolvedTempDir(t)

	writeFile(t, dir, "main.py", "print('hello')")
	writeFile(t, dir, "lib/util.py", "def helper(): pass")
	writeFile(t, dir, "lib/b/deep.py", "pass")
	// Non-Python file should be ignored
	writeFile(t, dir, "readme.txt", "hello")

	entries, errs := Files(dir, nil, nil)
	if len(errs) != 0 {
		t.Fatalf("Files: %v", errs)
	}

	// Depth-first, lexical within each directory.
	want := []string{"lib/b/deep.py", "lib/util.py", "main.py"}
	if got := rels(entries); !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	for _, e := range entries {
		if e.Language != "python" {
			t.Errorf("entry %q: language = %q, want python", e.Rel, e.Language)
		}
		if e.Path != filepath.Join(dir, filepath.FromSlash(e.Rel)) {
			t.Errorf("entry %q: path = %q", e.Rel, e.Path)
		}
	}
}

func TestDiscoverIgnoredDirsArePruned(t *testing.T) {
	t.Parallel()

	dir := resolvedTempDir(t)

	writeFile(t, dir, "main.py", "pass")
	writeFile(t, dir, "node_modules/pkg.py", "pass")
	writeFile(t, dir, "__pycache__/cached.py", "pass")
	writeFile(t, dir, "Vendor/lib.py", "pass")
	writeFile(t, dir, "gen/out_pb2.py", "pass")

	m, err := ignore.New(ignore.Options{Patterns: []string{"vendor", "*_pb2.py"}, Defaults: true})
	if err != nil {
		t.Fatal(err)
	}

	var seen []string
	pred := func(rel string, isDir bool) bool {
		seen = append(seen, rel)
		return m.Ignored(rel, isDir)
	}

	entries, errs := Files(dir, nil, pred)
	if len(errs) != 0 {
		t.Fatalf("Files: %v", errs)
	}
	if got := rels(entries); !slices.Equal(got, []string{"main.py"}) {
		t.Errorf("got %v, want [main.py]", got)
	}
	for _, rel := range seen {
		if rel == "node_modules/pkg.py" || rel == "Vendor/lib.py" {
			t.Errorf("pruned directory was read: %s", rel)
		}
	}
}

func TestDiscoverLanguageFilter(t *testing.T) {
	t.Parallel()

	dir := resolvedTempDir(t)

	writeFile(t, dir, "main.py", "pass")
	writeFile(t, dir, "lib.py", "pass")
	writeFile(t, dir, "tool.go", "package tool")

	entries, _ := Files(dir, []string{"python"}, nil)
	if got := rels(entries); !slices.Equal(got, []string{"lib.py", "main.py"}) {
		t.Errorf("python filter: got %v", got)
	}

	entries, _ = Files(dir, []string{"go"}, nil)
	if got := rels(entries); !slices.Equal(got, []string{"tool.go"}) {
		t.Errorf("go filter: got %v", got)
	}

	entries, _ = Files(dir, nil, nil)
	if len(entries) != 3 {
		t.Errorf("no filter: got %v", rels(entries))
	}
}

func TestDiscoverSymlinks(t *testing.T) {
	t.Parallel()

	dir := resolvedTempDir(t)
	outside := resolvedTempDir(t)
	writeFile(t, dir, "real.py", "pass")
	writeFile(t, outside, "shared.py", "pass")

	if err := os.Symlink(filepath.Join(outside, "shared.py"), filepath.Join(dir, "linked.py")); err != nil {
		t.Skip("symlinks not supported")
	}
	// A second name for real.py is the same file.
	if err := os.Symlink(filepath.Join(dir, "real.py"), filepath.Join(dir, "alias.py")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "missing.py"), filepath.Join(dir, "dangling.py")); err != nil {
		t.Fatal(err)
	}

	entries, errs := Files(dir, nil, nil)

	if got := rels(entries); !slices.Equal(got, []string{"alias.py", "linked.py"}) {
		t.Errorf("got %v, want [alias.py linked.py]", got)
	}
	if len(entries) == 2 {
		if entries[0].Path != filepath.Join(dir, "real.py") {
			t.Errorf("alias.py resolved to %q", entries[0].Path)
		}
		if entries[1].Path != filepath.Join(outside, "shared.py") {
			t.Errorf("linked.py resolved to %q", entries[1].Path)
		}
	}

	if len(errs) != 1 {
		t.Fatalf("expected 1 error for the dangling link, got %v", errs)
	}
	var fe *model.FSError
	if !errors.As(errs[0], &fe) || fe.Path != filepath.Join(dir, "dangling.py") {
		t.Errorf("unexpected error %v", errs[0])
	}
}

func TestDiscoverSymlinkedDirNotFollowed(t *testing.T) {
	t.Parallel()

	dir := resolvedTempDir(t)
	writeFile(t, dir, "pkg/mod.py", "pass")
	if err := os.Symlink(dir, filepath.Join(dir, "pkg", "loop")); err != nil {
		t.Skip("symlinks not supported")
	}

	entries, errs := Files(dir, nil, nil)
	if len(errs) != 0 {
		t.Fatalf("Files: %v", errs)
	}
	if got := rels(entries); !slices.Equal(got, []string{"pkg/mod.py"}) {
		t.Errorf("got %v", got)
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	t.Parallel()

	entries, errs := Files(filepath.Join(t.TempDir(), "nope"), nil, nil)
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %v", entries)
	}
	if len(errs) != 1 || !errors.Is(errs[0], os.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", errs)
	}
}

func resolvedTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
