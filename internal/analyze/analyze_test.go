package analyze

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/pydependra/internal/ignore"
	"github.com/phobologic/pydependra/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// tempRoot returns a temp dir with symlinks resolved, matching Result paths.
func tempRoot(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func run(t *testing.T, opts Options) *model.Result {
	t.Helper()
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	return res
}

func TestRunTriangle(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	writeFile(t, root, "a.py", "def run():\n    b()\n")
	writeFile(t, root, "b.py", "c()\n")
	writeFile(t, root, "c.py", "a()\n")

	res := run(t, Options{Root: root, FileNodes: FileNodesStem})

	assert.Equal(t, 3, res.Dependencies.Len())
	assert.Len(t, res.Nodes, 3)
	assert.Len(t, res.Edges, 3)
	assert.Equal(t, []model.Cycle{{"a", "b", "c"}}, res.Cycles)
	assert.False(t, res.CyclesTruncated)
	assert.NotEmpty(t, res.RunID)
}

func TestRunPathNodes(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	a := writeFile(t, root, "a.py", "import os\nos.path.join(x)\nsave()\nsave()\n")
	empty := writeFile(t, root, "empty.py", "x = 1\n")

	res := run(t, Options{Root: root})

	calls, ok := res.Dependencies.Get(a)
	require.True(t, ok)
	assert.Equal(t, []string{"join", "save", "save"}, calls)

	calls, ok = res.Dependencies.Get(empty)
	require.True(t, ok)
	assert.Empty(t, calls)

	// a.py, empty.py, join, save
	assert.Len(t, res.Nodes, 4)
	assert.Equal(t, []model.Edge{
		{Source: a, Target: "join"},
		{Source: a, Target: "save"},
	}, res.Edges)
	assert.Empty(t, res.Cycles)
	assert.Equal(t, []string{a, empty}, res.Files)
}

func TestRunSelfCall(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	writeFile(t, root, "fact.py", "def fact(n):\n    return n * fact(n - 1)\n")

	res := run(t, Options{Root: root, FileNodes: FileNodesStem})

	assert.Equal(t, []model.Cycle{{"fact"}}, res.Cycles)
}

func TestRunSkipsUnparseable(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	writeFile(t, root, "a.py", "b()\n")
	writeFile(t, root, "b.py", "a()\n")
	broken := writeFile(t, root, "broken.py", "def broken(:\n    a()\n")

	res := run(t, Options{Root: root, FileNodes: FileNodesStem})

	_, ok := res.Dependencies.Get(broken)
	assert.False(t, ok, "broken file must not be in the dependency map")
	assert.Equal(t, 2, res.Dependencies.Len())
	assert.Equal(t, []model.Cycle{{"a", "b"}}, res.Cycles)

	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, broken, res.Diagnostics[0].Path)
	assert.Equal(t, model.DiagSyntax, res.Diagnostics[0].Kind)
}

func TestRunIgnoredDirectory(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	writeFile(t, root, "main.py", "run()\n")
	writeFile(t, root, "vendor/x.py", "y()\n")
	writeFile(t, root, "vendor/y.py", "x()\n")

	m, err := ignore.New(ignore.Options{Patterns: []string{"Vendor"}})
	require.NoError(t, err)

	res := run(t, Options{Root: root, FileNodes: FileNodesStem, Ignore: m.Predicate()})

	assert.Equal(t, 1, res.Dependencies.Len())
	assert.Equal(t, []model.Node{{Name: "main", File: true}, {Name: "run"}}, res.Nodes)
	assert.Empty(t, res.Cycles)
}

func TestRunNameFilters(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	a := writeFile(t, root, "a.py", "print(len(x))\ntest_one()\nsave()\n")

	names, err := ignore.NewNames([]string{"test_*"})
	require.NoError(t, err)

	res := run(t, Options{Root: root, DropBuiltins: true, IgnoreNames: names})

	calls, _ := res.Dependencies.Get(a)
	assert.Equal(t, []string{"save"}, calls)
}

func TestRunSizeGuard(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	writeFile(t, root, "small.py", "a()\n")
	big := writeFile(t, root, "big.py", "# padding padding padding\nb()\n")

	res := run(t, Options{Root: root, MaxFileSize: 10})

	_, ok := res.Dependencies.Get(big)
	assert.False(t, ok)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, model.DiagTooLarge, res.Diagnostics[0].Kind)
	assert.Equal(t, 1, res.Dependencies.Len())
}

func TestRunCycleLimit(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	writeFile(t, root, "a.py", "a()\nb()\n")
	writeFile(t, root, "b.py", "a()\nb()\n")

	res := run(t, Options{Root: root, FileNodes: FileNodesStem, MaxCycles: 1})
	assert.Len(t, res.Cycles, 1)
	assert.True(t, res.CyclesTruncated)

	_, err := Run(context.Background(), Options{
		Root:         root,
		FileNodes:    FileNodesStem,
		MaxCycles:    1,
		StrictLimits: true,
	})
	assert.ErrorIs(t, err, ErrCycleLimit)
}

func TestRunIdempotent(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	writeFile(t, root, "a.py", "b()\nc()\n")
	writeFile(t, root, "b.py", "c()\na()\n")
	writeFile(t, root, "c.py", "a()\nb()\n")

	opts := Options{Root: root, FileNodes: FileNodesStem, Workers: 2, CycleTimeout: time.Minute}
	first := run(t, opts)
	second := run(t, opts)

	assert.Equal(t, first.Cycles, second.Cycles)
	assert.Equal(t, first.Edges, second.Edges)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunInvalidRoot(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	file := writeFile(t, root, "a.py", "")

	_, err := Run(context.Background(), Options{Root: file})
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = Run(context.Background(), Options{Root: filepath.Join(root, "missing")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	writeFile(t, root, "a.py", "b()\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Options{Root: root})
	assert.ErrorIs(t, err, context.Canceled)
}
