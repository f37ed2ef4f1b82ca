// Package analyze runs the full pipeline: discovery, call extraction, graph
// construction, cycle enumeration and hotspot ranking.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/pydependra/internal/cycles"
	"github.com/phobologic/pydependra/internal/depgraph"
	"github.com/phobologic/pydependra/internal/discover"
	"github.com/phobologic/pydependra/internal/extract"
	"github.com/phobologic/pydependra/internal/ignore"
	"github.com/phobologic/pydependra/internal/lang"
	"github.com/phobologic/pydependra/internal/logging"
	"github.com/phobologic/pydependra/internal/model"
	"github.com/phobologic/pydependra/internal/ranking"
)

const DefaultMaxFileSize = 1_000_000 // 1 MB

// File node naming modes.
const (
	FileNodesPath = "path"
	FileNodesStem = "stem"
)

var (
	// ErrNotDirectory reports a root that exists but is not a directory.
	ErrNotDirectory = errors.New("not a directory")
	// ErrCycleLimit reports a truncated cycle search when limits are strict.
	ErrCycleLimit = errors.New("cycle search limit reached")
)

// Options configures one run.
type Options struct {
	Root      string
	Languages []string // empty means every registered language

	Ignore       ignore.Predicate // applied to root-relative paths
	IgnoreNames  *ignore.Names    // called names to drop
	DropBuiltins bool

	FileNodes   string // FileNodesPath (default) or FileNodesStem
	Workers     int    // <= 0 means GOMAXPROCS
	MaxFileSize int64  // <= 0 disables the size guard

	MaxCycles    int
	CycleTimeout time.Duration
	StrictLimits bool

	TopHotspots int
}

// Run analyzes opts.Root. Per-file problems never fail the run; they are
// collected in Result.Diagnostics. Run fails on an invalid root, on
// cancellation of ctx, and on a truncated cycle search when StrictLimits is
// set.
func Run(ctx context.Context, opts Options) (*model.Result, error) {
	root, err := checkRoot(opts.Root)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := logging.With("run", runID)
	start := time.Now()

	res := &model.Result{RunID: runID, Root: root}

	entries, errs := discover.Files(root, opts.Languages, opts.Ignore)
	for _, err := range errs {
		res.Diagnostics = append(res.Diagnostics, model.DiagnosticFor(err))
	}
	for _, e := range entries {
		res.Files = append(res.Files, e.Path)
	}
	log.Debug("discovered files", "count", len(entries))

	entries, skipped := filterBySize(entries, opts.MaxFileSize)
	res.Diagnostics = append(res.Diagnostics, skipped...)

	parsed, err := parseFiles(ctx, entries, opts.Workers)
	if err != nil {
		return nil, err
	}

	deps := model.NewDependencyMap()
	for i, e := range entries {
		p := parsed[i]
		if p.err != nil {
			log.Warn("skipping file", "path", e.Rel, "error", p.err)
			res.Diagnostics = append(res.Diagnostics, model.DiagnosticFor(p.err))
			continue
		}
		deps.Set(e.Path, filterNames(p.calls, lang.Languages[e.Language], opts))
	}
	res.Dependencies = deps

	var nodeName func(string) string
	if opts.FileNodes == FileNodesStem {
		nodeName = depgraph.Stem
	}
	g := depgraph.BuildWith(deps, nodeName)
	for id := int64(0); id < int64(g.Len()); id++ {
		res.Nodes = append(res.Nodes, model.Node{Name: g.Name(id), File: g.IsFile(id)})
	}
	res.Edges = g.Edges()

	cyc, err := findCycles(ctx, g, opts)
	if err != nil {
		return nil, err
	}
	res.Cycles = cyc.Cycles
	res.CyclesTruncated = cyc.Truncated
	if cyc.Truncated {
		log.Warn("cycle search stopped early", "found", len(cyc.Cycles))
		if opts.StrictLimits {
			return nil, fmt.Errorf("%w after %d cycles", ErrCycleLimit, len(cyc.Cycles))
		}
	}

	res.Hotspots = ranking.Hotspots(g, opts.TopHotspots)

	log.Info("analysis complete",
		"files", deps.Len(),
		"nodes", len(res.Nodes),
		"edges", len(res.Edges),
		"cycles", len(res.Cycles),
		"skipped", len(res.Diagnostics),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

// checkRoot returns root as an absolute path with symlinks resolved, so it
// lines up with discovered file paths.
func checkRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: %w", abs, ErrNotDirectory)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	return resolved, nil
}

func filterBySize(entries []discover.FileEntry, maxSize int64) ([]discover.FileEntry, []model.Diagnostic) {
	if maxSize <= 0 {
		return entries, nil
	}
	var (
		kept  []discover.FileEntry
		diags []model.Diagnostic
	)
	for _, e := range entries {
		fi, err := os.Stat(e.Path)
		if err != nil {
			kept = append(kept, e) // the read will report it
			continue
		}
		if fi.Size() > maxSize {
			logging.Warn("skipping large file", "path", e.Rel, "size", fi.Size())
			diags = append(diags, model.Diagnostic{
				Path:  e.Path,
				Kind:  model.DiagTooLarge,
				Error: fmt.Sprintf("%d bytes exceeds limit of %d", fi.Size(), maxSize),
			})
			continue
		}
		kept = append(kept, e)
	}
	return kept, diags
}

type parsed struct {
	calls []string
	err   error
}

// parseFiles extracts calls from every entry on a pool of workers. Each
// worker owns one parser per language. Results are indexed like entries.
func parseFiles(ctx context.Context, entries []discover.FileEntry, workers int) ([]parsed, error) {
	results := make([]parsed, len(entries))
	if len(entries) == 0 {
		return results, nil
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, len(entries))

	work := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(work)
		for i := range entries {
			select {
			case work <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range workers {
		g.Go(func() error {
			parsers := make(map[string]*sitter.Parser)
			defer func() {
				for _, p := range parsers {
					p.Close()
				}
			}()

			for i := range work {
				e := entries[i]
				l := lang.Languages[e.Language]
				p, ok := parsers[e.Language]
				if !ok {
					p = l.NewParser()
					parsers[e.Language] = p
				}
				_, calls, err := extract.File(gctx, l, p, e.Path)
				if err != nil && gctx.Err() != nil {
					return gctx.Err()
				}
				results[i] = parsed{calls: calls, err: err}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// filterNames drops builtins and ignored names from calls.
func filterNames(calls []string, l *lang.Language, opts Options) []string {
	if !opts.DropBuiltins && opts.IgnoreNames.Empty() {
		return calls
	}
	out := make([]string, 0, len(calls))
	for _, name := range calls {
		if opts.DropBuiltins && l != nil && l.IsBuiltin(name) {
			continue
		}
		if opts.IgnoreNames.Match(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// findCycles enumerates cycles within the configured budget. Hitting the
// cycle cap or the timeout truncates the result; only cancellation of the
// parent context is an error.
func findCycles(ctx context.Context, g *depgraph.Graph, opts Options) (cycles.Result, error) {
	cctx := ctx
	if opts.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, opts.CycleTimeout)
		defer cancel()
	}

	res, err := cycles.Enumerate(cctx, g, cycles.Options{MaxCycles: opts.MaxCycles})
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Truncated = true
	}
	return res, nil
}
