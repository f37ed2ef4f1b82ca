// Package ignore decides which paths are excluded from discovery and which
// called names are excluded from the dependency graph.
package ignore

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Predicate reports whether a root-relative path is ignored. isDir is true
// for directories, whose contents are then never visited.
type Predicate func(rel string, isDir bool) bool

// None ignores nothing.
func None(string, bool) bool { return false }

// DefaultDirs are directory names pruned when default ignores are enabled.
var DefaultDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	".git":          {},
	".hg":           {},
	".svn":          {},
	"venv":          {},
	".venv":         {},
	"env":           {},
	".env":          {},
	"build":         {},
	"dist":          {},
	".tox":          {},
	".nox":          {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	".pytest_cache": {},
	"site-packages": {},
}

// Options configures a Matcher.
type Options struct {
	// Patterns are fnmatch-style globs matched case-insensitively against the
	// forward-slash, lowercased root-relative path.
	Patterns []string
	// Defaults prunes DefaultDirs and *.egg-info directories.
	Defaults bool
	// GitignoreRoot, when set, loads <GitignoreRoot>/.gitignore.
	GitignoreRoot string
}

// Matcher is a compiled set of ignore rules.
type Matcher struct {
	patterns []compiled
	defaults bool
	git      *gitignore.GitIgnore
}

type compiled struct {
	source string
	g      glob.Glob
}

// New compiles opts. A malformed pattern is a configuration error.
func New(opts Options) (*Matcher, error) {
	m := &Matcher{defaults: opts.Defaults}
	for _, p := range opts.Patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		// No separators: like fnmatch, '*' also matches '/'.
		g, err := glob.Compile(Normalize(p))
		if err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, compiled{source: p, g: g})
	}
	if opts.GitignoreRoot != "" {
		gi, err := gitignore.CompileIgnoreFile(filepath.Join(opts.GitignoreRoot, ".gitignore"))
		switch {
		case err == nil:
			m.git = gi
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("loading .gitignore: %w", err)
		}
	}
	return m, nil
}

// Normalize lowercases a path and converts backslashes to forward slashes.
func Normalize(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, `\`, "/"))
}

// Ignored implements Predicate.
func (m *Matcher) Ignored(rel string, isDir bool) bool {
	norm := Normalize(filepath.ToSlash(rel))
	if m.defaults && isDir {
		base := norm
		if i := strings.LastIndexByte(norm, '/'); i >= 0 {
			base = norm[i+1:]
		}
		if _, ok := DefaultDirs[base]; ok || strings.HasSuffix(base, ".egg-info") {
			return true
		}
	}
	for _, p := range m.patterns {
		if p.g.Match(norm) {
			return true
		}
	}
	if m.git != nil {
		gp := filepath.ToSlash(rel)
		if isDir {
			gp += "/"
		}
		if m.git.MatchesPath(gp) {
			return true
		}
	}
	return false
}

// Predicate returns m.Ignored as a Predicate.
func (m *Matcher) Predicate() Predicate {
	return m.Ignored
}

// Names filters called names by glob. Matching is case-sensitive because
// identifiers are.
type Names struct {
	globs []glob.Glob
}

// NewNames compiles name patterns such as "print" or "test_*".
func NewNames(patterns []string) (*Names, error) {
	n := &Names{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("dependency pattern %q: %w", p, err)
		}
		n.globs = append(n.globs, g)
	}
	return n, nil
}

// Match reports whether name is excluded.
func (n *Names) Match(name string) bool {
	if n == nil {
		return false
	}
	for _, g := range n.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Empty reports whether n has no patterns.
func (n *Names) Empty() bool {
	return n == nil || len(n.globs) == 0
}
