// Package discover finds source files in a directory tree.
package discover

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/phobologic/pydependra/internal/ignore"
	"github.com/phobologic/pydependra/internal/lang"
	"github.com/phobologic/pydependra/internal/logging"
	"github.com/phobologic/pydependra/internal/model"
)

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path     string // absolute, symlinks resolved
	Rel      string // relative to root, forward slashes
	Language string
}

// Files walks root depth-first in lexical order and returns every file whose
// extension belongs to one of languages (all registered languages if empty).
//
// ignored is consulted for every entry below root; an ignored directory is
// pruned without being read. Entries that cannot be read are skipped and
// returned as *model.FSError values alongside the files that were found.
func Files(root string, languages []string, ignored ignore.Predicate) ([]FileEntry, []error) {
	if ignored == nil {
		ignored = ignore.None
	}
	langSet := make(map[string]struct{}, len(languages))
	for _, l := range languages {
		langSet[l] = struct{}{}
	}

	var (
		results []FileEntry
		errs    []error
		seen    = make(map[string]struct{})
	)

	skip := func(path string, err error) {
		logging.Warn("skipping entry", "path", path, "error", err)
		errs = append(errs, &model.FSError{Path: path, Err: err})
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			skip(path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			skip(path, err)
			return nil
		}
		rel = filepath.ToSlash(rel)

		isDir := d.IsDir()
		isLink := d.Type()&fs.ModeSymlink != 0
		if ignored(rel, isDir) {
			logging.Debug("ignored", "path", rel)
			if isDir {
				return filepath.SkipDir
			}
			return nil
		}
		if isDir {
			return nil
		}

		langName := lang.ForExtension(filepath.Ext(path))
		if langName == "" {
			return nil
		}
		if len(langSet) > 0 {
			if _, ok := langSet[langName]; !ok {
				return nil
			}
		}

		if isLink {
			// Links to files are followed; links to directories are not, so
			// the walk cannot loop.
			info, err := os.Stat(path)
			if err != nil {
				skip(path, fmt.Errorf("broken symlink: %w", err))
				return nil
			}
			if !info.Mode().IsRegular() {
				logging.Debug("skipping non-regular symlink target", "path", rel)
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			skip(path, err)
			return nil
		}
		if _, dup := seen[resolved]; dup {
			return nil
		}
		seen[resolved] = struct{}{}

		results = append(results, FileEntry{Path: resolved, Rel: rel, Language: langName})
		return nil
	})
	if walkErr != nil {
		errs = append(errs, &model.FSError{Path: root, Err: walkErr})
	}

	return results, errs
}
