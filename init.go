package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/phobologic/pydependra/internal/analyze"
	"github.com/phobologic/pydependra/internal/config"
	"github.com/phobologic/pydependra/internal/ignore"
	"github.com/phobologic/pydependra/internal/lang"
)

// runInit implements the `pydependra init` subcommand, which writes a
// starter pydependra.yaml.
func runInit(args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("pydependra init", pflag.ContinueOnError)
	flags.SetOutput(stderr)

	dryRun := flags.Bool("dry-run", false, "print the config instead of writing it")
	force := flags.Bool("force", false, "overwrite an existing config file")

	flags.Usage = func() {
		fmt.Fprintf(stderr, `Usage: pydependra init [flags] [path]

Write a starter pydependra.yaml listing every setting with its default.
path is a directory or a file name and defaults to the current directory.

Flags:
`)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	content := starterConfig()

	if *dryRun {
		_, _ = fmt.Fprint(stdout, content)
		return nil
	}

	path := config.FileNames[0]
	if flags.NArg() > 0 {
		path = flags.Arg(0)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, config.FileNames[0])
		}
	}

	if !*force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", path, err)
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote starter config to %s\n", path)
	return nil
}

// starterConfig returns a commented YAML config with default values.
func starterConfig() string {
	var dirs []string
	for d := range ignore.DefaultDirs {
		dirs = append(dirs, d)
	}
	slices.Sort(dirs)

	return `# pydependra configuration.
# Environment variables override this file (PYDEPENDRA_OUTPUT_FILE=...),
# and command-line flags override both.

# Languages to analyze: ` + strings.Join(lang.Names(), ", ") + `
languages: [python]

# Parser workers; 0 uses one per CPU.
workers: 0

# Files larger than this many bytes are skipped.
max_file_size: ` + fmt.Sprint(analyze.DefaultMaxFileSize) + `

ignore:
  # Case-insensitive globs matched against root-relative paths.
  files: []
  # Called names to leave out of the graph, e.g. ["print", "log*"].
  dependencies: []
  # Leave out calls to language builtins such as len or print.
  builtins: false
  # Skip ` + strings.Join(dirs, ", ") + `.
  defaults: true
  # Also honor the root .gitignore.
  gitignore: false

graph:
  # Name file nodes by full path, or by stem so that a.py and a() meet.
  file_nodes: path

cycles:
  # Stop after this many cycles; 0 means no limit.
  max: 0
  # Stop the cycle search after this long, e.g. 30s; 0 means no limit.
  timeout: 0s
  # Fail instead of reporting a truncated cycle list.
  strict: false

output:
  # Report file; "-" writes to stdout.
  file: output.txt
  # text or toon.
  format: text
  # Hotspots listed in toon output.
  top: 10
  # HTML graph file written with --visualize.
  graph: dependencies

log:
  level: info
  json: false

watch:
  enabled: false
  debounce: 300ms
`
}
