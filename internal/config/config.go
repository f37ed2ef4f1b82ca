// Package config loads pydependra settings from defaults, a config file,
// the environment and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/phobologic/pydependra/internal/analyze"
	"github.com/phobologic/pydependra/internal/ignore"
	"github.com/phobologic/pydependra/internal/lang"
)

// EnvPrefix prefixes environment overrides. A single underscore separates
// key levels and a double underscore stands for an underscore in a key, so
// PYDEPENDRA_OUTPUT_FILE sets output.file and PYDEPENDRA_MAX__FILE__SIZE
// sets max_file_size.
const EnvPrefix = "PYDEPENDRA_"

// FileNames are looked up in the root directory, in order, when no config
// file is named explicitly.
var FileNames = []string{"pydependra.yaml", "pydependra.yml", "pydependra.toml"}

// Output formats.
const (
	FormatText = "text"
	FormatTOON = "toon"
)

// Config holds all settings for a run.
type Config struct {
	Root        string   `koanf:"root"`
	Languages   []string `koanf:"languages"`
	Workers     int      `koanf:"workers"`
	MaxFileSize int64    `koanf:"max_file_size"`
	Cache       string   `koanf:"cache"`
	Visualize   bool     `koanf:"visualize"`

	Ignore IgnoreConfig `koanf:"ignore"`
	Graph  GraphConfig  `koanf:"graph"`
	Cycles CycleConfig  `koanf:"cycles"`
	Output OutputConfig `koanf:"output"`
	Log    LogConfig    `koanf:"log"`
	Watch  WatchConfig  `koanf:"watch"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

type IgnoreConfig struct {
	Files        []string `koanf:"files"`
	Dependencies []string `koanf:"dependencies"`
	Builtins     bool     `koanf:"builtins"`
	Defaults     bool     `koanf:"defaults"`
	Gitignore    bool     `koanf:"gitignore"`
}

type GraphConfig struct {
	FileNodes string `koanf:"file_nodes"`
}

type CycleConfig struct {
	Max     int           `koanf:"max"`
	Timeout time.Duration `koanf:"timeout"`
	Strict  bool          `koanf:"strict"`
}

type OutputConfig struct {
	File   string `koanf:"file"`
	Format string `koanf:"format"`
	Top    int    `koanf:"top"`
	Graph  string `koanf:"graph"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type WatchConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Debounce time.Duration `koanf:"debounce"`
}

// Error reports invalid configuration.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"root":          ".",
		"languages":     []string{"python"},
		"workers":       0,
		"max_file_size": int64(analyze.DefaultMaxFileSize),
		"cache":         "",
		"visualize":     false,
		"ignore": map[string]interface{}{
			"files":        []string{},
			"dependencies": []string{},
			"builtins":     false,
			"defaults":     true,
			"gitignore":    false,
		},
		"graph": map[string]interface{}{
			"file_nodes": analyze.FileNodesPath,
		},
		"cycles": map[string]interface{}{
			"max":     0,
			"timeout": time.Duration(0),
			"strict":  false,
		},
		"output": map[string]interface{}{
			"file":   "output.txt",
			"format": FormatText,
			"top":    10,
			"graph":  "dependencies",
		},
		"log": map[string]interface{}{
			"level": "info",
			"json":  false,
		},
		"watch": map[string]interface{}{
			"enabled":  false,
			"debounce": 300 * time.Millisecond,
		},
	}
}

// RegisterFlags defines the command-line flags Load understands.
func RegisterFlags(f *pflag.FlagSet) {
	f.String("root", ".", "root directory for analysis")
	f.String("config", "", "config file (default: pydependra.yaml, .yml or .toml in the root)")
	f.StringP("file", "f", "output.txt", "file to save the report to (- for stdout)")
	f.String("format", FormatText, "report format: text or toon")
	f.Int("top", 10, "number of hotspots to report")
	f.BoolP("visualize", "g", false, "write an interactive HTML graph")
	f.StringP("output", "o", "dependencies", "file name for the HTML graph")
	f.StringSliceP("langs", "l", []string{"python"}, "comma-separated languages to analyze")
	f.Int("workers", 0, "parser workers (0: one per CPU)")
	f.Int64("max-file-size", analyze.DefaultMaxFileSize, "skip files larger than this many bytes")
	f.String("file-nodes", analyze.FileNodesPath, "name file nodes by path or stem")
	f.Int("max-cycles", 0, "stop after this many cycles (0: no limit)")
	f.Duration("cycle-timeout", 0, "stop the cycle search after this long (0: no limit)")
	f.Bool("strict-limits", false, "fail instead of truncating when a cycle limit is hit")
	f.StringSlice("ignore", nil, "additional ignore patterns (comma-separated)")
	f.StringSlice("ignore-deps", nil, "called names to leave out (comma-separated globs)")
	f.Bool("skip-builtins", false, "leave out calls to language builtins")
	f.Bool("default-ignores", true, "skip caches, virtualenvs and VCS directories")
	f.Bool("gitignore", false, "also honor the root .gitignore")
	f.String("cache", "", "reuse this report if no source file is newer")
	f.BoolP("watch", "w", false, "re-run when files under the root change")
	f.Duration("debounce", 300*time.Millisecond, "quiet period before a watch re-run")
	f.String("log-level", "info", "log level: debug, info, warn, error")
	f.BoolP("verbose", "v", false, "debug logging")
	f.BoolP("quiet", "q", false, "only log warnings and errors")
	f.Bool("log-json", false, "log as JSON")
}

// flagKeys maps flag names to config keys. Flags not listed here are not
// configuration.
var flagKeys = map[string]string{
	"root":            "root",
	"file":            "output.file",
	"format":          "output.format",
	"top":             "output.top",
	"visualize":       "visualize",
	"output":          "output.graph",
	"langs":           "languages",
	"workers":         "workers",
	"max-file-size":   "max_file_size",
	"file-nodes":      "graph.file_nodes",
	"max-cycles":      "cycles.max",
	"cycle-timeout":   "cycles.timeout",
	"strict-limits":   "cycles.strict",
	"ignore":          "ignore.files",
	"ignore-deps":     "ignore.dependencies",
	"skip-builtins":   "ignore.builtins",
	"default-ignores": "ignore.defaults",
	"gitignore":       "ignore.gitignore",
	"cache":           "cache",
	"watch":           "watch.enabled",
	"debounce":        "watch.debounce",
	"log-level":       "log.level",
	"log-json":        "log.json",
}

// appendFlags add to the configured list instead of replacing it.
var appendFlags = map[string]bool{
	"ignore":      true,
	"ignore-deps": true,
}

// Load builds a Config. root locates the default config file; an explicit
// --config must exist. Only flags set on the command line override the
// lower layers. f may be nil.
func Load(f *pflag.FlagSet, root string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(makeMapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	path, err := findFile(f, root)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return nil, &Error{Err: fmt.Errorf("reading %s: %w", path, err)}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.ProviderWithFlag(f, ".", k, flagValue(f, k)), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
		if v, _ := f.GetBool("verbose"); v {
			_ = k.Set("log.level", "debug")
		} else if q, _ := f.GetBool("quiet"); q {
			_ = k.Set("log.level", "warn")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, &Error{Err: err}
	}
	cfg.File = path

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findFile(f *pflag.FlagSet, root string) (string, error) {
	if f != nil {
		if p, _ := f.GetString("config"); p != "" {
			if _, err := os.Stat(p); err != nil {
				return "", &Error{Key: "config", Err: err}
			}
			return p, nil
		}
	}
	for _, name := range FileNames {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", &Error{Key: "config", Err: err}
		}
	}
	return "", nil
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Parser()
	}
	return yaml.Parser()
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	s = strings.ReplaceAll(s, "__", "\x00")
	s = strings.ReplaceAll(s, "_", ".")
	return strings.ReplaceAll(s, "\x00", "_")
}

func flagValue(f *pflag.FlagSet, k *koanf.Koanf) func(*pflag.Flag) (string, interface{}) {
	return func(fl *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[fl.Name]
		if !ok || !fl.Changed {
			return "", nil
		}
		val := posflag.FlagVal(f, fl)
		if appendFlags[fl.Name] {
			if added, ok := val.([]string); ok {
				return key, append(k.Strings(key), added...)
			}
		}
		return key, val
	}
}

func (c *Config) validate() error {
	switch c.Output.Format {
	case FormatText, FormatTOON:
	default:
		return &Error{Key: "output.format", Err: fmt.Errorf("unknown format %q", c.Output.Format)}
	}
	switch c.Graph.FileNodes {
	case analyze.FileNodesPath, analyze.FileNodesStem:
	default:
		return &Error{Key: "graph.file_nodes", Err: fmt.Errorf("unknown mode %q", c.Graph.FileNodes)}
	}
	if len(c.Languages) == 0 {
		return &Error{Key: "languages", Err: errors.New("no languages selected")}
	}
	for _, name := range c.Languages {
		if _, ok := lang.Languages[name]; !ok {
			return &Error{Key: "languages", Err: fmt.Errorf("unsupported language %q (have %s)", name, strings.Join(lang.Names(), ", "))}
		}
	}
	if c.Workers < 0 {
		return &Error{Key: "workers", Err: errors.New("must not be negative")}
	}
	if c.Cycles.Max < 0 {
		return &Error{Key: "cycles.max", Err: errors.New("must not be negative")}
	}
	return nil
}

// HTMLPath returns the graph file name with an .html extension.
func (c *Config) HTMLPath() string {
	p := c.Output.Graph
	if !strings.HasSuffix(strings.ToLower(p), ".html") {
		p += ".html"
	}
	return p
}

// AnalyzeOptions compiles the ignore rules and returns options for a run
// over root.
func (c *Config) AnalyzeOptions(root string) (analyze.Options, error) {
	m, err := ignore.New(ignore.Options{
		Patterns:      c.Ignore.Files,
		Defaults:      c.Ignore.Defaults,
		GitignoreRoot: gitignoreRoot(c.Ignore.Gitignore, root),
	})
	if err != nil {
		return analyze.Options{}, &Error{Key: "ignore.files", Err: err}
	}
	names, err := ignore.NewNames(c.Ignore.Dependencies)
	if err != nil {
		return analyze.Options{}, &Error{Key: "ignore.dependencies", Err: err}
	}
	return analyze.Options{
		Root:         root,
		Languages:    c.Languages,
		Ignore:       m.Predicate(),
		IgnoreNames:  names,
		DropBuiltins: c.Ignore.Builtins,
		FileNodes:    c.Graph.FileNodes,
		Workers:      c.Workers,
		MaxFileSize:  c.MaxFileSize,
		MaxCycles:    c.Cycles.Max,
		CycleTimeout: c.Cycles.Timeout,
		StrictLimits: c.Cycles.Strict,
		TopHotspots:  c.Output.Top,
	}, nil
}

func gitignoreRoot(enabled bool, root string) string {
	if !enabled {
		return ""
	}
	return root
}

// mapProvider serves a nested map as a koanf provider.
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("not implemented")
}
