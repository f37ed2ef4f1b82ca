// pydependra reports the names each source file calls and the circular
// dependency chains among them.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/phobologic/pydependra/internal/analyze"
	"github.com/phobologic/pydependra/internal/config"
	"github.com/phobologic/pydependra/internal/discover"
	"github.com/phobologic/pydependra/internal/logging"
	"github.com/phobologic/pydependra/internal/model"
	"github.com/phobologic/pydependra/internal/report"
	"github.com/phobologic/pydependra/internal/toon"
	"github.com/phobologic/pydependra/internal/watch"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "init" {
		return runInit(args[1:], stdout, stderr)
	}

	fs := pflag.NewFlagSet("pydependra", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)
	showVersion := fs.BoolP("version", "V", false, "show version and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: pydependra [flags] [root]
       pydependra init [flags] [path]

Find the names every source file under root calls and report circular
dependency chains between them. root defaults to --root or the current
directory.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *showVersion {
		_, _ = fmt.Fprintf(stdout, "pydependra %s\n", version)
		return nil
	}

	root, _ := fs.GetString("root")
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}

	cfg, err := config.Load(fs, root)
	if err != nil {
		return err
	}
	if fs.NArg() > 0 {
		cfg.Root = root
	}
	logging.Setup(stderr, logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
	if cfg.File != "" {
		logging.Debug("loaded config", "path", cfg.File)
	}

	absRoot, err := filepath.Abs(cfg.Root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	opts, err := cfg.AnalyzeOptions(absRoot)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	once := func(ctx context.Context) error {
		return analyzeOnce(ctx, cfg, opts, stdout)
	}
	if cfg.Watch.Enabled {
		info, err := os.Stat(absRoot)
		if err != nil {
			return fmt.Errorf("root path: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: %w", absRoot, analyze.ErrNotDirectory)
		}
		return watch.Run(ctx, absRoot, opts.Ignore, cfg.Watch.Debounce, once)
	}
	return once(ctx)
}

// analyzeOnce runs one analysis and writes its report, graph and cache.
func analyzeOnce(ctx context.Context, cfg *config.Config, opts analyze.Options, stdout io.Writer) error {
	var key string
	if cfg.Cache != "" {
		files, _ := discover.Files(opts.Root, opts.Languages, opts.Ignore)
		key = cacheKey(cfg, opts.Root, files)
		// The graph needs a full result; the cache holds only the report.
		if !cfg.Visualize {
			if data, ok := readCache(cfg.Cache, key, files); ok {
				logging.Info("using cached report", "path", cfg.Cache)
				return writeReport(cfg.Output.File, data, stdout)
			}
		}
	}

	res, err := analyze.Run(ctx, opts)
	if err != nil {
		return err
	}
	if len(res.Files) == 0 {
		logging.Warn("no source files found", "root", res.Root, "languages", opts.Languages)
	}

	output, err := render(cfg.Output.Format, res)
	if err != nil {
		return err
	}

	if cfg.Cache != "" {
		if err := writeCache(cfg.Cache, key, output); err != nil {
			logging.Warn("failed to write cache", "path", cfg.Cache, "error", err)
		}
	}

	if err := writeReport(cfg.Output.File, output, stdout); err != nil {
		return err
	}

	if cfg.Visualize {
		if err := writeGraph(cfg.HTMLPath(), res, stdout); err != nil {
			return err
		}
	}
	return nil
}

func render(format string, res *model.Result) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case config.FormatTOON:
		buf.WriteString(toon.Encode(res))
		buf.WriteByte('\n')
	default:
		if err := report.WriteText(&buf, res); err != nil {
			return nil, fmt.Errorf("rendering report: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// writeReport writes data to path, or to stdout when path is "-".
func writeReport(path string, data []byte, stdout io.Writer) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving output path: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "Results saved to file: %s\n", abs)
	return nil
}

func writeGraph(path string, res *model.Result, stdout io.Writer) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving graph path: %w", err)
	}
	f, err := os.Create(abs)
	if err != nil {
		return fmt.Errorf("creating graph file: %w", err)
	}
	if err := report.WriteHTML(f, res); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing graph file: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "Interactive graph saved to: %s\n", abs)
	return nil
}
