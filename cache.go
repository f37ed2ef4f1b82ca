package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/xxh3"

	"github.com/phobologic/pydependra/internal/config"
	"github.com/phobologic/pydependra/internal/discover"
)

// A cache file is one header line followed by the rendered report:
//
//	pydependra-cache <key>
//
// key hashes everything that shapes the report, so a different file list,
// setting or output format never matches.
const cacheMagic = "pydependra-cache"

// cacheKey hashes the settings that affect the report, the root and the
// discovered files in order.
func cacheKey(cfg *config.Config, root string, files []discover.FileEntry) string {
	h := xxh3.New()
	fmt.Fprintf(h, "%s\n%s\n", version, root)
	fmt.Fprintf(h, "%#v\n%d\n", cfg.Languages, cfg.MaxFileSize)
	fmt.Fprintf(h, "%#v\n%#v\n%#v\n", cfg.Ignore, cfg.Graph, cfg.Cycles)
	fmt.Fprintf(h, "%s\n%d\n", cfg.Output.Format, cfg.Output.Top)
	for _, f := range files {
		fmt.Fprintf(h, "%s\n", f.Path)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func cacheHeader(key string) string {
	return cacheMagic + " " + key + "\n"
}

// readCache returns the cached report when the cache was written for key
// and no discovered file is newer than it.
func readCache(path, key string, files []discover.FileEntry) ([]byte, bool) {
	if !cacheIsFresh(path, files) {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	report, ok := bytes.CutPrefix(data, []byte(cacheHeader(key)))
	if !ok {
		return nil, false
	}
	return report, true
}

func writeCache(path, key string, report []byte) error {
	data := make([]byte, 0, len(cacheHeader(key))+len(report))
	data = append(data, cacheHeader(key)...)
	data = append(data, report...)
	return os.WriteFile(path, data, 0o644)
}

// cacheIsFresh reports whether every discovered file is older than the
// cache.
func cacheIsFresh(cachePath string, files []discover.FileEntry) bool {
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return false
	}
	cacheMtime := cacheInfo.ModTime()

	for _, f := range files {
		fi, err := os.Stat(f.Path)
		if err != nil {
			return false
		}
		if !fi.ModTime().Before(cacheMtime) {
			return false
		}
	}
	return true
}
