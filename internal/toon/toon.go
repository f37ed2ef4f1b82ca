// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/phobologic/pydependra/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts an analysis result into TOON format. File paths are shown
// relative to the root.
func Encode(res *model.Result) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("repo: %s", encodeValue(filepath.Base(res.Root))))
	parts = append(parts, fmt.Sprintf("root: %s", encodeValue(res.Root)))
	if res.RunID != "" {
		parts = append(parts, fmt.Sprintf("run: %s", encodeValue(res.RunID)))
	}

	var fileRows [][]string
	if res.Dependencies != nil {
		for path, calls := range res.Dependencies.All() {
			fileRows = append(fileRows, []string{model.RelPath(res.Root, path), strings.Join(calls, " ")})
		}
	}
	parts = append(parts, formatTabular("files", []string{"path", "calls"}, fileRows))

	var edgeRows [][]string
	for _, e := range res.Edges {
		edgeRows = append(edgeRows, []string{model.RelPath(res.Root, e.Source), e.Target})
	}
	parts = append(parts, formatTabular("edges", []string{"source", "target"}, edgeRows))

	var cycleRows [][]string
	for _, c := range res.Cycles {
		nodes := make([]string, len(c))
		for i, n := range c {
			nodes[i] = model.RelPath(res.Root, n)
		}
		cycleRows = append(cycleRows, []string{
			fmt.Sprintf("%d", len(c)),
			strings.Join(nodes, " "),
		})
	}
	parts = append(parts, formatTabular("cycles", []string{"length", "nodes"}, cycleRows))
	if res.CyclesTruncated {
		parts = append(parts, "cycles_truncated: true")
	}

	var hotRows [][]string
	for _, h := range res.Hotspots {
		hotRows = append(hotRows, []string{
			h.Name,
			fmt.Sprintf("%d", h.Callers),
			fmt.Sprintf("%.4f", h.Rank),
		})
	}
	parts = append(parts, formatTabular("hotspots", []string{"name", "callers", "rank"}, hotRows))

	if len(res.Diagnostics) > 0 {
		var diagRows [][]string
		for _, d := range res.Diagnostics {
			diagRows = append(diagRows, []string{model.RelPath(res.Root, d.Path), string(d.Kind), d.Error})
		}
		parts = append(parts, formatTabular("diagnostics", []string{"path", "kind", "error"}, diagRows))
	}

	return strings.Join(parts, "\n")
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
