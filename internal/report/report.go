// Package report writes analysis results as a plain-text report or as an
// interactive HTML graph.
package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"

	"github.com/phobologic/pydependra/internal/model"
)

// WriteText writes the dependency map, the cycles and any skipped entries.
// Paths are shown relative to the result root.
func WriteText(w io.Writer, res *model.Result) error {
	var b strings.Builder

	b.WriteString("Dependencies:\n")
	if res.Dependencies != nil {
		for path, calls := range res.Dependencies.All() {
			fmt.Fprintf(&b, "%s: [%s]\n", model.RelPath(res.Root, path), strings.Join(calls, ", "))
		}
	}

	b.WriteString("\nCycles:\n")
	if len(res.Cycles) == 0 {
		b.WriteString("(none)\n")
	}
	for _, c := range res.Cycles {
		nodes := make(model.Cycle, len(c))
		for i, n := range c {
			nodes[i] = model.RelPath(res.Root, n)
		}
		fmt.Fprintf(&b, "[%s]\n", nodes)
	}
	if res.CyclesTruncated {
		fmt.Fprintf(&b, "(search stopped early after %d cycles)\n", len(res.Cycles))
	}

	if len(res.Diagnostics) > 0 {
		b.WriteString("\nSkipped:\n")
		for _, d := range res.Diagnostics {
			fmt.Fprintf(&b, "%s [%s]: %s\n", model.RelPath(res.Root, d.Path), d.Kind, d.Error)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

const (
	fileColor  = "#ADD8E6"
	nameColor  = "#90EE90"
	cycleColor = "#E06666"
)

//go:embed templates/graph.html
var graphTemplate string

var graphTmpl = template.Must(template.New("graph").Parse(graphTemplate))

type visNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Title string `json:"title"`
	Shape string `json:"shape"`
	Color string `json:"color"`
}

type visEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Color string `json:"color,omitempty"`
}

// WriteHTML renders res as a self-contained vis-network page. Files are
// blue boxes labelled with their base name; called names are green dots.
// Edges that lie on a reported cycle are drawn in red.
func WriteHTML(w io.Writer, res *model.Result) error {
	onCycle := make(map[model.Edge]struct{})
	for _, c := range res.Cycles {
		for i, n := range c {
			onCycle[model.Edge{Source: n, Target: c[(i+1)%len(c)]}] = struct{}{}
		}
	}

	nodes := make([]visNode, 0, len(res.Nodes))
	for _, n := range res.Nodes {
		v := visNode{ID: n.Name, Label: n.Name, Title: n.Name, Shape: "dot", Color: nameColor}
		if n.File {
			v.Label = filepath.Base(n.Name)
			v.Title = model.RelPath(res.Root, n.Name)
			v.Shape = "box"
			v.Color = fileColor
		}
		nodes = append(nodes, v)
	}

	edges := make([]visEdge, 0, len(res.Edges))
	for _, e := range res.Edges {
		v := visEdge{From: e.Source, To: e.Target}
		if _, ok := onCycle[e]; ok {
			v.Color = cycleColor
		}
		edges = append(edges, v)
	}

	files := 0
	if res.Dependencies != nil {
		files = res.Dependencies.Len()
	}

	data := struct {
		Title     string
		Files     int
		Nodes     []visNode
		Edges     []visEdge
		Cycles    int
		Truncated bool
	}{
		Title:     "Dependencies of " + filepath.Base(res.Root),
		Files:     files,
		Nodes:     nodes,
		Edges:     edges,
		Cycles:    len(res.Cycles),
		Truncated: res.CyclesTruncated,
	}

	if err := graphTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("executing graph template: %w", err)
	}
	return nil
}
