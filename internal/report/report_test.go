package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/phobologic/pydependra/internal/model"
)

func sampleResult() *model.Result {
	deps := model.NewDependencyMap()
	deps.Set("/proj/a.py", []string{"b", "print"})
	deps.Set("/proj/pkg/b.py", []string{"a"})
	return &model.Result{
		Root:         "/proj",
		Dependencies: deps,
		Nodes: []model.Node{
			{Name: "a", File: true},
			{Name: "b", File: true},
			{Name: "print"},
		},
		Edges: []model.Edge{
			{Source: "a", Target: "b"},
			{Source: "a", Target: "print"},
			{Source: "b", Target: "a"},
		},
		Cycles: []model.Cycle{{"a", "b"}},
	}
}

func TestWriteText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteText(&buf, sampleResult()); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	want := `Dependencies:
a.py: [b, print]
pkg/b.py: [a]

Cycles:
[a -> b -> a]
`
	if got := buf.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriteTextNoCyclesWithDiagnostics(t *testing.T) {
	t.Parallel()

	res := &model.Result{
		Root:            "/proj",
		Dependencies:    model.NewDependencyMap(),
		CyclesTruncated: true,
		Diagnostics: []model.Diagnostic{
			{Path: "/proj/bad.py", Kind: model.DiagSyntax, Error: "syntax error near line 1"},
		},
	}

	var buf bytes.Buffer
	if err := WriteText(&buf, res); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	got := buf.String()
	for _, want := range []string{
		"Cycles:\n(none)\n",
		"(search stopped early after 0 cycles)",
		"Skipped:\nbad.py [syntax]: syntax error near line 1\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestWriteHTML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteHTML(&buf, sampleResult()); err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}
	got := buf.String()

	for _, want := range []string{
		"<title>Dependencies of proj</title>",
		"vis-network",
		`"id":"a"`,
		`"shape":"box"`,
		`"color":"` + fileColor + `"`,
		`"color":"` + nameColor + `"`,
		`"from":"a","to":"b","color":"` + cycleColor + `"`,
		`"from":"a","to":"print"}`,
		"2 files",
		"1 cycles",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in output", want)
		}
	}
}

func TestWriteHTMLSingleExternalScript(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteHTML(&buf, sampleResult()); err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}
	got := buf.String()

	// Graph data is inlined; the renderer is the only fetched resource and
	// its version is pinned.
	if n := strings.Count(got, "src="); n != 1 {
		t.Errorf("expected one external resource, found %d", n)
	}
	if !strings.Contains(got, `src="https://unpkg.com/vis-network@9.1.9/`) {
		t.Error("vis-network script is not version-pinned")
	}
	if strings.Contains(got, "href=") {
		t.Error("page should not link external stylesheets")
	}
}

func TestWriteHTMLEscapesNames(t *testing.T) {
	t.Parallel()

	res := &model.Result{
		Root:  "/proj",
		Nodes: []model.Node{{Name: "</script><b>x"}},
	}

	var buf bytes.Buffer
	if err := WriteHTML(&buf, res); err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}
	if strings.Contains(buf.String(), "</script><b>x") {
		t.Error("node name was not escaped")
	}
}
