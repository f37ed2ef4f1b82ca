package cycles

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/phobologic/pydependra/internal/depgraph"
	"github.com/phobologic/pydependra/internal/model"
)

func graphOf(edges ...[2]string) *depgraph.Graph {
	g := depgraph.New()
	for _, e := range edges {
		g.AddEdge(e[0], e[1])
	}
	return g
}

func enumerate(t *testing.T, g *depgraph.Graph, opts Options) Result {
	t.Helper()
	res, err := Enumerate(context.Background(), g, opts)
	require.NoError(t, err)
	return res
}

func TestTriangle(t *testing.T) {
	t.Parallel()

	g := graphOf([2]string{"A", "B"}, [2]string{"B", "C"}, [2]string{"C", "A"})
	res := enumerate(t, g, Options{})

	assert.Equal(t, []model.Cycle{{"A", "B", "C"}}, res.Cycles)
	assert.False(t, res.Truncated)
}

func TestSelfLoopOnce(t *testing.T) {
	t.Parallel()

	g := graphOf([2]string{"A", "A"}, [2]string{"A", "B"})
	res := enumerate(t, g, Options{})

	assert.Equal(t, []model.Cycle{{"A"}}, res.Cycles)
}

func TestAcyclic(t *testing.T) {
	t.Parallel()

	g := graphOf([2]string{"a.py", "x"}, [2]string{"a.py", "y"}, [2]string{"x", "y"})
	res := enumerate(t, g, Options{})

	assert.Empty(t, res.Cycles)
}

func TestSharedNodeNeedsUnblock(t *testing.T) {
	t.Parallel()

	// Two cycles through A sharing B; the second is only found once B is
	// unblocked after the first.
	g := graphOf(
		[2]string{"A", "B"},
		[2]string{"B", "C"},
		[2]string{"C", "A"},
		[2]string{"B", "D"},
		[2]string{"D", "A"},
		[2]string{"C", "D"},
	)
	res := enumerate(t, g, Options{})

	assert.ElementsMatch(t, []model.Cycle{
		{"A", "B", "C"},
		{"A", "B", "D"},
		{"A", "B", "C", "D"},
	}, res.Cycles)
}

func TestCompleteGraph(t *testing.T) {
	t.Parallel()

	// K4 has C(4,2)*1! + C(4,3)*2! + C(4,4)*3! = 6 + 8 + 6 elementary cycles.
	names := []string{"a", "b", "c", "d"}
	g := depgraph.New()
	for _, f := range names {
		for _, to := range names {
			if f != to {
				g.AddEdge(f, to)
			}
		}
	}
	res := enumerate(t, g, Options{})

	assert.Len(t, res.Cycles, 20)
	set := NewSet(Lexical)
	for _, c := range res.Cycles {
		assert.True(t, set.Add(c), "duplicate cycle %v", c)
	}
}

func TestCyclesStartAtLowestNode(t *testing.T) {
	t.Parallel()

	g := graphOf(
		[2]string{"x", "y"},
		[2]string{"y", "z"},
		[2]string{"z", "x"},
		[2]string{"z", "y"},
	)
	res := enumerate(t, g, Options{})

	order := ByGraphOrder(g)
	for _, c := range res.Cycles {
		assert.Equal(t, c, Canonical(c, order))
	}
}

func TestLargeRing(t *testing.T) {
	t.Parallel()

	const n = 3000
	g := depgraph.New()
	for i := range n {
		g.AddEdge(fmt.Sprintf("n%04d", i), fmt.Sprintf("n%04d", (i+1)%n))
	}
	res := enumerate(t, g, Options{})

	require.Len(t, res.Cycles, 1)
	c := res.Cycles[0]
	require.Len(t, c, n)
	assert.Equal(t, "n0000", c[0])
	assert.Equal(t, fmt.Sprintf("n%04d", n-1), c[n-1])
}

func TestIdempotent(t *testing.T) {
	t.Parallel()

	g := randomGraph(7, 12, 0.35)
	first := enumerate(t, g, Options{})
	second := enumerate(t, g, Options{})

	assert.Equal(t, first.Cycles, second.Cycles)
}

func TestMaxCycles(t *testing.T) {
	t.Parallel()

	names := []string{"a", "b", "c", "d"}
	g := depgraph.New()
	g.AddEdge("a", "a")
	for _, f := range names {
		for _, to := range names {
			if f != to {
				g.AddEdge(f, to)
			}
		}
	}

	res := enumerate(t, g, Options{MaxCycles: 5})
	assert.Len(t, res.Cycles, 5)
	assert.True(t, res.Truncated)
	assert.Equal(t, model.Cycle{"a"}, res.Cycles[0])

	res = enumerate(t, g, Options{MaxCycles: 21})
	assert.Len(t, res.Cycles, 21)
	assert.True(t, res.Truncated)

	res = enumerate(t, g, Options{MaxCycles: 22})
	assert.Len(t, res.Cycles, 21)
	assert.False(t, res.Truncated)
}

func TestCanceled(t *testing.T) {
	t.Parallel()

	g := graphOf([2]string{"A", "B"}, [2]string{"B", "A"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Enumerate(ctx, g, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAgainstGonum(t *testing.T) {
	t.Parallel()

	for seed := uint64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprint(seed), func(t *testing.T) {
			t.Parallel()

			g := randomGraph(seed, 8, 0.3)
			res := enumerate(t, g, Options{})

			got := NewSet(Lexical)
			for _, c := range res.Cycles {
				require.True(t, got.Add(c), "duplicate cycle %v", c)
			}

			want := NewSet(Lexical)
			for _, cyc := range topo.DirectedCyclesIn(g.Directed()) {
				// gonum closes each cycle by repeating its first node.
				c := make(model.Cycle, 0, len(cyc)-1)
				for _, n := range cyc[:len(cyc)-1] {
					c = append(c, g.Name(n.ID()))
				}
				want.Add(c)
			}

			assert.Equal(t, want.Len(), got.Len())
			for _, c := range want.Cycles() {
				assert.True(t, got.Contains(c), "missing cycle %v", c)
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.Cycle{"a", "b", "c"}, Canonical(model.Cycle{"b", "c", "a"}, Lexical))
	assert.Equal(t, model.Cycle{"x"}, Canonical(model.Cycle{"x"}, Lexical))

	s := NewSet(Lexical)
	assert.True(t, s.Add(model.Cycle{"b", "c", "a"}))
	assert.False(t, s.Add(model.Cycle{"c", "a", "b"}))
	assert.True(t, s.Add(model.Cycle{"a", "c", "b"}))
	assert.Equal(t, 2, s.Len())
}

// randomGraph builds a graph over n nodes without self-loops, including
// each ordered pair with probability p.
func randomGraph(seed uint64, n int, p float64) *depgraph.Graph {
	r := rand.New(rand.NewPCG(seed, seed))
	g := depgraph.New()
	for i := 0; i < n; i++ {
		g.AddNode(fmt.Sprintf("n%d", i))
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && r.Float64() < p {
				g.AddEdge(fmt.Sprintf("n%d", i), fmt.Sprintf("n%d", j))
			}
		}
	}
	return g
}
