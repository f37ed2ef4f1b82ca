// Package ranking picks the most-called names in a dependency graph.
package ranking

import (
	"sort"

	"gonum.org/v1/gonum/graph/network"

	"github.com/phobologic/pydependra/internal/depgraph"
	"github.com/phobologic/pydependra/internal/model"
)

const (
	damping   = 0.85
	tolerance = 1e-6
)

// Hotspots returns up to n called names ordered by PageRank, then by caller
// count, then by name. Source files are never hotspots. If n is <= 0 all
// called names are returned.
func Hotspots(g *depgraph.Graph, n int) []model.Hotspot {
	if g.Len() == 0 {
		return nil
	}

	rank := network.PageRankSparse(g.Directed(), damping, tolerance)

	var out []model.Hotspot
	for id := int64(0); id < int64(g.Len()); id++ {
		if g.IsFile(id) {
			continue
		}
		out = append(out, model.Hotspot{
			Name:    g.Name(id),
			Callers: g.Callers(id),
			Rank:    rank[id],
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		if out[i].Callers != out[j].Callers {
			return out[i].Callers > out[j].Callers
		}
		return out[i].Name < out[j].Name
	})

	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
