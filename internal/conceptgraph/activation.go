package conceptgraph

import (
	"math"

	"github.com/danja/semem-sub009/pkg/types"
)

// seedWeight is the initial activation assigned to each seed concept
// before decay and spreading are applied.
const seedWeight = 1.0

// Spread performs BFS-based spreading activation from seedLabels. At
// level d, the activation contributed to a neighbor is
// seedWeight * decay^d * (edgeWeight / maxEdgeWeightAtNode). Activations
// reaching the same label from different seeds are summed. Within one
// seed's BFS a label is credited only once, by the first frontier node that
// reaches it at its shallowest depth; further paths from the same seed add
// nothing. The final map is clipped to [0, 1] by normalizing against the
// maximum observed value.
func (g *Graph) Spread(seedLabels []string, depth int, decay float64) map[string]float64 {
	if depth <= 0 {
		depth = 2
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	raw := make(map[string]float64)

	for _, seed := range types.DedupeConcepts(seedLabels) {
		seedID, ok := g.labelToID[seed]
		if !ok {
			continue
		}

		visited := map[int]bool{seedID: true}
		frontier := []int{seedID}

		for d := 1; d <= depth && len(frontier) > 0; d++ {
			var next []int
			for _, u := range frontier {
				neighbors := g.adjacency[u]
				if len(neighbors) == 0 {
					continue
				}
				maxWeight := 0
				for _, w := range neighbors {
					if w > maxWeight {
						maxWeight = w
					}
				}
				if maxWeight == 0 {
					continue
				}

				for v, w := range neighbors {
					if visited[v] {
						continue
					}
					contribution := seedWeight * math.Pow(decay, float64(d)) * (float64(w) / float64(maxWeight))
					raw[g.labels[v]] += contribution
					visited[v] = true
					next = append(next, v)
				}
			}
			frontier = next
		}
	}

	return normalize(raw)
}

func normalize(raw map[string]float64) map[string]float64 {
	max := 0.0
	for _, v := range raw {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return raw
	}
	for k, v := range raw {
		raw[k] = v / max
	}
	return raw
}
