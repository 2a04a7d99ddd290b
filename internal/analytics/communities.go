package analytics

// LouvainCommunities assigns each node to a community via local
// modularity-gain moves: every node starts in its own community and is
// greedily moved to the neighboring community with the best positive gain,
// sweeping until a full pass makes no move or 100 passes elapse. Community
// labels are renumbered densely in first-seen node order.
func (g *Graph) LouvainCommunities() map[string]int {
	n := len(g.ids)
	out := make(map[string]int, n)
	if n == 0 {
		return out
	}

	m := float64(g.edgeCount)
	community := make([]int, n)
	degree := make([]float64, n)
	communityDegree := make([]float64, n)
	for i := 0; i < n; i++ {
		community[i] = i
		degree[i] = float64(len(g.undirected[i]))
		communityDegree[i] = degree[i]
	}

	if m > 0 {
		for pass := 0; pass < 100; pass++ {
			moved := false
			for u := 0; u < n; u++ {
				current := community[u]

				// Edge weight from u into each neighboring community.
				links := map[int]float64{}
				for _, v := range g.undirected[u] {
					links[community[v]]++
				}

				communityDegree[current] -= degree[u]

				bestCommunity := current
				bestGain := 0.0
				// Deterministic candidate order: scan neighbors as stored.
				for _, v := range g.undirected[u] {
					c := community[v]
					gain := links[c]/m - communityDegree[c]*degree[u]/(2*m*m)
					base := links[current]/m - communityDegree[current]*degree[u]/(2*m*m)
					delta := gain - base
					if delta > bestGain+1e-12 {
						bestGain = delta
						bestCommunity = c
					}
				}

				community[u] = bestCommunity
				communityDegree[bestCommunity] += degree[u]
				if bestCommunity != current {
					moved = true
				}
			}
			if !moved {
				break
			}
		}
	}

	// Dense renumbering in node order keeps labels stable across runs.
	relabel := map[int]int{}
	next := 0
	for i, id := range g.ids {
		c := community[i]
		label, ok := relabel[c]
		if !ok {
			label = next
			relabel[c] = label
			next++
		}
		out[id] = label
	}
	return out
}
