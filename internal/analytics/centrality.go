package analytics

import "math"

// DegreeCentrality returns each node's degree normalized by n-1.
func (g *Graph) DegreeCentrality() map[string]float64 {
	out := make(map[string]float64, len(g.ids))
	n := len(g.ids)
	if n < 2 {
		for _, id := range g.ids {
			out[id] = 0
		}
		return out
	}
	for i, id := range g.ids {
		out[id] = float64(len(g.undirected[i])) / float64(n-1)
	}
	return out
}

// BetweennessCentrality computes shortest-path betweenness via Brandes'
// accumulation over BFS trees, normalized by 2/((n-1)(n-2)).
func (g *Graph) BetweennessCentrality() map[string]float64 {
	n := len(g.ids)
	scores := make([]float64, n)

	for s := 0; s < n; s++ {
		// BFS from s with path counting.
		sigma := make([]float64, n)
		dist := make([]int, n)
		delta := make([]float64, n)
		preds := make([][]int, n)
		for i := range dist {
			dist[i] = -1
		}
		sigma[s] = 1
		dist[s] = 0

		var order []int
		queue := []int{s}
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			order = append(order, u)
			for _, v := range g.undirected[u] {
				if dist[v] == -1 {
					dist[v] = dist[u] + 1
					queue = append(queue, v)
				}
				if dist[v] == dist[u]+1 {
					sigma[v] += sigma[u]
					preds[v] = append(preds[v], u)
				}
			}
		}

		for i := len(order) - 1; i >= 0; i-- {
			w := order[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				scores[w] += delta[w]
			}
		}
	}

	out := make(map[string]float64, n)
	norm := 0.0
	if n > 2 {
		norm = 2 / (float64(n-1) * float64(n-2))
	}
	for i, id := range g.ids {
		// Each undirected pair was counted from both endpoints.
		out[id] = scores[i] / 2 * norm
	}
	return out
}

// ClosenessCentrality returns the reciprocal mean BFS distance to reachable
// nodes, scaled by the reachable fraction so disconnected components do not
// dominate. Isolated nodes score 0.
func (g *Graph) ClosenessCentrality() map[string]float64 {
	n := len(g.ids)
	out := make(map[string]float64, n)

	for s, id := range g.ids {
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		dist[s] = 0
		queue := []int{s}
		sum, reached := 0, 0
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for _, v := range g.undirected[u] {
				if dist[v] != -1 {
					continue
				}
				dist[v] = dist[u] + 1
				sum += dist[v]
				reached++
				queue = append(queue, v)
			}
		}
		if sum == 0 || n < 2 {
			out[id] = 0
			continue
		}
		closeness := float64(reached) / float64(sum)
		out[id] = closeness * float64(reached) / float64(n-1)
	}
	return out
}

// EigenvectorCentrality runs power iteration over the undirected adjacency,
// up to 100 iterations with an L2 convergence tolerance of 1e-6.
func (g *Graph) EigenvectorCentrality() map[string]float64 {
	n := len(g.ids)
	out := make(map[string]float64, n)
	if n == 0 {
		return out
	}

	vec := make([]float64, n)
	for i := range vec {
		vec[i] = 1 / math.Sqrt(float64(n))
	}

	for iteration := 0; iteration < 100; iteration++ {
		next := make([]float64, n)
		for u := 0; u < n; u++ {
			for _, v := range g.undirected[u] {
				next[u] += vec[v]
			}
		}
		norm := 0.0
		for _, x := range next {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			break
		}
		diff := 0.0
		for i := range next {
			next[i] /= norm
			d := next[i] - vec[i]
			diff += d * d
		}
		vec = next
		if math.Sqrt(diff) < 1e-6 {
			break
		}
	}

	for i, id := range g.ids {
		out[id] = vec[i]
	}
	return out
}
