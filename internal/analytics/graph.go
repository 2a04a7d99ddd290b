// Package analytics provides in-memory graph algorithms for the direct-query
// path: community detection, centralities, strongly connected components,
// density, and shortest paths. All functions iterate nodes in a fixed sorted
// order so results are deterministic for a given input.
package analytics

import (
	"sort"

	"github.com/reasongraph/reasongraph/internal/models"
)

// Graph is an immutable in-memory projection of a retrieved subgraph. The
// undirected adjacency drives community and centrality computations; the
// directed adjacency drives the component analysis.
type Graph struct {
	ids   []string
	index map[string]int

	undirected [][]int
	directed   [][]int
	edgeCount  int
}

// NewGraph builds the projection. Edges referencing unknown nodes are
// dropped; parallel edges and self-loops are ignored.
func NewGraph(nodes []models.RetrievedNode, edges []models.RetrievedEdge) *Graph {
	ids := make([]string, 0, len(nodes))
	seen := map[string]struct{}{}
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)

	g := &Graph{
		ids:        ids,
		index:      make(map[string]int, len(ids)),
		undirected: make([][]int, len(ids)),
		directed:   make([][]int, len(ids)),
	}
	for i, id := range ids {
		g.index[id] = i
	}

	type pair struct{ a, b int }
	undirectedSeen := map[pair]struct{}{}
	directedSeen := map[pair]struct{}{}
	for _, e := range edges {
		u, okU := g.index[e.StartID]
		v, okV := g.index[e.EndID]
		if !okU || !okV || u == v {
			continue
		}
		if _, dup := directedSeen[pair{u, v}]; !dup {
			directedSeen[pair{u, v}] = struct{}{}
			g.directed[u] = append(g.directed[u], v)
		}
		a, b := u, v
		if a > b {
			a, b = b, a
		}
		if _, dup := undirectedSeen[pair{a, b}]; !dup {
			undirectedSeen[pair{a, b}] = struct{}{}
			g.undirected[u] = append(g.undirected[u], v)
			g.undirected[v] = append(g.undirected[v], u)
			g.edgeCount++
		}
	}
	for i := range g.undirected {
		sort.Ints(g.undirected[i])
		sort.Ints(g.directed[i])
	}
	return g
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.ids) }

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int { return g.edgeCount }

// IDs returns the node ids in their deterministic order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

// Density is 2m/(n(n-1)); graphs with fewer than two nodes have density 0.
func (g *Graph) Density() float64 {
	n := len(g.ids)
	if n < 2 {
		return 0
	}
	return 2 * float64(g.edgeCount) / (float64(n) * float64(n-1))
}

// ShortestPath returns a BFS shortest path between two nodes over the
// undirected adjacency, or nil when no path exists.
func (g *Graph) ShortestPath(from, to string) []string {
	src, okS := g.index[from]
	dst, okD := g.index[to]
	if !okS || !okD {
		return nil
	}
	if src == dst {
		return []string{from}
	}

	prev := make([]int, len(g.ids))
	for i := range prev {
		prev[i] = -1
	}
	prev[src] = src
	queue := []int{src}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range g.undirected[u] {
			if prev[v] != -1 {
				continue
			}
			prev[v] = u
			if v == dst {
				return g.buildPath(prev, src, dst)
			}
			queue = append(queue, v)
		}
	}
	return nil
}

func (g *Graph) buildPath(prev []int, src, dst int) []string {
	var reversed []int
	for at := dst; ; at = prev[at] {
		reversed = append(reversed, at)
		if at == src {
			break
		}
	}
	path := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, g.ids[reversed[i]])
	}
	return path
}

// StronglyConnectedComponents runs Tarjan's algorithm over the directed
// adjacency and returns the components as id lists, each sorted, ordered by
// their smallest member.
func (g *Graph) StronglyConnectedComponents() [][]string {
	n := len(g.ids)
	indexOf := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range indexOf {
		indexOf[i] = -1
	}

	var stack []int
	var components [][]string
	counter := 0

	var strongconnect func(v int)
	strongconnect = func(v int) {
		indexOf[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.directed[v] {
			if indexOf[w] == -1 {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && indexOf[w] < lowlink[v] {
				lowlink[v] = indexOf[w]
			}
		}

		if lowlink[v] == indexOf[v] {
			var member int
			var component []string
			for {
				member = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[member] = false
				component = append(component, g.ids[member])
				if member == v {
					break
				}
			}
			sort.Strings(component)
			components = append(components, component)
		}
	}

	for v := 0; v < n; v++ {
		if indexOf[v] == -1 {
			strongconnect(v)
		}
	}
	sort.Slice(components, func(i, j int) bool {
		return components[i][0] < components[j][0]
	})
	return components
}
