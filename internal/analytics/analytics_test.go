package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reasongraph/reasongraph/internal/models"
)

func nodes(ids ...string) []models.RetrievedNode {
	out := make([]models.RetrievedNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.RetrievedNode{ID: id})
	}
	return out
}

func edge(from, to string) models.RetrievedEdge {
	return models.RetrievedEdge{ID: from + "-" + to, StartID: from, EndID: to}
}

// pathGraph is a-b-c.
func pathGraph() *Graph {
	return NewGraph(nodes("a", "b", "c"), []models.RetrievedEdge{
		edge("a", "b"), edge("b", "c"),
	})
}

func TestNewGraphNormalizesInput(t *testing.T) {
	g := NewGraph(
		append(nodes("b", "a"), models.RetrievedNode{ID: "a"}, models.RetrievedNode{}),
		[]models.RetrievedEdge{
			edge("a", "b"),
			edge("a", "b"),       // parallel
			edge("b", "a"),       // reverse of an existing undirected pair
			edge("a", "a"),       // self-loop
			edge("a", "missing"), // unknown endpoint
		},
	)

	assert.Equal(t, []string{"a", "b"}, g.IDs())
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
}

func TestDensity(t *testing.T) {
	assert.Equal(t, 0.0, NewGraph(nodes("a"), nil).Density())
	assert.InDelta(t, 2.0/3.0, pathGraph().Density(), 1e-9)

	triangle := NewGraph(nodes("a", "b", "c"), []models.RetrievedEdge{
		edge("a", "b"), edge("b", "c"), edge("c", "a"),
	})
	assert.InDelta(t, 1.0, triangle.Density(), 1e-9)
}

func TestShortestPath(t *testing.T) {
	g := pathGraph()

	assert.Equal(t, []string{"a", "b", "c"}, g.ShortestPath("a", "c"))
	assert.Equal(t, []string{"c", "b", "a"}, g.ShortestPath("c", "a"))
	assert.Equal(t, []string{"b"}, g.ShortestPath("b", "b"))
	assert.Nil(t, g.ShortestPath("a", "zzz"))

	disconnected := NewGraph(nodes("a", "b", "x"), []models.RetrievedEdge{edge("a", "b")})
	assert.Nil(t, disconnected.ShortestPath("a", "x"))
}

func TestStronglyConnectedComponents(t *testing.T) {
	// Directed cycle a->b->c->a plus a tail a->d.
	g := NewGraph(nodes("a", "b", "c", "d"), []models.RetrievedEdge{
		edge("a", "b"), edge("b", "c"), edge("c", "a"), edge("a", "d"),
	})

	components := g.StronglyConnectedComponents()
	require.Len(t, components, 2)
	assert.Equal(t, []string{"a", "b", "c"}, components[0])
	assert.Equal(t, []string{"d"}, components[1])
}

func TestDegreeCentrality(t *testing.T) {
	degree := pathGraph().DegreeCentrality()
	assert.InDelta(t, 0.5, degree["a"], 1e-9)
	assert.InDelta(t, 1.0, degree["b"], 1e-9)
	assert.InDelta(t, 0.5, degree["c"], 1e-9)

	single := NewGraph(nodes("only"), nil).DegreeCentrality()
	assert.Equal(t, 0.0, single["only"])
}

func TestBetweennessCentrality(t *testing.T) {
	// On a path the middle node carries the single crossing pair.
	scores := pathGraph().BetweennessCentrality()
	assert.InDelta(t, 1.0, scores["b"], 1e-9)
	assert.InDelta(t, 0.0, scores["a"], 1e-9)
	assert.InDelta(t, 0.0, scores["c"], 1e-9)
}

func TestClosenessCentrality(t *testing.T) {
	scores := pathGraph().ClosenessCentrality()
	assert.InDelta(t, 1.0, scores["b"], 1e-9)
	assert.InDelta(t, 2.0/3.0, scores["a"], 1e-9)
	assert.InDelta(t, 2.0/3.0, scores["c"], 1e-9)

	isolated := NewGraph(nodes("a", "b"), nil).ClosenessCentrality()
	assert.Equal(t, 0.0, isolated["a"])
}

func TestEigenvectorCentralityIsSymmetric(t *testing.T) {
	scores := pathGraph().EigenvectorCentrality()
	assert.InDelta(t, scores["a"], scores["c"], 1e-6)
	assert.Greater(t, scores["b"], scores["a"])
}

func TestLouvainSeparatesTwoCliques(t *testing.T) {
	// Two triangles joined by one bridge edge.
	g := NewGraph(nodes("a1", "a2", "a3", "b1", "b2", "b3"), []models.RetrievedEdge{
		edge("a1", "a2"), edge("a2", "a3"), edge("a3", "a1"),
		edge("b1", "b2"), edge("b2", "b3"), edge("b3", "b1"),
		edge("a3", "b1"),
	})

	communities := g.LouvainCommunities()
	require.Len(t, communities, 6)

	assert.Equal(t, communities["a1"], communities["a2"])
	assert.Equal(t, communities["a1"], communities["a3"])
	assert.Equal(t, communities["b1"], communities["b2"])
	assert.Equal(t, communities["b1"], communities["b3"])
	assert.NotEqual(t, communities["a1"], communities["b1"])

	// Labels are dense and stable: the first node seen gets label 0.
	assert.Equal(t, 0, communities["a1"])

	// Deterministic across runs.
	assert.Equal(t, communities, g.LouvainCommunities())
}

func TestLouvainHandlesEmptyAndEdgelessGraphs(t *testing.T) {
	assert.Empty(t, NewGraph(nil, nil).LouvainCommunities())

	loners := NewGraph(nodes("x", "y"), nil).LouvainCommunities()
	assert.NotEqual(t, loners["x"], loners["y"])
}
