package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/reasongraph/reasongraph/internal/graph"
	"github.com/reasongraph/reasongraph/internal/models"
	"github.com/reasongraph/reasongraph/internal/session"
	"github.com/reasongraph/reasongraph/internal/stage"
)

// DecompositionStage splits the root task into dimension nodes. Custom
// dimensions from operational params win over the configured defaults when
// well-formed.
type DecompositionStage struct {
	deps   Deps
	logger *slog.Logger
}

// NewDecompositionStage builds the stage.
func NewDecompositionStage(deps Deps) *DecompositionStage {
	return &DecompositionStage{
		deps:   deps,
		logger: slog.Default().With("component", "stage_decomposition"),
	}
}

func (s *DecompositionStage) Name() string { return NameDecomposition }

// Execute upserts one DECOMPOSITION_DIMENSION node per dimension plus a
// DECOMPOSITION_OF edge back to the root. Node upserts go in a single batch;
// relationship creation is a second batched pass so every edge target exists.
func (s *DecompositionStage) Execute(ctx context.Context, sess *session.Session) (stage.Output, error) {
	initCtx := sess.StageContext(NameInitialization)
	if initCtx == nil {
		return stage.Output{}, fmt.Errorf("decomposition requires the initialization context")
	}
	rootID, _ := initCtx["root_node_id"].(string)
	if rootID == "" {
		return stage.Output{}, fmt.Errorf("decomposition requires a root node id")
	}

	dimensions := paramStringList(sess.OperationalParams(), "decomposition_dimensions")
	if dimensions == nil {
		dimensions = s.deps.Cfg.Defaults.DefaultDecompositionDimensions
	}
	if len(dimensions) == 0 {
		return stage.Output{}, fmt.Errorf("no decomposition dimensions configured")
	}

	rootProps, err := s.deps.Repo.NodeProperties(ctx, rootID)
	if err != nil {
		return stage.Output{}, fmt.Errorf("root fetch failed: %w", err)
	}
	rootTags := graph.TagsFromProperties(rootProps)
	rootLayer := graph.PropString(rootProps, "metadata_layer_id", s.deps.Cfg.Defaults.InitialLayer)

	nodes := make([]models.Node, 0, len(dimensions))
	edges := make([]models.Edge, 0, len(dimensions))
	ids := make([]string, 0, len(dimensions))
	results := make([]map[string]any, 0, len(dimensions))

	for _, dim := range dimensions {
		id := "dim-" + uuid.NewString()
		nodes = append(nodes, models.Node{
			ID:         id,
			Label:      dim,
			Type:       models.NodeTypeDecompositionDimension,
			Confidence: models.ConfidenceVectorFromList(s.deps.Cfg.Defaults.DimensionConfidence),
			Metadata: models.NodeMetadata{
				Description:      fmt.Sprintf("Dimension %q of the root task", dim),
				QueryContext:     sess.Query,
				EpistemicStatus:  models.EpistemicInferred,
				DisciplinaryTags: rootTags,
				LayerID:          rootLayer,
				ImpactScore:      0.7,
			},
		})
		edges = append(edges, models.Edge{
			ID:         "edge-" + uuid.NewString(),
			SourceID:   id,
			TargetID:   rootID,
			Type:       models.EdgeTypeDecompositionOf,
			Confidence: 0.95,
			Metadata:   models.EdgeMetadata{Description: "dimension decomposes root"},
		})
		ids = append(ids, id)
		results = append(results, map[string]any{"id": id, "label": dim})
	}

	if err := s.deps.Repo.UpsertNodes(ctx, nodes); err != nil {
		return stage.Output{}, fmt.Errorf("dimension upsert failed: %w", err)
	}
	if err := s.deps.Repo.UpsertEdges(ctx, edges); err != nil {
		return stage.Output{}, fmt.Errorf("dimension edge upsert failed: %w", err)
	}

	s.logger.Info("decomposition complete", "dimensions", len(ids))
	return stage.Succeed(s.Name(),
		fmt.Sprintf("Decomposed root into %d dimensions", len(ids)),
		map[string]any{
			"dimension_node_ids":    ids,
			"decomposition_results": results,
		},
		map[string]any{"nodes_created": len(ids), "edges_created": len(edges)},
	), nil
}

// Cleanup holds no per-stage resources.
func (s *DecompositionStage) Cleanup(context.Context) error { return nil }
