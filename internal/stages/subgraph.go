package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/reasongraph/reasongraph/internal/models"
	"github.com/reasongraph/reasongraph/internal/session"
	"github.com/reasongraph/reasongraph/internal/stage"
)

// SubgraphExtractionStage applies an ordered list of criteria against the
// store and emits one named subgraph per criterion that matched anything.
// Custom criteria from operational params are used only when every entry
// parses; any malformed entry falls the whole list back to the defaults.
type SubgraphExtractionStage struct {
	deps   Deps
	logger *slog.Logger
}

// NewSubgraphExtractionStage builds the stage.
func NewSubgraphExtractionStage(deps Deps) *SubgraphExtractionStage {
	return &SubgraphExtractionStage{
		deps:   deps,
		logger: slog.Default().With("component", "stage_subgraph_extraction"),
	}
}

func (s *SubgraphExtractionStage) Name() string { return NameSubgraphExtraction }

// Execute runs each criterion: seed query, bounded expansion, induced edges.
func (s *SubgraphExtractionStage) Execute(ctx context.Context, sess *session.Session) (stage.Output, error) {
	criteria := s.resolveCriteria(sess)

	var subgraphs []models.ExtractedSubgraphData
	for _, crit := range criteria {
		seedIDs, err := s.deps.Repo.FindSeedNodes(ctx, crit)
		if err != nil {
			return stage.Output{}, fmt.Errorf("seed query for %q failed: %w", crit.Name, err)
		}
		if len(seedIDs) == 0 {
			s.logger.Debug("criterion matched nothing", "criterion", crit.Name)
			continue
		}

		depth := crit.IncludeNeighborsDepth
		if depth <= 0 {
			depth = s.deps.Cfg.Defaults.IncludeNeighborsDepth
		}
		nodes, edges, err := s.deps.Repo.ExpandSubgraph(ctx, seedIDs, depth)
		if err != nil {
			return stage.Output{}, fmt.Errorf("expansion for %q failed: %w", crit.Name, err)
		}
		if len(nodes) == 0 {
			continue
		}

		subgraphs = append(subgraphs, models.ExtractedSubgraphData{
			Name:        crit.Name,
			Description: crit.Description,
			Nodes:       nodes,
			Edges:       edges,
			Metrics: map[string]any{
				"seed_count": len(seedIDs),
				"node_count": len(nodes),
				"edge_count": len(edges),
			},
		})
		s.logger.Info("subgraph extracted",
			"criterion", crit.Name, "seeds", len(seedIDs), "nodes", len(nodes), "edges", len(edges))
	}

	return stage.Succeed(s.Name(),
		fmt.Sprintf("Extracted %d non-empty subgraphs from %d criteria", len(subgraphs), len(criteria)),
		map[string]any{"subgraphs": subgraphs},
		map[string]any{"subgraph_count": len(subgraphs)},
	), nil
}

// Cleanup holds no per-stage resources.
func (s *SubgraphExtractionStage) Cleanup(context.Context) error { return nil }

// resolveCriteria parses operational-param criteria, falling back to the
// defaults when the parameter is absent or any entry is malformed.
func (s *SubgraphExtractionStage) resolveCriteria(sess *session.Session) []models.SubgraphCriterion {
	raw, ok := sess.OperationalParams()["subgraph_extraction_criteria"]
	if ok {
		if criteria, err := parseCriteria(raw); err == nil {
			return criteria
		} else {
			s.logger.Warn("malformed extraction criteria, using defaults", "error", err)
		}
	}
	return s.defaultCriteria()
}

// parseCriteria decodes a criteria list through a JSON round-trip so both
// typed and map-shaped inputs are accepted. Every entry must carry a name.
func parseCriteria(raw any) ([]models.SubgraphCriterion, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var criteria []models.SubgraphCriterion
	if err := json.Unmarshal(encoded, &criteria); err != nil {
		return nil, err
	}
	if len(criteria) == 0 {
		return nil, fmt.Errorf("criteria list is empty")
	}
	for i, crit := range criteria {
		if crit.Name == "" {
			return nil, fmt.Errorf("criterion %d has no name", i)
		}
	}
	return criteria, nil
}

// defaultCriteria is the built-in three-pass extraction plan.
func (s *SubgraphExtractionStage) defaultCriteria() []models.SubgraphCriterion {
	d := s.deps.Cfg.Defaults
	gap := true
	return []models.SubgraphCriterion{
		{
			Name:                  "high_confidence_core",
			Description:           "Nodes whose average confidence and impact both clear the subgraph thresholds",
			MinAvgConfidence:      d.SubgraphMinConfidenceThreshold,
			MinImpactScore:        d.SubgraphMinImpactThreshold,
			IncludeNeighborsDepth: d.IncludeNeighborsDepth,
		},
		{
			Name:        "key_hypotheses_and_support",
			Description: "Hypotheses with their evidence and bridge structures",
			NodeTypes: []string{
				string(models.NodeTypeHypothesis),
				string(models.NodeTypeEvidence),
				string(models.NodeTypeInterdisciplinaryBridge),
			},
			MinAvgConfidence:      0.4,
			IncludeNeighborsDepth: d.IncludeNeighborsDepth,
		},
		{
			Name:                  "knowledge_gaps_focus",
			Description:           "Flagged knowledge gaps and their surroundings",
			IsKnowledgeGap:        &gap,
			IncludeNeighborsDepth: d.IncludeNeighborsDepth,
		},
	}
}
