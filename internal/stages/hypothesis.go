package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/reasongraph/reasongraph/internal/graph"
	"github.com/reasongraph/reasongraph/internal/models"
	"github.com/reasongraph/reasongraph/internal/session"
	"github.com/reasongraph/reasongraph/internal/stage"
)

// HypothesisStage generates a randomized number of testable hypotheses per
// dimension, each carrying an execution plan, falsification criteria, and
// occasionally a bias flag. Randomness draws from the session's generator so
// seeded runs reproduce.
type HypothesisStage struct {
	deps   Deps
	logger *slog.Logger
}

// NewHypothesisStage builds the stage.
func NewHypothesisStage(deps Deps) *HypothesisStage {
	return &HypothesisStage{
		deps:   deps,
		logger: slog.Default().With("component", "stage_hypothesis"),
	}
}

func (s *HypothesisStage) Name() string { return NameHypothesis }

var biasTypes = []string{"confirmation_bias", "selection_bias", "publication_bias"}

// Execute generates and persists hypotheses for every dimension.
func (s *HypothesisStage) Execute(ctx context.Context, sess *session.Session) (stage.Output, error) {
	decompCtx := sess.StageContext(NameDecomposition)
	if decompCtx == nil {
		return stage.Output{}, fmt.Errorf("hypothesis generation requires the decomposition context")
	}
	dimensionIDs := anyToStringList(decompCtx["dimension_node_ids"])
	if len(dimensionIDs) == 0 {
		return stage.Output{}, fmt.Errorf("hypothesis generation requires dimension node ids")
	}

	params := sess.OperationalParams()
	kMin := paramInt(params, "hypotheses_per_dimension_min", s.deps.Cfg.Defaults.HypothesesPerDimensionMin)
	kMax := paramInt(params, "hypotheses_per_dimension_max", s.deps.Cfg.Defaults.HypothesesPerDimensionMax)
	if kMin < 1 {
		kMin = 1
	}
	if kMax < kMin {
		kMax = kMin
	}
	planTypes := s.deps.Cfg.Defaults.DefaultPlanTypes
	if len(planTypes) == 0 {
		planTypes = []string{"literature_review"}
	}
	configTags := s.deps.Cfg.Defaults.DefaultDisciplinaryTags
	rng := sess.Rand()

	var nodes []models.Node
	var edges []models.Edge
	var ids []string
	var results []map[string]any

	for _, dimID := range dimensionIDs {
		dimProps, err := s.deps.Repo.NodeProperties(ctx, dimID)
		if err != nil {
			return stage.Output{}, fmt.Errorf("dimension fetch failed: %w", err)
		}
		if dimProps == nil {
			s.logger.Warn("dimension missing in store, skipping", "dimension_id", dimID)
			continue
		}
		dimLabel := graph.PropString(dimProps, "label", "dimension")
		dimTags := graph.TagsFromProperties(dimProps)
		dimLayer := graph.PropString(dimProps, "metadata_layer_id", s.deps.Cfg.Defaults.InitialLayer)

		count := kMin + rng.Intn(kMax-kMin+1)
		for i := 0; i < count; i++ {
			id := "hypo-" + uuid.NewString()
			label := fmt.Sprintf("Hypothesis %d for %s: a mechanism linking %s to the query %q",
				i+1, dimLabel, dimLabel, sess.Query)

			plan := models.Plan{
				Type:              planTypes[rng.Intn(len(planTypes))],
				Description:       fmt.Sprintf("Plan to evaluate hypothesis %d on dimension %q", i+1, dimLabel),
				EstimatedCost:     0.2 + rng.Float64()*0.6,
				EstimatedDuration: 1 + rng.Float64()*4,
				RequiredResources: []string{randomResource(rng)},
			}
			planJSON, _ := json.Marshal(plan)

			falsification := &models.FalsificationCriteria{
				Description: fmt.Sprintf("Conditions under which hypothesis %d on %q is rejected", i+1, dimLabel),
				TestableConditions: []string{
					fmt.Sprintf("No association is observed between %s and the primary outcome in controlled data", dimLabel),
					"Replication attempts with adequate statistical power fail to reproduce the claimed effect",
				},
			}

			biasJSON := ""
			if rng.Float64() < 0.15 {
				severity := "low"
				if rng.Float64() < 0.5 {
					severity = "medium"
				}
				flag := []models.BiasFlag{{
					BiasType:          biasTypes[rng.Intn(len(biasTypes))],
					Description:       "Potential bias flagged during hypothesis generation",
					AssessmentStageID: NameHypothesis,
					Severity:          severity,
				}}
				raw, _ := json.Marshal(flag)
				biasJSON = string(raw)
			}

			tags := models.UnionTags(randomTagSubset(rng, configTags), dimTags)
			nodes = append(nodes, models.Node{
				ID:         id,
				Label:      label,
				Type:       models.NodeTypeHypothesis,
				Confidence: models.ConfidenceVectorFromList(s.deps.Cfg.Defaults.HypothesisConfidence),
				Metadata: models.NodeMetadata{
					Description:      label,
					QueryContext:     sess.Query,
					EpistemicStatus:  models.EpistemicHypothesis,
					DisciplinaryTags: tags,
					LayerID:          dimLayer,
					ImpactScore:      0.2 + rng.Float64()*0.7,
					Falsification:    falsification,
					PlanJSON:         string(planJSON),
					BiasFlagsJSON:    biasJSON,
				},
			})
			edges = append(edges, models.Edge{
				ID:         "edge-" + uuid.NewString(),
				SourceID:   dimID,
				TargetID:   id,
				Type:       models.EdgeTypeGeneratesHypothesis,
				Confidence: 0.95,
				Metadata:   models.EdgeMetadata{Description: "dimension generates hypothesis"},
			})
			ids = append(ids, id)
			results = append(results, map[string]any{
				"id":           id,
				"label":        label,
				"dimension_id": dimID,
				"plan_type":    plan.Type,
			})
		}
	}

	if err := s.deps.Repo.UpsertNodes(ctx, nodes); err != nil {
		return stage.Output{}, fmt.Errorf("hypothesis upsert failed: %w", err)
	}
	if err := s.deps.Repo.UpsertEdges(ctx, edges); err != nil {
		return stage.Output{}, fmt.Errorf("hypothesis edge upsert failed: %w", err)
	}

	s.logger.Info("hypothesis generation complete", "hypotheses", len(ids), "dimensions", len(dimensionIDs))
	return stage.Succeed(s.Name(),
		fmt.Sprintf("Generated %d hypotheses across %d dimensions", len(ids), len(dimensionIDs)),
		map[string]any{
			"hypothesis_node_ids": ids,
			"hypotheses_results":  results,
		},
		map[string]any{"nodes_created": len(ids), "edges_created": len(edges)},
	), nil
}

// Cleanup holds no per-stage resources.
func (s *HypothesisStage) Cleanup(context.Context) error { return nil }

var planResources = []string{
	"cohort dataset access", "domain expert review", "compute allocation",
	"lab validation slot", "systematic review tooling",
}

func randomResource(rng interface{ Intn(int) int }) string {
	return planResources[rng.Intn(len(planResources))]
}

// randomTagSubset draws a random non-strict subset of the configured tags.
func randomTagSubset(rng interface{ Float64() float64 }, tags []string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range tags {
		if rng.Float64() < 0.5 {
			out[t] = struct{}{}
		}
	}
	return out
}

// anyToStringList coerces a context slot value into []string.
func anyToStringList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
