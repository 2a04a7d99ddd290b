package stages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/reasongraph/reasongraph/internal/graph"
	"github.com/reasongraph/reasongraph/internal/models"
	"github.com/reasongraph/reasongraph/internal/session"
	"github.com/reasongraph/reasongraph/internal/stage"
)

// PruningMergingStage removes low-value nodes and edges, then merges
// near-duplicate hypotheses and evidence. This is the only stage holding the
// destructive-write policy; ROOT and DECOMPOSITION_DIMENSION nodes are never
// deleted.
type PruningMergingStage struct {
	deps   Deps
	logger *slog.Logger
}

// NewPruningMergingStage builds the stage.
func NewPruningMergingStage(deps Deps) *PruningMergingStage {
	return &PruningMergingStage{
		deps:   deps,
		logger: slog.Default().With("component", "stage_pruning_merging"),
	}
}

func (s *PruningMergingStage) Name() string { return NamePruningMerging }

// prunableTypes are the node kinds eligible for confidence/impact pruning.
var prunableTypes = []string{
	string(models.NodeTypeHypothesis),
	string(models.NodeTypeEvidence),
	string(models.NodeTypeInterdisciplinaryBridge),
}

// Execute runs the prune and merge passes and reports remaining graph size.
// Both passes are idempotent; re-running on an already-pruned graph is a
// no-op.
func (s *PruningMergingStage) Execute(ctx context.Context, sess *session.Session) (stage.Output, error) {
	nodesPruned, isolatedPruned, err := s.pruneNodes(ctx)
	if err != nil {
		return stage.Output{}, fmt.Errorf("node pruning failed: %w", err)
	}
	edgesPruned, err := s.pruneEdges(ctx)
	if err != nil {
		return stage.Output{}, fmt.Errorf("edge pruning failed: %w", err)
	}
	merged, err := s.mergeSimilarNodes(ctx)
	if err != nil {
		return stage.Output{}, fmt.Errorf("node merging failed: %w", err)
	}

	nodeCount, edgeCount, err := s.graphCounts(ctx)
	if err != nil {
		return stage.Output{}, fmt.Errorf("graph count failed: %w", err)
	}

	s.logger.Info("pruning and merging complete",
		"nodes_pruned", nodesPruned,
		"isolated_pruned", isolatedPruned,
		"edges_pruned", edgesPruned,
		"nodes_merged", merged,
		"nodes_remaining", nodeCount,
		"edges_remaining", edgeCount)

	return stage.Succeed(s.Name(),
		fmt.Sprintf("Pruned %d nodes and %d edges, merged %d pairs; %d nodes and %d edges remain",
			nodesPruned+isolatedPruned, edgesPruned, merged, nodeCount, edgeCount),
		map[string]any{
			"nodes_pruned":    nodesPruned + isolatedPruned,
			"edges_pruned":    edgesPruned,
			"nodes_merged":    merged,
			"nodes_remaining": nodeCount,
			"edges_remaining": edgeCount,
		},
		map[string]any{"nodes_deleted": nodesPruned + isolatedPruned, "edges_deleted": edgesPruned},
	), nil
}

// Cleanup holds no per-stage resources.
func (s *PruningMergingStage) Cleanup(context.Context) error { return nil }

// pruneNodes deletes low-confidence low-impact nodes and isolated non-root
// nodes in one write transaction.
func (s *PruningMergingStage) pruneNodes(ctx context.Context) (int64, int64, error) {
	confThreshold := s.deps.Cfg.Defaults.PruningConfidenceThreshold
	impactThreshold := s.deps.Cfg.Defaults.PruningImpactThreshold

	out, err := s.deps.Repo.ExecuteInTransaction(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) (any, error) {
		lowValue, err := runCount(ctx, tx, `
			MATCH (n:Node)
			WHERE n.type IN $types
			  AND (n.confidence_empirical_support < $conf
			    OR n.confidence_theoretical_basis < $conf
			    OR n.confidence_methodological_rigor < $conf
			    OR n.confidence_consensus_alignment < $conf)
			  AND coalesce(n.metadata_impact_score, 0.0) < $impact
			DETACH DELETE n
			RETURN count(n) AS deleted
		`, map[string]any{"types": prunableTypes, "conf": confThreshold, "impact": impactThreshold})
		if err != nil {
			return nil, err
		}
		isolated, err := runCount(ctx, tx, `
			MATCH (n:Node)
			WHERE NOT n.type IN $protected AND NOT (n)--()
			DELETE n
			RETURN count(n) AS deleted
		`, map[string]any{"protected": []string{
			string(models.NodeTypeRoot), string(models.NodeTypeDecompositionDimension),
		}})
		if err != nil {
			return nil, err
		}
		return []int64{lowValue, isolated}, nil
	}, graph.ModeWrite)
	if err != nil {
		return 0, 0, err
	}
	counts := out.([]int64)
	return counts[0], counts[1], nil
}

// pruneEdges deletes relationships below the edge confidence threshold.
func (s *PruningMergingStage) pruneEdges(ctx context.Context) (int64, error) {
	records, err := s.deps.Repo.ExecuteQuery(ctx, `
		MATCH (:Node)-[r]->(:Node)
		WHERE coalesce(r.confidence, 1.0) < $threshold
		DELETE r
		RETURN count(r) AS deleted
	`, map[string]any{"threshold": s.deps.Cfg.Defaults.PruningEdgeConfidenceThreshold},
		graph.ModeWrite, graph.AllowDestructive())
	if err != nil {
		return 0, err
	}
	return countFromRecords(records, "deleted"), nil
}

// mergeCandidate is the in-memory projection used for the pair scan.
type mergeCandidate struct {
	id         string
	label      string
	nodeType   string
	tags       map[string]struct{}
	confidence models.ConfidenceVector
}

// mergeSimilarNodes merges near-duplicate hypothesis/evidence pairs. The pair
// scan is bounded to 100 comparisons per invocation; merged-away nodes are
// skipped for the rest of the scan.
func (s *PruningMergingStage) mergeSimilarNodes(ctx context.Context) (int, error) {
	threshold := s.deps.Cfg.Defaults.MergingSemanticOverlapThreshold

	records, err := s.deps.Repo.ExecuteQuery(ctx, `
		MATCH (n:Node)
		WHERE n.type IN $types
		RETURN properties(n) AS properties
		ORDER BY n.id
		LIMIT 200
	`, map[string]any{"types": []string{
		string(models.NodeTypeHypothesis), string(models.NodeTypeEvidence),
	}}, graph.ModeRead)
	if err != nil {
		return 0, err
	}

	candidates := make([]mergeCandidate, 0, len(records))
	for _, record := range records {
		props, ok := record["properties"].(map[string]any)
		if !ok {
			continue
		}
		candidates = append(candidates, mergeCandidate{
			id:         graph.PropString(props, "id", ""),
			label:      graph.PropString(props, "label", ""),
			nodeType:   graph.PropString(props, "type", ""),
			tags:       graph.TagsFromProperties(props),
			confidence: graph.ConfidenceFromProperties(props),
		})
	}

	merged := 0
	comparisons := 0
	dropped := map[string]struct{}{}

	for i := 0; i < len(candidates) && comparisons < 100; i++ {
		if _, gone := dropped[candidates[i].id]; gone {
			continue
		}
		for j := i + 1; j < len(candidates) && comparisons < 100; j++ {
			if _, gone := dropped[candidates[j].id]; gone {
				continue
			}
			if candidates[i].nodeType != candidates[j].nodeType {
				continue
			}
			comparisons++

			similarity := 0.7*wordJaccard(candidates[i].label, candidates[j].label) +
				0.3*setJaccard(candidates[i].tags, candidates[j].tags)
			if similarity < threshold {
				continue
			}

			if err := s.mergePair(ctx, candidates[i], candidates[j]); err != nil {
				return merged, err
			}
			dropped[candidates[j].id] = struct{}{}
			merged++
			s.logger.Debug("merged near-duplicate nodes",
				"kept", candidates[i].id, "dropped", candidates[j].id, "similarity", similarity)
		}
	}
	return merged, nil
}

// mergePair folds drop into keep: averaged confidence components, the longer
// label, unioned tags, then relationship transfer with endpoint+type
// deduplication via the refactor procedure.
func (s *PruningMergingStage) mergePair(ctx context.Context, keep, drop mergeCandidate) error {
	label := keep.label
	if len(drop.label) > len(label) {
		label = drop.label
	}
	avg := models.NewConfidenceVector(
		(keep.confidence.EmpiricalSupport+drop.confidence.EmpiricalSupport)/2,
		(keep.confidence.TheoreticalBasis+drop.confidence.TheoreticalBasis)/2,
		(keep.confidence.MethodologicalRigor+drop.confidence.MethodologicalRigor)/2,
		(keep.confidence.ConsensusAlignment+drop.confidence.ConsensusAlignment)/2,
	)

	_, err := s.deps.Repo.ExecuteQuery(ctx, `
		MATCH (keep:Node {id: $keep_id}), (drop:Node {id: $drop_id})
		SET keep.label = $label,
			keep.confidence_empirical_support = $empirical,
			keep.confidence_theoretical_basis = $theoretical,
			keep.confidence_methodological_rigor = $methodological,
			keep.confidence_consensus_alignment = $consensus,
			keep.confidence_overall_avg = $overall,
			keep.metadata_disciplinary_tags = $tags,
			keep.updated_at = $updated_at
		WITH keep, drop
		CALL apoc.refactor.mergeNodes([keep, drop], {properties: 'discard', mergeRels: true}) YIELD node
		RETURN node.id AS id
	`, map[string]any{
		"keep_id":        keep.id,
		"drop_id":        drop.id,
		"label":          label,
		"empirical":      avg.EmpiricalSupport,
		"theoretical":    avg.TheoreticalBasis,
		"methodological": avg.MethodologicalRigor,
		"consensus":      avg.ConsensusAlignment,
		"overall":        avg.Average(),
		"tags":           models.TagsToString(models.UnionTags(keep.tags, drop.tags)),
		"updated_at":     time.Now().UTC().Format(time.RFC3339),
	}, graph.ModeWrite, graph.AllowDestructive())
	if err != nil {
		return fmt.Errorf("merge of %s into %s failed: %w", drop.id, keep.id, err)
	}
	return nil
}

// graphCounts reports the remaining node and edge counts.
func (s *PruningMergingStage) graphCounts(ctx context.Context) (int64, int64, error) {
	nodeRecords, err := s.deps.Repo.ExecuteQuery(ctx,
		"MATCH (n:Node) RETURN count(n) AS total", nil, graph.ModeRead)
	if err != nil {
		return 0, 0, err
	}
	edgeRecords, err := s.deps.Repo.ExecuteQuery(ctx,
		"MATCH (:Node)-[r]->(:Node) RETURN count(r) AS total", nil, graph.ModeRead)
	if err != nil {
		return 0, 0, err
	}
	return countFromRecords(nodeRecords, "total"), countFromRecords(edgeRecords, "total"), nil
}

// runCount executes one statement inside a transaction and reads its single
// count column.
func runCount(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) (int64, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return 0, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, err
	}
	if v, ok := record.AsMap()["deleted"].(int64); ok {
		return v, nil
	}
	return 0, nil
}

// countFromRecords reads an int64 column from the first record.
func countFromRecords(records []map[string]any, key string) int64 {
	if len(records) == 0 {
		return 0
	}
	switch v := records[0][key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
