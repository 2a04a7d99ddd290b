package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reasongraph/reasongraph/internal/models"

	apperrors "github.com/reasongraph/reasongraph/internal/errors"
)

// Property maps are pre-flattened before hitting the store: scalar values go
// inline, arrays and objects are JSON-stringified under a metadata_ prefix,
// and date-like values are ISO-8601 strings.

// FlattenNode converts a node to its persisted property map.
func FlattenNode(n models.Node) map[string]any {
	props := map[string]any{
		"id":    n.ID,
		"label": n.Label,
		"type":  string(n.Type),

		"confidence_empirical_support":    n.Confidence.EmpiricalSupport,
		"confidence_theoretical_basis":    n.Confidence.TheoreticalBasis,
		"confidence_methodological_rigor": n.Confidence.MethodologicalRigor,
		"confidence_consensus_alignment":  n.Confidence.ConsensusAlignment,
		"confidence_overall_avg":          n.Confidence.Average(),

		"metadata_impact_score":     n.Metadata.ImpactScore,
		"metadata_is_knowledge_gap": n.Metadata.IsKnowledgeGap,
	}

	setIfNotEmpty := func(key, value string) {
		if value != "" {
			props[key] = value
		}
	}
	setIfNotEmpty("metadata_description", n.Metadata.Description)
	setIfNotEmpty("metadata_query_context", n.Metadata.QueryContext)
	setIfNotEmpty("metadata_source_description", n.Metadata.SourceDescription)
	setIfNotEmpty("metadata_epistemic_status", string(n.Metadata.EpistemicStatus))
	setIfNotEmpty("metadata_layer_id", n.Metadata.LayerID)
	setIfNotEmpty("metadata_doi", n.Metadata.DOI)
	setIfNotEmpty("metadata_publication_date", n.Metadata.PublicationDate)
	setIfNotEmpty("metadata_disciplinary_tags", models.TagsToString(n.Metadata.DisciplinaryTags))
	setIfNotEmpty("metadata_plan", n.Metadata.PlanJSON)
	setIfNotEmpty("metadata_bias_flags", n.Metadata.BiasFlagsJSON)

	if len(n.Metadata.Authors) > 0 {
		props["metadata_authors"] = jsonString(n.Metadata.Authors)
	}
	if len(n.Metadata.RevisionHistory) > 0 {
		props["metadata_revision_history"] = jsonString(n.Metadata.RevisionHistory)
	}
	if n.Metadata.Falsification != nil {
		props["metadata_falsification_criteria"] = jsonString(n.Metadata.Falsification)
	}
	if n.Metadata.Power != nil {
		props["metadata_statistical_power"] = jsonString(n.Metadata.Power)
	}
	for k, v := range n.Metadata.AdditionalProperties {
		key := "metadata_" + k
		switch v.(type) {
		case string, bool, int, int64, float64:
			props[key] = v
		default:
			props[key] = jsonString(v)
		}
	}

	now := time.Now().UTC()
	created := n.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := n.UpdatedAt
	if updated.IsZero() {
		updated = now
	}
	props["created_at"] = created.Format(time.RFC3339)
	props["updated_at"] = updated.Format(time.RFC3339)

	return props
}

// FlattenEdge converts an edge to its persisted property map.
func FlattenEdge(e models.Edge) map[string]any {
	props := map[string]any{
		"id":         e.ID,
		"confidence": clampScalar(e.Confidence),
	}
	if e.Metadata.Description != "" {
		props["metadata_description"] = e.Metadata.Description
	}
	if e.Metadata.Weight != 0 {
		props["metadata_weight"] = e.Metadata.Weight
	}
	now := time.Now().UTC()
	created := e.CreatedAt
	if created.IsZero() {
		created = now
	}
	props["created_at"] = created.Format(time.RFC3339)
	props["updated_at"] = now.Format(time.RFC3339)
	return props
}

// UpsertNodes writes nodes idempotently in one UNWIND batch, keyed by id.
// Every node keeps the generic Node label for uniform lookup and gains its
// type label through the label-add procedure.
func (r *Repository) UpsertNodes(ctx context.Context, nodes []models.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	params := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return apperrors.InvalidInput("node upsert requires a non-empty id")
		}
		if !models.IsValidNodeType(string(n.Type)) {
			return apperrors.Newf(apperrors.KindInvalidInput, "unknown node type %q", n.Type)
		}
		params = append(params, map[string]any{
			"id":         n.ID,
			"type_label": string(n.Type),
			"props":      FlattenNode(n),
		})
	}

	query := `
		UNWIND $nodes AS node
		MERGE (n:Node {id: node.id})
		SET n += node.props
		WITH n, node
		CALL apoc.create.addLabels(n, [node.type_label]) YIELD node AS labeled
		RETURN count(labeled) AS upserted
	`
	records, err := r.ExecuteQuery(ctx, query, map[string]any{"nodes": params}, ModeWrite)
	if err != nil {
		return wrapQueryError("node batch upsert", err)
	}
	if len(records) > 0 {
		if upserted, ok := scalarFromRecord[int64](records[0], "upserted"); ok {
			r.logger.Debug("nodes upserted", "count", upserted)
		}
	}
	return nil
}

// UpsertEdges writes relationships in UNWIND batches grouped by type. The type
// is validated against the edge-type allow-list; endpoints must already exist.
func (r *Repository) UpsertEdges(ctx context.Context, edges []models.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	byType := make(map[models.EdgeType][]models.Edge)
	for _, e := range edges {
		if e.ID == "" || e.SourceID == "" || e.TargetID == "" {
			return apperrors.InvalidInput("edge upsert requires id, source_id and target_id")
		}
		if !models.IsValidEdgeType(string(e.Type)) {
			return apperrors.Newf(apperrors.KindInvalidInput, "unknown relationship type %q", e.Type)
		}
		byType[e.Type] = append(byType[e.Type], e)
	}

	for edgeType, group := range byType {
		params := make([]map[string]any, 0, len(group))
		for _, e := range group {
			params = append(params, map[string]any{
				"source_id": e.SourceID,
				"target_id": e.TargetID,
				"props":     FlattenEdge(e),
			})
		}

		// Relationship types cannot be parameterised in Cypher; the type was
		// validated against the enum above.
		query := fmt.Sprintf(`
			UNWIND $edges AS edge
			MATCH (a:Node {id: edge.source_id})
			MATCH (b:Node {id: edge.target_id})
			MERGE (a)-[r:%s {id: edge.props.id}]->(b)
			SET r += edge.props
			RETURN count(r) AS upserted
		`, edgeType)

		records, err := r.ExecuteQuery(ctx, query, map[string]any{"edges": params}, ModeWrite)
		if err != nil {
			return wrapQueryError(fmt.Sprintf("%s edge batch upsert", edgeType), err)
		}
		if len(records) > 0 {
			if upserted, ok := scalarFromRecord[int64](records[0], "upserted"); ok && upserted < int64(len(group)) {
				r.logger.Warn("some edge endpoints were missing",
					"type", string(edgeType), "requested", len(group), "upserted", upserted)
			}
		}
	}
	return nil
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func clampScalar(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
