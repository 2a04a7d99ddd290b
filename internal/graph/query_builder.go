package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/reasongraph/reasongraph/internal/models"
)

// buildCriterionClause turns a subgraph criterion into a WHERE clause over the
// flattened node properties, with all values passed as parameters.
func buildCriterionClause(crit models.SubgraphCriterion) (string, map[string]any) {
	var conditions []string
	params := map[string]any{}

	if crit.MinAvgConfidence > 0 {
		conditions = append(conditions, "coalesce(n.confidence_overall_avg, 0.0) >= $min_avg_confidence")
		params["min_avg_confidence"] = crit.MinAvgConfidence
	}
	if crit.MinImpactScore > 0 {
		conditions = append(conditions, "coalesce(n.metadata_impact_score, 0.0) >= $min_impact_score")
		params["min_impact_score"] = crit.MinImpactScore
	}
	if len(crit.NodeTypes) > 0 {
		valid := make([]string, 0, len(crit.NodeTypes))
		for _, t := range crit.NodeTypes {
			if models.IsValidNodeType(t) {
				valid = append(valid, t)
			}
		}
		if len(valid) > 0 {
			conditions = append(conditions, "n.type IN $node_types")
			params["node_types"] = valid
		}
	}
	if len(crit.IncludeDisciplinaryTags) > 0 {
		conditions = append(conditions,
			"any(tag IN $include_tags WHERE tag IN split(coalesce(n.metadata_disciplinary_tags, ''), ','))")
		params["include_tags"] = crit.IncludeDisciplinaryTags
	}
	if len(crit.ExcludeDisciplinaryTags) > 0 {
		conditions = append(conditions,
			"none(tag IN $exclude_tags WHERE tag IN split(coalesce(n.metadata_disciplinary_tags, ''), ','))")
		params["exclude_tags"] = crit.ExcludeDisciplinaryTags
	}
	if len(crit.LayerIDs) > 0 {
		conditions = append(conditions, "n.metadata_layer_id IN $layer_ids")
		params["layer_ids"] = crit.LayerIDs
	}
	if crit.IsKnowledgeGap != nil {
		conditions = append(conditions, "coalesce(n.metadata_is_knowledge_gap, false) = $is_knowledge_gap")
		params["is_knowledge_gap"] = *crit.IsKnowledgeGap
	}

	if len(conditions) == 0 {
		return "", params
	}
	return "WHERE " + strings.Join(conditions, " AND "), params
}

// FindSeedNodes returns the ids of nodes matching a criterion.
func (r *Repository) FindSeedNodes(ctx context.Context, crit models.SubgraphCriterion) ([]string, error) {
	clause, params := buildCriterionClause(crit)
	query := fmt.Sprintf("MATCH (n:Node) %s RETURN n.id AS id", clause)

	records, err := r.ExecuteQuery(ctx, query, params, ModeRead)
	if err != nil {
		return nil, wrapQueryError("seed query", err)
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		if id, ok := scalarFromRecord[string](record, "id"); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ExpandSubgraph runs a bounded BFS from the seed set using the path-subgraph
// procedure. Edges are kept only when both endpoints are in the returned node
// set (the induced edge set).
func (r *Repository) ExpandSubgraph(ctx context.Context, seedIDs []string, depth int) ([]models.RetrievedNode, []models.RetrievedEdge, error) {
	if len(seedIDs) == 0 {
		return nil, nil, nil
	}
	if depth < 0 {
		depth = 0
	}

	nodeQuery := `
		MATCH (seed:Node)
		WHERE seed.id IN $seed_ids
		CALL apoc.path.subgraphNodes(seed, {maxLevel: $max_level}) YIELD node
		RETURN DISTINCT node.id AS id, labels(node) AS labels, properties(node) AS properties
	`
	records, err := r.ExecuteQuery(ctx, nodeQuery,
		map[string]any{"seed_ids": seedIDs, "max_level": depth}, ModeRead)
	if err != nil {
		return nil, nil, wrapQueryError("subgraph node expansion", err)
	}

	nodes := make([]models.RetrievedNode, 0, len(records))
	idSet := make(map[string]struct{}, len(records))
	for _, record := range records {
		id, ok := scalarFromRecord[string](record, "id")
		if !ok || id == "" {
			continue
		}
		props, _ := scalarFromRecord[map[string]any](record, "properties")
		nodes = append(nodes, models.RetrievedNode{
			ID:         id,
			Labels:     stringList(record["labels"]),
			Properties: props,
		})
		idSet[id] = struct{}{}
	}
	if len(nodes) == 0 {
		return nil, nil, nil
	}

	allIDs := make([]string, 0, len(idSet))
	for id := range idSet {
		allIDs = append(allIDs, id)
	}
	edgeQuery := `
		MATCH (a:Node)-[r]->(b:Node)
		WHERE a.id IN $ids AND b.id IN $ids
		RETURN coalesce(r.id, toString(id(r))) AS id, type(r) AS type,
			a.id AS start, b.id AS end, properties(r) AS properties
	`
	edgeRecords, err := r.ExecuteQuery(ctx, edgeQuery, map[string]any{"ids": allIDs}, ModeRead)
	if err != nil {
		return nil, nil, wrapQueryError("subgraph edge expansion", err)
	}

	edges := make([]models.RetrievedEdge, 0, len(edgeRecords))
	for _, record := range edgeRecords {
		id, _ := scalarFromRecord[string](record, "id")
		edgeType, _ := scalarFromRecord[string](record, "type")
		start, _ := scalarFromRecord[string](record, "start")
		end, _ := scalarFromRecord[string](record, "end")
		props, _ := scalarFromRecord[map[string]any](record, "properties")
		if start == "" || end == "" {
			continue
		}
		edges = append(edges, models.RetrievedEdge{
			ID: id, Type: edgeType, StartID: start, EndID: end, Properties: props,
		})
	}
	return nodes, edges, nil
}

// NodeProperties fetches one node's flattened property map by id.
func (r *Repository) NodeProperties(ctx context.Context, id string) (map[string]any, error) {
	records, err := r.ExecuteQuery(ctx,
		"MATCH (n:Node {id: $id}) RETURN properties(n) AS properties",
		map[string]any{"id": id}, ModeRead)
	if err != nil {
		return nil, wrapQueryError("node lookup", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	props, _ := scalarFromRecord[map[string]any](records[0], "properties")
	return props, nil
}
