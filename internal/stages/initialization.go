package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reasongraph/reasongraph/internal/graph"
	"github.com/reasongraph/reasongraph/internal/models"
	"github.com/reasongraph/reasongraph/internal/session"
	"github.com/reasongraph/reasongraph/internal/stage"
)

// InitializationStage locates or creates the ROOT node for the query. A prior
// root with the same verbatim query is reused with its tag set enlarged by
// union; tags are never removed.
type InitializationStage struct {
	deps   Deps
	logger *slog.Logger
}

// NewInitializationStage builds the stage.
func NewInitializationStage(deps Deps) *InitializationStage {
	return &InitializationStage{
		deps:   deps,
		logger: slog.Default().With("component", "stage_initialization"),
	}
}

func (s *InitializationStage) Name() string { return NameInitialization }

// Execute runs the root lookup/creation flow.
func (s *InitializationStage) Execute(ctx context.Context, sess *session.Session) (stage.Output, error) {
	if strings.TrimSpace(sess.Query) == "" {
		return stage.Fail(s.Name(), "initialization rejected the query",
			"Invalid initial query. It must be a non-empty string."), nil
	}

	params := sess.OperationalParams()
	providedTags := models.TagSet(paramStringList(params, "initial_disciplinary_tags")...)
	if len(providedTags) == 0 {
		providedTags = models.TagSet(s.deps.Cfg.Defaults.DefaultDisciplinaryTags...)
	}

	existing, err := s.findExistingRoot(ctx, sess.Query)
	if err != nil {
		return stage.Output{}, fmt.Errorf("root lookup failed: %w", err)
	}

	payload := map[string]any{
		"initial_disciplinary_tags":  tagList(providedTags),
		"used_existing_neo4j_node":   false,
		"updated_existing_node_tags": false,
		"nodes_created_in_neo4j":     0,
	}

	var rootID string
	if existing != nil {
		rootID = graph.PropString(existing, "id", "")
		storedTags := graph.TagsFromProperties(existing)
		merged := models.UnionTags(storedTags, providedTags)
		payload["used_existing_neo4j_node"] = true

		if !models.TagsEqual(storedTags, merged) {
			_, err := s.deps.Repo.ExecuteQuery(ctx, `
				MATCH (n:Node {id: $id})
				SET n.metadata_disciplinary_tags = $tags, n.updated_at = $updated_at
			`, map[string]any{
				"id":         rootID,
				"tags":       models.TagsToString(merged),
				"updated_at": time.Now().UTC().Format(time.RFC3339),
			}, graph.ModeWrite)
			if err != nil {
				return stage.Output{}, fmt.Errorf("root tag update failed: %w", err)
			}
			payload["updated_existing_node_tags"] = true
		}
		payload["initial_disciplinary_tags"] = tagList(merged)
		s.logger.Info("reused existing root", "root_id", rootID, "tags_updated", payload["updated_existing_node_tags"])
	} else {
		rootID = "root-" + uuid.NewString()
		layer := paramString(params, "initial_layer", s.deps.Cfg.Defaults.InitialLayer)
		root := models.Node{
			ID:         rootID,
			Label:      sess.Query,
			Type:       models.NodeTypeRoot,
			Confidence: models.ConfidenceVectorFromList(s.deps.Cfg.Defaults.InitialConfidence),
			Metadata: models.NodeMetadata{
				Description:      "Root task for the research query",
				QueryContext:     sess.Query,
				EpistemicStatus:  models.EpistemicAssumption,
				DisciplinaryTags: providedTags,
				LayerID:          layer,
				ImpactScore:      0.9,
			},
		}
		if err := s.deps.Repo.UpsertNodes(ctx, []models.Node{root}); err != nil {
			return stage.Output{}, fmt.Errorf("root creation failed: %w", err)
		}
		payload["nodes_created_in_neo4j"] = 1
		s.logger.Info("created new root", "root_id", rootID)
	}

	if rootID == "" {
		return stage.Output{}, fmt.Errorf("initialization completed without a root node id")
	}
	payload["root_node_id"] = rootID

	return stage.Succeed(s.Name(),
		fmt.Sprintf("Initialized root %s", rootID),
		payload,
		map[string]any{"nodes_created": payload["nodes_created_in_neo4j"]},
	), nil
}

// findExistingRoot matches a ROOT node by verbatim query context.
func (s *InitializationStage) findExistingRoot(ctx context.Context, query string) (map[string]any, error) {
	records, err := s.deps.Repo.ExecuteQuery(ctx, `
		MATCH (n:ROOT)
		WHERE n.metadata_query_context = $query
		RETURN properties(n) AS properties
		LIMIT 1
	`, map[string]any{"query": query}, graph.ModeRead)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	if props, ok := records[0]["properties"].(map[string]any); ok {
		return props, nil
	}
	return nil, nil
}

// Cleanup holds no per-stage resources.
func (s *InitializationStage) Cleanup(context.Context) error { return nil }

func tagList(tags map[string]struct{}) []string {
	joined := models.TagsToString(tags)
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, ",")
}
