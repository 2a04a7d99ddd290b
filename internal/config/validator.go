package config

import (
	"fmt"
	"net/url"
	"strings"

	apperrors "github.com/reasongraph/reasongraph/internal/errors"
)

// Validate checks the loaded configuration. Missing required settings are
// fatal in production; development tolerates defaults but still rejects
// structurally invalid values.
func (c *Config) Validate() error {
	var problems []string

	if c.Store.URI == "" {
		problems = append(problems, "store.uri is required")
	} else if _, err := url.Parse(c.Store.URI); err != nil {
		problems = append(problems, fmt.Sprintf("store.uri is not a valid URI: %v", err))
	} else {
		scheme := strings.SplitN(c.Store.URI, "://", 2)[0]
		switch scheme {
		case "neo4j", "neo4j+s", "neo4j+ssc", "bolt", "bolt+s", "bolt+ssc":
		default:
			problems = append(problems, fmt.Sprintf("store.uri has unsupported scheme %q", scheme))
		}
	}

	if c.Store.User == "" {
		problems = append(problems, "store.user is required")
	}

	if c.Store.Password == "" {
		if c.IsProduction() {
			problems = append(problems, "store.password is required in production")
		}
	} else {
		if len(c.Store.Password) < 8 {
			problems = append(problems, "store.password must be at least 8 characters")
		}
		if strings.EqualFold(c.Store.Password, "password") {
			problems = append(problems, "store.password must not be the literal \"password\"")
		}
	}

	if c.App.Port < 1 || c.App.Port > 65535 {
		problems = append(problems, fmt.Sprintf("app.port out of range: %d", c.App.Port))
	}

	d := c.Defaults
	if len(d.InitialConfidence) != 4 {
		problems = append(problems, "defaults.initial_confidence must have exactly 4 components")
	}
	if d.HypothesesPerDimensionMin < 1 || d.HypothesesPerDimensionMax < d.HypothesesPerDimensionMin {
		problems = append(problems, "defaults.hypotheses_per_dimension min/max are inconsistent")
	}
	if d.EvidenceMaxIterations < 1 {
		problems = append(problems, "defaults.evidence_max_iterations must be >= 1")
	}
	if d.MinNodesForHyperedge < 1 {
		problems = append(problems, "defaults.min_nodes_for_hyperedge must be >= 1")
	}
	for name, v := range map[string]float64{
		"ibn_similarity_threshold":           d.IBNSimilarityThreshold,
		"pruning_confidence_threshold":       d.PruningConfidenceThreshold,
		"pruning_impact_threshold":           d.PruningImpactThreshold,
		"pruning_edge_confidence_threshold":  d.PruningEdgeConfidenceThreshold,
		"merging_semantic_overlap_threshold": d.MergingSemanticOverlapThreshold,
	} {
		if v < 0 || v > 1 {
			problems = append(problems, fmt.Sprintf("defaults.%s out of range [0,1]: %f", name, v))
		}
	}

	seen := map[string]bool{}
	for _, s := range c.Pipeline {
		if s.Name == "" {
			problems = append(problems, "pipeline entries require a name")
			continue
		}
		if seen[s.Name] {
			problems = append(problems, fmt.Sprintf("pipeline stage %q listed twice", s.Name))
		}
		seen[s.Name] = true
	}

	if len(problems) > 0 {
		return apperrors.Configuration("configuration invalid: " + strings.Join(problems, "; "))
	}
	return nil
}
