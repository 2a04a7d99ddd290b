// Package stages implements the eight reasoning stages of the pipeline, from
// root initialization through reflection. Stages read the session, consult the
// graph repository, and write results back through per-stage context slots.
package stages

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"

	"github.com/reasongraph/reasongraph/internal/config"
	"github.com/reasongraph/reasongraph/internal/graph"
)

// Stage names in declared order.
const (
	NameInitialization     = "InitializationStage"
	NameDecomposition      = "DecompositionStage"
	NameHypothesis         = "HypothesisStage"
	NameEvidence           = "EvidenceStage"
	NamePruningMerging     = "PruningMergingStage"
	NameSubgraphExtraction = "SubgraphExtractionStage"
	NameComposition        = "CompositionStage"
	NameReflection         = "ReflectionStage"
)

// Deps bundles the collaborators every stage constructor receives.
type Deps struct {
	Repo *graph.Repository
	Cfg  *config.Config
}

// stopwords excluded from similarity and overlap scoring, beyond the blanket
// length cutoff.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "that": {}, "this": {}, "with": {}, "from": {},
	"for": {}, "are": {}, "was": {}, "were": {}, "have": {}, "has": {},
	"between": {}, "into": {}, "about": {}, "their": {}, "which": {},
}

// contentWords tokenizes text into lowercase content words, dropping
// stopwords and words of length <= 3.
func contentWords(text string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(raw, ".,;:!?()[]{}\"'")
		if len(word) <= 3 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		words[word] = struct{}{}
	}
	return words
}

// wordJaccard computes Jaccard similarity over the content words of two labels.
func wordJaccard(a, b string) float64 {
	return setJaccard(contentWords(a), contentWords(b))
}

// setJaccard computes |a ∩ b| / |a ∪ b|; two empty sets score 0.
func setJaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// labelSimilarity is the cosine-like overlap used for bridge detection: the
// intersection size normalized by the geometric mean of the two word sets.
func labelSimilarity(a, b string) float64 {
	wa, wb := contentWords(a), contentWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	intersection := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			intersection++
		}
	}
	denom := math.Sqrt(float64(len(wa)) * float64(len(wb)))
	return float64(intersection) / denom
}

// stableID derives a deterministic id from the identifying parts of a node or
// edge, so re-running a stage over the same session upserts the same records
// instead of duplicating them.
func stableID(prefix string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return prefix + "-" + hex.EncodeToString(sum[:16])
}

// paramStringList reads a list-of-strings operational parameter, accepting
// both []string and the []any shape JSON decoding produces. Returns nil when
// the parameter is absent or malformed.
func paramStringList(params map[string]any, key string) []string {
	raw, ok := params[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		if len(v) == 0 {
			return nil
		}
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

// paramInt reads an integer operational parameter with a fallback.
func paramInt(params map[string]any, key string, fallback int) int {
	raw, ok := params[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// paramString reads a string operational parameter with a fallback.
func paramString(params map[string]any, key, fallback string) string {
	if raw, ok := params[key]; ok {
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return fallback
}
