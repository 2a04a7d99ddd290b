package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reasongraph/reasongraph/internal/models"
)

func TestPropFloatCoercion(t *testing.T) {
	props := map[string]any{
		"float":   0.7,
		"integer": int64(3),
		"text":    "0.25",
		"garbage": "abc",
		"nothing": nil,
	}

	assert.Equal(t, 0.7, PropFloat(props, "float", 0))
	assert.Equal(t, 3.0, PropFloat(props, "integer", 0))
	assert.Equal(t, 0.25, PropFloat(props, "text", 0))
	assert.Equal(t, 0.9, PropFloat(props, "garbage", 0.9))
	assert.Equal(t, 0.9, PropFloat(props, "nothing", 0.9))
	assert.Equal(t, 0.9, PropFloat(props, "absent", 0.9))
}

func TestPropStringAndBool(t *testing.T) {
	props := map[string]any{"label": "root", "flag": true, "number": int64(1)}

	assert.Equal(t, "root", PropString(props, "label", "x"))
	assert.Equal(t, "x", PropString(props, "number", "x"))
	assert.True(t, PropBool(props, "flag", false))
	assert.True(t, PropBool(props, "absent", true))
	assert.False(t, PropBool(props, "number", false))
}

func TestConfidenceFromPropertiesDefaults(t *testing.T) {
	full := map[string]any{
		"confidence_empirical_support":    0.9,
		"confidence_theoretical_basis":    0.8,
		"confidence_methodological_rigor": 0.7,
		"confidence_consensus_alignment":  0.6,
	}
	assert.Equal(t, models.NewConfidenceVector(0.9, 0.8, 0.7, 0.6), ConfidenceFromProperties(full))

	// Missing components default to the uninformative midpoint.
	partial := map[string]any{"confidence_empirical_support": 0.9}
	assert.Equal(t, models.NewConfidenceVector(0.9, 0.5, 0.5, 0.5), ConfidenceFromProperties(partial))
}

func TestTagsFromProperties(t *testing.T) {
	props := map[string]any{"metadata_disciplinary_tags": "biology,immunology"}
	tags := TagsFromProperties(props)
	assert.Len(t, tags, 2)
	assert.Contains(t, tags, "biology")

	assert.Empty(t, TagsFromProperties(map[string]any{}))
}

func TestSanitizeMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"bolt uri",
			"dial failed: bolt://db.internal:7687 unreachable",
			"dial failed: <store-uri> unreachable",
		},
		{
			"credential pair",
			"auth error: password=hunter2 rejected",
			"auth error: password=<redacted> rejected",
		},
		{
			"userinfo",
			"connect //neo4j:secret@host failed",
			"connect //<redacted>@host failed",
		},
		{"clean text stays", "node not found", "node not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeMessage(tt.in))
		})
	}
}
