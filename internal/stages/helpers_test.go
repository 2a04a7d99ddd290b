package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentWords(t *testing.T) {
	words := contentWords("The microbiome shapes immune response, and that matters.")

	assert.Contains(t, words, "microbiome")
	assert.Contains(t, words, "shapes")
	assert.Contains(t, words, "immune")
	assert.Contains(t, words, "response")
	assert.Contains(t, words, "matters")
	// Stopwords and short words are dropped; punctuation is stripped.
	assert.NotContains(t, words, "the")
	assert.NotContains(t, words, "and")
	assert.NotContains(t, words, "that")
	assert.NotContains(t, words, "response,")
}

func TestWordJaccard(t *testing.T) {
	assert.Equal(t, 1.0, wordJaccard("microbiome diversity", "microbiome diversity"))
	assert.Equal(t, 0.0, wordJaccard("ocean acidification", "memory consolidation"))

	// {alpha, beta} vs {beta, gamma}: 1 shared of 3 total.
	assert.InDelta(t, 1.0/3.0, wordJaccard("alpha beta", "beta gamma"), 1e-9)
}

func TestSetJaccardEmptySets(t *testing.T) {
	assert.Equal(t, 0.0, setJaccard(nil, nil))
	assert.Equal(t, 0.0, setJaccard(map[string]struct{}{"word": {}}, nil))
}

func TestLabelSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, labelSimilarity("gut microbiome", "gut microbiome"), 1e-9)

	// 1 shared word over sqrt(2*2).
	assert.InDelta(t, 0.5, labelSimilarity("alpha beta", "beta gamma"), 1e-9)

	assert.Equal(t, 0.0, labelSimilarity("", "anything here"))
}

func TestParamStringList(t *testing.T) {
	params := map[string]any{
		"typed":     []string{"a", "b"},
		"decoded":   []any{"x", "y"},
		"mixed":     []any{"x", 2},
		"blank":     []any{" "},
		"empty":     []string{},
		"not_slice": "scalar",
	}

	assert.Equal(t, []string{"a", "b"}, paramStringList(params, "typed"))
	assert.Equal(t, []string{"x", "y"}, paramStringList(params, "decoded"))
	assert.Nil(t, paramStringList(params, "mixed"))
	assert.Nil(t, paramStringList(params, "blank"))
	assert.Nil(t, paramStringList(params, "empty"))
	assert.Nil(t, paramStringList(params, "not_slice"))
	assert.Nil(t, paramStringList(params, "absent"))
}

func TestParamInt(t *testing.T) {
	params := map[string]any{
		"int":     4,
		"int64":   int64(5),
		"decoded": float64(6),
		"text":    "7",
	}

	assert.Equal(t, 4, paramInt(params, "int", 0))
	assert.Equal(t, 5, paramInt(params, "int64", 0))
	assert.Equal(t, 6, paramInt(params, "decoded", 0))
	assert.Equal(t, 9, paramInt(params, "text", 9))
	assert.Equal(t, 9, paramInt(params, "absent", 9))
}

func TestParamString(t *testing.T) {
	params := map[string]any{"name": "value", "blank": "  ", "number": 3}

	assert.Equal(t, "value", paramString(params, "name", "fb"))
	assert.Equal(t, "fb", paramString(params, "blank", "fb"))
	assert.Equal(t, "fb", paramString(params, "number", "fb"))
	assert.Equal(t, "fb", paramString(params, "absent", "fb"))
}
