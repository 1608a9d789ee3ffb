package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsIdentifierLike_MatchesUppercaseAndPathPunctuation(t *testing.T) {
	assert.True(t, IsIdentifierLike("ECONNRESET"))
	assert.True(t, IsIdentifierLike("internal/search/fusion.go"))
	assert.True(t, IsIdentifierLike("user_id"))
}

func TestIsIdentifierLike_FalseForPlainLowercaseProse(t *testing.T) {
	assert.False(t, IsIdentifierLike("how do retries work"))
}

func TestIsIdentifierLike_FalseWhenTooShort(t *testing.T) {
	assert.False(t, IsIdentifierLike("ID"))
}

func TestClassifyWeights_CodeShapedFavorsTrigram(t *testing.T) {
	w := ClassifyWeights("panic: runtime error at main.go:42")
	assert.True(t, w.Trigram > w.Lexical)
	assert.True(t, w.Trigram > w.Semantic)
}

func TestClassifyWeights_DottedCallIsCodeShaped(t *testing.T) {
	w := ClassifyWeights("client.Repo.Save(ctx, item)")
	assert.True(t, w.Trigram >= w.Semantic)
}

func TestClassifyWeights_LongNaturalLanguageFavorsSemantic(t *testing.T) {
	w := ClassifyWeights("how does the outbox worker retry a failed embedding job")
	assert.True(t, w.Semantic > w.Lexical)
	assert.True(t, w.Semantic > w.Trigram)
}

func TestClassifyWeights_ShortTechnicalQueryFavorsLexical(t *testing.T) {
	w := ClassifyWeights("reindex job")
	assert.True(t, w.Lexical >= w.Semantic)
	assert.True(t, w.Lexical >= w.Trigram)
}

func TestWeightsCache_ReturnsSameResultForRepeatedQuery(t *testing.T) {
	c := NewWeightsCache(8)
	a := c.Get("panic: nil pointer")
	b := c.Get("panic: nil pointer")
	assert.Equal(t, a, b)
}

func TestWeightsCache_IsCaseAndWhitespaceInsensitiveForCacheKey(t *testing.T) {
	c := NewWeightsCache(8)
	a := c.Get("Reindex Job")
	b := c.Get("  reindex job  ")
	assert.Equal(t, a, b)
}

func TestClassifyWeights_WeightsAlwaysSumToOne(t *testing.T) {
	for _, q := range []string{
		"panic: nil pointer",
		"how do I configure the embedding profile for this project",
		"outbox lease",
	} {
		w := ClassifyWeights(q)
		sum := w.Lexical + w.Semantic + w.Trigram
		assert.InDelta(t, 1.0, sum, 1e-9, "query: %s", q)
	}
}
