package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_EmbedIsDeterministic(t *testing.T) {
	f := NewFake(8)
	a, err := f.Embed(context.Background(), []string{"Error ECONNRESET_42"}, InputTypePassage)
	require.NoError(t, err)
	b, err := f.Embed(context.Background(), []string{"error econnreset_42"}, InputTypeQuery)
	require.NoError(t, err)

	// Lowercasing and token order are normalized away, so the two inputs
	// (differ only in case) must produce identical vectors.
	assert.Equal(t, a.Vectors[0], b.Vectors[0])
	assert.Len(t, a.Vectors[0], 8)
	assert.Equal(t, 8, a.Dimensions)
}

func TestFake_DistinctTextsDiffer(t *testing.T) {
	f := NewFake(8)
	res, err := f.Embed(context.Background(), []string{"connection reset", "totally unrelated content"}, InputTypePassage)
	require.NoError(t, err)
	assert.NotEqual(t, res.Vectors[0], res.Vectors[1])
}

func TestFake_VectorsWithinUnitRange(t *testing.T) {
	f := NewFake(16)
	res, err := f.Embed(context.Background(), []string{"some text"}, InputTypePassage)
	require.NoError(t, err)
	for _, v := range res.Vectors[0] {
		assert.GreaterOrEqual(t, v, float32(-1.0))
		assert.LessOrEqual(t, v, float32(1.0))
	}
}

func TestFake_ContextualDelegatesToEmbed(t *testing.T) {
	f := NewFake(8)
	res, err := f.EmbedDocumentChunksContextual(context.Background(), []string{"a", "b"}, InputTypePassage)
	require.NoError(t, err)
	assert.Len(t, res.Vectors, 2)
}
