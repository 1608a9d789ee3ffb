package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgconley/memento/internal/embed"
)

func TestValidateEmbedResult_AcceptsMatchingShape(t *testing.T) {
	res := embed.Result{Vectors: [][]float32{{1, 2}, {3, 4}}, Dimensions: 2}
	require.NoError(t, validateEmbedResult(res, 2, 2))
}

func TestValidateEmbedResult_RejectsWrongCount(t *testing.T) {
	res := embed.Result{Vectors: [][]float32{{1, 2}}, Dimensions: 2}
	err := validateEmbedResult(res, 2, 2)
	assert.Error(t, err)
}

func TestValidateEmbedResult_RejectsWrongDimensions(t *testing.T) {
	res := embed.Result{Vectors: [][]float32{{1, 2, 3}}, Dimensions: 3}
	err := validateEmbedResult(res, 2, 1)
	assert.Error(t, err)
}

func TestValidateEmbedResult_RejectsVectorLengthMismatchingDeclaredDims(t *testing.T) {
	// Dimensions field claims 2 but a vector is actually length 3 - the
	// per-vector check must catch what the aggregate field missed.
	res := embed.Result{Vectors: [][]float32{{1, 2, 3}}, Dimensions: 2}
	err := validateEmbedResult(res, 2, 1)
	assert.Error(t, err)
}
