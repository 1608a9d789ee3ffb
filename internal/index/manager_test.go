package index

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgconley/memento/internal/store"
)

func TestIndexName_IsDeterministicAndTenHexChars(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	a := IndexName(id)
	b := IndexName(id)
	assert.Equal(t, a, b)
	assert.True(t, len(a) == len("chunk_embeddings_hnsw_")+10)
	assert.Regexp(t, `^chunk_embeddings_hnsw_[0-9a-f]{10}$`, a)
}

func TestIndexName_DistinctProfilesDiffer(t *testing.T) {
	a := IndexName(uuid.MustParse("11111111-1111-1111-1111-111111111111"))
	b := IndexName(uuid.MustParse("22222222-2222-2222-2222-222222222222"))
	assert.NotEqual(t, a, b)
}

func TestOpclass_MapsEachDistance(t *testing.T) {
	cosine, err := opclass(store.DistanceCosine)
	require.NoError(t, err)
	assert.Equal(t, "vector_cosine_ops", cosine)

	l2, err := opclass(store.DistanceL2)
	require.NoError(t, err)
	assert.Equal(t, "vector_l2_ops", l2)

	ip, err := opclass(store.DistanceIP)
	require.NoError(t, err)
	assert.Equal(t, "vector_ip_ops", ip)

	_, err = opclass(store.Distance("bogus"))
	assert.Error(t, err)
}

func TestFingerprint_IgnoresConcurrentlyAndIfNotExistsAndWhitespace(t *testing.T) {
	a := "CREATE INDEX CONCURRENTLY IF NOT EXISTS foo ON bar USING hnsw (baz vector_cosine_ops)"
	b := "CREATE INDEX foo ON public.bar USING hnsw (baz vector_cosine_ops)"
	assert.Equal(t, fingerprint(a), fingerprint(b))
}

func TestFingerprint_DiffersOnDimensionChange(t *testing.T) {
	profileID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	a := buildIndexDef("idx", profileID, 768, "vector_cosine_ops", HNSWParams{})
	b := buildIndexDef("idx", profileID, 1536, "vector_cosine_ops", HNSWParams{})
	assert.NotEqual(t, fingerprint(a), fingerprint(b))
}

func TestFingerprint_DiffersOnHNSWParamChange(t *testing.T) {
	profileID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	a := buildIndexDef("idx", profileID, 768, "vector_cosine_ops", HNSWParams{M: 16})
	b := buildIndexDef("idx", profileID, 768, "vector_cosine_ops", HNSWParams{M: 32})
	assert.NotEqual(t, fingerprint(a), fingerprint(b))
}

func TestFingerprint_DiffersOnPredicateProfileChange(t *testing.T) {
	a := buildIndexDef("idx", uuid.MustParse("11111111-1111-1111-1111-111111111111"), 768, "vector_cosine_ops", HNSWParams{})
	b := buildIndexDef("idx", uuid.MustParse("22222222-2222-2222-2222-222222222222"), 768, "vector_cosine_ops", HNSWParams{})
	assert.NotEqual(t, fingerprint(a), fingerprint(b))
}

func TestBuildIndexDef_OmitsWithClauseWhenNoParamsSpecified(t *testing.T) {
	def := buildIndexDef("idx", uuid.New(), 768, "vector_cosine_ops", HNSWParams{})
	assert.NotContains(t, def, "WITH (")
}
