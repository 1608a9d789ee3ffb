package search

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id uuid.UUID, canonical *string, pinned bool) ItemSummary {
	return ItemSummary{ItemID: id, VersionID: uuid.New(), CanonicalKey: canonical, Pinned: pinned, Title: "t"}
}

func TestFuse_RanksChunkPresentInBothListsAboveLexicalOnly(t *testing.T) {
	itemID := uuid.New()
	shared := uuid.New()
	lexOnly := uuid.New()

	lexical := []LexicalMatch{
		{ChunkID: shared, Item: item(itemID, nil, false), LexicalScore: 1.0},
		{ChunkID: lexOnly, Item: item(itemID, nil, false), LexicalScore: 0.9},
	}
	semantic := []SemanticMatch{
		{ChunkID: shared, Item: item(itemID, nil, false), Distance: 0.1, Score: 0.9},
	}

	matches := Fuse(lexical, semantic, DefaultFusionOptions(Weights{Lexical: 0.5, Semantic: 0.5, Trigram: 0}))
	require.Len(t, matches, 2)
	assert.Equal(t, shared, matches[0].ChunkID)
	assert.Equal(t, lexOnly, matches[1].ChunkID)
	assert.True(t, matches[0].Score > matches[1].Score)
}

func TestFuse_CanonicalItemGetsBoost(t *testing.T) {
	canonicalKey := "doc:readme"
	canonicalItem := uuid.New()
	plainItem := uuid.New()
	a := uuid.New()
	b := uuid.New()

	lexical := []LexicalMatch{
		{ChunkID: a, Item: item(canonicalItem, &canonicalKey, false), LexicalScore: 0.5},
		{ChunkID: b, Item: item(plainItem, nil, false), LexicalScore: 0.5},
	}

	opts := DefaultFusionOptions(Weights{Lexical: 1, Semantic: 0, Trigram: 0})
	matches := Fuse(lexical, nil, opts)
	require.Len(t, matches, 2)

	var canonicalScore, plainScore float64
	for _, m := range matches {
		if m.ChunkID == a {
			canonicalScore = m.Score
		} else {
			plainScore = m.Score
		}
	}
	assert.True(t, canonicalScore > plainScore)
}

func TestFuse_PinnedItemGetsBoost(t *testing.T) {
	pinnedItem := uuid.New()
	plainItem := uuid.New()
	a := uuid.New()
	b := uuid.New()

	lexical := []LexicalMatch{
		{ChunkID: a, Item: item(pinnedItem, nil, true), LexicalScore: 0.5},
		{ChunkID: b, Item: item(plainItem, nil, false), LexicalScore: 0.5},
	}

	opts := DefaultFusionOptions(Weights{Lexical: 1, Semantic: 0, Trigram: 0})
	matches := Fuse(lexical, nil, opts)
	require.Len(t, matches, 2)

	var pinnedScore, plainScore float64
	for _, m := range matches {
		if m.ChunkID == a {
			pinnedScore = m.Score
		} else {
			plainScore = m.Score
		}
	}
	assert.True(t, pinnedScore > plainScore)
}

func TestFuse_TrigramOnlyAppliesToLexicalRowsWithPositiveScore(t *testing.T) {
	itemID := uuid.New()
	withTrigram := uuid.New()
	withoutTrigram := uuid.New()

	lexical := []LexicalMatch{
		{ChunkID: withTrigram, Item: item(itemID, nil, false), LexicalScore: 0.5, TrigramScore: 0.8},
		{ChunkID: withoutTrigram, Item: item(itemID, nil, false), LexicalScore: 0.5, TrigramScore: 0},
	}

	opts := DefaultFusionOptions(Weights{Lexical: 0.5, Semantic: 0, Trigram: 0.5})
	matches := Fuse(lexical, nil, opts)
	require.Len(t, matches, 2)

	var withScore, withoutScore float64
	for _, m := range matches {
		if m.ChunkID == withTrigram {
			withScore = m.Score
		} else {
			withoutScore = m.Score
		}
	}
	assert.True(t, withScore > withoutScore)
}

func TestFuse_TieBreaksByItemIDThenChunkIDWhenScoresEqual(t *testing.T) {
	itemA := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	itemB := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	chunkA := uuid.New()
	chunkB := uuid.New()

	// Each chunk ranks first in one list and second in the other, so the
	// combined RRF score is identical for both and the sort falls through
	// to the item_id/chunk_id tie-break.
	lexical := []LexicalMatch{
		{ChunkID: chunkA, Item: item(itemA, nil, false), LexicalScore: 1.0},
		{ChunkID: chunkB, Item: item(itemB, nil, false), LexicalScore: 0.5},
	}
	semantic := []SemanticMatch{
		{ChunkID: chunkB, Item: item(itemB, nil, false), Distance: 0.1},
		{ChunkID: chunkA, Item: item(itemA, nil, false), Distance: 0.2},
	}
	opts := DefaultFusionOptions(Weights{Lexical: 0.5, Semantic: 0.5, Trigram: 0})
	opts.CanonicalBoost = 0
	opts.PinnedBoost = 0
	matches := Fuse(lexical, semantic, opts)
	require.Len(t, matches, 2)
	assert.InDelta(t, matches[0].Score, matches[1].Score, 1e-12)

	expectedFirst := itemA
	if itemB.String() < itemA.String() {
		expectedFirst = itemB
	}
	assert.Equal(t, expectedFirst, matches[0].Item.ItemID)
}

func TestGroupByItem_CapsChunksPerItemAndOrdersByTopScore(t *testing.T) {
	itemA := uuid.New()
	itemB := uuid.New()

	matches := []Match{
		{ChunkID: uuid.New(), Item: item(itemB, nil, false), Score: 0.9},
		{ChunkID: uuid.New(), Item: item(itemA, nil, false), Score: 0.8},
		{ChunkID: uuid.New(), Item: item(itemA, nil, false), Score: 0.7},
		{ChunkID: uuid.New(), Item: item(itemA, nil, false), Score: 0.6},
		{ChunkID: uuid.New(), Item: item(itemA, nil, false), Score: 0.5},
	}

	results := GroupByItem(matches, 3)
	require.Len(t, results, 2)
	assert.Equal(t, itemB, results[0].Item.ItemID)
	assert.Equal(t, itemA, results[1].Item.ItemID)
	assert.Len(t, results[1].Matches, 3)
}

func TestGroupByItem_EmptyInputYieldsEmptyOutput(t *testing.T) {
	results := GroupByItem(nil, 3)
	assert.Empty(t, results)
}
