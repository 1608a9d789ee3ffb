package search

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// HybridSearch runs spec §4.13: classify the query's shape to pick a
// fusion weight profile, dispatch lexical and semantic search
// concurrently, fuse the two ranked lists, and group the result by item.
type HybridSearch struct {
	lexical  *LexicalEngine
	semantic *SemanticEngine
	weights  *WeightsCache
	log      zerolog.Logger
}

func NewHybridSearch(lexical *LexicalEngine, semantic *SemanticEngine, log zerolog.Logger) *HybridSearch {
	return &HybridSearch{lexical: lexical, semantic: semantic, weights: NewWeightsCache(0), log: log}
}

// Result is a hybrid search's full response: the grouped items plus the
// reason the semantic leg came back empty, if it did intentionally.
type Result struct {
	Items             []ItemResult
	SemanticEmptyReason EmptyReason
}

// Search dispatches the lexical and semantic legs independently (spec §7:
// "hybrid search composes lexical and semantic independently so one side's
// failure does not mask the other"). Each leg runs in its own goroutine on
// the caller's ctx, not on one shared errgroup context that would cancel the
// still-running sibling the moment the other errors. The lexical leg has no "intentional empty"
// concept, so its error is always hard. The semantic leg degrades instead:
// a hard failure (provider error, circuit breaker open, dimension
// mismatch, DB error) is logged and folded into SemanticEmptyReason rather
// than aborting the call, so a successful lexical leg is still returned.
func (h *HybridSearch) Search(ctx context.Context, query string, f Filters, opts Options) (Result, error) {
	opts = opts.withDefaults()
	weights := h.weights.Get(query)

	var lexMatches []LexicalMatch
	var lexErr error
	var semMatches []SemanticMatch
	var semReason EmptyReason
	var semErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		lexMatches, lexErr = h.lexical.Search(ctx, query, f, opts)
	}()
	go func() {
		defer wg.Done()
		semMatches, semReason, semErr = h.semantic.Search(ctx, query, f, opts)
	}()
	wg.Wait()

	if lexErr != nil {
		return Result{}, lexErr
	}
	if semErr != nil {
		h.log.Warn().Err(semErr).Msg("semantic leg failed, continuing with lexical-only results")
		semMatches = nil
		semReason = ReasonSemanticFailed
	}

	fused := Fuse(lexMatches, semMatches, DefaultFusionOptions(weights))
	items := GroupByItem(fused, MaxChunksPerItem)

	if len(items) > opts.TopK {
		items = items[:opts.TopK]
	}

	h.log.Debug().
		Str("query_shape_weights", weightsLabel(weights)).
		Int("lexical_candidates", len(lexMatches)).
		Int("semantic_candidates", len(semMatches)).
		Int("items", len(items)).
		Msg("hybrid search complete")

	return Result{Items: items, SemanticEmptyReason: semReason}, nil
}

func weightsLabel(w Weights) string {
	switch {
	case w.Trigram >= w.Lexical && w.Trigram >= w.Semantic:
		return "code"
	case w.Semantic >= w.Lexical && w.Semantic >= w.Trigram:
		return "natural_language"
	default:
		return "balanced"
	}
}
