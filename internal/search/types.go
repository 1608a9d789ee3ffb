// Package search implements the lexical, semantic, and hybrid retrieval
// paths (spec §4.10-§4.13): full-text + trigram lexical matching, pgvector
// ANN semantic matching, weighted reciprocal rank fusion, and a query-shape
// classifier that picks the fusion weight profile. It is grounded on the
// pack's RRF fusion and pattern-based query classifier (teacher's
// internal/search/fusion.go and patterns.go) reworked around this engine's
// item/chunk/version schema instead of a code-search document model.
package search

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Filters restricts every search path to the same candidate set: project,
// active items only, and any caller-supplied tag/scope/doc_class narrowing.
type Filters struct {
	ProjectID uuid.UUID
	Scopes    []string
	DocClass  []string
	Tags      []string
}

// HasNarrowing reports whether any filter beyond project/active-status is
// set, used to choose the semantic candidate multiplier (spec §4.11: 4
// without filters, 8 with).
func (f Filters) HasNarrowing() bool {
	return len(f.Scopes) > 0 || len(f.DocClass) > 0 || len(f.Tags) > 0
}

// Options configures a single search call.
type Options struct {
	TopK            int
	MaxChunkChars   int
	TrigramWeight   float64
	EmbeddingProfileID *uuid.UUID
}

// DefaultOptions returns spec §4.10's defaults.
func DefaultOptions() Options {
	return Options{TopK: 40, MaxChunkChars: 300, TrigramWeight: 0.3}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.MaxChunkChars <= 0 {
		o.MaxChunkChars = d.MaxChunkChars
	}
	if o.TrigramWeight == 0 {
		o.TrigramWeight = d.TrigramWeight
	}
	return o
}

// ItemSummary carries the item/version context a match is projected
// against, shared by lexical and semantic results.
type ItemSummary struct {
	ItemID        uuid.UUID
	VersionID     uuid.UUID
	CanonicalKey  *string
	Pinned        bool
	Title         string
	Scope         string
	DocClass      *string
}

// LexicalMatch is one row from the lexical engine (spec §4.10).
type LexicalMatch struct {
	ChunkID       uuid.UUID
	Item          ItemSummary
	HeadingPath   []string
	SectionAnchor *string
	Excerpt       string
	LexicalScore  float64
	TrigramScore  float64
}

// SemanticMatch is one row from the semantic engine (spec §4.11).
type SemanticMatch struct {
	ChunkID       uuid.UUID
	Item          ItemSummary
	HeadingPath   []string
	SectionAnchor *string
	Excerpt       string
	Distance      float64
	Score         float64
}

// EmptyReason explains a semantic search that intentionally returned no
// results rather than erroring (spec §4.11 steps 1-3).
type EmptyReason string

const (
	ReasonNone                 EmptyReason = ""
	ReasonNoActiveProfile      EmptyReason = "no_active_profile"
	ReasonEmbedderNotConfigured EmptyReason = "embedder_not_configured"
	ReasonEmptyEmbedding        EmptyReason = "empty_embedding"
	// ReasonSemanticFailed means the semantic leg hard-errored (provider
	// failure, circuit breaker open, dimension mismatch, DB error) and the
	// hybrid search degraded to lexical-only rather than failing outright.
	ReasonSemanticFailed EmptyReason = "semantic_failed"
)

// Match is one fused, ranked result (spec §4.12/§4.13).
type Match struct {
	ChunkID       uuid.UUID
	Item          ItemSummary
	HeadingPath   []string
	SectionAnchor *string
	Excerpt       string
	Score         float64
	LexicalScore  float64
	TrigramScore  float64
	Distance      *float64
}

// ItemResult groups a hybrid search's fused chunk matches under their item
// (spec §4.13's per-item grouping, capped at MaxChunksPerItem).
type ItemResult struct {
	Item    ItemSummary
	Matches []Match
}

const MaxChunksPerItem = 3

// FusionOptions configures reciprocal rank fusion (spec §4.12).
type FusionOptions struct {
	K              int
	Weights        Weights
	CanonicalBoost float64
	PinnedBoost    float64
}

// DefaultFusionOptions returns spec §4.12's defaults for a given weight
// profile.
func DefaultFusionOptions(w Weights) FusionOptions {
	return FusionOptions{K: 60, Weights: w, CanonicalBoost: 0.1, PinnedBoost: 0.1}
}

// Weights apportion fusion credit across the three ranked lists (spec
// §4.12/§4.13).
type Weights struct {
	Lexical  float64
	Semantic float64
	Trigram  float64
}

// BM25Caps records the outcome of the lexical engine's capability probe
// (spec §4.10), cached with a TTL so the probe runs at most once per
// interval rather than once per search.
type BM25Caps struct {
	Available bool
	CheckedAt time.Time
}

func (c BM25Caps) expired(ttl time.Duration) bool {
	return time.Since(c.CheckedAt) > ttl
}

// filterClause appends Scopes/DocClass/Tags array-membership predicates to
// a query's WHERE clause, in addition to the baseArgs every caller already
// passes positionally. Both lexical and semantic queries apply the same
// filters (spec §4.10/§4.11: "applying the same filters as lexical") so
// this is shared rather than duplicated per engine. Returns the SQL
// fragment (leading " AND ...") and the full, positionally-numbered arg
// list to pass to the query.
func filterClause(f Filters, baseArgs []any) (string, []any) {
	var sb strings.Builder
	args := append([]any(nil), baseArgs...)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if len(f.Scopes) > 0 {
		sb.WriteString(" AND i.scope = ANY(" + next(f.Scopes) + ")")
	}
	if len(f.DocClass) > 0 {
		sb.WriteString(" AND i.doc_class = ANY(" + next(f.DocClass) + ")")
	}
	if len(f.Tags) > 0 {
		sb.WriteString(" AND i.tags && " + next(f.Tags))
	}
	return sb.String(), args
}
