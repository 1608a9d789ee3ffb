package search

import (
	"context"
	"math"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"github.com/bgconley/memento/internal/embed"
	apperrors "github.com/bgconley/memento/internal/errors"
	"github.com/bgconley/memento/internal/store"
)

// SemanticEngine implements spec §4.11: ANN search over chunk_embeddings
// under the project's active embedding profile, with per-query
// hnsw.ef_search tuning and a distance-to-score conversion that depends on
// the profile's distance metric.
type SemanticEngine struct {
	pool    *pgxpool.Pool
	builder embed.BuildOptions
	log     zerolog.Logger
}

func NewSemanticEngine(pool *pgxpool.Pool, builder embed.BuildOptions, log zerolog.Logger) *SemanticEngine {
	return &SemanticEngine{pool: pool, builder: builder, log: log}
}

// The ef_search resolution inputs. Search always passes these defaults;
// no per-profile override is read.
const (
	defaultEfSearchMin    = 40
	defaultEfSearchMax    = 400
	defaultEfSearchFactor = 2.0
)

func resolveEfSearch(topK int, min, max int, factor float64) int {
	if min <= 0 {
		min = defaultEfSearchMin
	}
	if max <= 0 {
		max = defaultEfSearchMax
	}
	if factor <= 0 {
		factor = defaultEfSearchFactor
	}
	scaled := int(math.Ceil(float64(topK) * factor))
	ef := topK
	if scaled > ef {
		ef = scaled
	}
	if ef < min {
		ef = min
	}
	if ef > max {
		ef = max
	}
	return ef
}

// Search runs spec §4.11's semantic match. A nil error with a non-empty
// Reason means the engine intentionally produced no results (no active
// profile, no embedder configured, or an empty query embedding) rather
// than surfacing an error to the caller; only genuine failures (a
// malformed provider response, a database error) return err.
func (e *SemanticEngine) Search(ctx context.Context, query string, f Filters, opts Options) ([]SemanticMatch, EmptyReason, error) {
	opts = opts.withDefaults()

	profiles := store.NewProfileRepo(e.pool)
	var profile *store.EmbeddingProfile
	var err error
	if opts.EmbeddingProfileID != nil {
		profile, err = profiles.Get(ctx, f.ProjectID, *opts.EmbeddingProfileID)
	} else {
		profile, err = profiles.GetActive(ctx, f.ProjectID)
	}
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil, ReasonNoActiveProfile, nil
		}
		return nil, "", err
	}

	embedder, err := embed.New(profile.Provider, profile.Model, profile.Dims, profile.ProviderConfig, e.builder)
	if err != nil {
		e.log.Warn().Err(err).Str("profile_id", profile.ID.String()).Msg("embedder not configured for active profile")
		return nil, ReasonEmbedderNotConfigured, nil
	}

	res, err := embedder.Embed(ctx, []string{query}, embed.InputTypeQuery)
	if err != nil {
		return nil, "", err
	}
	if len(res.Vectors) == 0 || len(res.Vectors[0]) == 0 {
		return nil, ReasonEmptyEmbedding, nil
	}
	vec := res.Vectors[0]
	if res.Dimensions != 0 && res.Dimensions != profile.Dims {
		return nil, "", apperrors.Validation("query embedding dimensions mismatch profile").
			WithDetail("expected", strconv.Itoa(profile.Dims)).
			WithDetail("got", strconv.Itoa(res.Dimensions))
	}

	multiplier := 4
	if f.HasNarrowing() {
		multiplier = 8
	}
	limit := opts.TopK * multiplier

	efSearch := resolveEfSearch(opts.TopK, defaultEfSearchMin, defaultEfSearchMax, defaultEfSearchFactor)

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SET LOCAL hnsw.ef_search = "+strconv.Itoa(efSearch)); err != nil {
		return nil, "", err
	}

	// Two-stage fetch per spec §4.11 steps 4-5: the candidate CTE ranks
	// purely by distance under the profile's own ANN index (no joins, so
	// the index does the work), widened by `multiplier` to absorb rows the
	// outer join/filter will drop; the outer query applies the same
	// project/status/scope/doc_class/tag filters as the lexical engine,
	// re-sorts by distance, and caps at the caller's requested top_k.
	distExpr, scoreSign := distanceExpr(profile.Distance)
	filterSQL, args := filterClause(f, []any{profile.ID, pgvector.NewVector(vec), f.ProjectID, limit, opts.MaxChunkChars, opts.TopK})
	sql := `
		WITH candidates AS (
			SELECT chunk_id, embedding_vector ` + distExpr + ` $2 AS distance
			FROM chunk_embeddings
			WHERE embedding_profile_id = $1
			ORDER BY distance ASC
			LIMIT $4
		)
		SELECT c.id, i.id, v.id, i.canonical_key, i.pinned, i.title, i.scope, i.doc_class,
		       c.heading_path, c.section_anchor, left(c.chunk_text, $5) AS excerpt,
		       cand.distance
		FROM candidates cand
		JOIN memory_chunks c ON c.id = cand.chunk_id
		JOIN memory_versions v ON v.id = c.version_id
		JOIN memory_items i ON i.id = v.item_id
		WHERE i.project_id = $3
		  AND i.status = 'active'
		` + filterSQL + `
		ORDER BY cand.distance ASC
		LIMIT $6
	`
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []SemanticMatch
	for rows.Next() {
		var m SemanticMatch
		var docClass *string
		if err := rows.Scan(
			&m.ChunkID, &m.Item.ItemID, &m.Item.VersionID, &m.Item.CanonicalKey, &m.Item.Pinned,
			&m.Item.Title, &m.Item.Scope, &docClass, &m.HeadingPath, &m.SectionAnchor, &m.Excerpt,
			&m.Distance,
		); err != nil {
			return nil, "", err
		}
		m.Item.DocClass = docClass
		m.Score = scoreSign(m.Distance)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, "", err
	}
	return out, ReasonNone, nil
}

// distanceExpr returns the pgvector distance operator for a profile's
// metric alongside the distance-to-score conversion spec §4.11 pairs with
// it: cosine distance is already in [0,2], so score = 1 - distance; L2 and
// inner-product distances are unbounded, so score is simply negated
// distance (closer/larger negative distance ranks higher).
func distanceExpr(d store.Distance) (string, func(float64) float64) {
	switch d {
	case store.DistanceL2:
		return "<->", func(dist float64) float64 { return -dist }
	case store.DistanceIP:
		return "<#>", func(dist float64) float64 { return -dist }
	default:
		return "<=>", func(dist float64) float64 { return 1 - dist }
	}
}
