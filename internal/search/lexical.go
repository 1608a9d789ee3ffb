package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LexicalEngine implements spec §4.10: full-text search over chunk
// tsvectors, blended with trigram similarity for identifier-like queries,
// with a cached capability probe for an alternate BM25 operator.
type LexicalEngine struct {
	pool *pgxpool.Pool
	ttl  time.Duration

	mu   sync.Mutex
	caps BM25Caps
}

func NewLexicalEngine(pool *pgxpool.Pool, capsTTL time.Duration) *LexicalEngine {
	return &LexicalEngine{pool: pool, ttl: capsTTL}
}

// bm25Available reports whether the alternate BM25 operator can be used,
// probing at most once per ttl. Any probe failure is treated as
// unavailable so a missing extension never surfaces as a search error;
// the engine always has full-text search to fall back to.
func (e *LexicalEngine) bm25Available(ctx context.Context) bool {
	e.mu.Lock()
	caps := e.caps
	e.mu.Unlock()

	if caps.CheckedAt.IsZero() || caps.expired(e.ttl) {
		available := e.probeBM25(ctx)
		caps = BM25Caps{Available: available, CheckedAt: time.Now()}
		e.mu.Lock()
		e.caps = caps
		e.mu.Unlock()
	}
	return caps.Available
}

// probeBM25 checks for an installed extension providing a BM25 ranking
// operator (e.g. pg_search / ParadeDB) and a supporting index on
// memory_chunks. Absence of either is not an error: it just means the
// engine stays on to_tsvector/to_tsquery.
func (e *LexicalEngine) probeBM25(ctx context.Context) bool {
	var extInstalled bool
	err := e.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'pg_search')
	`).Scan(&extInstalled)
	if err != nil || !extInstalled {
		return false
	}
	var indexPresent bool
	err = e.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE tablename = 'memory_chunks' AND indexdef ILIKE '%bm25%'
		)
	`).Scan(&indexPresent)
	return err == nil && indexPresent
}

// Search runs spec §4.10's lexical match. The returned excerpt is
// chunk_text truncated to opts.MaxChunkChars in SQL.
func (e *LexicalEngine) Search(ctx context.Context, query string, f Filters, opts Options) ([]LexicalMatch, error) {
	opts = opts.withDefaults()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	useBM25 := e.bm25Available(ctx)
	addTrigram := IsIdentifierLike(query)

	rows, err := e.runQuery(ctx, query, f, opts, useBM25, addTrigram)
	if err != nil && useBM25 {
		// Probe said BM25 was available but the query itself failed against
		// it (e.g. the extension was dropped between probe and query) -
		// fall back to full-text rather than surfacing the error.
		rows, err = e.runQuery(ctx, query, f, opts, false, addTrigram)
	}
	return rows, err
}

func (e *LexicalEngine) runQuery(ctx context.Context, query string, f Filters, opts Options, useBM25, addTrigram bool) ([]LexicalMatch, error) {
	rankExpr := "ts_rank_cd(c.tsv, websearch_to_tsquery('english', $2))"
	matchExpr := "c.tsv @@ websearch_to_tsquery('english', $2)"
	if useBM25 {
		// pg_search's bm25 index is queried through the '@@@' operator,
		// which also drives candidate selection: without it, the match
		// clause would stay on tsvector and BM25 would only re-rank an
		// FTS-selected set instead of selecting its own candidates.
		rankExpr = "paradedb.score(c.id)"
		matchExpr = "c.id @@@ paradedb.parse($2)"
	}

	trigramExpr := "0.0"
	if addTrigram {
		trigramExpr = "similarity(c.chunk_text, $2)"
	}

	filterSQL, args := filterClause(f, []any{f.ProjectID, query, opts.MaxChunkChars, opts.TopK})

	sql := `
		SELECT c.id, i.id, v.id, i.canonical_key, i.pinned, i.title, i.scope, i.doc_class,
		       c.heading_path, c.section_anchor, left(c.chunk_text, $3) AS excerpt,
		       ` + rankExpr + ` AS lexical_score,
		       ` + trigramExpr + ` AS trigram_score
		FROM memory_chunks c
		JOIN memory_versions v ON v.id = c.version_id
		JOIN memory_items i ON i.id = v.item_id
		WHERE c.project_id = $1
		  AND i.status = 'active'
		  AND ` + matchExpr + `
		` + filterSQL + `
		ORDER BY lexical_score DESC
		LIMIT $4
	`
	dbRows, err := e.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer dbRows.Close()

	var out []LexicalMatch
	for dbRows.Next() {
		var m LexicalMatch
		var docClass *string
		if err := dbRows.Scan(
			&m.ChunkID, &m.Item.ItemID, &m.Item.VersionID, &m.Item.CanonicalKey, &m.Item.Pinned,
			&m.Item.Title, &m.Item.Scope, &docClass, &m.HeadingPath, &m.SectionAnchor, &m.Excerpt,
			&m.LexicalScore, &m.TrigramScore,
		); err != nil {
			return nil, err
		}
		m.Item.DocClass = docClass
		if opts.TrigramWeight != 0 && m.TrigramScore > 0 {
			m.LexicalScore += opts.TrigramWeight * m.TrigramScore
		}
		out = append(out, m)
	}
	return out, dbRows.Err()
}
