// Package index manages the ANN (HNSW) indexes backing pgvector similarity
// search, one per embedding profile. It is grounded on the pack's pgvector
// HNSW index-creation patterns (store/postgres's hnswWithClause/Init in the
// example corpus) but adds the ensure/diff/recreate lifecycle spec §4.9
// requires: index creation here is idempotent and self-healing rather than
// a one-shot migration step.
package index

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	apperrors "github.com/bgconley/memento/internal/errors"
	"github.com/bgconley/memento/internal/store"
)

// HNSWParams carries the optional build-time HNSW tuning knobs (spec
// §4.9's "m, ef_construction if specified"). A zero value uses pgvector's
// own default for that parameter.
type HNSWParams struct {
	M              int
	EFConstruction int
}

// Manager ensures the ANN index for an embedding profile exists and matches
// the profile's current (dims, distance) and the configured HNSW params.
type Manager struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
	skip bool
}

func NewManager(pool *pgxpool.Pool, log zerolog.Logger, skipBuild bool) *Manager {
	return &Manager{pool: pool, log: log, skip: skipBuild}
}

// IndexName returns the deterministic index name for a profile (spec
// §4.9): chunk_embeddings_hnsw_<first-10-hex-of-sha1(profile_id)>.
func IndexName(profileID uuid.UUID) string {
	sum := sha1.Sum([]byte(profileID.String()))
	return "chunk_embeddings_hnsw_" + hex.EncodeToString(sum[:])[:10]
}

func opclass(d store.Distance) (string, error) {
	switch d {
	case store.DistanceCosine:
		return "vector_cosine_ops", nil
	case store.DistanceL2:
		return "vector_l2_ops", nil
	case store.DistanceIP:
		return "vector_ip_ops", nil
	default:
		return "", apperrors.Validation("unknown distance metric").WithDetail("distance", string(d))
	}
}

// Ensure creates or repairs the ANN index for profile. A no-op when
// MEMENTO_SKIP_INDEX_BUILD is set, matching environments (tests, small
// datasets) where a sequential scan is acceptable and index builds would
// only slow things down.
func (m *Manager) Ensure(ctx context.Context, profile *store.EmbeddingProfile, hnsw HNSWParams) error {
	if m.skip {
		m.log.Debug().Str("profile_id", profile.ID.String()).Msg("skipping index build, MEMENTO_SKIP_INDEX_BUILD set")
		return nil
	}

	name := IndexName(profile.ID)
	opc, err := opclass(profile.Distance)
	if err != nil {
		return err
	}
	expected := buildIndexDef(name, profile.ID, profile.Dims, opc, hnsw)

	existing, err := m.existingIndexDef(ctx, name)
	if err != nil {
		return err
	}
	if existing != "" {
		if fingerprint(existing) == fingerprint(expected) {
			return nil
		}
		m.log.Info().Str("index", name).Msg("index definition changed, dropping for recreate")
		if _, err := m.pool.Exec(ctx, fmt.Sprintf(`DROP INDEX CONCURRENTLY IF EXISTS %s`, name)); err != nil {
			return apperrors.Internal("drop stale ann index", err)
		}
	}

	m.log.Info().Str("index", name).Str("profile_id", profile.ID.String()).Msg("building ann index")
	if _, err := m.pool.Exec(ctx, expected); err != nil {
		return apperrors.Internal("create ann index", err)
	}
	return nil
}

// buildIndexDef renders the CREATE INDEX statement for profile. The vector
// column is declared as an untyped vector (schema.go), so the dimension
// constraint lives in the index's own cast expression rather than the
// column type; that cast is exactly what changes when a profile's dims
// change, which is what makes dims part of the fingerprint below.
func buildIndexDef(name string, profileID uuid.UUID, dims int, opc string, hnsw HNSWParams) string {
	var with strings.Builder
	var parts []string
	if hnsw.M > 0 {
		parts = append(parts, "m = "+strconv.Itoa(hnsw.M))
	}
	if hnsw.EFConstruction > 0 {
		parts = append(parts, "ef_construction = "+strconv.Itoa(hnsw.EFConstruction))
	}
	if len(parts) > 0 {
		with.WriteString(" WITH (" + strings.Join(parts, ", ") + ")")
	}

	return fmt.Sprintf(
		`CREATE INDEX CONCURRENTLY IF NOT EXISTS %s ON chunk_embeddings USING hnsw ((embedding_vector::vector(%d)) %s)%s WHERE embedding_profile_id = '%s'`,
		name, dims, opc, with.String(), profileID.String(),
	)
}

func (m *Manager) existingIndexDef(ctx context.Context, name string) (string, error) {
	var def string
	err := m.pool.QueryRow(ctx, `SELECT indexdef FROM pg_indexes WHERE indexname = $1`, name).Scan(&def)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", apperrors.Internal("look up existing ann index", err)
	}
	return def, nil
}

var fingerprintWS = regexp.MustCompile(`\s+`)

// fingerprint normalizes an index definition (ours or Postgres's own
// pg_get_indexdef rendering) to a comparable form: lowercase, collapsed
// whitespace, and stripped of the keywords that differ between our CREATE
// statement and Postgres's canonical indexdef text (CONCURRENTLY and IF
// NOT EXISTS never appear in pg_get_indexdef output) without affecting the
// comparison of what actually matters — the indexed expression, opclass,
// WITH params, and predicate.
func fingerprint(def string) string {
	s := strings.ToLower(def)
	s = strings.ReplaceAll(s, "concurrently", "")
	s = strings.ReplaceAll(s, "if not exists", "")
	s = strings.ReplaceAll(s, "public.", "")
	s = fingerprintWS.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
