package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	apperrors "github.com/bgconley/memento/internal/errors"
)

// ProfileRepo provides access to embedding_profiles.
type ProfileRepo struct {
	db DBTX
}

func NewProfileRepo(db DBTX) *ProfileRepo { return &ProfileRepo{db: db} }

// Create inserts a new profile. is_active defaults false; use Activate to
// flip the exclusive active flag.
func (r *ProfileRepo) Create(ctx context.Context, projectID uuid.UUID, name, provider, model string, dims int, distance Distance, cfg json.RawMessage) (*EmbeddingProfile, error) {
	if cfg == nil {
		cfg = json.RawMessage(`{}`)
	}
	var p EmbeddingProfile
	err := r.db.QueryRow(ctx, `
		INSERT INTO embedding_profiles (project_id, name, provider, model, dims, distance, provider_config)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, project_id, name, provider, model, dims, distance, is_active, provider_config
	`, projectID, name, provider, model, dims, distance, cfg).Scan(
		&p.ID, &p.ProjectID, &p.Name, &p.Provider, &p.Model, &p.Dims, &p.Distance, &p.IsActive, &p.ProviderConfig,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Conflict("embedding profile name already exists")
		}
		return nil, apperrors.Internal("create embedding profile", err)
	}
	return &p, nil
}

// Activate sets profileID as the project's sole active profile, clearing
// any previously active one in the same statement so the partial unique
// index (project_id) WHERE is_active is never violated.
func (r *ProfileRepo) Activate(ctx context.Context, projectID, profileID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		WITH cleared AS (
			UPDATE embedding_profiles SET is_active = false
			WHERE project_id = $1 AND is_active = true AND id <> $2
		)
		UPDATE embedding_profiles SET is_active = true
		WHERE project_id = $1 AND id = $2
	`, projectID, profileID)
	if err != nil {
		return apperrors.Internal("activate embedding profile", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("embedding profile not found")
	}
	return nil
}

// Get fetches a profile by id.
func (r *ProfileRepo) Get(ctx context.Context, projectID, profileID uuid.UUID) (*EmbeddingProfile, error) {
	var p EmbeddingProfile
	err := r.db.QueryRow(ctx, `
		SELECT id, project_id, name, provider, model, dims, distance, is_active, provider_config
		FROM embedding_profiles WHERE project_id = $1 AND id = $2
	`, projectID, profileID).Scan(
		&p.ID, &p.ProjectID, &p.Name, &p.Provider, &p.Model, &p.Dims, &p.Distance, &p.IsActive, &p.ProviderConfig,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("embedding profile not found")
		}
		return nil, apperrors.Internal("get embedding profile", err)
	}
	return &p, nil
}

// GetActive returns the project's single active profile, or KindNotFound
// if none is active — the semantic engine maps this to reason
// "no_active_profile" rather than surfacing the error to the caller.
func (r *ProfileRepo) GetActive(ctx context.Context, projectID uuid.UUID) (*EmbeddingProfile, error) {
	var p EmbeddingProfile
	err := r.db.QueryRow(ctx, `
		SELECT id, project_id, name, provider, model, dims, distance, is_active, provider_config
		FROM embedding_profiles WHERE project_id = $1 AND is_active = true
	`, projectID).Scan(
		&p.ID, &p.ProjectID, &p.Name, &p.Provider, &p.Model, &p.Dims, &p.Distance, &p.IsActive, &p.ProviderConfig,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("no active embedding profile")
		}
		return nil, apperrors.Internal("get active embedding profile", err)
	}
	return &p, nil
}

// ChunkEmbeddingRepo provides access to chunk_embeddings.
type ChunkEmbeddingRepo struct {
	db DBTX
}

func NewChunkEmbeddingRepo(db DBTX) *ChunkEmbeddingRepo { return &ChunkEmbeddingRepo{db: db} }

// UpsertBatch writes one vector per (chunk_id, embedding_profile_id),
// overwriting any existing row. Callers (embed job, reindex job) run this
// inside a single transaction per batch/page as required by spec §4.7/§4.8.
func (r *ChunkEmbeddingRepo) UpsertBatch(ctx context.Context, projectID, profileID uuid.UUID, vectors map[uuid.UUID][]float32) error {
	for chunkID, vec := range vectors {
		_, err := r.db.Exec(ctx, `
			INSERT INTO chunk_embeddings (chunk_id, embedding_profile_id, project_id, embedding_vector)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (chunk_id, embedding_profile_id) DO UPDATE SET embedding_vector = EXCLUDED.embedding_vector
		`, chunkID, profileID, projectID, pgvector.NewVector(vec))
		if err != nil {
			return apperrors.Internal("upsert chunk embedding", err)
		}
	}
	return nil
}

// DeleteForVersionProfile removes embeddings for every chunk of versionID
// under profileID; used when a version re-ingests to zero chunks.
func (r *ChunkEmbeddingRepo) DeleteForVersionProfile(ctx context.Context, versionID, profileID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM chunk_embeddings
		WHERE embedding_profile_id = $1
		  AND chunk_id IN (SELECT id FROM memory_chunks WHERE version_id = $2)
	`, profileID, versionID)
	if err != nil {
		return apperrors.Internal("delete embeddings for version", err)
	}
	return nil
}

// DeleteForProfile removes every embedding under profileID across the whole
// project; used by the reindex job when its first page is empty.
func (r *ChunkEmbeddingRepo) DeleteForProfile(ctx context.Context, projectID, profileID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM chunk_embeddings WHERE project_id = $1 AND embedding_profile_id = $2
	`, projectID, profileID)
	if err != nil {
		return apperrors.Internal("delete embeddings for profile", err)
	}
	return nil
}
