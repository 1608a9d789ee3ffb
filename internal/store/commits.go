package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/bgconley/memento/internal/errors"
)

// CommitRepo provides access to commits, the unit of an idempotent write.
type CommitRepo struct {
	db DBTX
}

func NewCommitRepo(db DBTX) *CommitRepo { return &CommitRepo{db: db} }

// GetByIdempotencyKey looks up an existing commit for (project, key).
// Returns apperrors.KindNotFound when absent; the coordinator uses this to
// distinguish a fresh write from a dedup.
func (r *CommitRepo) GetByIdempotencyKey(ctx context.Context, projectID uuid.UUID, key string) (*Commit, error) {
	var c Commit
	err := r.db.QueryRow(ctx, `
		SELECT id, project_id, session_id, idempotency_key, author, summary
		FROM commits WHERE project_id = $1 AND idempotency_key = $2
	`, projectID, key).Scan(&c.ID, &c.ProjectID, &c.SessionID, &c.IdempotencyKey, &c.Author, &c.Summary)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("commit not found")
		}
		return nil, apperrors.Internal("get commit by idempotency key", err)
	}
	return &c, nil
}

// Insert creates a new commit row. Callers must have already verified via
// GetByIdempotencyKey that no commit exists for this key; a race is caught
// by the (project_id, idempotency_key) unique constraint and surfaced as
// apperrors.KindConflict.
func (r *CommitRepo) Insert(ctx context.Context, projectID uuid.UUID, sessionID *string, idempotencyKey string, author, summary *string) (*Commit, error) {
	var c Commit
	err := r.db.QueryRow(ctx, `
		INSERT INTO commits (project_id, session_id, idempotency_key, author, summary)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, project_id, session_id, idempotency_key, author, summary
	`, projectID, sessionID, idempotencyKey, author, summary).Scan(
		&c.ID, &c.ProjectID, &c.SessionID, &c.IdempotencyKey, &c.Author, &c.Summary,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Conflict("commit already exists for idempotency key")
		}
		return nil, apperrors.Internal("insert commit", err)
	}
	return &c, nil
}
