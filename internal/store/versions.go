package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/bgconley/memento/internal/errors"
)

// VersionRepo provides access to memory_versions.
type VersionRepo struct {
	db DBTX
}

func NewVersionRepo(db DBTX) *VersionRepo { return &VersionRepo{db: db} }

// Checksum returns the SHA-256 hex digest of content, used as the version's
// checksum column.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// InsertNext computes version_num = max(version_num)+1 for itemID under a
// row-level lock (caller must run this within the enclosing commit
// transaction) and inserts the new immutable version.
func (r *VersionRepo) InsertNext(ctx context.Context, projectID, itemID uuid.UUID, commitID *uuid.UUID, format ContentFormat, contentText string, contentJSON json.RawMessage) (*MemoryVersion, error) {
	// Lock the item row first so concurrent commits against the same item
	// serialize; only then is MAX(version_num)+1 race-free.
	var lockedID uuid.UUID
	if err := r.db.QueryRow(ctx, `SELECT id FROM memory_items WHERE id = $1 FOR UPDATE`, itemID).Scan(&lockedID); err != nil {
		return nil, apperrors.Internal("lock item for versioning", err)
	}
	var nextNum int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(version_num), 0) + 1
		FROM memory_versions WHERE item_id = $1
	`, itemID).Scan(&nextNum)
	if err != nil && err != pgx.ErrNoRows {
		return nil, apperrors.Internal("compute next version_num", err)
	}
	if nextNum == 0 {
		nextNum = 1
	}

	var v MemoryVersion
	err = r.db.QueryRow(ctx, `
		INSERT INTO memory_versions (project_id, item_id, commit_id, version_num, content_format, content_text, content_json, checksum)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, project_id, item_id, commit_id, version_num, content_format, content_text, content_json, checksum, created_at
	`, projectID, itemID, commitID, nextNum, format, contentText, contentJSON, Checksum(contentText)).Scan(
		&v.ID, &v.ProjectID, &v.ItemID, &v.CommitID, &v.VersionNum, &v.ContentFormat,
		&v.ContentText, &v.ContentJSON, &v.Checksum, &v.CreatedAt,
	)
	if err != nil {
		return nil, apperrors.Internal("insert memory version", err)
	}
	return &v, nil
}

// GetLatest returns the highest version_num row for an item.
func (r *VersionRepo) GetLatest(ctx context.Context, projectID, itemID uuid.UUID) (*MemoryVersion, error) {
	var v MemoryVersion
	err := r.db.QueryRow(ctx, `
		SELECT id, project_id, item_id, commit_id, version_num, content_format, content_text, content_json, checksum, created_at
		FROM memory_versions WHERE project_id = $1 AND item_id = $2
		ORDER BY version_num DESC LIMIT 1
	`, projectID, itemID).Scan(
		&v.ID, &v.ProjectID, &v.ItemID, &v.CommitID, &v.VersionNum, &v.ContentFormat,
		&v.ContentText, &v.ContentJSON, &v.Checksum, &v.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("no versions for item")
		}
		return nil, apperrors.Internal("get latest version", err)
	}
	return &v, nil
}

// GetByNum returns a specific version_num for an item, used by the
// memory://…@v{N} URI form.
func (r *VersionRepo) GetByNum(ctx context.Context, projectID, itemID uuid.UUID, versionNum int) (*MemoryVersion, error) {
	var v MemoryVersion
	err := r.db.QueryRow(ctx, `
		SELECT id, project_id, item_id, commit_id, version_num, content_format, content_text, content_json, checksum, created_at
		FROM memory_versions WHERE project_id = $1 AND item_id = $2 AND version_num = $3
	`, projectID, itemID, versionNum).Scan(
		&v.ID, &v.ProjectID, &v.ItemID, &v.CommitID, &v.VersionNum, &v.ContentFormat,
		&v.ContentText, &v.ContentJSON, &v.Checksum, &v.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("version not found")
		}
		return nil, apperrors.Internal("get version by num", err)
	}
	return &v, nil
}

// Get returns a version by its own id, used by job handlers that only carry
// version_id in the outbox payload.
func (r *VersionRepo) Get(ctx context.Context, versionID uuid.UUID) (*MemoryVersion, error) {
	var v MemoryVersion
	err := r.db.QueryRow(ctx, `
		SELECT id, project_id, item_id, commit_id, version_num, content_format, content_text, content_json, checksum, created_at
		FROM memory_versions WHERE id = $1
	`, versionID).Scan(
		&v.ID, &v.ProjectID, &v.ItemID, &v.CommitID, &v.VersionNum, &v.ContentFormat,
		&v.ContentText, &v.ContentJSON, &v.Checksum, &v.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("version not found")
		}
		return nil, apperrors.Internal("get version", err)
	}
	return &v, nil
}

// History returns all versions of an item, newest first.
func (r *VersionRepo) History(ctx context.Context, projectID, itemID uuid.UUID) ([]*MemoryVersion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, project_id, item_id, commit_id, version_num, content_format, content_text, content_json, checksum, created_at
		FROM memory_versions WHERE project_id = $1 AND item_id = $2
		ORDER BY version_num DESC
	`, projectID, itemID)
	if err != nil {
		return nil, apperrors.Internal("list version history", err)
	}
	defer rows.Close()

	var out []*MemoryVersion
	for rows.Next() {
		var v MemoryVersion
		if err := rows.Scan(
			&v.ID, &v.ProjectID, &v.ItemID, &v.CommitID, &v.VersionNum, &v.ContentFormat,
			&v.ContentText, &v.ContentJSON, &v.Checksum, &v.CreatedAt,
		); err != nil {
			return nil, apperrors.Internal("scan version history", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// ByCommit returns, in insertion order, the versions produced by a single
// commit. Used to reconstruct the "deduped" result of a repeated commit.
func (r *VersionRepo) ByCommit(ctx context.Context, projectID, commitID uuid.UUID) ([]*MemoryVersion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, project_id, item_id, commit_id, version_num, content_format, content_text, content_json, checksum, created_at
		FROM memory_versions WHERE project_id = $1 AND commit_id = $2
		ORDER BY created_at ASC
	`, projectID, commitID)
	if err != nil {
		return nil, apperrors.Internal("list versions by commit", err)
	}
	defer rows.Close()

	var out []*MemoryVersion
	for rows.Next() {
		var v MemoryVersion
		if err := rows.Scan(
			&v.ID, &v.ProjectID, &v.ItemID, &v.CommitID, &v.VersionNum, &v.ContentFormat,
			&v.ContentText, &v.ContentJSON, &v.Checksum, &v.CreatedAt,
		); err != nil {
			return nil, apperrors.Internal("scan versions by commit", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}
