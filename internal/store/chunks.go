package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/bgconley/memento/internal/errors"
)

// ChunkRepo provides access to memory_chunks.
type ChunkRepo struct {
	db DBTX
}

func NewChunkRepo(db DBTX) *ChunkRepo { return &ChunkRepo{db: db} }

const chunkInsertBatchSize = 200

// ReplaceForVersion atomically deletes all existing chunks for versionID and
// inserts the new chunks in groups of up to 200, one INSERT statement per
// row (there is no multi-row insert), matching the ingest
// job's all-or-nothing rewrite (spec §4.6). Caller must run this within a
// transaction so a failure rolls back the delete along with any partial
// insert.
func (r *ChunkRepo) ReplaceForVersion(ctx context.Context, projectID, versionID uuid.UUID, chunks []MemoryChunk) ([]MemoryChunk, error) {
	if _, err := r.db.Exec(ctx, `DELETE FROM memory_chunks WHERE version_id = $1`, versionID); err != nil {
		return nil, apperrors.Internal("delete existing chunks", err)
	}
	out := make([]MemoryChunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += chunkInsertBatchSize {
		end := start + chunkInsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		rows, err := r.insertBatch(ctx, projectID, versionID, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *ChunkRepo) insertBatch(ctx context.Context, projectID, versionID uuid.UUID, batch []MemoryChunk) ([]MemoryChunk, error) {
	out := make([]MemoryChunk, 0, len(batch))
	for _, c := range batch {
		var inserted MemoryChunk
		err := r.db.QueryRow(ctx, `
			INSERT INTO memory_chunks (project_id, version_id, chunk_index, chunk_text, heading_path, section_anchor, start_char, end_char)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id, project_id, version_id, chunk_index, chunk_text, heading_path, section_anchor, start_char, end_char
		`, projectID, versionID, c.ChunkIndex, c.ChunkText, c.HeadingPath, c.SectionAnchor, c.StartChar, c.EndChar).Scan(
			&inserted.ID, &inserted.ProjectID, &inserted.VersionID, &inserted.ChunkIndex, &inserted.ChunkText,
			&inserted.HeadingPath, &inserted.SectionAnchor, &inserted.StartChar, &inserted.EndChar,
		)
		if err != nil {
			return nil, apperrors.Internal("insert chunk batch", err)
		}
		out = append(out, inserted)
	}
	return out, nil
}

// ByVersion returns chunks for a version ordered by chunk_index, as required
// by the embed job before batching.
func (r *ChunkRepo) ByVersion(ctx context.Context, versionID uuid.UUID) ([]MemoryChunk, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, project_id, version_id, chunk_index, chunk_text, heading_path, section_anchor, start_char, end_char
		FROM memory_chunks WHERE version_id = $1 ORDER BY chunk_index ASC
	`, versionID)
	if err != nil {
		return nil, apperrors.Internal("list chunks by version", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// PageByProject returns up to limit chunks for project with id > afterID,
// ordered by id ascending, for the reindex job's keyset pagination.
func (r *ChunkRepo) PageByProject(ctx context.Context, projectID uuid.UUID, afterID uuid.UUID, limit int) ([]MemoryChunk, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, project_id, version_id, chunk_index, chunk_text, heading_path, section_anchor, start_char, end_char
		FROM memory_chunks
		WHERE project_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`, projectID, afterID, limit)
	if err != nil {
		return nil, apperrors.Internal("page chunks by project", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows pgx.Rows) ([]MemoryChunk, error) {
	var out []MemoryChunk
	for rows.Next() {
		var c MemoryChunk
		if err := rows.Scan(
			&c.ID, &c.ProjectID, &c.VersionID, &c.ChunkIndex, &c.ChunkText,
			&c.HeadingPath, &c.SectionAnchor, &c.StartChar, &c.EndChar,
		); err != nil {
			return nil, apperrors.Internal("scan chunk", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
