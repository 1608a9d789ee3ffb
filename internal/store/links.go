package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	apperrors "github.com/bgconley/memento/internal/errors"
)

// LinkRepo provides access to memory_links.
type LinkRepo struct {
	db DBTX
}

func NewLinkRepo(db DBTX) *LinkRepo { return &LinkRepo{db: db} }

// Insert creates a link between two items already verified (by the commit
// coordinator) to belong to projectID.
func (r *LinkRepo) Insert(ctx context.Context, projectID, fromItemID, toItemID uuid.UUID, relation string, weight float64, metadata json.RawMessage) (*MemoryLink, error) {
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}
	var l MemoryLink
	err := r.db.QueryRow(ctx, `
		INSERT INTO memory_links (project_id, from_item_id, to_item_id, relation, weight, metadata)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, project_id, from_item_id, to_item_id, relation, weight, metadata, created_at
	`, projectID, fromItemID, toItemID, relation, weight, metadata).Scan(
		&l.ID, &l.ProjectID, &l.FromItemID, &l.ToItemID, &l.Relation, &l.Weight, &l.Metadata, &l.CreatedAt,
	)
	if err != nil {
		return nil, apperrors.Internal("insert memory link", err)
	}
	return &l, nil
}

// ByFromItem returns outgoing links for an item.
func (r *LinkRepo) ByFromItem(ctx context.Context, projectID, itemID uuid.UUID) ([]MemoryLink, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, project_id, from_item_id, to_item_id, relation, weight, metadata, created_at
		FROM memory_links WHERE project_id = $1 AND from_item_id = $2
	`, projectID, itemID)
	if err != nil {
		return nil, apperrors.Internal("list links by from item", err)
	}
	defer rows.Close()

	var out []MemoryLink
	for rows.Next() {
		var l MemoryLink
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.FromItemID, &l.ToItemID, &l.Relation, &l.Weight, &l.Metadata, &l.CreatedAt); err != nil {
			return nil, apperrors.Internal("scan memory link", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
