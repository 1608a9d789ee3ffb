package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/bgconley/memento/internal/errors"
)

// WorkspaceRepo provides workspace access. Workspaces are created on demand
// and looked up by their unique name.
type WorkspaceRepo struct {
	db DBTX
}

func NewWorkspaceRepo(db DBTX) *WorkspaceRepo { return &WorkspaceRepo{db: db} }

// GetOrCreateByName returns the workspace with the given name, creating it
// if absent. Name uniqueness is enforced by the workspaces_name_key
// constraint; a racing insert is resolved by the ON CONFLICT DO UPDATE,
// which returns the existing row.
func (r *WorkspaceRepo) GetOrCreateByName(ctx context.Context, name string) (*Workspace, error) {
	if name == "" {
		return nil, apperrors.Validation("workspace name is required")
	}
	var w Workspace
	err := r.db.QueryRow(ctx, `
		INSERT INTO workspaces (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name
	`, name).Scan(&w.ID, &w.Name)
	if err != nil {
		return nil, apperrors.Internal("get or create workspace", err)
	}
	return &w, nil
}

// Get looks up a workspace by id.
func (r *WorkspaceRepo) Get(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	var w Workspace
	err := r.db.QueryRow(ctx, `SELECT id, name FROM workspaces WHERE id = $1`, id).Scan(&w.ID, &w.Name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("workspace not found")
		}
		return nil, apperrors.Internal("get workspace", err)
	}
	return &w, nil
}
