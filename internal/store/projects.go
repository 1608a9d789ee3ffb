package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/bgconley/memento/internal/errors"
)

// ProjectRepo provides project access, scoped within a workspace.
type ProjectRepo struct {
	db DBTX
}

func NewProjectRepo(db DBTX) *ProjectRepo { return &ProjectRepo{db: db} }

// GetOrCreate returns the project identified by (workspaceID, projectKey),
// creating it with displayName/repoURL if absent. project_key is expected
// to already be derived (hash of repo_url/cwd/explicit value) by the
// caller; this repository only enforces uniqueness.
func (r *ProjectRepo) GetOrCreate(ctx context.Context, workspaceID uuid.UUID, projectKey, displayName string, repoURL *string) (*Project, error) {
	if projectKey == "" {
		return nil, apperrors.Validation("project_key is required")
	}
	var p Project
	err := r.db.QueryRow(ctx, `
		INSERT INTO projects (workspace_id, project_key, display_name, repo_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, project_key) DO UPDATE SET display_name = projects.display_name
		RETURNING id, workspace_id, project_key, display_name, repo_url, status
	`, workspaceID, projectKey, displayName, repoURL).Scan(
		&p.ID, &p.WorkspaceID, &p.ProjectKey, &p.DisplayName, &p.RepoURL, &p.Status,
	)
	if err != nil {
		return nil, apperrors.Internal("get or create project", err)
	}
	return &p, nil
}

// Get looks up a project by id.
func (r *ProjectRepo) Get(ctx context.Context, id uuid.UUID) (*Project, error) {
	var p Project
	err := r.db.QueryRow(ctx, `
		SELECT id, workspace_id, project_key, display_name, repo_url, status
		FROM projects WHERE id = $1
	`, id).Scan(&p.ID, &p.WorkspaceID, &p.ProjectKey, &p.DisplayName, &p.RepoURL, &p.Status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("project not found")
		}
		return nil, apperrors.Internal("get project", err)
	}
	return &p, nil
}
