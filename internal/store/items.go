package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/bgconley/memento/internal/errors"
)

// ItemRepo provides access to memory_items, including the canonical
// upsert specialization used by the commit coordinator.
type ItemRepo struct {
	db DBTX
}

func NewItemRepo(db DBTX) *ItemRepo { return &ItemRepo{db: db} }

// ItemWrite carries the fields the commit coordinator resolves for a single
// entry before writing. Nil pointer fields are treated as "not supplied"
// by the COALESCE-style merge in UpsertByCanonicalKey.
type ItemWrite struct {
	ProjectID    uuid.UUID
	Scope        Scope
	Kind         string
	CanonicalKey *string
	DocClass     *DocClass
	Title        string
	Pinned       *bool
	Tags         []string
	Metadata     json.RawMessage
}

func (w ItemWrite) validate() error {
	if w.Kind == "" {
		return apperrors.Validation("kind is required").WithDetail("field", "kind")
	}
	if w.Scope == "" {
		return apperrors.Validation("scope is required").WithDetail("field", "scope")
	}
	if w.Title == "" {
		return apperrors.Validation("title is required").WithDetail("field", "title")
	}
	return nil
}

// Insert creates a new item and returns it.
func (r *ItemRepo) Insert(ctx context.Context, w ItemWrite) (*MemoryItem, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	pinned := false
	if w.Pinned != nil {
		pinned = *w.Pinned
	}
	metadata := w.Metadata
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}
	var it MemoryItem
	err := r.db.QueryRow(ctx, `
		INSERT INTO memory_items (project_id, scope, kind, canonical_key, doc_class, title, pinned, tags, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, project_id, scope, kind, canonical_key, doc_class, title, pinned, status, tags, metadata, created_at, updated_at
	`, w.ProjectID, w.Scope, w.Kind, w.CanonicalKey, w.DocClass, w.Title, pinned, w.Tags, metadata).Scan(
		&it.ID, &it.ProjectID, &it.Scope, &it.Kind, &it.CanonicalKey, &it.DocClass, &it.Title,
		&it.Pinned, &it.Status, &it.Tags, &it.Metadata, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, apperrors.Internal("insert memory item", err)
	}
	return &it, nil
}

// UpsertByCanonicalKey inserts the item, or on conflict with an existing
// (project_id, canonical_key) row, merges supplied fields with
// COALESCE-style semantics: a nil/zero field in w leaves the existing
// value untouched. Canonical items default pinned=true when w.Pinned is
// nil, per the canonical upsert specialization.
func (r *ItemRepo) UpsertByCanonicalKey(ctx context.Context, w ItemWrite) (*MemoryItem, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	if w.CanonicalKey == nil || *w.CanonicalKey == "" {
		return nil, apperrors.Validation("canonical_key is required for canonical upsert")
	}
	pinned := true
	if w.Pinned != nil {
		pinned = *w.Pinned
	}
	metadata := w.Metadata
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}
	var it MemoryItem
	err := r.db.QueryRow(ctx, `
		INSERT INTO memory_items (project_id, scope, kind, canonical_key, doc_class, title, pinned, tags, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (project_id, canonical_key) WHERE canonical_key IS NOT NULL DO UPDATE SET
			doc_class = COALESCE(EXCLUDED.doc_class, memory_items.doc_class),
			title     = COALESCE(NULLIF(EXCLUDED.title, ''), memory_items.title),
			tags      = CASE WHEN EXCLUDED.tags = '{}' THEN memory_items.tags ELSE EXCLUDED.tags END,
			metadata  = memory_items.metadata || EXCLUDED.metadata,
			pinned    = EXCLUDED.pinned,
			updated_at = now()
		RETURNING id, project_id, scope, kind, canonical_key, doc_class, title, pinned, status, tags, metadata, created_at, updated_at
	`, w.ProjectID, w.Scope, w.Kind, w.CanonicalKey, w.DocClass, w.Title, pinned, w.Tags, metadata).Scan(
		&it.ID, &it.ProjectID, &it.Scope, &it.Kind, &it.CanonicalKey, &it.DocClass, &it.Title,
		&it.Pinned, &it.Status, &it.Tags, &it.Metadata, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, apperrors.Internal("upsert canonical memory item", err)
	}
	return &it, nil
}

// Get fetches an item by id, scoped to project.
func (r *ItemRepo) Get(ctx context.Context, projectID, itemID uuid.UUID) (*MemoryItem, error) {
	var it MemoryItem
	err := r.db.QueryRow(ctx, `
		SELECT id, project_id, scope, kind, canonical_key, doc_class, title, pinned, status, tags, metadata, created_at, updated_at
		FROM memory_items WHERE project_id = $1 AND id = $2
	`, projectID, itemID).Scan(
		&it.ID, &it.ProjectID, &it.Scope, &it.Kind, &it.CanonicalKey, &it.DocClass, &it.Title,
		&it.Pinned, &it.Status, &it.Tags, &it.Metadata, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("memory item not found")
		}
		return nil, apperrors.Internal("get memory item", err)
	}
	return &it, nil
}

// GetByCanonicalKey fetches an item by its canonical key, whatever its
// status.
func (r *ItemRepo) GetByCanonicalKey(ctx context.Context, projectID uuid.UUID, canonicalKey string) (*MemoryItem, error) {
	var it MemoryItem
	err := r.db.QueryRow(ctx, `
		SELECT id, project_id, scope, kind, canonical_key, doc_class, title, pinned, status, tags, metadata, created_at, updated_at
		FROM memory_items WHERE project_id = $1 AND canonical_key = $2
	`, projectID, canonicalKey).Scan(
		&it.ID, &it.ProjectID, &it.Scope, &it.Kind, &it.CanonicalKey, &it.DocClass, &it.Title,
		&it.Pinned, &it.Status, &it.Tags, &it.Metadata, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("canonical item not found")
		}
		return nil, apperrors.Internal("get memory item by canonical key", err)
	}
	return &it, nil
}

// SetStatus transitions an item's lifecycle status (archive/delete/restore).
func (r *ItemRepo) SetStatus(ctx context.Context, projectID, itemID uuid.UUID, status ItemStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE memory_items SET status = $3, updated_at = now() WHERE project_id = $1 AND id = $2
	`, projectID, itemID, status)
	if err != nil {
		return apperrors.Internal("set item status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("memory item not found")
	}
	return nil
}

// SetPinned toggles the pin flag.
func (r *ItemRepo) SetPinned(ctx context.Context, projectID, itemID uuid.UUID, pinned bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE memory_items SET pinned = $3, updated_at = now() WHERE project_id = $1 AND id = $2
	`, projectID, itemID, pinned)
	if err != nil {
		return apperrors.Internal("set item pinned", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("memory item not found")
	}
	return nil
}
