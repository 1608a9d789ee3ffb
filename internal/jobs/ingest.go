// Package jobs implements the worker.Handler functions bound to each
// outbox event type: ingest chunks a version's content, embed produces
// vectors for those chunks, and reindex rebuilds embeddings for an entire
// project under a profile. Each handler is self-contained so worker.Worker
// can retry or dead-letter it without coordinating with the others.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bgconley/memento/internal/chunker"
	apperrors "github.com/bgconley/memento/internal/errors"
	"github.com/bgconley/memento/internal/store"
)

// ingestPayload mirrors the commit coordinator's INGEST_VERSION payload
// shape (spec §9): {"version_id": "<uuid>"}.
type ingestPayload struct {
	VersionID uuid.UUID `json:"version_id"`
}

// IngestHandler rebuilds a version's chunks (spec §4.6): normalize content
// to markdown, chunk it with overlap disabled for canonical doc classes,
// and atomically replace the version's chunk rows.
type IngestHandler struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewIngestHandler(pool *pgxpool.Pool, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{pool: pool, log: log}
}

func (h *IngestHandler) Handle(ctx context.Context, event store.OutboxEvent) error {
	var p ingestPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return apperrors.Validation("decode ingest payload").WithDetail("cause", err.Error())
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return apperrors.Internal("begin ingest transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	versions := store.NewVersionRepo(tx)
	items := store.NewItemRepo(tx)
	chunks := store.NewChunkRepo(tx)

	version, err := versions.Get(ctx, p.VersionID)
	if err != nil {
		return err
	}
	item, err := items.Get(ctx, version.ProjectID, version.ItemID)
	if err != nil {
		return err
	}

	content, err := normalizeToMarkdown(version)
	if err != nil {
		return err
	}

	opts := chunker.Defaults()
	if item.DocClass != nil && store.CanonicalDocClasses[*item.DocClass] {
		opts.DisableOverlap = true
	}

	parsed := chunker.Chunk(content, opts)
	rows := make([]store.MemoryChunk, len(parsed))
	for i, c := range parsed {
		anchor := c.SectionAnchor
		rows[i] = store.MemoryChunk{
			ChunkIndex:    c.Index,
			ChunkText:     c.Text,
			HeadingPath:   c.HeadingPath,
			SectionAnchor: &anchor,
			StartChar:     c.Start,
			EndChar:       c.End,
		}
	}

	if _, err := chunks.ReplaceForVersion(ctx, version.ProjectID, version.ID, rows); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Internal("commit ingest transaction", err)
	}
	committed = true

	h.log.Debug().
		Str("version_id", version.ID.String()).
		Int("chunk_count", len(rows)).
		Msg("ingested version")
	return nil
}

// normalizeToMarkdown applies spec §4.6's content normalization: markdown
// and plain text pass through as-is; json content with empty content_text
// is pretty-printed from content_json.
func normalizeToMarkdown(v *store.MemoryVersion) (string, error) {
	if v.ContentFormat != store.ContentFormatJSON {
		return v.ContentText, nil
	}
	if v.ContentText != "" {
		return v.ContentText, nil
	}
	if len(v.ContentJSON) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, v.ContentJSON, "", "  "); err != nil {
		return "", apperrors.Internal("pretty-print json content", err)
	}
	return buf.String(), nil
}
