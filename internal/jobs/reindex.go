package jobs

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bgconley/memento/internal/config"
	"github.com/bgconley/memento/internal/embed"
	apperrors "github.com/bgconley/memento/internal/errors"
	"github.com/bgconley/memento/internal/store"
)

// reindexPayload mirrors the REINDEX_PROFILE payload shape (spec §9):
// {"embedding_profile_id": "<uuid>"}.
type reindexPayload struct {
	EmbeddingProfileID uuid.UUID `json:"embedding_profile_id"`
}

const reindexPageSize = 500

// ReindexHandler rebuilds every chunk embedding under a profile (spec
// §4.8), paginating the project's chunks by ascending id so the whole
// project is never held in memory at once.
type ReindexHandler struct {
	pool    *pgxpool.Pool
	cfg     config.EmbedderConfig
	builder embed.BuildOptions
	log     zerolog.Logger
}

func NewReindexHandler(pool *pgxpool.Pool, cfg config.EmbedderConfig, builder embed.BuildOptions, log zerolog.Logger) *ReindexHandler {
	return &ReindexHandler{pool: pool, cfg: cfg, builder: builder, log: log}
}

func (h *ReindexHandler) Handle(ctx context.Context, event store.OutboxEvent) error {
	var p reindexPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return apperrors.Validation("decode reindex payload").WithDetail("cause", err.Error())
	}

	chunkRepo := store.NewChunkRepo(h.pool)
	embeddings := store.NewChunkEmbeddingRepo(h.pool)

	// The payload carries only a profile id; the profile's own project_id
	// scopes every page and delete that follows.
	profile, err := h.lookupProfile(ctx, p.EmbeddingProfileID)
	if err != nil {
		return err
	}

	embedder, err := embed.New(profile.Provider, profile.Model, profile.Dims, profile.ProviderConfig, h.builder)
	if err != nil {
		return err
	}

	after := uuid.Nil
	firstPage := true
	total := 0
	for {
		page, err := chunkRepo.PageByProject(ctx, profile.ProjectID, after, reindexPageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			if firstPage {
				if err := embeddings.DeleteForProfile(ctx, profile.ProjectID, profile.ID); err != nil {
					return err
				}
				h.log.Debug().Str("profile_id", profile.ID.String()).Msg("reindex found no chunks, cleared stale embeddings")
			}
			break
		}
		firstPage = false

		vectors, err := h.embedPage(ctx, embedder, profile, page)
		if err != nil {
			return err
		}
		if err := h.upsertPage(ctx, profile, vectors); err != nil {
			return err
		}
		total += len(page)
		after = page[len(page)-1].ID

		if len(page) < reindexPageSize {
			break
		}
	}

	h.log.Debug().Str("profile_id", profile.ID.String()).Int("chunk_count", total).Msg("reindexed profile")
	return nil
}

// lookupProfile looks up a profile by id alone: ProfileRepo.Get requires a
// project_id to scope the query, but the reindex payload carries only a
// profile id. This is the one place in the handler that queries without
// that scope; every call after this reads project_id back off the result.
func (h *ReindexHandler) lookupProfile(ctx context.Context, profileID uuid.UUID) (*store.EmbeddingProfile, error) {
	var p store.EmbeddingProfile
	err := h.pool.QueryRow(ctx, `
		SELECT id, project_id, name, provider, model, dims, distance, is_active, provider_config
		FROM embedding_profiles WHERE id = $1
	`, profileID).Scan(&p.ID, &p.ProjectID, &p.Name, &p.Provider, &p.Model, &p.Dims, &p.Distance, &p.IsActive, &p.ProviderConfig)
	if err != nil {
		return nil, apperrors.NotFound("embedding profile not found").WithDetail("profile_id", profileID.String())
	}
	return &p, nil
}

// embedPage embeds one page using the same batch/concurrency model as the
// embed job (spec §4.8: "same concurrency model as the embed job"), keyed
// by chunk id so the caller can upsert regardless of batch completion order.
func (h *ReindexHandler) embedPage(ctx context.Context, embedder embed.Embedder, profile *store.EmbeddingProfile, page []store.MemoryChunk) (map[uuid.UUID][]float32, error) {
	batchSize := h.cfg.BatchSize
	batches := make([][]store.MemoryChunk, 0, (len(page)+batchSize-1)/batchSize)
	for start := 0; start < len(page); start += batchSize {
		end := start + batchSize
		if end > len(page) {
			end = len(page)
		}
		batches = append(batches, page[start:end])
	}

	type batchResult struct {
		chunkIDs []uuid.UUID
		vectors  [][]float32
	}
	results := make([]batchResult, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.Concurrency)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			texts := make([]string, len(batch))
			ids := make([]uuid.UUID, len(batch))
			for j, c := range batch {
				texts[j] = c.ChunkText
				ids[j] = c.ID
			}
			res, err := embedder.Embed(gctx, texts, embed.InputTypePassage)
			if err != nil {
				return err
			}
			if err := validateEmbedResult(res, profile.Dims, len(batch)); err != nil {
				return err
			}
			results[i] = batchResult{chunkIDs: ids, vectors: res.Vectors}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID][]float32, len(page))
	for _, r := range results {
		for j, id := range r.chunkIDs {
			out[id] = r.vectors[j]
		}
	}
	return out, nil
}

func (h *ReindexHandler) upsertPage(ctx context.Context, profile *store.EmbeddingProfile, vectors map[uuid.UUID][]float32) error {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return apperrors.Internal("begin reindex upsert transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := store.NewChunkEmbeddingRepo(tx).UpsertBatch(ctx, profile.ProjectID, profile.ID, vectors); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperrors.Internal("commit reindex upsert transaction", err)
	}
	committed = true
	return nil
}
