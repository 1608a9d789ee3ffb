package jobs

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bgconley/memento/internal/config"
	"github.com/bgconley/memento/internal/embed"
	apperrors "github.com/bgconley/memento/internal/errors"
	"github.com/bgconley/memento/internal/store"
)

// embedPayload mirrors the commit coordinator's EMBED_VERSION payload
// shape (spec §9): {"version_id": "<uuid>", "embedding_profile_id"?: "<uuid>"}.
type embedPayload struct {
	VersionID          uuid.UUID  `json:"version_id"`
	EmbeddingProfileID *uuid.UUID `json:"embedding_profile_id,omitempty"`
}

// EmbedHandler produces chunk vectors for a version under one embedding
// profile (spec §4.7): contextual whole-document embedding when eligible,
// falling back to independently batched calls otherwise.
type EmbedHandler struct {
	pool     *pgxpool.Pool
	embedder config.EmbedderConfig
	ctxual   config.ContextualConfig
	builder  embed.BuildOptions
	log      zerolog.Logger
}

func NewEmbedHandler(pool *pgxpool.Pool, embedderCfg config.EmbedderConfig, ctxualCfg config.ContextualConfig, builder embed.BuildOptions, log zerolog.Logger) *EmbedHandler {
	return &EmbedHandler{pool: pool, embedder: embedderCfg, ctxual: ctxualCfg, builder: builder, log: log}
}

func (h *EmbedHandler) Handle(ctx context.Context, event store.OutboxEvent) error {
	var p embedPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return apperrors.Validation("decode embed payload").WithDetail("cause", err.Error())
	}

	versions := store.NewVersionRepo(h.pool)
	items := store.NewItemRepo(h.pool)
	profiles := store.NewProfileRepo(h.pool)
	chunkRepo := store.NewChunkRepo(h.pool)
	embeddings := store.NewChunkEmbeddingRepo(h.pool)

	version, err := versions.Get(ctx, p.VersionID)
	if err != nil {
		return err
	}
	item, err := items.Get(ctx, version.ProjectID, version.ItemID)
	if err != nil {
		return err
	}

	var profile *store.EmbeddingProfile
	if p.EmbeddingProfileID != nil {
		profile, err = profiles.Get(ctx, version.ProjectID, *p.EmbeddingProfileID)
	} else {
		profile, err = profiles.GetActive(ctx, version.ProjectID)
	}
	if err != nil {
		return err
	}

	chunks, err := chunkRepo.ByVersion(ctx, version.ID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		if err := embeddings.DeleteForVersionProfile(ctx, version.ID, profile.ID); err != nil {
			return err
		}
		h.log.Debug().Str("version_id", version.ID.String()).Msg("no chunks to embed")
		return nil
	}

	embedder, err := embed.New(profile.Provider, profile.Model, profile.Dims, profile.ProviderConfig, h.builder)
	if err != nil {
		return err
	}

	if done, err := h.tryContextual(ctx, embedder, profile, item, version, chunks, embeddings); err != nil {
		return err
	} else if done {
		return nil
	}

	vectors, err := h.embedBatched(ctx, embedder, profile, chunks)
	if err != nil {
		return err
	}
	return h.upsertAll(ctx, profile, vectors)
}

// tryContextual attempts spec §4.7 step 5's whole-document contextual path.
// It returns true only when the attempt was made AND succeeded in writing
// the embeddings; any other outcome (ineligible, or failed and not strict)
// falls through to the caller's batch-mode path. Under strict mode a failed
// contextual call is returned as the error, which becomes the job's error;
// it is returned before any contextual embedding is written.
func (h *EmbedHandler) tryContextual(ctx context.Context, embedder embed.Embedder, profile *store.EmbeddingProfile, item *store.MemoryItem, version *store.MemoryVersion, chunks []store.MemoryChunk, embeddings *store.ChunkEmbeddingRepo) (bool, error) {
	ctxEmbedder, ok := embedder.(embed.ContextualEmbedder)
	if !ok {
		return false, nil
	}
	if item.DocClass == nil || !store.CanonicalDocClasses[*item.DocClass] {
		return false, nil
	}

	maxChars, maxChunks, strict := h.resolveContextualLimits(profile)

	totalChars := 0
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.ChunkText
		totalChars += len(c.ChunkText)
	}
	if totalChars > maxChars || len(chunks) > maxChunks {
		return false, nil
	}

	res, err := ctxEmbedder.EmbedDocumentChunksContextual(ctx, texts, embed.InputTypePassage)
	if err == nil {
		err = validateEmbedResult(res, profile.Dims, len(chunks))
	}
	if err != nil {
		if strict {
			h.log.Error().Err(err).Str("version_id", version.ID.String()).Msg("contextual embedding failed under strict mode")
			return false, err
		}
		h.log.Warn().Err(err).Str("version_id", version.ID.String()).Msg("contextual embedding failed, falling back to batch mode")
		return false, nil
	}

	vectors := make(map[uuid.UUID][]float32, len(chunks))
	for i, c := range chunks {
		vectors[c.ID] = res.Vectors[i]
	}
	if err := h.upsertAll(ctx, profile, vectors); err != nil {
		h.log.Error().Err(err).Str("version_id", version.ID.String()).Msg("upsert contextual embeddings failed")
		return false, nil
	}
	return true, nil
}

// resolveContextualLimits applies spec §4.7 step 5's "configurable per
// profile and per environment" rule: a profile's provider_config may
// override the environment-level contextual guards; any field the profile
// leaves unset falls back to the environment default.
func (h *EmbedHandler) resolveContextualLimits(profile *store.EmbeddingProfile) (maxChars, maxChunks int, strict bool) {
	pc := embed.ParseProviderConfig(profile.ProviderConfig)

	maxChars = h.ctxual.MaxChars
	if pc.ContextualMaxChars > 0 {
		maxChars = pc.ContextualMaxChars
	}
	maxChunks = h.ctxual.MaxChunks
	if pc.ContextualMaxChunks > 0 {
		maxChunks = pc.ContextualMaxChunks
	}
	strict = h.ctxual.Strict
	if pc.ContextualStrict != nil {
		strict = *pc.ContextualStrict
	}
	return maxChars, maxChunks, strict
}

// embedBatched runs spec §4.7 step 6: partition chunks into batches of
// embed_batch_size, embed up to embed_concurrency batches in parallel, and
// reassemble by original index so caller order never depends on which
// batch finished first.
func (h *EmbedHandler) embedBatched(ctx context.Context, embedder embed.Embedder, profile *store.EmbeddingProfile, chunks []store.MemoryChunk) (map[uuid.UUID][]float32, error) {
	batchSize := h.embedder.BatchSize
	type batchResult struct {
		chunkIDs []uuid.UUID
		vectors  [][]float32
	}
	batches := make([][]store.MemoryChunk, 0, (len(chunks)+batchSize-1)/batchSize)
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[start:end])
	}

	results := make([]batchResult, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.embedder.Concurrency)
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

	out := make(map[uuid.UUID][]float32, len(chunks))
	for _, r := range results {
		for j, id := range r.chunkIDs {
			out[id] = r.vectors[j]
		}
	}
	return out, nil
}

func (h *EmbedHandler) upsertAll(ctx context.Context, profile *store.EmbeddingProfile, vectors map[uuid.UUID][]float32) error {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return apperrors.Internal("begin embed upsert transaction", err)
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
		return apperrors.Internal("commit embed upsert transaction", err)
	}
	committed = true
	return nil
}

// validateEmbedResult enforces spec §4.7's response validation: dimensions
// must equal the profile's declared dims, and vector count must equal the
// number of texts submitted.
func validateEmbedResult(res embed.Result, expectedDims, expectedCount int) error {
	if len(res.Vectors) != expectedCount {
		return apperrors.Unavailable("embedder returned wrong vector count").
			WithDetail("expected", strconv.Itoa(expectedCount)).WithDetail("got", strconv.Itoa(len(res.Vectors)))
	}
	if res.Dimensions != expectedDims {
		return apperrors.Unavailable("embedder returned wrong dimensions").
			WithDetail("expected", strconv.Itoa(expectedDims)).WithDetail("got", strconv.Itoa(res.Dimensions))
	}
	for _, v := range res.Vectors {
		if len(v) != expectedDims {
			return apperrors.Unavailable("embedder returned a vector of unexpected length").
				WithDetail("expected", strconv.Itoa(expectedDims)).WithDetail("got", strconv.Itoa(len(v)))
		}
	}
	return nil
}
