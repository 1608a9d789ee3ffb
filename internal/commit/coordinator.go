// Package commit implements the commit coordinator (spec §4.1): the single
// atomic entry point that upserts items, inserts immutable versions,
// emits the outbox events that drive ingestion and embedding, and resolves
// links — all inside one transaction so the transactional-outbox guarantee
// holds (an aborted commit never leaves a stray outbox event behind).
package commit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/bgconley/memento/internal/errors"
	"github.com/bgconley/memento/internal/outbox"
	"github.com/bgconley/memento/internal/store"
)

// docClassKind is the closed doc_class -> kind mapping canonical upsert
// uses to infer an item's kind when the caller does not supply one
// (spec §4.1's "infers kind from doc_class using a closed mapping").
var docClassKind = map[store.DocClass]string{
	store.DocClassAppSpec:            "spec",
	store.DocClassFeatureSpec:        "spec",
	store.DocClassImplementationPlan: "plan",
}

// LinkRequest describes one link to resolve and insert after versions are
// written. To is either an item_id (parseable as a UUID) or a canonical_key,
// resolved against the project.
type LinkRequest struct {
	To       string
	Relation string
	Weight   float64
	Metadata json.RawMessage
}

// Entry is one item+version write within a single commit call. Exactly one
// of ItemID or CanonicalKey identifies the target item; when neither is
// set a new item is inserted.
type Entry struct {
	ItemID       *uuid.UUID
	CanonicalKey *string
	Scope        store.Scope
	Kind         string
	DocClass     *store.DocClass
	Title        string
	Pinned       *bool
	Tags         []string
	Metadata     json.RawMessage

	ContentFormat store.ContentFormat
	ContentText   string
	ContentJSON   json.RawMessage

	Links []LinkRequest
}

// resolveKind fills Kind from the closed doc_class mapping when the caller
// left it blank and a doc_class was supplied, matching canonical upsert's
// inference rule.
func (e Entry) resolveKind() string {
	if e.Kind != "" {
		return e.Kind
	}
	if e.DocClass != nil {
		if k, ok := docClassKind[*e.DocClass]; ok {
			return k
		}
	}
	return e.Kind
}

// ItemVersion is one produced (item, version) pair.
type ItemVersion struct {
	ItemID     uuid.UUID
	VersionID  uuid.UUID
	VersionNum int
}

// Result is what Commit returns, whether freshly written or deduped.
type Result struct {
	CommitID uuid.UUID
	Items    []ItemVersion
	Deduped  bool
}

// Coordinator wires the commit operation against a pgx pool.
type Coordinator struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Coordinator { return &Coordinator{pool: pool} }

// Commit performs spec §4.1's atomic multi-entry write. toolPrefix
// namespaces idempotencyKey (spec §9's "idempotency via scoped keys") so
// the same raw key reused by a different tool never collides. projectID is
// the project every entry and link must belong to.
func (c *Coordinator) Commit(ctx context.Context, projectID uuid.UUID, toolPrefix, idempotencyKey string, entries []Entry, sessionID, author, summary *string) (*Result, error) {
	if toolPrefix == "" || idempotencyKey == "" {
		return nil, apperrors.Validation("idempotency key and tool prefix are required")
	}
	scopedKey := toolPrefix + ":" + idempotencyKey

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.Internal("begin commit transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	commits := store.NewCommitRepo(tx)
	versions := store.NewVersionRepo(tx)

	existing, err := commits.GetByIdempotencyKey(ctx, projectID, scopedKey)
	if err == nil {
		// Dedup: return the original result untouched — no comparison is
		// made against the new entries, per spec §4.1 step 1.
		produced, err := versions.ByCommit(ctx, projectID, existing.ID)
		if err != nil {
			return nil, err
		}
		res := &Result{CommitID: existing.ID, Deduped: true}
		for _, v := range produced {
			res.Items = append(res.Items, ItemVersion{ItemID: v.ItemID, VersionID: v.ID, VersionNum: v.VersionNum})
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, apperrors.Internal("commit dedup read", err)
		}
		committed = true
		return res, nil
	}
	if apperrors.KindOf(err) != apperrors.KindNotFound {
		return nil, err
	}

	commitRow, err := commits.Insert(ctx, projectID, sessionID, scopedKey, author, summary)
	if err != nil {
		return nil, err
	}

	items := store.NewItemRepo(tx)
	box := outbox.New(tx)
	links := store.NewLinkRepo(tx)

	res := &Result{CommitID: commitRow.ID}
	// itemIDByCanonicalKey lets link resolution address items written
	// earlier in the same commit by canonical_key before they are visible
	// to a fresh SELECT within this same transaction's own writes.
	itemIDByCanonicalKey := map[string]uuid.UUID{}
	var pendingLinks []resolvedLinkRequest

	for _, e := range entries {
		item, err := c.upsertItem(ctx, items, projectID, e)
		if err != nil {
			return nil, err
		}
		if e.CanonicalKey != nil {
			itemIDByCanonicalKey[*e.CanonicalKey] = item.ID
		}

		v, err := versions.InsertNext(ctx, projectID, item.ID, &commitRow.ID, e.ContentFormat, e.ContentText, e.ContentJSON)
		if err != nil {
			return nil, err
		}

		if _, err := box.Emit(ctx, projectID, store.EventIngestVersion, ingestPayload{VersionID: v.ID}); err != nil {
			return nil, err
		}
		if _, err := box.Emit(ctx, projectID, store.EventEmbedVersion, embedPayload{VersionID: v.ID}); err != nil {
			return nil, err
		}

		res.Items = append(res.Items, ItemVersion{ItemID: item.ID, VersionID: v.ID, VersionNum: v.VersionNum})

		for _, l := range e.Links {
			pendingLinks = append(pendingLinks, resolvedLinkRequest{from: item.ID, req: l})
		}
	}

	for _, pl := range pendingLinks {
		toID, err := resolveLinkTarget(ctx, items, projectID, pl.req.To, itemIDByCanonicalKey)
		if err != nil {
			return nil, err
		}
		if _, err := links.Insert(ctx, projectID, pl.from, toID, pl.req.Relation, weightOrDefault(pl.req.Weight), pl.req.Metadata); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.Internal("commit transaction", err)
	}
	committed = true
	return res, nil
}

type resolvedLinkRequest struct {
	from uuid.UUID
	req  LinkRequest
}

func weightOrDefault(w float64) float64 {
	if w == 0 {
		return 1.0
	}
	return w
}

type ingestPayload struct {
	VersionID uuid.UUID `json:"version_id"`
}

type embedPayload struct {
	VersionID          uuid.UUID  `json:"version_id"`
	EmbeddingProfileID *uuid.UUID `json:"embedding_profile_id,omitempty"`
}

// upsertItem dispatches to the item-resolution strategy spec §4.1 step 2
// names: explicit item_id, else canonical_key (COALESCE-merge upsert), else
// a fresh insert.
func (c *Coordinator) upsertItem(ctx context.Context, items *store.ItemRepo, projectID uuid.UUID, e Entry) (*store.MemoryItem, error) {
	write := store.ItemWrite{
		ProjectID:    projectID,
		Scope:        e.Scope,
		Kind:         e.resolveKind(),
		CanonicalKey: e.CanonicalKey,
		DocClass:     e.DocClass,
		Title:        e.Title,
		Pinned:       e.Pinned,
		Tags:         e.Tags,
		Metadata:     e.Metadata,
	}

	switch {
	case e.ItemID != nil:
		return items.Get(ctx, projectID, *e.ItemID)
	case e.CanonicalKey != nil && *e.CanonicalKey != "":
		return items.UpsertByCanonicalKey(ctx, write)
	default:
		return items.Insert(ctx, write)
	}
}

// resolveLinkTarget resolves a link's "to" field: a UUID is taken as an
// item_id (verified same project via Get), anything else is looked up as a
// canonical_key — first against items just written in this commit, then
// against the store.
func resolveLinkTarget(ctx context.Context, items *store.ItemRepo, projectID uuid.UUID, to string, freshlyWritten map[string]uuid.UUID) (uuid.UUID, error) {
	if id, err := uuid.Parse(to); err == nil {
		item, err := items.Get(ctx, projectID, id)
		if err != nil {
			return uuid.Nil, err
		}
		return item.ID, nil
	}
	if id, ok := freshlyWritten[to]; ok {
		return id, nil
	}
	item, err := items.GetByCanonicalKey(ctx, projectID, to)
	if err != nil {
		return uuid.Nil, err
	}
	return item.ID, nil
}
