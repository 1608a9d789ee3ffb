// Package store provides typed access to memento's relational storage:
// workspaces, projects, memory items and their versions, chunks and
// embeddings, links, commits, and embedding profiles. It is the only
// package that issues SQL against the project's Postgres database.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Scope is where a memory item is visible from.
type Scope string

const (
	ScopeProject        Scope = "project"
	ScopeWorkspaceShared Scope = "workspace_shared"
	ScopeGlobal          Scope = "global"
)

// ItemStatus is the lifecycle state of a MemoryItem. Only active items
// surface in search; items are never physically deleted by the core.
type ItemStatus string

const (
	ItemStatusActive   ItemStatus = "active"
	ItemStatusArchived ItemStatus = "archived"
	ItemStatusDeleted  ItemStatus = "deleted"
)

// ContentFormat is the encoding of a MemoryVersion's content_text.
type ContentFormat string

const (
	ContentFormatMarkdown ContentFormat = "markdown"
	ContentFormatPlain    ContentFormat = "plain"
	ContentFormatJSON     ContentFormat = "json"
)

// Distance is the vector distance metric an EmbeddingProfile searches with.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceL2     Distance = "l2"
	DistanceIP     Distance = "ip"
)

// DocClass is the closed canonical-document taxonomy. Canonical upsert
// infers Kind from DocClass via this closed mapping, and overlap is
// disabled for these classes during chunking.
type DocClass string

const (
	DocClassAppSpec            DocClass = "app_spec"
	DocClassFeatureSpec        DocClass = "feature_spec"
	DocClassImplementationPlan DocClass = "implementation_plan"
)

// CanonicalDocClasses lists the doc classes for which chunk overlap is
// disabled (spec.md §4.2) and contextual whole-document embedding is
// eligible (spec.md §4.7).
var CanonicalDocClasses = map[DocClass]bool{
	DocClassAppSpec:            true,
	DocClassFeatureSpec:        true,
	DocClassImplementationPlan: true,
}

// OutboxEventType is the discriminator for an OutboxEvent's payload shape.
type OutboxEventType string

const (
	EventIngestVersion   OutboxEventType = "INGEST_VERSION"
	EventEmbedVersion    OutboxEventType = "EMBED_VERSION"
	EventReindexProfile  OutboxEventType = "REINDEX_PROFILE"
)

// Workspace groups projects that may share workspace_shared memory items.
type Workspace struct {
	ID   uuid.UUID
	Name string
}

// Project is a single codebase/session scope within a workspace.
type Project struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	ProjectKey  string
	DisplayName string
	RepoURL     *string
	Status      string
}

// MemoryItem is an authored, versioned unit of project memory.
type MemoryItem struct {
	ID           uuid.UUID
	ProjectID    uuid.UUID
	Scope        Scope
	Kind         string
	CanonicalKey *string
	DocClass     *DocClass
	Title        string
	Pinned       bool
	Status       ItemStatus
	Tags         []string
	Metadata     json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MemoryVersion is an immutable snapshot of a MemoryItem's content.
type MemoryVersion struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	ItemID        uuid.UUID
	CommitID      *uuid.UUID
	VersionNum    int
	ContentFormat ContentFormat
	ContentText   string
	ContentJSON   json.RawMessage
	Checksum      string
	CreatedAt     time.Time
}

// Commit groups the versions produced by one idempotent write.
type Commit struct {
	ID             uuid.UUID
	ProjectID      uuid.UUID
	SessionID      *string
	IdempotencyKey string
	Author         *string
	Summary        *string
}

// MemoryChunk is a retrieval-sized slice of a version's text.
type MemoryChunk struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	VersionID     uuid.UUID
	ChunkIndex    int
	ChunkText     string
	HeadingPath   []string
	SectionAnchor *string
	StartChar     int
	EndChar       int
}

// ChunkEmbedding is a chunk's vector under a given embedding profile.
type ChunkEmbedding struct {
	ChunkID           uuid.UUID
	EmbeddingProfileID uuid.UUID
	ProjectID         uuid.UUID
	Vector            []float32
}

// EmbeddingProfile is the (provider, model, dims, distance) tuple plus
// config that determines how embeddings are produced and queried.
type EmbeddingProfile struct {
	ID             uuid.UUID
	ProjectID      uuid.UUID
	Name           string
	Provider       string
	Model          string
	Dims           int
	Distance       Distance
	IsActive       bool
	ProviderConfig json.RawMessage
}

// MemoryLink relates two items within the same project.
type MemoryLink struct {
	ID         uuid.UUID
	ProjectID  uuid.UUID
	FromItemID uuid.UUID
	ToItemID   uuid.UUID
	Relation   string
	Weight     float64
	Metadata   json.RawMessage
	CreatedAt  time.Time
}

// OutboxEvent is a durable work item recorded in the same transaction as
// the write that required it.
type OutboxEvent struct {
	ID             uuid.UUID
	ProjectID      uuid.UUID
	EventType      OutboxEventType
	Payload        json.RawMessage
	CreatedAt      time.Time
	ProcessedAt    *time.Time
	RetryCount     int
	NextAttemptAt  *time.Time
	LockedBy       *string
	LeaseExpiresAt *time.Time
	Error          *string
}

// Terminal reports whether the event has reached a final state (success or
// dead-letter). Success vs dead-letter is distinguished by Error being nil.
func (e *OutboxEvent) Terminal() bool { return e.ProcessedAt != nil }

// DeadLettered reports whether a terminal event failed permanently.
func (e *OutboxEvent) DeadLettered() bool { return e.Terminal() && e.Error != nil }

// DBTX is the subset of pgx used by repositories, satisfied by both
// *pgxpool.Pool and pgx.Tx so repository methods work identically inside
// and outside an explicit transaction (the commit coordinator runs several
// repository calls inside one pgx.Tx; everything else runs against the pool).
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
