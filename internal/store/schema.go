package store

import "context"

// schemaDDL creates every extension, table, and index the engine needs.
// It is idempotent: every statement uses IF NOT EXISTS so Migrate can run
// on every process start without a separate migration-tracking table,
// following the teacher's Migrate() convention.
const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS workspaces (
  id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  name       TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS projects (
  id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  workspace_id UUID NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
  project_key  TEXT NOT NULL,
  display_name TEXT NOT NULL,
  repo_url     TEXT,
  status       TEXT NOT NULL DEFAULT 'active',
  UNIQUE (workspace_id, project_key)
);

CREATE TABLE IF NOT EXISTS memory_items (
  id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  project_id    UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  scope         TEXT NOT NULL DEFAULT 'project',
  kind          TEXT NOT NULL,
  canonical_key TEXT,
  doc_class     TEXT,
  title         TEXT NOT NULL,
  pinned        BOOLEAN NOT NULL DEFAULT false,
  status        TEXT NOT NULL DEFAULT 'active',
  tags          TEXT[] NOT NULL DEFAULT '{}',
  metadata      JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS memory_items_project_canonical_key_uidx
  ON memory_items (project_id, canonical_key) WHERE canonical_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS memory_items_project_status_idx
  ON memory_items (project_id, status);

CREATE TABLE IF NOT EXISTS commits (
  id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  project_id      UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  session_id      TEXT,
  idempotency_key TEXT NOT NULL,
  author          TEXT,
  summary         TEXT,
  created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (project_id, idempotency_key)
);

CREATE TABLE IF NOT EXISTS memory_versions (
  id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  project_id     UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  item_id        UUID NOT NULL REFERENCES memory_items(id) ON DELETE CASCADE,
  commit_id      UUID REFERENCES commits(id) ON DELETE SET NULL,
  version_num    INT NOT NULL,
  content_format TEXT NOT NULL DEFAULT 'markdown',
  content_text   TEXT NOT NULL DEFAULT '',
  content_json   JSONB,
  checksum       TEXT NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (item_id, version_num)
);

CREATE INDEX IF NOT EXISTS memory_versions_commit_idx ON memory_versions (commit_id);

CREATE TABLE IF NOT EXISTS memory_chunks (
  id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  project_id     UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  version_id     UUID NOT NULL REFERENCES memory_versions(id) ON DELETE CASCADE,
  chunk_index    INT NOT NULL,
  chunk_text     TEXT NOT NULL,
  heading_path   TEXT[] NOT NULL DEFAULT '{}',
  section_anchor TEXT,
  start_char     INT NOT NULL,
  end_char       INT NOT NULL,
  tsv            tsvector GENERATED ALWAYS AS (to_tsvector('english', chunk_text)) STORED,
  UNIQUE (version_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS memory_chunks_tsv_gin ON memory_chunks USING GIN (tsv);
CREATE INDEX IF NOT EXISTS memory_chunks_trgm_gin ON memory_chunks USING GIN (chunk_text gin_trgm_ops);
CREATE INDEX IF NOT EXISTS memory_chunks_project_idx ON memory_chunks (project_id);
CREATE INDEX IF NOT EXISTS memory_chunks_version_idx ON memory_chunks (version_id);

CREATE TABLE IF NOT EXISTS embedding_profiles (
  id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  project_id      UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  provider        TEXT NOT NULL,
  model           TEXT NOT NULL,
  dims            INT NOT NULL,
  distance        TEXT NOT NULL DEFAULT 'cosine',
  is_active       BOOLEAN NOT NULL DEFAULT false,
  provider_config JSONB NOT NULL DEFAULT '{}'::jsonb,
  UNIQUE (project_id, name)
);

CREATE UNIQUE INDEX IF NOT EXISTS embedding_profiles_one_active_uidx
  ON embedding_profiles (project_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS chunk_embeddings (
  chunk_id            UUID NOT NULL REFERENCES memory_chunks(id) ON DELETE CASCADE,
  embedding_profile_id UUID NOT NULL REFERENCES embedding_profiles(id) ON DELETE CASCADE,
  project_id          UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  embedding_vector    vector NOT NULL,
  PRIMARY KEY (chunk_id, embedding_profile_id)
);

CREATE INDEX IF NOT EXISTS chunk_embeddings_profile_idx
  ON chunk_embeddings (embedding_profile_id);

CREATE TABLE IF NOT EXISTS memory_links (
  id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  project_id   UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  from_item_id UUID NOT NULL REFERENCES memory_items(id) ON DELETE CASCADE,
  to_item_id   UUID NOT NULL REFERENCES memory_items(id) ON DELETE CASCADE,
  relation     TEXT NOT NULL,
  weight       DOUBLE PRECISION NOT NULL DEFAULT 1.0,
  metadata     JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS memory_links_from_idx ON memory_links (from_item_id);
CREATE INDEX IF NOT EXISTS memory_links_to_idx ON memory_links (to_item_id);

CREATE TABLE IF NOT EXISTS outbox_events (
  id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  project_id       UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  event_type       TEXT NOT NULL,
  payload          JSONB NOT NULL,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  processed_at     TIMESTAMPTZ,
  retry_count      INT NOT NULL DEFAULT 0,
  next_attempt_at  TIMESTAMPTZ,
  locked_by        TEXT,
  lease_expires_at TIMESTAMPTZ,
  error            TEXT
);

CREATE INDEX IF NOT EXISTS outbox_events_claimable_idx
  ON outbox_events (created_at)
  WHERE processed_at IS NULL;
`

// Migrate applies the schema. It is safe to call on every process start.
func Migrate(ctx context.Context, pool *Pool) error {
	_, err := pool.Exec(ctx, schemaDDL)
	return err
}
