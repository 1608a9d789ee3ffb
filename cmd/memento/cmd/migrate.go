package cmd

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bgconley/memento/internal/config"
	"github.com/bgconley/memento/internal/index"
	"github.com/bgconley/memento/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema and ensure ANN indexes for existing embedding profiles",
		Long: `migrate runs the schema DDL (idempotent, safe on every deploy) and then
ensures every existing embedding profile's HNSW index matches its current
(dims, distance) and the configured build parameters, creating or
recreating it as needed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context())
		},
	}
}

func runMigrate(ctx context.Context) error {
	log := rootLogger("migrate")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pool, err := store.Open(ctx, store.PoolConfig{
		DSN:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		return err
	}
	log.Info().Msg("schema migrated")

	profiles, err := listAllProfiles(ctx, pool)
	if err != nil {
		return err
	}

	mgr := index.NewManager(pool.Pool, log, cfg.Search.SkipIndexBuild)
	for _, p := range profiles {
		if err := mgr.Ensure(ctx, &p, index.HNSWParams{}); err != nil {
			return err
		}
		log.Info().Str("profile_id", p.ID.String()).Str("profile_name", p.Name).Msg("ann index ensured")
	}
	return nil
}

// listAllProfiles fetches every embedding profile across every project.
// internal/store's ProfileRepo is intentionally project-scoped (every
// other caller operates within one project); migrate is the one caller
// that legitimately needs a cross-project view, so it queries directly
// rather than adding an unscoped method to the shared repo.
func listAllProfiles(ctx context.Context, pool *store.Pool) ([]store.EmbeddingProfile, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, project_id, name, provider, model, dims, distance, is_active, provider_config
		FROM embedding_profiles
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.EmbeddingProfile
	for rows.Next() {
		var p store.EmbeddingProfile
		var id, projectID uuid.UUID
		if err := rows.Scan(&id, &projectID, &p.Name, &p.Provider, &p.Model, &p.Dims, &p.Distance, &p.IsActive, &p.ProviderConfig); err != nil {
			return nil, err
		}
		p.ID = id
		p.ProjectID = projectID
		out = append(out, p)
	}
	return out, rows.Err()
}
