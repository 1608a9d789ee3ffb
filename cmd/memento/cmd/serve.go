package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bgconley/memento/internal/config"
	"github.com/bgconley/memento/internal/embed"
	apperrors "github.com/bgconley/memento/internal/errors"
	"github.com/bgconley/memento/internal/jobs"
	"github.com/bgconley/memento/internal/store"
	"github.com/bgconley/memento/internal/worker"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the outbox worker and health endpoint",
		Long: `serve starts the lease-based outbox worker that drains INGEST_VERSION,
EMBED_VERSION, and REINDEX_PROFILE events, alongside a minimal HTTP health
endpoint. It runs until interrupted (SIGINT/SIGTERM).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "http-addr", envOr("HTTP_ADDR", ":8080"), "address for the health endpoint")
	return cmd
}

func runServe(ctx context.Context, httpAddr string) error {
	log := rootLogger("serve")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	breaker := apperrors.NewCircuitBreaker("embedder")
	builder := embed.BuildOptions{
		UseFake:        cfg.Embedder.UseFake,
		DefaultBaseURL: cfg.Embedder.BaseURL,
		DefaultAPIKey:  cfg.Embedder.APIKey,
		Breaker:        breaker,
	}

	w := worker.New(pool.Pool, cfg.Outbox, log.With().Str("subcomponent", "worker").Logger())
	w.Register(store.EventIngestVersion, jobs.NewIngestHandler(pool.Pool, log.With().Str("subcomponent", "ingest").Logger()).Handle)
	w.Register(store.EventEmbedVersion, jobs.NewEmbedHandler(pool.Pool, cfg.Embedder, cfg.Contextual, builder, log.With().Str("subcomponent", "embed").Logger()).Handle)
	w.Register(store.EventReindexProfile, jobs.NewReindexHandler(pool.Pool, cfg.Embedder, builder, log.With().Str("subcomponent", "reindex").Logger()).Handle)

	srv := &http.Server{
		Addr:    httpAddr,
		Handler: healthMux(pool),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpAddr).Msg("health endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	workerErrCh := make(chan error, 1)
	workerDone := false
	go func() { workerErrCh <- w.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("health endpoint failed")
		stop()
	case err := <-workerErrCh:
		workerDone = true
		if err != nil {
			log.Error().Err(err).Msg("worker stopped with error")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("health endpoint shutdown error")
	}
	if !workerDone {
		<-workerErrCh
	}
	return nil
}

func healthMux(pool *store.Pool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
