// Package worker implements the single-threaded cooperative polling loop
// that drains the outbox: claim a batch, dispatch each event by type to a
// registered handler, finalize success or failure, sleep when idle, and
// emit periodic metrics. Multiple worker processes coordinate exclusively
// through the outbox's lease predicate (internal/outbox), never through
// shared memory.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bgconley/memento/internal/config"
	"github.com/bgconley/memento/internal/outbox"
	"github.com/bgconley/memento/internal/store"
)

// Handler processes one outbox event's payload. A returned error causes a
// failure-finalize (retry or dead-letter); a nil return finalizes success.
type Handler func(ctx context.Context, event store.OutboxEvent) error

// Worker polls the outbox and dispatches events by type.
type Worker struct {
	id       string
	pool     *pgxpool.Pool
	cfg      config.OutboxConfig
	log      zerolog.Logger
	handlers map[store.OutboxEventType]Handler

	processed uint64
	errored   uint64
	startedAt time.Time
}

// New constructs a Worker with a random id (so two processes on the same
// host never collide as lease owners) and no registered handlers; call
// Register for each event type before Run.
func New(pool *pgxpool.Pool, cfg config.OutboxConfig, log zerolog.Logger) *Worker {
	return &Worker{
		id:       uuid.NewString(),
		pool:     pool,
		cfg:      cfg,
		log:      log,
		handlers: make(map[store.OutboxEventType]Handler),
	}
}

// Register binds a handler to an event type. Calling Register twice for the
// same type replaces the handler.
func (w *Worker) Register(eventType store.OutboxEventType, h Handler) {
	w.handlers[eventType] = h
}

// Run polls until ctx is canceled. Shutdown is cooperative: a cancellation
// observed between batches stops the loop; a cancellation observed mid
// batch still lets every claimed event in the batch run and finalize
// before returning, so no event is left half-claimed.
func (w *Worker) Run(ctx context.Context) error {
	w.startedAt = time.Now()
	w.log.Info().Str("worker_id", w.id).Dur("poll_interval", w.cfg.PollInterval).Msg("worker starting")

	metricsTicker := time.NewTicker(w.cfg.MetricsInterval)
	defer metricsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Str("worker_id", w.id).Msg("worker stopping")
			return nil
		case <-metricsTicker.C:
			w.logMetrics()
		default:
		}

		n, err := w.pollOnce(ctx)
		if err != nil {
			w.log.Error().Err(err).Str("worker_id", w.id).Msg("poll failed")
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				w.log.Info().Str("worker_id", w.id).Msg("worker stopping")
				return nil
			case <-time.After(w.cfg.PollInterval):
			}
		}
	}
}

func (w *Worker) logMetrics() {
	w.log.Info().
		Str("worker_id", w.id).
		Uint64("processed", w.processed).
		Uint64("errors", w.errored).
		Dur("uptime", time.Since(w.startedAt)).
		Msg("worker metrics")
}

// pollOnce claims a batch and runs every event to completion, returning the
// number of events claimed so Run knows whether to sleep.
func (w *Worker) pollOnce(ctx context.Context) (int, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	box := outbox.New(tx)
	events, err := box.Claim(ctx, w.id, w.cfg.BatchSize, w.cfg.LeaseSeconds, nil)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	committed = true

	// Claimed events run to completion even if ctx is canceled meanwhile.
	batchCtx := context.WithoutCancel(ctx)
	for _, ev := range events {
		w.handle(batchCtx, ev)
	}
	return len(events), nil
}

func (w *Worker) handle(ctx context.Context, ev store.OutboxEvent) {
	handler, ok := w.handlers[ev.EventType]
	box := outbox.New(w.pool)

	var handleErr error
	if !ok {
		handleErr = unknownEventTypeError(ev.EventType)
	} else {
		handleErr = handler(ctx, ev)
	}

	if handleErr == nil {
		matched, err := box.FinalizeSuccess(ctx, ev.ID, w.id)
		if err != nil {
			w.log.Error().Err(err).Str("event_id", ev.ID.String()).Msg("finalize success failed")
			return
		}
		if matched {
			w.processed++
		}
		return
	}

	w.errored++
	result, err := box.FinalizeFailure(ctx, ev.ID, w.id, handleErr.Error(),
		w.cfg.MaxAttempts,
		time.Duration(w.cfg.RetryDelaySeconds)*time.Second,
		time.Duration(w.cfg.RetryMaxDelay)*time.Second,
	)
	if err != nil {
		w.log.Error().Err(err).Str("event_id", ev.ID.String()).Msg("finalize failure failed")
		return
	}
	if result.DeadLettered {
		w.log.Error().Str("event_id", ev.ID.String()).Str("event_type", string(ev.EventType)).Err(handleErr).Msg("event dead-lettered")
	} else {
		w.log.Warn().Str("event_id", ev.ID.String()).Str("event_type", string(ev.EventType)).Err(handleErr).Msg("event failed, will retry")
	}
}

type unknownEventTypeError store.OutboxEventType

func (e unknownEventTypeError) Error() string {
	return "unknown outbox event type: " + string(e)
}
