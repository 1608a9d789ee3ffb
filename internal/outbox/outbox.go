// Package outbox implements the lease-based claim/finalize store the
// worker runtime polls: claim locks a batch of claimable events under
// SELECT ... FOR UPDATE SKIP LOCKED, and finalize (success or failure) is
// gated on the caller still holding the lease so a stalled worker can
// never overwrite the result of whoever claimed the event after its lease
// expired.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/bgconley/memento/internal/errors"
	"github.com/bgconley/memento/internal/store"
)

// Store provides claim/finalize access to outbox_events.
type Store struct {
	db store.DBTX
}

func New(db store.DBTX) *Store { return &Store{db: db} }

// Emit inserts a new event in the caller's transaction, so it either
// commits alongside the write that required it or never exists at all.
func (s *Store) Emit(ctx context.Context, projectID uuid.UUID, eventType store.OutboxEventType, payload any) (*store.OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Internal("marshal outbox payload", err)
	}
	var ev store.OutboxEvent
	err = s.db.QueryRow(ctx, `
		INSERT INTO outbox_events (project_id, event_type, payload)
		VALUES ($1,$2,$3)
		RETURNING id, project_id, event_type, payload, created_at, processed_at, retry_count, next_attempt_at, locked_by, lease_expires_at, error
	`, projectID, eventType, raw).Scan(
		&ev.ID, &ev.ProjectID, &ev.EventType, &ev.Payload, &ev.CreatedAt, &ev.ProcessedAt,
		&ev.RetryCount, &ev.NextAttemptAt, &ev.LockedBy, &ev.LeaseExpiresAt, &ev.Error,
	)
	if err != nil {
		return nil, apperrors.Internal("emit outbox event", err)
	}
	return &ev, nil
}

// Claim selects up to batchSize claimable events ordered by created_at
// ascending with SKIP LOCKED semantics, and atomically leases them to
// workerID for leaseSeconds. If projectID is non-nil, claiming is
// restricted to that project. Must be called within a transaction the
// caller commits immediately after (the row locks held by FOR UPDATE are
// released on commit; the lease itself, not the row lock, is what
// subsequent pollers respect).
func (s *Store) Claim(ctx context.Context, workerID string, batchSize int, leaseSeconds int, projectID *uuid.UUID) ([]store.OutboxEvent, error) {
	rows, err := s.db.Query(ctx, `
		WITH claimable AS (
			SELECT id FROM outbox_events
			WHERE processed_at IS NULL
			  AND (lease_expires_at IS NULL OR lease_expires_at < now())
			  AND (next_attempt_at IS NULL OR next_attempt_at <= now())
			  AND ($3::uuid IS NULL OR project_id = $3)
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events
		SET locked_by = $1, lease_expires_at = now() + make_interval(secs => $4)
		WHERE id IN (SELECT id FROM claimable)
		RETURNING id, project_id, event_type, payload, created_at, processed_at, retry_count, next_attempt_at, locked_by, lease_expires_at, error
	`, workerID, batchSize, projectID, leaseSeconds)
	if err != nil {
		return nil, apperrors.Internal("claim outbox batch", err)
	}
	defer rows.Close()

	var out []store.OutboxEvent
	for rows.Next() {
		var ev store.OutboxEvent
		if err := rows.Scan(
			&ev.ID, &ev.ProjectID, &ev.EventType, &ev.Payload, &ev.CreatedAt, &ev.ProcessedAt,
			&ev.RetryCount, &ev.NextAttemptAt, &ev.LockedBy, &ev.LeaseExpiresAt, &ev.Error,
		); err != nil {
			return nil, apperrors.Internal("scan claimed outbox event", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// FinalizeSuccess marks eventID processed, clearing lock and error fields.
// The update is gated on locked_by = workerID AND processed_at IS NULL; the
// returned bool reports whether it matched. false means the lease was
// stolen by another worker after expiry — the caller must not treat this
// as an error, only as "do not re-run side effects".
func (s *Store) FinalizeSuccess(ctx context.Context, eventID uuid.UUID, workerID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE outbox_events
		SET processed_at = now(), error = NULL, locked_by = NULL, lease_expires_at = NULL
		WHERE id = $1 AND locked_by = $2 AND processed_at IS NULL
	`, eventID, workerID)
	if err != nil {
		return false, apperrors.Internal("finalize outbox success", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FinalizeFailureResult reports what FinalizeFailure did so the worker can
// log dead-letters distinctly from ordinary retries.
type FinalizeFailureResult struct {
	Matched      bool
	DeadLettered bool
}

// FinalizeFailure increments retry_count. If it reaches maxAttempts the
// event is marked terminal with error set (dead-letter); otherwise
// next_attempt_at is pushed out by exponential backoff
// (base * 2^(retry_count-1), capped at maxDelay) and the lease is cleared
// so another worker may claim it once that time passes. The update is
// gated on the same lock-owner predicate as FinalizeSuccess.
func (s *Store) FinalizeFailure(ctx context.Context, eventID uuid.UUID, workerID string, errMsg string, maxAttempts int, baseDelay, maxDelay time.Duration) (FinalizeFailureResult, error) {
	if len(errMsg) > 1000 {
		errMsg = errMsg[:1000]
	}
	var res FinalizeFailureResult
	tag, err := s.db.Exec(ctx, `
		UPDATE outbox_events
		SET retry_count = retry_count + 1,
		    locked_by = NULL,
		    lease_expires_at = NULL,
		    processed_at = CASE WHEN retry_count + 1 >= $4 THEN now() ELSE processed_at END,
		    error = CASE WHEN retry_count + 1 >= $4 THEN $3 ELSE error END,
		    next_attempt_at = CASE WHEN retry_count + 1 >= $4 THEN next_attempt_at
		        ELSE now() + make_interval(secs => LEAST($5, $6 * POWER(2, retry_count))) END
		WHERE id = $1 AND locked_by = $2 AND processed_at IS NULL
	`, eventID, workerID, errMsg, maxAttempts, maxDelay.Seconds(), baseDelay.Seconds())
	if err != nil {
		return res, apperrors.Internal("finalize outbox failure", err)
	}
	res.Matched = tag.RowsAffected() > 0
	if res.Matched {
		var retryCount int
		var processedAt *time.Time
		if err := s.db.QueryRow(ctx, `SELECT retry_count, processed_at FROM outbox_events WHERE id = $1`, eventID).Scan(&retryCount, &processedAt); err != nil && err != pgx.ErrNoRows {
			return res, apperrors.Internal("read back outbox event after failure", err)
		}
		res.DeadLettered = processedAt != nil
	}
	return res, nil
}

// Get fetches an event by id, mainly for tests and admin inspection.
func (s *Store) Get(ctx context.Context, eventID uuid.UUID) (*store.OutboxEvent, error) {
	var ev store.OutboxEvent
	err := s.db.QueryRow(ctx, `
		SELECT id, project_id, event_type, payload, created_at, processed_at, retry_count, next_attempt_at, locked_by, lease_expires_at, error
		FROM outbox_events WHERE id = $1
	`, eventID).Scan(
		&ev.ID, &ev.ProjectID, &ev.EventType, &ev.Payload, &ev.CreatedAt, &ev.ProcessedAt,
		&ev.RetryCount, &ev.NextAttemptAt, &ev.LockedBy, &ev.LeaseExpiresAt, &ev.Error,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NotFound("outbox event not found")
		}
		return nil, apperrors.Internal("get outbox event", err)
	}
	return &ev, nil
}
