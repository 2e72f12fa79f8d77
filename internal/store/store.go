package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookline/hookline/internal/delivery"
)

// Store is the narrow persistence surface the engine consumes. Account and
// destination writes belong to the external management API; the engine only
// reads them and owns the delivery log rows.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FindAccountByToken resolves a shared-secret token to its account.
// Returns (nil, nil) when no account carries the token.
func (s *Store) FindAccountByToken(ctx context.Context, token string) (*Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx, `
		SELECT account_id, account_name, app_secret_token, created_at
		FROM hookline.accounts
		WHERE app_secret_token = $1`,
		token,
	).Scan(&a.ID, &a.Name, &a.SecretToken, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account by token: %w", err)
	}
	return &a, nil
}

// ListDestinations returns the account's destinations, oldest first.
// The slice is empty, never nil, when the account has none.
func (s *Store) ListDestinations(ctx context.Context, accountID string) ([]Destination, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT destination_id, account_id, url, http_method, headers, created_at
		FROM hookline.destinations
		WHERE account_id = $1
		ORDER BY created_at ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()

	out := []Destination{}
	for rows.Next() {
		var d Destination
		if err := rows.Scan(&d.ID, &d.AccountID, &d.URL, &d.Method, &d.Headers, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateAttempts batch-inserts one pending delivery log row per destination.
// Callers must complete this before enqueueing any job for the event so that
// every in-flight job has a traceable record. Re-submitting an event with a
// caller-supplied identifier leaves existing rows untouched instead of
// failing the whole batch, so a sender retry after a partial enqueue can
// still succeed.
func (s *Store) CreateAttempts(ctx context.Context, eventID, accountID string, receivedAt time.Time, payload []byte, destinationIDs []string) error {
	batch := &pgx.Batch{}
	for _, destID := range destinationIDs {
		batch.Queue(`
			INSERT INTO hookline.delivery_log(event_id, destination_id, account_id, received_timestamp, payload, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (event_id, destination_id) DO NOTHING`,
			eventID, destID, accountID, receivedAt, payload, delivery.StatusPending)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range destinationIDs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("create attempt rows: %w", err)
		}
	}
	return nil
}

// MarkProcessing advances an attempt to processing before the outbound call.
// Re-marking an attempt that is already processing is a no-op (redelivered
// jobs); a terminal row is never touched.
func (s *Store) MarkProcessing(ctx context.Context, eventID, destinationID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE hookline.delivery_log
		SET status = $3, updated_at = now()
		WHERE event_id = $1 AND destination_id = $2
		  AND status IN ($4, $3)`,
		eventID, destinationID, delivery.StatusProcessing, delivery.StatusPending)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// RecordRetry persists the latest failure details while the attempt stays in
// processing awaiting its requeued job.
func (s *Store) RecordRetry(ctx context.Context, eventID, destinationID string, attempt, httpStatus int, lastErr string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE hookline.delivery_log
		SET attempt = GREATEST(attempt, $3),
		    http_status = NULLIF($4, 0),
		    last_error = NULLIF($5, ''),
		    updated_at = now()
		WHERE event_id = $1 AND destination_id = $2
		  AND status = $6`,
		eventID, destinationID, attempt, httpStatus, lastErr, delivery.StatusProcessing)
	if err != nil {
		return fmt.Errorf("record retry: %w", err)
	}
	return nil
}

// Finalize moves an attempt to a terminal status and stamps the processed
// timestamp. The status predicate makes re-applying a terminal outcome a
// no-op, so redelivered jobs cannot regress or double-finalize a row.
func (s *Store) Finalize(ctx context.Context, eventID, destinationID string, status delivery.Status, attempt, httpStatus int, lastErr string) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize with non-terminal status %q", status)
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE hookline.delivery_log
		SET status = $3,
		    processed_timestamp = now(),
		    attempt = GREATEST(attempt, $4),
		    http_status = NULLIF($5, 0),
		    last_error = NULLIF($6, ''),
		    updated_at = now()
		WHERE event_id = $1 AND destination_id = $2
		  AND status IN ($7, $8)`,
		eventID, destinationID, status, attempt, httpStatus, lastErr,
		delivery.StatusPending, delivery.StatusProcessing)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	return nil
}

// FindAttempt fetches one delivery log row by its composite key.
func (s *Store) FindAttempt(ctx context.Context, eventID, destinationID string) (*Attempt, error) {
	var a Attempt
	err := s.pool.QueryRow(ctx, `
		SELECT event_id, destination_id, account_id, received_timestamp, processed_timestamp,
		       payload, status, attempt, COALESCE(http_status, 0), COALESCE(last_error, ''), updated_at
		FROM hookline.delivery_log
		WHERE event_id = $1 AND destination_id = $2`,
		eventID, destinationID,
	).Scan(&a.EventID, &a.DestinationID, &a.AccountID, &a.ReceivedAt, &a.ProcessedAt,
		&a.Payload, &a.Status, &a.Attempts, &a.HTTPStatus, &a.LastError, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find attempt: %w", err)
	}
	return &a, nil
}

// ListAttempts queries the delivery log with optional filters, newest first.
func (s *Store) ListAttempts(ctx context.Context, f AttemptFilter) ([]Attempt, error) {
	where := "1=1"
	args := []any{}
	argn := 0
	add := func(clause string, v any) {
		argn++
		where += fmt.Sprintf(" AND %s $%d", clause, argn)
		args = append(args, v)
	}
	if f.EventID != "" {
		add("event_id =", f.EventID)
	}
	if f.AccountID != "" {
		add("account_id =", f.AccountID)
	}
	if f.DestinationID != "" {
		add("destination_id =", f.DestinationID)
	}
	if f.Status != "" {
		add("status =", f.Status)
	}
	if !f.From.IsZero() {
		add("received_timestamp >=", f.From)
	}
	if !f.To.IsZero() {
		add("received_timestamp <=", f.To)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	argn++
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT event_id, destination_id, account_id, received_timestamp, processed_timestamp,
		       payload, status, attempt, COALESCE(http_status, 0), COALESCE(last_error, ''), updated_at
		FROM hookline.delivery_log
		WHERE %s
		ORDER BY received_timestamp DESC
		LIMIT $%d`, where, argn)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	out := []Attempt{}
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.EventID, &a.DestinationID, &a.AccountID, &a.ReceivedAt, &a.ProcessedAt,
			&a.Payload, &a.Status, &a.Attempts, &a.HTTPStatus, &a.LastError, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AttemptStats aggregates log rows by status, optionally scoped to an account.
func (s *Store) AttemptStats(ctx context.Context, accountID string) (Stats, error) {
	where := "1=1"
	args := []any{delivery.StatusPending, delivery.StatusProcessing, delivery.StatusSuccess, delivery.StatusFailed}
	if accountID != "" {
		where = "account_id = $5"
		args = append(args, accountID)
	}
	var st Stats
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = $1),
		       COUNT(*) FILTER (WHERE status = $2),
		       COUNT(*) FILTER (WHERE status = $3),
		       COUNT(*) FILTER (WHERE status = $4)
		FROM hookline.delivery_log
		WHERE %s`, where), args...,
	).Scan(&st.Total, &st.Pending, &st.Processing, &st.Success, &st.Failed)
	if err != nil {
		return Stats{}, fmt.Errorf("attempt stats: %w", err)
	}
	return st, nil
}

// StaleAttempts returns non-terminal attempts untouched for longer than the
// grace period, joined with current destination dispatch parameters for
// republishing. Covers both processing rows orphaned by a worker crash and
// pending rows whose enqueue never completed. An attempt whose destination
// was deleted cannot be replayed and is skipped.
func (s *Store) StaleAttempts(ctx context.Context, grace time.Duration, limit int) ([]StaleAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.event_id, l.destination_id, l.account_id, d.url, d.http_method, d.headers, l.payload, l.attempt
		FROM hookline.delivery_log l
		JOIN hookline.destinations d ON d.destination_id = l.destination_id
		WHERE l.status IN ($1, $4) AND l.updated_at < now() - ($2 * interval '1 second')
		ORDER BY l.updated_at ASC
		LIMIT $3`,
		delivery.StatusProcessing, grace.Seconds(), limit, delivery.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("stale processing: %w", err)
	}
	defer rows.Close()

	out := []StaleAttempt{}
	for rows.Next() {
		var a StaleAttempt
		if err := rows.Scan(&a.EventID, &a.DestinationID, &a.AccountID, &a.URL, &a.Method, &a.Headers, &a.Payload, &a.Attempts); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
