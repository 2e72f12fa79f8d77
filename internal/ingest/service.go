package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hookline/hookline/internal/delivery"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/ratelimit"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/tracing"
)

const (
	// TokenHeader carries the account's shared-secret credential.
	TokenHeader = "CL-X-TOKEN"
	// EventIDHeader optionally carries a caller-supplied event identifier.
	EventIDHeader = "CL-X-EVENT-ID"

	maxBodyBytes = 1 << 20 // 1 MiB
)

// Directory resolves credentials and destination catalogs. Satisfied by the
// store directly or by the Redis read-through cache in front of it.
type Directory interface {
	FindAccountByToken(ctx context.Context, token string) (*store.Account, error)
	ListDestinations(ctx context.Context, accountID string) ([]store.Destination, error)
}

// Log is the delivery log surface the ingestion path needs.
type Log interface {
	CreateAttempts(ctx context.Context, eventID, accountID string, receivedAt time.Time, payload []byte, destinationIDs []string) error
	ListAttempts(ctx context.Context, f store.AttemptFilter) ([]store.Attempt, error)
	AttemptStats(ctx context.Context, accountID string) (store.Stats, error)
}

// Publisher enqueues delivery jobs. *nsq.Producer satisfies it.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Gate is the admission rate limiter.
type Gate interface {
	Allow(ctx context.Context, token string) (ratelimit.Decision, error)
}

type Server struct {
	dir    Directory
	dlog   Log
	prod   Publisher
	gate   Gate
	topic  string
	logger *logging.Logger
}

// NewServer wires the ingestion service from its collaborators.
func NewServer(dir Directory, dlog Log, prod Publisher, gate Gate, topic string) *Server {
	return &Server{
		dir:    dir,
		dlog:   dlog,
		prod:   prod,
		gate:   gate,
		topic:  topic,
		logger: logging.New("hookline-ingest"),
	}
}

// Register mounts the service's routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/incoming_data", s.handleIncoming)
	mux.HandleFunc("/logs", s.handleLogs)
	mux.HandleFunc("/stats", s.handleStats)
}

// handleIncoming accepts one inbound event and fans it out to the account's
// destinations. Validation is ordered and fail-fast: credential presence,
// admission gate, payload shape, credential resolution, destination catalog.
// Accepted means all attempt rows and all jobs are durable, not delivered.
func (s *Server) handleIncoming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
		return
	}

	ctx, span := tracing.StartSpan(r.Context(), "ingest.IncomingData")
	defer span.End()

	token := strings.TrimSpace(r.Header.Get(TokenHeader))
	if token == "" {
		metrics.RecordRejected("unauthenticated")
		sendError(w, http.StatusUnauthorized, "Authentication token is required", map[string]string{
			"header": TokenHeader + " header is missing",
		})
		return
	}

	// Requests without a credential never reach the gate, so they cannot
	// burn any token's budget.
	decision, gateErr := s.gate.Allow(ctx, token)
	if gateErr != nil {
		s.logger.WithContext(ctx).WithError(gateErr).Warn("admission gate degraded")
	}
	if !decision.Allowed {
		metrics.RecordRejected("rate_limited")
		retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		sendError(w, http.StatusTooManyRequests, "Rate limit exceeded", map[string]any{
			"retry_after": retryAfter,
			"reset_in_ms": decision.RetryAfter.Milliseconds(),
		})
		return
	}

	payload, err := decodePayload(r.Body)
	if err != nil {
		metrics.RecordRejected("invalid_payload")
		sendError(w, http.StatusBadRequest, "Invalid request data", []string{err.Error()})
		return
	}

	account, err := s.dir.FindAccountByToken(ctx, token)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		s.logger.WithContext(ctx).WithError(err).Error("account lookup failed")
		metrics.RecordRejected("internal")
		sendError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	if account == nil {
		metrics.RecordRejected("unauthenticated")
		sendError(w, http.StatusUnauthorized, "Invalid or expired authentication token", nil)
		return
	}
	span.SetAttributes(attribute.String("account_id", account.ID))

	destinations, err := s.dir.ListDestinations(ctx, account.ID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		s.logger.WithContext(ctx).WithAccount(account.ID).WithError(err).Error("destination lookup failed")
		metrics.RecordRejected("internal")
		sendError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	if len(destinations) == 0 {
		metrics.RecordRejected("no_destinations")
		sendError(w, http.StatusNotFound, "No destinations configured for this account", nil)
		return
	}

	eventID := strings.TrimSpace(r.Header.Get(EventIDHeader))
	if eventID == "" {
		eventID = uuid.NewString()
	}
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("destinations_count", len(destinations)),
	)

	receivedAt := time.Now().UTC()
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		metrics.RecordRejected("invalid_payload")
		sendError(w, http.StatusBadRequest, "Invalid request data", []string{err.Error()})
		return
	}

	// Log rows first, jobs second. A crash between the two leaves traceable
	// pending rows for the reclaimer, never untracked in-flight jobs.
	destIDs := make([]string, len(destinations))
	for i, d := range destinations {
		destIDs[i] = d.ID
	}
	tracing.AddSpanEvent(ctx, "db.create_attempt_rows", attribute.Int("count", len(destIDs)))
	if err := s.dlog.CreateAttempts(ctx, eventID, account.ID, receivedAt, payloadJSON, destIDs); err != nil {
		tracing.SetSpanError(ctx, err)
		s.logger.WithContext(ctx).WithEvent(eventID).WithAccount(account.ID).WithError(err).Error("create attempt rows failed")
		metrics.RecordRejected("internal")
		sendError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	traceHeaders := tracing.PropagateTraceToQueue(ctx)
	for _, d := range destinations {
		task := delivery.Task{
			EventID:       eventID,
			DestinationID: d.ID,
			AccountID:     account.ID,
			URL:           d.URL,
			Method:        d.Method,
			Headers:       d.Headers,
			Payload:       payload,
			Attempt:       0,
			PublishedAt:   receivedAt.Format(time.RFC3339),
			TraceHeaders:  traceHeaders,
		}
		b, _ := json.Marshal(task)
		if err := s.prod.Publish(s.topic, b); err != nil {
			tracing.SetSpanError(ctx, err)
			s.logger.WithContext(ctx).WithEvent(eventID).WithDestination(d.ID).WithError(err).Error("enqueue failed")
			metrics.RecordRejected("internal")
			sendError(w, http.StatusInternalServerError, "Internal server error", nil)
			return
		}
	}
	tracing.AddSpanEvent(ctx, "queue.published_tasks", attribute.Int("count", len(destinations)))

	metrics.RecordAccepted()
	sendSuccess(w, http.StatusOK, map[string]any{
		"event_id":     eventID,
		"account_id":   account.ID,
		"destinations": len(destinations),
	}, "Event accepted for delivery")
}

// handleLogs serves the delivery log read API.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
		return
	}
	q := r.URL.Query()
	f := store.AttemptFilter{
		EventID:       q.Get("event_id"),
		AccountID:     q.Get("account_id"),
		DestinationID: q.Get("destination_id"),
	}
	if st := q.Get("status"); st != "" {
		status := delivery.Status(st)
		if !status.Valid() {
			sendError(w, http.StatusBadRequest, "Invalid status filter", nil)
			return
		}
		f.Status = status
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			sendError(w, http.StatusBadRequest, "Invalid 'from' timestamp, expected RFC3339", nil)
			return
		}
		f.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			sendError(w, http.StatusBadRequest, "Invalid 'to' timestamp, expected RFC3339", nil)
			return
		}
		f.To = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			sendError(w, http.StatusBadRequest, "Invalid limit", nil)
			return
		}
		f.Limit = n
	}

	attempts, err := s.dlog.ListAttempts(r.Context(), f)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("list attempts failed")
		sendError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	sendSuccess(w, http.StatusOK, map[string]any{"attempts": attempts}, "")
}

// handleStats serves aggregate delivery counts, optionally per account.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
		return
	}
	stats, err := s.dlog.AttemptStats(r.Context(), r.URL.Query().Get("account_id"))
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("stats query failed")
		sendError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	sendSuccess(w, http.StatusOK, stats, "")
}

var errPayloadShape = errors.New("request body must be a non-empty JSON object")

// decodePayload enforces the payload contract: a well-formed JSON object,
// not an array, not a primitive, not empty.
func decodePayload(body io.Reader) (map[string]any, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxBodyBytes {
		return nil, errors.New("request body too large")
	}
	if len(raw) == 0 {
		return nil, errors.New("request body is required")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.New("request body must be valid JSON")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errPayloadShape
	}
	if len(obj) == 0 {
		return nil, errPayloadShape
	}
	return obj, nil
}
