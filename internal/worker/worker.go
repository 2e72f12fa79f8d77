// Package worker consumes delivery jobs from the queue, performs the outbound
// HTTP call, and persists every status transition to the delivery log before
// acknowledging the job. Workers are idempotent with respect to transitions:
// the queue is at-least-once and the log's forward-only state machine absorbs
// redeliveries.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/nsqio/go-nsq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hookline/hookline/internal/delivery"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/tracing"
)

// Log is the delivery log surface the worker mutates.
type Log interface {
	MarkProcessing(ctx context.Context, eventID, destinationID string) error
	RecordRetry(ctx context.Context, eventID, destinationID string, attempt, httpStatus int, lastErr string) error
	Finalize(ctx context.Context, eventID, destinationID string, status delivery.Status, attempt, httpStatus int, lastErr string) error
}

// Publisher posts to the DLQ topic. *nsq.Producer satisfies it.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Message is the slice of *nsq.Message the handler drives.
type Message interface {
	Finish()
	Requeue(delay time.Duration)
}

// Doer performs the outbound call; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	JitterPercent  float64
	DeliverTimeout time.Duration
	PublishDLQ     bool
	DLQTopic       string
}

type Handler struct {
	dlog   Log
	client Doer
	cfg    Config
	dlq    Publisher // nil unless PublishDLQ
	logger *logging.Logger
}

func NewHandler(dlog Log, client Doer, cfg Config, dlq Publisher) *Handler {
	return &Handler{
		dlog:   dlog,
		client: client,
		cfg:    cfg,
		dlq:    dlq,
		logger: logging.New("hookline-worker"),
	}
}

// HandleMessage satisfies nsq.Handler. Responses are manual: the job is only
// finished or requeued after its outcome is persisted to the delivery log.
func (h *Handler) HandleMessage(m *nsq.Message) error {
	m.DisableAutoResponse()
	defer func() {
		if !m.HasResponded() {
			h.logger.Plain().Warn("message had no response, finishing")
			m.Finish()
		}
	}()

	var t delivery.Task
	if err := json.Unmarshal(m.Body, &t); err != nil {
		h.logger.Plain().WithError(err).Error("bad task payload")
		m.Finish() // terminal: don't retry undecodable jobs
		return nil
	}

	// nsqd increments Attempts on every delivery of this message; reclaimed
	// jobs additionally carry the attempts already spent in Task.Attempt.
	attemptNum := t.Attempt + int(m.Attempts)
	if attemptNum < 1 {
		attemptNum = 1
	}
	h.Process(context.Background(), t, attemptNum, m)
	return nil
}

// Process runs one delivery attempt to completion: mark processing, dispatch,
// classify, persist, then finish or requeue.
func (h *Handler) Process(ctx context.Context, t delivery.Task, attemptNum int, m Message) {
	ctx = tracing.ExtractTraceFromQueue(ctx, t.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "worker.delivery",
		attribute.String("event_id", t.EventID),
		attribute.String("destination_id", t.DestinationID),
		attribute.String("account_id", t.AccountID),
		attribute.String("url", t.URL),
		attribute.String("method", t.Method),
		attribute.Int("attempt", attemptNum),
	)
	defer span.End()

	// Processing is recorded before the outbound call so a crash mid-dispatch
	// leaves an indeterminate row the reclaimer can pick up after the grace
	// period.
	if err := h.dlog.MarkProcessing(ctx, t.EventID, t.DestinationID); err != nil {
		tracing.SetSpanError(ctx, err)
		h.logger.WithContext(ctx).WithEvent(t.EventID).WithDestination(t.DestinationID).WithError(err).Error("mark processing failed")
	}

	callCtx, cancel := context.WithTimeout(ctx, h.cfg.DeliverTimeout)
	defer cancel()

	req, err := delivery.BuildRequest(callCtx, t)
	if err != nil {
		// Undispatchable destination parameters are permanent failures.
		h.finalize(ctx, t, attemptNum, 0, err.Error(), span)
		m.Finish()
		return
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	start := time.Now()
	resp, doErr := h.client.Do(req)
	latency := time.Since(start)
	status := 0
	if doErr == nil {
		status = resp.StatusCode
		_ = resp.Body.Close()
	}

	span.SetAttributes(
		attribute.Int("http.status_code", status),
		attribute.Int64("http.latency_ms", latency.Milliseconds()),
	)
	if doErr != nil {
		span.SetAttributes(attribute.String("http.error", doErr.Error()))
	}
	metrics.RecordDispatch(delivery.StatusClass(doErr, status), latency)

	switch delivery.Classify(doErr, status) {
	case delivery.OutcomeSuccess:
		tracing.AddSpanEvent(ctx, "delivery.success")
		if err := h.dlog.Finalize(ctx, t.EventID, t.DestinationID, delivery.StatusSuccess, attemptNum, status, ""); err != nil {
			tracing.SetSpanError(ctx, err)
			h.logger.WithContext(ctx).WithEvent(t.EventID).WithDestination(t.DestinationID).WithError(err).Error("finalize success failed")
			// The outcome is not durable yet. Requeue so the idempotent
			// transition is retried rather than silently lost.
			m.Requeue(h.cfg.BackoffBase)
			return
		}
		metrics.RecordDelivery(string(delivery.StatusSuccess))
		m.Finish()

	case delivery.OutcomePermanent:
		tracing.AddSpanEvent(ctx, "delivery.permanent_failure")
		h.finalize(ctx, t, attemptNum, status, errString(doErr), span)
		m.Finish() // 4xx is non-transient; no retry

	case delivery.OutcomeRetryable:
		reason := delivery.FailureReason(doErr, status)
		span.SetAttributes(attribute.String("failure_reason", reason))

		if attemptNum >= h.cfg.MaxAttempts {
			tracing.AddSpanEvent(ctx, "delivery.attempts_exhausted", attribute.Int("attempt", attemptNum))
			h.finalize(ctx, t, attemptNum, status, errString(doErr), span)
			metrics.RecordDeadLetter()
			h.publishDeadLetter(ctx, t, attemptNum, status, doErr)
			m.Finish()
			return
		}

		if err := h.dlog.RecordRetry(ctx, t.EventID, t.DestinationID, attemptNum, status, errString(doErr)); err != nil {
			tracing.SetSpanError(ctx, err)
			h.logger.WithContext(ctx).WithEvent(t.EventID).WithDestination(t.DestinationID).WithError(err).Error("record retry failed")
		}
		metrics.RecordRetry(reason)

		delay := Backoff(attemptNum, h.cfg.BackoffBase, h.cfg.JitterPercent)
		tracing.AddSpanEvent(ctx, "delivery.requeue",
			attribute.Int("attempt", attemptNum),
			attribute.String("delay", delay.String()),
		)
		h.logger.WithContext(ctx).WithEvent(t.EventID).WithDestination(t.DestinationID).WithFields(map[string]any{
			"attempt": attemptNum,
			"delay":   delay.String(),
			"reason":  reason,
		}).Info("requeue delivery")
		m.Requeue(delay)
	}
}

func (h *Handler) finalize(ctx context.Context, t delivery.Task, attemptNum, status int, lastErr string, span interface{ SetAttributes(...attribute.KeyValue) }) {
	if err := h.dlog.Finalize(ctx, t.EventID, t.DestinationID, delivery.StatusFailed, attemptNum, status, lastErr); err != nil {
		tracing.SetSpanError(ctx, err)
		h.logger.WithContext(ctx).WithEvent(t.EventID).WithDestination(t.DestinationID).WithError(err).Error("finalize failure failed")
	}
	span.SetAttributes(
		attribute.String("delivery.final_status", string(delivery.StatusFailed)),
		attribute.Int("delivery.final_attempt", attemptNum),
	)
	metrics.RecordDelivery(string(delivery.StatusFailed))
}

func (h *Handler) publishDeadLetter(ctx context.Context, t delivery.Task, attemptNum, status int, doErr error) {
	if !h.cfg.PublishDLQ || h.dlq == nil {
		return
	}
	env := delivery.NewDeadLetter(t, attemptNum, status, errString(doErr),
		fmt.Sprintf("max attempts reached (%d)", attemptNum))
	b, _ := json.Marshal(env)
	if err := h.dlq.Publish(h.cfg.DLQTopic, b); err != nil {
		tracing.SetSpanError(ctx, err)
		h.logger.WithContext(ctx).WithEvent(t.EventID).WithDestination(t.DestinationID).WithError(err).Error("dlq publish failed")
		return
	}
	tracing.AddSpanEvent(ctx, "queue.published_dlq", attribute.String("topic", h.cfg.DLQTopic))
}

// Backoff computes the delay before retry attempt n+1: base doubled per
// completed attempt, plus an optional additive jitter fraction. The delay is
// never below the exponential floor, so retries are always spaced by at least
// the configured schedule.
func Backoff(attempt int, base time.Duration, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base << (attempt - 1)
	if jitterPct > 0 {
		d += time.Duration(rand.Float64() * jitterPct * float64(d))
	}
	return d
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
