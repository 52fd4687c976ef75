package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("mediconnect/audit")

// errTrailClosed is reported when Append is called after Close.
var errTrailClosed = errors.New("audit trail closed")

// Trail assigns ids and timestamps and hands records to the store.
//
// Ids are assigned under a single-writer lock and the counter only advances
// once the record has been persisted (sync mode) or queued (async mode), so
// successful appends form a gap-free increasing run. In async mode the
// writer retries a failing record until it is stored; only Close can make it
// give up, and then every record still queued is reported as failed.
type Trail struct {
	store   Store
	sinks   []Sink
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	mu     sync.Mutex
	lastID RecordID
	closed bool

	bufferSize   int
	retryBackoff time.Duration
	writer       *writer
}

// Option configures a Trail.
type Option func(*Trail)

// WithLogger sets the operational channel for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) {
		t.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(t *Trail) {
		t.metrics = m
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Trail) {
		if now != nil {
			t.now = now
		}
	}
}

// WithAsyncBuffer makes Append enqueue records for a single background
// writer instead of writing inline. Records are persisted in id order.
func WithAsyncBuffer(size int) Option {
	return func(t *Trail) {
		t.bufferSize = size
	}
}

// WithRetryBackoff sets the first delay between async persist retries. The
// delay doubles per attempt up to a fixed cap.
func WithRetryBackoff(d time.Duration) Option {
	return func(t *Trail) {
		t.retryBackoff = d
	}
}

// WithSinks adds fan-out destinations notified after each durable write.
func WithSinks(sinks ...Sink) Option {
	return func(t *Trail) {
		t.sinks = append(t.sinks, sinks...)
	}
}

// NewTrail builds a trail over store. The id counter resumes from the
// store's highest persisted id.
func NewTrail(ctx context.Context, store Store, opts ...Option) (*Trail, error) {
	t := &Trail{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	last, err := store.LastID(ctx)
	if err != nil {
		return nil, fmt.Errorf("load last audit id: %w", err)
	}
	t.lastID = last

	if t.bufferSize > 0 {
		t.writer = newWriter(t, t.bufferSize, t.retryBackoff)
		go t.writer.run()
	}
	return t, nil
}

// Append records rec and returns its id. It never fails the caller: on any
// write or queue failure the error goes to the logger and metrics, and
// FailedRecordID is returned. Call it only after the described operation has
// taken effect.
func (t *Trail) Append(ctx context.Context, rec Record) RecordID {
	ctx, span := tracer.Start(ctx, "audit.Append")
	defer span.End()

	rec = rec.Clone()
	id, err := t.append(ctx, rec)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return FailedRecordID
	}
	span.SetAttributes(attribute.Int64("audit.record_id", int64(id)))
	return id
}

func (t *Trail) append(ctx context.Context, rec Record) (RecordID, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.reportFailure(ctx, "closed", rec, errTrailClosed)
		return FailedRecordID, errTrailClosed
	}
	// Stamped under the lock so timestamps never run backwards against ids.
	rec.Timestamp = t.now()
	rec.ID = t.lastID + 1

	if t.writer != nil {
		if !t.writer.enqueue(rec) {
			t.mu.Unlock()
			err := errors.New("audit buffer full")
			t.reportFailure(ctx, "buffer_full", rec, err)
			return FailedRecordID, err
		}
		t.lastID = rec.ID
		t.mu.Unlock()
		return rec.ID, nil
	}

	// The write must finish even if the request context is cancelled once
	// the response is on its way.
	err := t.persist(context.WithoutCancel(ctx), rec)
	if err == nil {
		t.lastID = rec.ID
	}
	t.mu.Unlock()

	if err != nil {
		t.reportFailure(ctx, "persist", rec, err)
		return FailedRecordID, err
	}
	t.publish(ctx, rec)
	return rec.ID, nil
}

func (t *Trail) persist(ctx context.Context, rec Record) error {
	start := time.Now()
	if err := t.store.Append(ctx, rec); err != nil {
		return err
	}
	t.metrics.observePersist(time.Since(start).Seconds())
	t.metrics.incAppended()
	return nil
}

func (t *Trail) publish(ctx context.Context, rec Record) {
	for _, s := range t.sinks {
		s.Publish(ctx, rec.Clone())
	}
}

func (t *Trail) reportFailure(ctx context.Context, reason string, rec Record, err error) {
	t.metrics.incFailure(reason)
	t.logger.ErrorContext(ctx, "audit append failed",
		"reason", reason,
		"record_id", rec.ID,
		"user_id", rec.UserID,
		"action", rec.Action,
		"resource_type", rec.ResourceType,
		"error", err,
	)
}

// Query returns a snapshot of matching records in append order.
func (t *Trail) Query(ctx context.Context, filter Filter) ([]Record, error) {
	records, err := t.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	return records, nil
}

// Close stops accepting records and, in async mode, waits for the queue to
// drain. It is safe to call more than once.
func (t *Trail) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	w := t.writer
	t.mu.Unlock()

	if w != nil {
		w.close()
	}
}
