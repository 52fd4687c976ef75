package audit

import (
	"context"
	"errors"
	"time"
)

const (
	// persistAttempts bounds retries of the head record once Close has been
	// called. While the trail is open the writer retries indefinitely.
	persistAttempts = 3
	retryBackoff    = 50 * time.Millisecond
	maxRetryBackoff = 2 * time.Second
)

var errAbandoned = errors.New("audit writer stopped before an earlier record was persisted")

// writer drains queued records into the store one at a time so persisted
// order matches id order. A record that fails to persist blocks the queue
// until it succeeds, so persisted ids never skip.
type writer struct {
	trail   *Trail
	inbox   chan Record
	stop    chan struct{}
	done    chan struct{}
	backoff time.Duration
}

func newWriter(t *Trail, size int, backoff time.Duration) *writer {
	if backoff <= 0 {
		backoff = retryBackoff
	}
	return &writer{
		trail:   t,
		inbox:   make(chan Record, size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		backoff: backoff,
	}
}

// enqueue must be called with the trail lock held.
func (w *writer) enqueue(rec Record) bool {
	select {
	case w.inbox <- rec:
		w.trail.metrics.setQueueDepth(len(w.inbox))
		return true
	default:
		return false
	}
}

func (w *writer) run() {
	defer close(w.done)
	ctx := context.Background()
	abandoned := false
	for rec := range w.inbox {
		w.trail.metrics.setQueueDepth(len(w.inbox))
		// Once a record is given up on, everything queued behind it is
		// reported too; persisting it would leave a hole below it.
		if abandoned {
			w.trail.reportFailure(ctx, "persist", rec, errAbandoned)
			continue
		}
		if err := w.persistUntilStored(ctx, rec); err != nil {
			abandoned = true
			w.trail.reportFailure(ctx, "persist", rec, err)
			continue
		}
		w.trail.publish(ctx, rec)
	}
}

// persistUntilStored retries rec with capped exponential backoff. It only
// returns an error after close has been requested and at least
// persistAttempts writes have failed.
func (w *writer) persistUntilStored(ctx context.Context, rec Record) error {
	delay := w.backoff
	for attempt := 1; ; attempt++ {
		err := w.trail.persist(ctx, rec)
		if err == nil {
			return nil
		}
		if w.stopping() && attempt >= persistAttempts {
			return err
		}
		w.trail.metrics.incRetry()
		w.trail.logger.WarnContext(ctx, "audit persist failed, retrying",
			"record_id", rec.ID,
			"attempt", attempt,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-w.stop:
			timer.Stop()
		}
		delay = min(delay*2, maxRetryBackoff)
	}
}

func (w *writer) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// close must be called once, after the trail is marked closed.
func (w *writer) close() {
	close(w.stop)
	close(w.inbox)
	<-w.done
}
