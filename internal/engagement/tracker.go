// Package engagement maintains the per-post engagement velocity cache from
// the incoming event stream.
package engagement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/blackmichael/devlog-feed/internal/domain"
	"github.com/blackmichael/devlog-feed/internal/metrics"
	"github.com/blackmichael/devlog-feed/internal/scoring"
	"github.com/blackmichael/devlog-feed/internal/spam"
)

const (
	// applyAttempts and applyBackoff bound the in-line retry for transient
	// storage failures. Events still failing after the last attempt escalate
	// to the caller.
	applyAttempts = 3
	applyBackoff  = 50 * time.Millisecond
)

// Tracker applies engagement events to the cache and feeds repost activity to
// the spam detector. Events referencing posts that have not been ingested yet
// are held in a buffer, bounded in both size and age, and retried; the
// upstream stream is unordered, so an engagement edge routinely arrives
// moments before its post.
type Tracker struct {
	store    domain.EngagementStore
	detector *spam.Detector
	rescore  domain.RescoreFunc
	logger   *slog.Logger

	// bufferWindow bounds how long an event may wait for its post before
	// being dropped; maxPending caps the buffer length, evicting the oldest
	// event on overflow.
	bufferWindow time.Duration
	maxPending   int

	mu      sync.Mutex
	pending []pendingEvent
}

type pendingEvent struct {
	event    domain.EngagementEvent
	deadline time.Time
}

// NewTracker creates a Tracker. detector may be nil to disable spam detection.
func NewTracker(
	store domain.EngagementStore,
	detector *spam.Detector,
	params scoring.Params,
	bufferWindow time.Duration,
	maxPending int,
	logger *slog.Logger,
) *Tracker {
	return &Tracker{
		store:        store,
		detector:     detector,
		rescore:      domain.NewRescoreFunc(params),
		bufferWindow: bufferWindow,
		maxPending:   maxPending,
		logger:       logger,
	}
}

// HandleEvent processes one engagement event. Duplicates are a silent no-op;
// unknown post references are buffered for later retry. Neither outcome is an
// error under at-least-once, unordered delivery. Transient storage failures
// are retried in place with backoff; an event still failing after the last
// attempt escalates to the caller.
func (t *Tracker) HandleEvent(ctx context.Context, ev *domain.EngagementEvent) error {
	applied, err := t.applyWithRetry(ctx, ev)
	if errors.Is(err, domain.ErrUnknownPost) {
		t.buffer(ev, time.Now().UTC().Add(t.bufferWindow))
		metrics.EngagementEvents.WithLabelValues(string(ev.Kind), "buffered").Inc()
		return nil
	}
	if err != nil {
		return err
	}
	if !applied {
		metrics.EngagementEvents.WithLabelValues(string(ev.Kind), "duplicate").Inc()
		return nil
	}
	metrics.EngagementEvents.WithLabelValues(string(ev.Kind), "applied").Inc()

	if ev.Kind == domain.KindRepost && t.detector != nil {
		if err := t.detector.OnRepost(ctx, ev.ActorDID, time.Now().UTC()); err != nil {
			// Spam detection failing must not fail the event; the periodic
			// sweep will catch up.
			t.logger.Error("spam detection failed", "did", ev.ActorDID, "error", err)
		}
	}
	return nil
}

// applyWithRetry calls ApplyEvent, retrying transient storage failures with a
// linear backoff. ErrUnknownPost is not a storage failure and returns
// immediately.
func (t *Tracker) applyWithRetry(ctx context.Context, ev *domain.EngagementEvent) (bool, error) {
	var (
		applied bool
		err     error
	)
	for attempt := 0; attempt < applyAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(time.Duration(attempt) * applyBackoff):
			}
		}
		applied, err = t.store.ApplyEvent(ctx, ev, t.rescore)
		if err == nil || errors.Is(err, domain.ErrUnknownPost) {
			return applied, err
		}
		t.logger.Warn("engagement event apply failed, retrying",
			"kind", ev.Kind,
			"post_uri", ev.PostURI,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return applied, err
}

// FlushPending retries buffered events whose posts may have arrived since.
// Events that still fail, whether on an unknown post or a storage error, stay
// buffered with their original deadline; only events past the deadline are
// dropped, with a logged diagnostic.
func (t *Tracker) FlushPending(ctx context.Context) {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	now := time.Now().UTC()
	for i := range pending {
		p := pending[i]
		applied, err := t.applyWithRetry(ctx, &p.event)
		if err != nil {
			if now.After(p.deadline) {
				t.logger.Warn("dropping engagement event",
					"kind", p.event.Kind,
					"post_uri", p.event.PostURI,
					"error", err,
				)
				metrics.EngagementEvents.WithLabelValues(string(p.event.Kind), "dropped").Inc()
				continue
			}
			if !errors.Is(err, domain.ErrUnknownPost) {
				t.logger.Error("failed to apply buffered engagement event, keeping",
					"kind", p.event.Kind,
					"post_uri", p.event.PostURI,
					"error", err,
				)
			}
			t.buffer(&p.event, p.deadline)
			continue
		}
		if applied {
			metrics.EngagementEvents.WithLabelValues(string(p.event.Kind), "applied").Inc()
		} else {
			metrics.EngagementEvents.WithLabelValues(string(p.event.Kind), "duplicate").Inc()
		}
	}
}

// PendingCount returns the number of buffered events.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// StartFlushJob retries buffered events at the given interval until ctx is
// cancelled.
func (t *Tracker) StartFlushJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.FlushPending(ctx)
		}
	}
}

func (t *Tracker) buffer(ev *domain.EngagementEvent, deadline time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxPending > 0 && len(t.pending) >= t.maxPending {
		oldest := t.pending[0]
		t.pending = t.pending[1:]
		t.logger.Warn("pending buffer full, dropping oldest engagement event",
			"kind", oldest.event.Kind,
			"post_uri", oldest.event.PostURI,
		)
		metrics.EngagementEvents.WithLabelValues(string(oldest.event.Kind), "dropped").Inc()
	}
	t.pending = append(t.pending, pendingEvent{
		event:    *ev,
		deadline: deadline,
	})
}
