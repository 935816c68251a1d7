// Package spam flags accounts whose repost behavior exceeds the configured
// abuse threshold.
package spam

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackmichael/devlog-feed/internal/domain"
	"github.com/blackmichael/devlog-feed/internal/metrics"
)

// Detector watches repost behavior per account. Detection can run
// incrementally (OnRepost, on every event) or as a periodic sweep (Sweep);
// both compute the same rolling-window frequency from the repost table, so
// they converge on the same flagged set for the same event history.
type Detector struct {
	store     domain.SpamStore
	window    time.Duration
	threshold float64 // reposts per hour
	logger    *slog.Logger
}

// NewDetector creates a Detector with the given rolling window width and
// reposts-per-hour threshold.
func NewDetector(store domain.SpamStore, window time.Duration, threshold float64, logger *slog.Logger) *Detector {
	return &Detector{
		store:     store,
		window:    window,
		threshold: threshold,
		logger:    logger,
	}
}

// OnRepost evaluates one account after a new repost was recorded. An
// already-flagged account is left untouched: no re-flagging, no frequency
// update.
func (d *Detector) OnRepost(ctx context.Context, did string, now time.Time) error {
	flagged, err := d.store.IsFlagged(ctx, did)
	if err != nil {
		return fmt.Errorf("check spam flag: %w", err)
	}
	if flagged {
		return nil
	}

	count, err := d.store.CountRecentReposts(ctx, did, now.Add(-d.window))
	if err != nil {
		return fmt.Errorf("count recent reposts: %w", err)
	}

	frequency := float64(count) / d.window.Hours()
	if frequency < d.threshold {
		return nil
	}

	inserted, err := d.store.FlagSpammer(ctx, &domain.Spammer{
		DID:             did,
		Reason:          fmt.Sprintf("high repost frequency: %.1f/hr", frequency),
		RepostFrequency: &frequency,
		FlaggedAt:       now,
		AutoDetected:    true,
	})
	if err != nil {
		return fmt.Errorf("flag spammer: %w", err)
	}
	if inserted {
		metrics.SpammersFlagged.Inc()
		d.logger.Info("flagged spamming account", "did", did, "frequency", frequency)
	}
	return nil
}

// Sweep re-evaluates every account that reposted inside the current window.
// Running it after the fact yields the same flagged set as incremental
// detection over the same events.
func (d *Detector) Sweep(ctx context.Context, now time.Time) error {
	dids, err := d.store.RecentReposterDIDs(ctx, now.Add(-d.window))
	if err != nil {
		return fmt.Errorf("list recent reposters: %w", err)
	}
	for _, did := range dids {
		if err := d.OnRepost(ctx, did, now); err != nil {
			return err
		}
	}
	return nil
}

// StartSweepJob runs Sweep at the given interval until ctx is cancelled. The
// sweep catches accounts whose incremental check was skipped by a transient
// storage error.
func (d *Detector) StartSweepJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Sweep(ctx, time.Now().UTC()); err != nil {
				d.logger.Error("spam sweep failed", "error", err)
			}
		}
	}
}

// Flag records a manual operator flag. RepostFrequency stays nil to mark the
// flag as not computed.
func (d *Detector) Flag(ctx context.Context, did, reason string, now time.Time) error {
	_, err := d.store.FlagSpammer(ctx, &domain.Spammer{
		DID:          did,
		Reason:       reason,
		FlaggedAt:    now,
		AutoDetected: false,
	})
	return err
}
