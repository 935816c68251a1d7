// Package metrics exposes Prometheus counters for the curation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PostsIndexed counts posts scored and persisted from the event stream.
	PostsIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devlogfeed",
		Subsystem: "ingest",
		Name:      "posts_indexed_total",
		Help:      "Total number of posts scored and stored",
	})

	// EngagementEvents counts engagement event outcomes.
	// Labels: kind (like, repost, reply, interaction), result (applied,
	// duplicate, buffered, dropped).
	EngagementEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devlogfeed",
		Subsystem: "engagement",
		Name:      "events_total",
		Help:      "Total number of engagement events by kind and outcome",
	}, []string{"kind", "result"})

	// SpammersFlagged counts accounts flagged by the spam detector.
	SpammersFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devlogfeed",
		Subsystem: "spam",
		Name:      "accounts_flagged_total",
		Help:      "Total number of accounts flagged as spammers",
	})

	// FeedPagesServed counts feed skeleton pages returned to clients.
	FeedPagesServed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devlogfeed",
		Subsystem: "feed",
		Name:      "pages_served_total",
		Help:      "Total number of feed pages served",
	})
)
