// Package config loads and validates service configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables (DEVLOGFEED_ prefixed). Invalid weights or
// thresholds fail startup immediately rather than degrading silently.
package config

import (
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/blackmichael/devlog-feed/internal/scoring"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Firehose   FirehoseConfig   `koanf:"firehose"`
	Scoring    ScoringConfig    `koanf:"scoring"`
	Engagement EngagementConfig `koanf:"engagement"`
	Spam       SpamConfig       `koanf:"spam"`
	Feed       FeedConfig       `koanf:"feed"`
	Retention  RetentionConfig  `koanf:"retention"`
}

// ServerConfig holds the public identity and HTTP settings.
type ServerConfig struct {
	// Hostname is the public hostname where this service is reachable (used for did:web).
	Hostname string `koanf:"hostname"`

	// Port is the HTTP server port.
	Port int `koanf:"port"`

	// PublisherDID is the DID of the account that published the feed generator record.
	PublisherDID string `koanf:"publisher_did"`

	// FeedName is the record key of the published feed.
	FeedName string `koanf:"feed_name"`
}

// DatabaseConfig holds the embedded store settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `koanf:"path"`
}

// FirehoseConfig holds the event stream settings.
type FirehoseConfig struct {
	// URL is the Jetstream WebSocket endpoint.
	URL string `koanf:"url"`
}

// ScoringConfig holds the signal aggregation and classification knobs.
type ScoringConfig struct {
	KeywordWeight        float64 `koanf:"keyword_weight"`
	HashtagWeight        float64 `koanf:"hashtag_weight"`
	SemanticWeight       float64 `koanf:"semantic_weight"`
	ClassificationWeight float64 `koanf:"classification_weight"`

	// DevlogThreshold is the minimum keyword score for a first-person post
	// to classify as a devlog.
	DevlogThreshold float64 `koanf:"devlog_threshold"`

	// ConfidenceHighSpread and ConfidenceLowSpread bound the confidence
	// tiers derived from signal disagreement.
	ConfidenceHighSpread float64 `koanf:"confidence_high_spread"`
	ConfidenceLowSpread  float64 `koanf:"confidence_low_spread"`

	HalfLifeHours float64 `koanf:"half_life_hours"`
	VelocityBoost float64 `koanf:"velocity_boost"`
	VelocityMax   float64 `koanf:"velocity_max"`
	PromoPenalty  float64 `koanf:"promo_penalty"`

	// PromoDomains are hosts counted as self-promo links.
	PromoDomains []string `koanf:"promo_domains"`
}

// EngagementConfig holds the velocity cache knobs.
type EngagementConfig struct {
	LikeWeight   float64 `koanf:"like_weight"`
	RepostWeight float64 `koanf:"repost_weight"`
	ReplyWeight  float64 `koanf:"reply_weight"`

	// AgeFloorHours is the minimum post age used as the velocity denominator.
	AgeFloorHours float64 `koanf:"age_floor_hours"`

	// BufferWindowSeconds bounds how long an event for a not-yet-ingested
	// post is retried before being dropped.
	BufferWindowSeconds int `koanf:"buffer_window_seconds"`

	// BufferMaxEvents caps the pending buffer length; on overflow the
	// oldest event is dropped.
	BufferMaxEvents int `koanf:"buffer_max_events"`

	// FlushIntervalSeconds is how often buffered events are retried.
	FlushIntervalSeconds int `koanf:"flush_interval_seconds"`
}

// SpamConfig holds the repost abuse thresholds.
type SpamConfig struct {
	// WindowHours is the rolling window width for repost frequency.
	WindowHours float64 `koanf:"window_hours"`

	// RepostThreshold is the reposts-per-hour rate that triggers a flag.
	RepostThreshold float64 `koanf:"repost_threshold"`
}

// FeedConfig holds pagination limits.
type FeedConfig struct {
	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`
}

// RetentionConfig holds cleanup and rescore job settings.
type RetentionConfig struct {
	MaxAgeHours            float64 `koanf:"max_age_hours"`
	MaxRows                int     `koanf:"max_rows"`
	CleanupIntervalMinutes int     `koanf:"cleanup_interval_minutes"`
	RescoreIntervalMinutes int     `koanf:"rescore_interval_minutes"`
}

// ServiceDID returns the did:web for this feed generator based on the hostname.
func (c *Config) ServiceDID() string {
	return "did:web:" + c.Server.Hostname
}

// FeedURI returns the AT-URI of the published feed generator record.
func (c *Config) FeedURI() string {
	return fmt.Sprintf("at://%s/app.bsky.feed.generator/%s", c.Server.PublisherDID, c.Server.FeedName)
}

// ScoringParams converts the configuration into the scoring parameter set.
func (c *Config) ScoringParams() scoring.Params {
	return scoring.Params{
		Weights: scoring.Weights{
			Keyword:        c.Scoring.KeywordWeight,
			Hashtag:        c.Scoring.HashtagWeight,
			Semantic:       c.Scoring.SemanticWeight,
			Classification: c.Scoring.ClassificationWeight,
		},
		DevlogThreshold: c.Scoring.DevlogThreshold,
		HighSpread:      c.Scoring.ConfidenceHighSpread,
		LowSpread:       c.Scoring.ConfidenceLowSpread,
		HalfLife:        time.Duration(c.Scoring.HalfLifeHours * float64(time.Hour)),
		VelocityBoost:   c.Scoring.VelocityBoost,
		VelocityMax:     c.Scoring.VelocityMax,
		PromoPenalty:    c.Scoring.PromoPenalty,
		EngagementWeights: scoring.EngagementWeights{
			Like:   c.Engagement.LikeWeight,
			Repost: c.Engagement.RepostWeight,
			Reply:  c.Engagement.ReplyWeight,
		},
		VelocityAgeFloorHours: c.Engagement.AgeFloorHours,
	}
}

// SpamWindow returns the rolling window width as a duration.
func (c *Config) SpamWindow() time.Duration {
	return time.Duration(c.Spam.WindowHours * float64(time.Hour))
}

// Validate checks every tunable for consistency. Any violation is a fatal
// configuration error.
func (c *Config) Validate() error {
	if c.Server.PublisherDID == "" {
		return fmt.Errorf("server.publisher_did is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive, got %d", c.Server.Port)
	}

	if u, err := url.Parse(c.Firehose.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("firehose.url must be a valid websocket URL, got %q", c.Firehose.URL)
	}

	sum := c.Scoring.KeywordWeight + c.Scoring.HashtagWeight +
		c.Scoring.SemanticWeight + c.Scoring.ClassificationWeight
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("scoring weights must sum to 1, got %g", sum)
	}
	for name, w := range map[string]float64{
		"keyword_weight":        c.Scoring.KeywordWeight,
		"hashtag_weight":        c.Scoring.HashtagWeight,
		"semantic_weight":       c.Scoring.SemanticWeight,
		"classification_weight": c.Scoring.ClassificationWeight,
		"devlog_threshold":      c.Scoring.DevlogThreshold,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("scoring.%s must be in [0,1], got %g", name, w)
		}
	}
	if c.Scoring.ConfidenceHighSpread < 0 || c.Scoring.ConfidenceLowSpread > 1 ||
		c.Scoring.ConfidenceHighSpread >= c.Scoring.ConfidenceLowSpread {
		return fmt.Errorf("confidence spreads must satisfy 0 <= high < low <= 1, got high=%g low=%g",
			c.Scoring.ConfidenceHighSpread, c.Scoring.ConfidenceLowSpread)
	}
	if c.Scoring.HalfLifeHours <= 0 {
		return fmt.Errorf("scoring.half_life_hours must be positive, got %g", c.Scoring.HalfLifeHours)
	}
	if c.Scoring.PromoPenalty <= 0 || c.Scoring.PromoPenalty >= 1 {
		return fmt.Errorf("scoring.promo_penalty must be in (0,1), got %g", c.Scoring.PromoPenalty)
	}
	if c.Engagement.AgeFloorHours <= 0 {
		return fmt.Errorf("engagement.age_floor_hours must be positive, got %g", c.Engagement.AgeFloorHours)
	}
	if c.Engagement.BufferMaxEvents <= 0 {
		return fmt.Errorf("engagement.buffer_max_events must be positive, got %d", c.Engagement.BufferMaxEvents)
	}
	if c.Spam.WindowHours <= 0 {
		return fmt.Errorf("spam.window_hours must be positive, got %g", c.Spam.WindowHours)
	}
	if c.Spam.RepostThreshold <= 0 {
		return fmt.Errorf("spam.repost_threshold must be positive, got %g", c.Spam.RepostThreshold)
	}
	if c.Feed.DefaultLimit <= 0 || c.Feed.MaxLimit < c.Feed.DefaultLimit {
		return fmt.Errorf("feed limits must satisfy 0 < default <= max, got default=%d max=%d",
			c.Feed.DefaultLimit, c.Feed.MaxLimit)
	}
	return nil
}
