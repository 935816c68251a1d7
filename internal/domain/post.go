package domain

import (
	"time"

	"github.com/blackmichael/devlog-feed/internal/scoring"
)

// Post represents an indexed post stored in our database. Component signals
// and content features are immutable once written; final score, priority,
// confidence, and post type are derived fields owned by the curation engine
// and recomputable at any time.
type Post struct {
	// URI is the AT-URI of the post (e.g. at://did:plc:abc/app.bsky.feed.post/3l3qo2vuowo2b).
	URI string

	// Text is the post body.
	Text string

	// Timestamp is the post's creation time.
	Timestamp time.Time

	// AuthorDID is the DID of the author, empty until resolution completes.
	AuthorDID string

	HasMedia       bool
	IsFirstPerson  bool
	ImageCount     int
	HasAltText     bool
	LinkCount      int
	PromoLinkCount int

	// Scores are the externally produced component signals, clamped to [0,1]
	// at ingestion.
	Scores scoring.ComponentScores

	FinalScore float64
	Priority   float64
	Confidence scoring.Confidence
	PostType   scoring.PostType
}

// Engagement is the per-post engagement cache row: rolling edge counters and
// the decayed velocity score. It is a materialized projection of the edge
// tables and can be rebuilt from them at any time.
type Engagement struct {
	PostURI       string
	ReplyCount    int
	RepostCount   int
	LikeCount     int
	VelocityScore float64
	LastUpdated   time.Time
}

// Spammer is a flagged account. Flags are sticky; unflagging is an explicit
// administrative action outside this service.
type Spammer struct {
	DID string

	// Reason describes why the account was flagged.
	Reason string

	// RepostFrequency is the computed reposts-per-hour rate, nil when the
	// account was flagged manually.
	RepostFrequency *float64

	FlaggedAt    time.Time
	AutoDetected bool
}
