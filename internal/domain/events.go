package domain

import (
	"time"

	"github.com/blackmichael/devlog-feed/internal/scoring"
)

// IncomingPost is a new post from the event stream that hasn't been persisted
// yet. It carries the text, the extractor score outputs, and the media facets
// needed to derive content signals.
type IncomingPost struct {
	// URI is the AT-URI of the post.
	URI string

	// AuthorDID is the DID of the post's author.
	AuthorDID string

	// Text is the post body text.
	Text string

	// Timestamp is the creation time claimed by the record.
	Timestamp time.Time

	// Scores are the component signals produced by the upstream extractors.
	Scores scoring.ComponentScores

	// Media describes image/video/link facets on the record.
	Media scoring.MediaInfo
}

// EngagementKind identifies which edge table an engagement event belongs to.
type EngagementKind string

const (
	KindLike        EngagementKind = "like"
	KindRepost      EngagementKind = "repost"
	KindReply       EngagementKind = "reply"
	KindInteraction EngagementKind = "interaction"
)

// EngagementEvent is a single like/repost/reply/interaction delivered by the
// event stream. Delivery is at-least-once and unordered; the natural key
// (PostURI, EdgeURI), or (ActorDID, PostURI, InteractionType) for
// interactions, makes re-delivery a no-op.
type EngagementEvent struct {
	Kind EngagementKind

	// PostURI references the engaged post.
	PostURI string

	// EdgeURI is the AT-URI of the like/repost/reply record itself. Empty
	// for interactions.
	EdgeURI string

	// ActorDID is the account that performed the engagement.
	ActorDID string

	// InteractionType distinguishes generic interactions (seen, request_less,
	// request_more, ...). Empty for likes, reposts, and replies.
	InteractionType string

	Timestamp time.Time
}
