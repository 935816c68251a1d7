package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnknownPost is returned when an engagement event references a post
	// URI that has not been ingested.
	ErrUnknownPost = errors.New("unknown post")

	// ErrInvalidCursor is returned for a pagination cursor that cannot be
	// parsed.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// RescoreFunc recomputes the velocity score and priority for a post given its
// current engagement counters. Implementations must be pure; the store calls
// this inside the transaction that applies an engagement event.
type RescoreFunc func(post *Post, eng *Engagement, authorFlagged bool, now time.Time) (velocity, priority float64)

// PostStore defines persistence operations for indexed posts.
type PostStore interface {
	// CreatePost inserts a new post with its derived fields. Inserting an
	// already-known URI is a no-op.
	CreatePost(ctx context.Context, post *Post) error

	// DeletePost removes a post by URI, cascading to its edges and cache row.
	DeletePost(ctx context.Context, uri string) error

	// GetPost retrieves a single post, or ErrUnknownPost.
	GetPost(ctx context.Context, uri string) (*Post, error)

	// GetFeedPage retrieves up to limit posts ordered by (priority desc,
	// timestamp desc, uri asc), strictly after the cursor position when a
	// cursor is given. Posts by flagged authors are excluded.
	GetFeedPage(ctx context.Context, limit int, cursor *FeedCursor) ([]Post, error)

	// RescorePosts recomputes priority for every post newer than cutoff,
	// refreshing recency decay. Returns the number of posts updated.
	RescorePosts(ctx context.Context, cutoff time.Time, rescore RescoreFunc) (int64, error)

	// DeleteOldPosts removes posts older than maxAge and any excess rows
	// beyond maxRows, keeping the most recent posts. Returns the number of
	// rows deleted.
	DeleteOldPosts(ctx context.Context, maxAge time.Duration, maxRows int) (int64, error)
}

// EngagementStore applies engagement events to the edge tables and the
// engagement cache.
type EngagementStore interface {
	// ApplyEvent atomically inserts the event's edge row, increments the
	// matching cache counter, and recomputes velocity and priority through
	// rescore, all in one transaction. Returns (false, nil) for a
	// re-delivered edge and ErrUnknownPost when the post is not ingested.
	ApplyEvent(ctx context.Context, ev *EngagementEvent, rescore RescoreFunc) (applied bool, err error)

	// GetEngagement reads the cache row for a post, or nil when the post has
	// no recorded engagement yet.
	GetEngagement(ctx context.Context, postURI string) (*Engagement, error)
}

// SpamStore tracks flagged accounts and the repost history spam detection
// runs over.
type SpamStore interface {
	// IsFlagged reports whether the DID is currently flagged.
	IsFlagged(ctx context.Context, did string) (bool, error)

	// FlagSpammer inserts a spammer row and zeroes the priority of the
	// account's posts. Returns false when the DID was already flagged, in
	// which case the existing row is left untouched.
	FlagSpammer(ctx context.Context, s *Spammer) (bool, error)

	// CountRecentReposts counts reposts by the DID since the given time.
	CountRecentReposts(ctx context.Context, did string, since time.Time) (int64, error)

	// RecentReposterDIDs lists the distinct accounts that reposted since the
	// given time, for periodic sweep detection.
	RecentReposterDIDs(ctx context.Context, since time.Time) ([]string, error)
}

// CursorStore defines persistence operations for firehose cursors.
type CursorStore interface {
	// GetCursor retrieves the last-processed firehose cursor for the given
	// service name. Returns 0 if no cursor has been saved.
	GetCursor(ctx context.Context, service string) (int64, error)

	// UpdateCursor persists the firehose cursor so we can resume on restart.
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}
