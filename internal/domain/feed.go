package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/blackmichael/devlog-feed/internal/scoring"
)

// PostSummary is a single entry in a served feed page.
type PostSummary struct {
	URI        string
	Text       string
	Timestamp  time.Time
	PostType   scoring.PostType
	Confidence scoring.Confidence
}

// FeedPage is one page of the ranked feed plus the cursor for the next page.
// An empty cursor means there are no more results.
type FeedPage struct {
	Items  []PostSummary
	Cursor string
}

// FeedCursor is the decoded pagination position: the composite sort key
// (priority desc, timestamp desc, uri asc) of the last item returned.
// Subsequent pages use a strictly-after predicate on this key, which keeps
// pagination stable while priorities of other posts drift between requests.
type FeedCursor struct {
	Priority  float64
	Timestamp time.Time
	URI       string
}

// Encode serializes the cursor as "priority::timestampMillis::uri".
func (c *FeedCursor) Encode() string {
	return fmt.Sprintf("%s::%d::%s",
		strconv.FormatFloat(c.Priority, 'g', -1, 64),
		c.Timestamp.UnixMilli(),
		c.URI,
	)
}

// ParseFeedCursor decodes a cursor produced by Encode. Returns
// ErrInvalidCursor wrapped with detail on malformed input.
func ParseFeedCursor(cursor string) (*FeedCursor, error) {
	parts := strings.SplitN(cursor, "::", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 'priority::timestamp::uri'", ErrInvalidCursor)
	}
	priority, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad priority: %v", ErrInvalidCursor, err)
	}
	millis, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp: %v", ErrInvalidCursor, err)
	}
	if parts[2] == "" {
		return nil, fmt.Errorf("%w: empty uri", ErrInvalidCursor)
	}
	return &FeedCursor{
		Priority:  priority,
		Timestamp: time.UnixMilli(millis).UTC(),
		URI:       parts[2],
	}, nil
}
