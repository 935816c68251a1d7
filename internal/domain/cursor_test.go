package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedCursorRoundtrip(t *testing.T) {
	original := FeedCursor{
		Priority:  0.36787944117144233,
		Timestamp: time.UnixMilli(1764547200123).UTC(),
		URI:       "at://did:plc:abc/app.bsky.feed.post/3l3qo2vuowo2b",
	}

	parsed, err := ParseFeedCursor(original.Encode())
	require.NoError(t, err)

	assert.Equal(t, original.Priority, parsed.Priority)
	assert.True(t, original.Timestamp.Equal(parsed.Timestamp))
	assert.Equal(t, original.URI, parsed.URI)
}

func TestFeedCursorRoundtripZeroPriority(t *testing.T) {
	original := FeedCursor{
		Priority:  0,
		Timestamp: time.UnixMilli(1700000000000).UTC(),
		URI:       "at://did:plc:abc/app.bsky.feed.post/xyz",
	}

	parsed, err := ParseFeedCursor(original.Encode())
	require.NoError(t, err)
	assert.Zero(t, parsed.Priority)
}

func TestParseFeedCursorInvalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"empty", ""},
		{"missing separators", "0.5"},
		{"one separator", "0.5::123"},
		{"bad priority", "high::123::at://x"},
		{"bad timestamp", "0.5::soon::at://x"},
		{"empty uri", "0.5::123::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFeedCursor(tt.cursor)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

func TestFeedCursorURIMayContainColons(t *testing.T) {
	// AT-URIs contain single colons; only the double-colon separator splits.
	c := FeedCursor{
		Priority:  0.25,
		Timestamp: time.UnixMilli(1700000000000).UTC(),
		URI:       "at://did:plc:abc/app.bsky.feed.post/rkey",
	}
	parsed, err := ParseFeedCursor(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c.URI, parsed.URI)
}
