package domain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/blackmichael/devlog-feed/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePostStore struct {
	posts map[string]*Post
	page  []Post
}

func newFakePostStore() *fakePostStore {
	return &fakePostStore{posts: make(map[string]*Post)}
}

func (f *fakePostStore) CreatePost(_ context.Context, post *Post) error {
	if _, ok := f.posts[post.URI]; ok {
		return nil
	}
	clone := *post
	f.posts[post.URI] = &clone
	return nil
}

func (f *fakePostStore) DeletePost(_ context.Context, uri string) error {
	delete(f.posts, uri)
	return nil
}

func (f *fakePostStore) GetPost(_ context.Context, uri string) (*Post, error) {
	post, ok := f.posts[uri]
	if !ok {
		return nil, ErrUnknownPost
	}
	return post, nil
}

func (f *fakePostStore) GetFeedPage(_ context.Context, limit int, _ *FeedCursor) ([]Post, error) {
	if len(f.page) > limit {
		return f.page[:limit], nil
	}
	return f.page, nil
}

func (f *fakePostStore) RescorePosts(context.Context, time.Time, RescoreFunc) (int64, error) {
	return 0, nil
}

func (f *fakePostStore) DeleteOldPosts(context.Context, time.Duration, int) (int64, error) {
	return 0, nil
}

type fakeSpamStore struct {
	flagged map[string]bool
}

func (f *fakeSpamStore) IsFlagged(_ context.Context, did string) (bool, error) {
	return f.flagged[did], nil
}

func (f *fakeSpamStore) FlagSpammer(_ context.Context, s *Spammer) (bool, error) {
	if f.flagged[s.DID] {
		return false, nil
	}
	f.flagged[s.DID] = true
	return true, nil
}

func (f *fakeSpamStore) CountRecentReposts(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeSpamStore) RecentReposterDIDs(context.Context, time.Time) ([]string, error) {
	return nil, nil
}

type fakeCursorStore struct {
	cursors map[string]int64
}

func (f *fakeCursorStore) GetCursor(_ context.Context, service string) (int64, error) {
	return f.cursors[service], nil
}

func (f *fakeCursorStore) UpdateCursor(_ context.Context, service string, cursor int64) error {
	f.cursors[service] = cursor
	return nil
}

func testService(posts *fakePostStore, spammers *fakeSpamStore) *CurationService {
	params := scoring.Params{
		Weights:           scoring.Weights{Keyword: 0.25, Hashtag: 0.25, Semantic: 0.25, Classification: 0.25},
		DevlogThreshold:   0.5,
		HighSpread:        0.15,
		LowSpread:         0.40,
		HalfLife:          24 * time.Hour,
		VelocityBoost:     0.1,
		VelocityMax:       5.0,
		PromoPenalty:      0.5,
		EngagementWeights: scoring.EngagementWeights{Like: 1, Repost: 2, Reply: 3},

		VelocityAgeFloorHours: 0.5,
	}
	return NewCurationService(
		params,
		[]string{"store.steampowered.com", "itch.io"},
		"at://did:plc:pub/app.bsky.feed.generator/devlog-progress",
		posts,
		spammers,
		&fakeCursorStore{cursors: make(map[string]int64)},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestProcessNewPostDerivesFields(t *testing.T) {
	posts := newFakePostStore()
	svc := testService(posts, &fakeSpamStore{flagged: map[string]bool{}})

	post, err := svc.ProcessNewPost(context.Background(), &IncomingPost{
		URI:       "at://did:plc:author/app.bsky.feed.post/1",
		AuthorDID: "did:plc:author",
		Text:      "I finally fixed the water shader in my engine",
		Timestamp: time.Now().UTC(),
		Scores: scoring.ComponentScores{
			Keyword:        0.9,
			Hashtag:        0.8,
			Semantic:       0.85,
			Classification: 0.9,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, scoring.PostTypeDevlog, post.PostType)
	assert.Equal(t, scoring.ConfidenceHigh, post.Confidence)
	assert.InDelta(t, 0.8625, post.FinalScore, 1e-9)
	assert.True(t, post.IsFirstPerson)
	assert.Greater(t, post.Priority, 0.0)

	stored, err := posts.GetPost(context.Background(), post.URI)
	require.NoError(t, err)
	assert.Equal(t, post.FinalScore, stored.FinalScore)
}

func TestProcessNewPostClampsScores(t *testing.T) {
	posts := newFakePostStore()
	svc := testService(posts, &fakeSpamStore{flagged: map[string]bool{}})

	post, err := svc.ProcessNewPost(context.Background(), &IncomingPost{
		URI:       "at://did:plc:author/app.bsky.feed.post/2",
		AuthorDID: "did:plc:author",
		Text:      "hello",
		Timestamp: time.Now().UTC(),
		Scores:    scoring.ComponentScores{Keyword: 2.5, Hashtag: -1, Semantic: 0.5, Classification: 0.5},
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, post.Scores.Keyword)
	assert.Equal(t, 0.0, post.Scores.Hashtag)
}

func TestProcessNewPostFlaggedAuthorGetsZeroPriority(t *testing.T) {
	posts := newFakePostStore()
	svc := testService(posts, &fakeSpamStore{flagged: map[string]bool{"did:plc:spammer": true}})

	post, err := svc.ProcessNewPost(context.Background(), &IncomingPost{
		URI:       "at://did:plc:spammer/app.bsky.feed.post/1",
		AuthorDID: "did:plc:spammer",
		Text:      "I made a great thing",
		Timestamp: time.Now().UTC(),
		Scores:    scoring.ComponentScores{Keyword: 1, Hashtag: 1, Semantic: 1, Classification: 1},
	})
	require.NoError(t, err)
	assert.Zero(t, post.Priority)
}

func TestProcessNewPostClassifiesPromo(t *testing.T) {
	posts := newFakePostStore()
	svc := testService(posts, &fakeSpamStore{flagged: map[string]bool{}})

	post, err := svc.ProcessNewPost(context.Background(), &IncomingPost{
		URI:       "at://did:plc:author/app.bsky.feed.post/3",
		AuthorDID: "did:plc:author",
		Text:      "Wishlist now!",
		Timestamp: time.Now().UTC(),
		Scores:    scoring.ComponentScores{Keyword: 0.8, Hashtag: 0.8, Semantic: 0.8, Classification: 0.8},
		Media: scoring.MediaInfo{FacetLinks: []string{
			"https://store.steampowered.com/app/1",
			"https://mygame.itch.io/demo",
			"https://itch.io/jam/entry",
			"https://example.com/devlog",
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, scoring.PostTypePromotional, post.PostType)
	assert.Equal(t, 4, post.LinkCount)
	assert.Equal(t, 3, post.PromoLinkCount)
	// Promotional priority carries the penalty multiplier.
	assert.InDelta(t, 0.8*0.5, post.Priority, 1e-6)
}

func TestGetFeedEmitsCursorOnFullPage(t *testing.T) {
	posts := newFakePostStore()
	svc := testService(posts, &fakeSpamStore{flagged: map[string]bool{}})

	now := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		posts.page = append(posts.page, Post{
			URI:       fmt.Sprintf("at://did:plc:a/app.bsky.feed.post/%d", i),
			Timestamp: now.Add(-time.Duration(i) * time.Minute),
			Priority:  0.9 - float64(i)*0.1,
		})
	}

	page, err := svc.GetFeed(context.Background(), 3, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	require.NotEmpty(t, page.Cursor)

	parsed, err := ParseFeedCursor(page.Cursor)
	require.NoError(t, err)
	last := posts.page[2]
	assert.Equal(t, last.URI, parsed.URI)
	assert.InDelta(t, last.Priority, parsed.Priority, 1e-12)
	assert.True(t, last.Timestamp.Equal(parsed.Timestamp))
}

func TestGetFeedOmitsCursorOnShortPage(t *testing.T) {
	posts := newFakePostStore()
	svc := testService(posts, &fakeSpamStore{flagged: map[string]bool{}})
	posts.page = []Post{{URI: "at://did:plc:a/app.bsky.feed.post/only"}}

	page, err := svc.GetFeed(context.Background(), 10, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Empty(t, page.Cursor)
}

func TestGetFeedRejectsMalformedCursor(t *testing.T) {
	svc := testService(newFakePostStore(), &fakeSpamStore{flagged: map[string]bool{}})

	_, err := svc.GetFeed(context.Background(), 10, "not-a-cursor")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
