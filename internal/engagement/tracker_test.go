package engagement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/blackmichael/devlog-feed/internal/domain"
	"github.com/blackmichael/devlog-feed/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngagementStore tracks applied edges in memory and mimics the store's
// contract: ErrUnknownPost for unindexed posts, (false, nil) for duplicates.
// Setting failures injects that many transient errors before calls succeed.
type fakeEngagementStore struct {
	knownPosts map[string]bool
	edges      map[string]bool
	applied    int
	calls      int
	failures   int
	failErr    error
}

func newFakeEngagementStore(posts ...string) *fakeEngagementStore {
	known := make(map[string]bool, len(posts))
	for _, p := range posts {
		known[p] = true
	}
	return &fakeEngagementStore{knownPosts: known, edges: make(map[string]bool)}
}

func (f *fakeEngagementStore) ApplyEvent(_ context.Context, ev *domain.EngagementEvent, _ domain.RescoreFunc) (bool, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return false, f.failErr
	}
	if !f.knownPosts[ev.PostURI] {
		return false, domain.ErrUnknownPost
	}
	key := fmt.Sprintf("%s|%s|%s|%s", ev.Kind, ev.PostURI, ev.EdgeURI, ev.InteractionType)
	if f.edges[key] {
		return false, nil
	}
	f.edges[key] = true
	f.applied++
	return true, nil
}

func (f *fakeEngagementStore) GetEngagement(context.Context, string) (*domain.Engagement, error) {
	return nil, nil
}

func newTestTracker(store domain.EngagementStore, bufferWindow time.Duration) *Tracker {
	return NewTracker(store, nil, scoring.Params{}, bufferWindow, 100, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func likeEvent(postURI, edgeURI string) *domain.EngagementEvent {
	return &domain.EngagementEvent{
		Kind:      domain.KindLike,
		PostURI:   postURI,
		EdgeURI:   edgeURI,
		ActorDID:  "did:plc:liker",
		Timestamp: time.Now().UTC(),
	}
}

func TestHandleEventApplies(t *testing.T) {
	store := newFakeEngagementStore("at://did:plc:a/app.bsky.feed.post/1")
	tracker := newTestTracker(store, time.Minute)

	err := tracker.HandleEvent(context.Background(), likeEvent("at://did:plc:a/app.bsky.feed.post/1", "at://like/1"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.applied)
	assert.Zero(t, tracker.PendingCount())
}

func TestHandleEventDuplicateIsSilent(t *testing.T) {
	store := newFakeEngagementStore("at://did:plc:a/app.bsky.feed.post/1")
	tracker := newTestTracker(store, time.Minute)

	ev := likeEvent("at://did:plc:a/app.bsky.feed.post/1", "at://like/1")
	require.NoError(t, tracker.HandleEvent(context.Background(), ev))
	require.NoError(t, tracker.HandleEvent(context.Background(), ev))

	assert.Equal(t, 1, store.applied)
}

func TestHandleEventBuffersUnknownPost(t *testing.T) {
	store := newFakeEngagementStore()
	tracker := newTestTracker(store, time.Minute)

	err := tracker.HandleEvent(context.Background(), likeEvent("at://did:plc:a/app.bsky.feed.post/1", "at://like/1"))
	require.NoError(t, err)
	assert.Equal(t, 1, tracker.PendingCount())
	assert.Zero(t, store.applied)
}

func TestHandleEventRetriesTransientStorageFailure(t *testing.T) {
	store := newFakeEngagementStore("at://did:plc:a/app.bsky.feed.post/1")
	store.failures = 2
	store.failErr = errors.New("database is locked")
	tracker := newTestTracker(store, time.Minute)

	err := tracker.HandleEvent(context.Background(), likeEvent("at://did:plc:a/app.bsky.feed.post/1", "at://like/1"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.applied)
	assert.Equal(t, 3, store.calls)
}

func TestHandleEventEscalatesWhenRetriesExhaust(t *testing.T) {
	store := newFakeEngagementStore("at://did:plc:a/app.bsky.feed.post/1")
	store.failures = 10
	store.failErr = errors.New("disk I/O error")
	tracker := newTestTracker(store, time.Minute)

	err := tracker.HandleEvent(context.Background(), likeEvent("at://did:plc:a/app.bsky.feed.post/1", "at://like/1"))
	require.Error(t, err)
	assert.Equal(t, applyAttempts, store.calls)
	assert.Zero(t, store.applied)
}

func TestFlushPendingAppliesAfterPostArrives(t *testing.T) {
	store := newFakeEngagementStore()
	tracker := newTestTracker(store, time.Minute)

	uri := "at://did:plc:a/app.bsky.feed.post/1"
	require.NoError(t, tracker.HandleEvent(context.Background(), likeEvent(uri, "at://like/1")))
	require.Equal(t, 1, tracker.PendingCount())

	// Post arrives out of order, then the flush succeeds.
	store.knownPosts[uri] = true
	tracker.FlushPending(context.Background())

	assert.Equal(t, 1, store.applied)
	assert.Zero(t, tracker.PendingCount())
}

func TestFlushPendingKeepsEventsBeforeDeadline(t *testing.T) {
	store := newFakeEngagementStore()
	tracker := newTestTracker(store, time.Hour)

	require.NoError(t, tracker.HandleEvent(context.Background(), likeEvent("at://did:plc:a/app.bsky.feed.post/1", "at://like/1")))
	tracker.FlushPending(context.Background())

	// The post never arrived but the deadline is far away; keep retrying.
	assert.Equal(t, 1, tracker.PendingCount())
}

func TestFlushPendingRebuffersOnStorageFailure(t *testing.T) {
	store := newFakeEngagementStore()
	tracker := newTestTracker(store, time.Hour)

	uri := "at://did:plc:a/app.bsky.feed.post/1"
	require.NoError(t, tracker.HandleEvent(context.Background(), likeEvent(uri, "at://like/1")))

	// The post arrives, but the flush hits a persistent transient error. The
	// event must survive for the next flush rather than being dropped.
	store.knownPosts[uri] = true
	store.failures = applyAttempts
	store.failErr = errors.New("database is locked")
	tracker.FlushPending(context.Background())
	require.Equal(t, 1, tracker.PendingCount())

	tracker.FlushPending(context.Background())
	assert.Equal(t, 1, store.applied)
	assert.Zero(t, tracker.PendingCount())
}

func TestFlushPendingDropsExpiredEvents(t *testing.T) {
	store := newFakeEngagementStore()
	tracker := newTestTracker(store, -time.Second)

	require.NoError(t, tracker.HandleEvent(context.Background(), likeEvent("at://did:plc:a/app.bsky.feed.post/1", "at://like/1")))
	tracker.FlushPending(context.Background())

	assert.Zero(t, tracker.PendingCount())
	assert.Zero(t, store.applied)
}

func TestBufferCapDropsOldest(t *testing.T) {
	store := newFakeEngagementStore()
	tracker := NewTracker(store, nil, scoring.Params{}, time.Hour, 3, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < 5; i++ {
		uri := fmt.Sprintf("at://did:plc:a/app.bsky.feed.post/%d", i)
		require.NoError(t, tracker.HandleEvent(context.Background(), likeEvent(uri, fmt.Sprintf("at://like/%d", i))))
	}
	require.Equal(t, 3, tracker.PendingCount())

	// Only the newest three survive; the evicted two stay lost even after
	// their posts arrive.
	for i := 0; i < 5; i++ {
		store.knownPosts[fmt.Sprintf("at://did:plc:a/app.bsky.feed.post/%d", i)] = true
	}
	tracker.FlushPending(context.Background())

	assert.Equal(t, 3, store.applied)
	for i := 2; i < 5; i++ {
		key := fmt.Sprintf("%s|at://did:plc:a/app.bsky.feed.post/%d|at://like/%d|", domain.KindLike, i, i)
		assert.Contains(t, store.edges, key)
	}
}
