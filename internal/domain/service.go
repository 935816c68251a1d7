package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackmichael/devlog-feed/internal/scoring"
)

// NewRescoreFunc builds the pure recomputation applied whenever engagement,
// spam status, or age changes a post's derived fields. Both the per-event
// cache update and the periodic sweep go through this single function so the
// two paths cannot diverge.
func NewRescoreFunc(params scoring.Params) RescoreFunc {
	return func(post *Post, eng *Engagement, authorFlagged bool, now time.Time) (float64, float64) {
		age := now.Sub(post.Timestamp)
		velocity := params.Velocity(eng.LikeCount, eng.RepostCount, eng.ReplyCount, age)
		priority := params.Priority(scoring.PriorityInput{
			FinalScore:    post.FinalScore,
			Age:           age,
			Velocity:      velocity,
			PostType:      post.PostType,
			AuthorFlagged: authorFlagged,
		})
		return velocity, priority
	}
}

// CurationService is the core domain service. It owns scoring new posts into
// the store, serving ranked feed pages, and the background maintenance jobs.
type CurationService struct {
	params       scoring.Params
	promoDomains []string
	feedURI      string
	posts        PostStore
	spammers     SpamStore
	cursors      CursorStore
	logger       *slog.Logger
}

// NewCurationService creates a CurationService for a single published feed.
func NewCurationService(
	params scoring.Params,
	promoDomains []string,
	feedURI string,
	posts PostStore,
	spammers SpamStore,
	cursors CursorStore,
	logger *slog.Logger,
) *CurationService {
	return &CurationService{
		params:       params,
		promoDomains: promoDomains,
		feedURI:      feedURI,
		posts:        posts,
		spammers:     spammers,
		cursors:      cursors,
		logger:       logger,
	}
}

// FeedURI returns the AT-URI of the published feed.
func (s *CurationService) FeedURI() string {
	return s.feedURI
}

// ProcessNewPost scores and classifies an incoming post and persists it.
// Re-delivery of an already-indexed URI is a no-op. Posts by flagged authors
// are stored with priority 0 so they can never surface in ranking.
func (s *CurationService) ProcessNewPost(ctx context.Context, incoming *IncomingPost) (*Post, error) {
	flagged, err := s.spammers.IsFlagged(ctx, incoming.AuthorDID)
	if err != nil {
		return nil, fmt.Errorf("check spam flag: %w", err)
	}

	scores := incoming.Scores.Clamped()
	content := scoring.ExtractContentSignals(incoming.Text, incoming.Media, s.promoDomains)

	finalScore := s.params.FinalScore(scores)
	postType := s.params.ClassifyType(scoring.ClassifyInput{
		Scores:         scores,
		IsFirstPerson:  content.IsFirstPerson,
		LinkCount:      content.LinkCount,
		PromoLinkCount: content.PromoLinkCount,
	})

	post := &Post{
		URI:            incoming.URI,
		Text:           incoming.Text,
		Timestamp:      incoming.Timestamp.UTC(),
		AuthorDID:      incoming.AuthorDID,
		HasMedia:       content.HasMedia,
		IsFirstPerson:  content.IsFirstPerson,
		ImageCount:     content.ImageCount,
		HasAltText:     content.HasAltText,
		LinkCount:      content.LinkCount,
		PromoLinkCount: content.PromoLinkCount,
		Scores:         scores,
		FinalScore:     finalScore,
		Confidence:     s.params.ClassifyConfidence(scores),
		PostType:       postType,
		Priority: s.params.Priority(scoring.PriorityInput{
			FinalScore:    finalScore,
			Age:           time.Now().UTC().Sub(incoming.Timestamp),
			Velocity:      0,
			PostType:      postType,
			AuthorFlagged: flagged,
		}),
	}

	if err := s.posts.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// ProcessDeletePost removes a post by URI along with its edges and cache row.
func (s *CurationService) ProcessDeletePost(ctx context.Context, uri string) error {
	return s.posts.DeletePost(ctx, uri)
}

// GetFeed returns one ranked page and the cursor for the next. The cursor is
// opaque to callers; an empty string requests the first page.
func (s *CurationService) GetFeed(ctx context.Context, limit int, cursor string) (*FeedPage, error) {
	var pos *FeedCursor
	if cursor != "" {
		parsed, err := ParseFeedCursor(cursor)
		if err != nil {
			return nil, err
		}
		pos = parsed
	}

	posts, err := s.posts.GetFeedPage(ctx, limit, pos)
	if err != nil {
		return nil, fmt.Errorf("get feed page: %w", err)
	}

	page := &FeedPage{Items: make([]PostSummary, len(posts))}
	for i, p := range posts {
		page.Items[i] = PostSummary{
			URI:        p.URI,
			Text:       p.Text,
			Timestamp:  p.Timestamp,
			PostType:   p.PostType,
			Confidence: p.Confidence,
		}
	}

	if len(posts) == limit {
		last := posts[len(posts)-1]
		c := FeedCursor{Priority: last.Priority, Timestamp: last.Timestamp, URI: last.URI}
		page.Cursor = c.Encode()
	}
	return page, nil
}

// GetCursor retrieves the last-processed firehose cursor for the given service.
func (s *CurationService) GetCursor(ctx context.Context, service string) (int64, error) {
	return s.cursors.GetCursor(ctx, service)
}

// UpdateCursor persists the firehose cursor for the given service.
func (s *CurationService) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	return s.cursors.UpdateCursor(ctx, service, cursor)
}

// StartRescoreJob periodically recomputes priorities for live posts so
// recency decay stays fresh even for posts receiving no engagement. It blocks
// until ctx is cancelled.
func (s *CurationService) StartRescoreJob(ctx context.Context, interval time.Duration, maxAge time.Duration) {
	rescore := NewRescoreFunc(s.params)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-maxAge)
			updated, err := s.posts.RescorePosts(ctx, cutoff, rescore)
			if err != nil {
				s.logger.Error("priority rescore failed", "error", err)
			} else {
				s.logger.Debug("priority rescore complete", "updated", updated)
			}
		}
	}
}

// StartCleanupJob runs a background loop that removes posts older than maxAge
// and caps the total at maxRows. It runs immediately on start and then repeats
// at the given interval. It blocks until ctx is cancelled.
func (s *CurationService) StartCleanupJob(ctx context.Context, interval time.Duration, maxAge time.Duration, maxRows int) {
	s.runCleanup(ctx, maxAge, maxRows)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCleanup(ctx, maxAge, maxRows)
		}
	}
}

func (s *CurationService) runCleanup(ctx context.Context, maxAge time.Duration, maxRows int) {
	deleted, err := s.posts.DeleteOldPosts(ctx, maxAge, maxRows)
	if err != nil {
		s.logger.Error("post cleanup failed", "error", err)
	} else if deleted > 0 {
		s.logger.Info("post cleanup complete", "deleted", deleted)
	}
}
