package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/blackmichael/devlog-feed/internal/domain"
	"github.com/blackmichael/devlog-feed/internal/engagement"
	"github.com/blackmichael/devlog-feed/internal/metrics"
	"github.com/blackmichael/devlog-feed/internal/scoring"
	"github.com/gorilla/websocket"
)

const (
	cursorServiceName  = "jetstream"
	cursorSaveInterval = 5 * time.Second

	postCollection   = "app.bsky.feed.post"
	likeCollection   = "app.bsky.feed.like"
	repostCollection = "app.bsky.feed.repost"
)

// wantedCollections is the set of AT Proto collection NSIDs this subscriber
// requests from Jetstream. Posts feed scoring; likes and reposts feed the
// engagement cache.
var wantedCollections = []string{
	postCollection,
	likeCollection,
	repostCollection,
}

// Subscriber connects to the Jetstream firehose and processes events.
type Subscriber struct {
	url     string
	service *domain.CurationService
	tracker *engagement.Tracker
	logger  *slog.Logger
}

// NewSubscriber creates a new firehose subscriber.
func NewSubscriber(
	firehoseURL string,
	service *domain.CurationService,
	tracker *engagement.Tracker,
	logger *slog.Logger,
) *Subscriber {
	return &Subscriber{
		url:     firehoseURL,
		service: service,
		tracker: tracker,
		logger:  logger,
	}
}

// Start connects to the firehose and processes events until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				s.logger.Error("firehose connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(5 * time.Second):
					// backoff before reconnecting
				}
			}
		}
	}
}

// buildURL appends the wanted collections and resume cursor to the configured
// endpoint. The URL itself is validated at startup by config.Validate.
func (s *Subscriber) buildURL(cursor int64) string {
	u, err := url.Parse(s.url)
	if err != nil {
		return s.url
	}
	q := u.Query()
	for _, c := range wantedCollections {
		q.Add("wantedCollections", c)
	}
	if cursor > 0 {
		q.Set("cursor", fmt.Sprintf("%d", cursor))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	cursor, err := s.service.GetCursor(ctx, cursorServiceName)
	if err != nil {
		s.logger.Warn("failed to load cursor, starting from live", "error", err)
	}

	wsURL := s.buildURL(cursor)
	s.logger.Info("connecting to firehose", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial firehose: %w", err)
	}
	defer conn.Close()

	s.logger.Info("connected to firehose")

	lastCursorSave := time.Now()
	var latestCursor int64
	var eventsReceived, postsIndexed, engagementApplied int64
	lastStatsLog := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}

		eventsReceived++
		latestCursor = event.TimeUS

		if event.Kind == "commit" && event.Commit != nil {
			indexed, applied, err := s.handleCommit(ctx, event)
			if err != nil {
				s.logger.Error("failed to handle commit", "error", err)
			}
			if indexed {
				postsIndexed++
			}
			if applied {
				engagementApplied++
			}
		}

		// Log stats every 30 seconds
		if time.Since(lastStatsLog) >= 30*time.Second {
			s.logger.Info("firehose stats",
				"events_received", eventsReceived,
				"posts_indexed", postsIndexed,
				"engagement_applied", engagementApplied,
			)
			lastStatsLog = time.Now()
		}

		// Periodically save cursor
		if time.Since(lastCursorSave) >= cursorSaveInterval {
			if err := s.service.UpdateCursor(ctx, cursorServiceName, latestCursor); err != nil {
				s.logger.Error("failed to save cursor", "error", err)
			} else {
				lastCursorSave = time.Now()
			}
		}
	}
}

func (s *Subscriber) handleCommit(ctx context.Context, event *jetstreamEvent) (indexed, applied bool, err error) {
	commit := event.Commit
	uri := fmt.Sprintf("at://%s/%s/%s", event.DID, commit.Collection, commit.RKey)

	switch commit.Collection {
	case postCollection:
		switch commit.Operation {
		case "create":
			if commit.Post == nil {
				return false, false, nil
			}
			if commit.Post.Reply != nil {
				// Replies count as engagement on the parent, not as feed
				// candidates.
				return false, true, s.tracker.HandleEvent(ctx, &domain.EngagementEvent{
					Kind:      domain.KindReply,
					PostURI:   commit.Post.Reply.Parent.URI,
					EdgeURI:   uri,
					ActorDID:  event.DID,
					Timestamp: recordTime(commit.Post.CreatedAt, event.TimeUS),
				})
			}
			return true, false, s.handleNewPost(ctx, event, uri)

		case "delete":
			return false, false, s.service.ProcessDeletePost(ctx, uri)
		}

	case likeCollection:
		if commit.Operation != "create" || commit.Like == nil {
			// Edge records are insert-only; deletes are ignored.
			return false, false, nil
		}
		return false, true, s.tracker.HandleEvent(ctx, &domain.EngagementEvent{
			Kind:      domain.KindLike,
			PostURI:   commit.Like.Subject.URI,
			EdgeURI:   uri,
			ActorDID:  event.DID,
			Timestamp: recordTime(commit.Like.CreatedAt, event.TimeUS),
		})

	case repostCollection:
		if commit.Operation != "create" || commit.Repost == nil {
			return false, false, nil
		}
		return false, true, s.tracker.HandleEvent(ctx, &domain.EngagementEvent{
			Kind:      domain.KindRepost,
			PostURI:   commit.Repost.Subject.URI,
			EdgeURI:   uri,
			ActorDID:  event.DID,
			Timestamp: recordTime(commit.Repost.CreatedAt, event.TimeUS),
		})
	}

	return false, false, nil
}

func (s *Subscriber) handleNewPost(ctx context.Context, event *jetstreamEvent, uri string) error {
	record := event.Commit.Post

	incoming := &domain.IncomingPost{
		URI:       uri,
		AuthorDID: event.DID,
		Text:      record.Text,
		Timestamp: recordTime(record.CreatedAt, event.TimeUS),
		Media:     extractMedia(record),
	}
	if record.Scores != nil {
		incoming.Scores = scoring.ComponentScores{
			Keyword:        record.Scores.Keyword,
			Hashtag:        record.Scores.Hashtag,
			Semantic:       record.Scores.Semantic,
			Classification: record.Scores.Classification,
		}
	}

	post, err := s.service.ProcessNewPost(ctx, incoming)
	if err != nil {
		return err
	}

	metrics.PostsIndexed.Inc()
	s.logger.Debug("indexed post",
		"uri", uri,
		"post_type", post.PostType,
		"priority", post.Priority,
		"text_preview", truncate(record.Text, 100),
	)
	return nil
}

func extractMedia(record *postRecord) scoring.MediaInfo {
	media := scoring.MediaInfo{}
	if record.Embed != nil {
		media.ImageCount = len(record.Embed.Images)
		for _, img := range record.Embed.Images {
			if img.Alt != "" {
				media.HasAltText = true
				break
			}
		}
		media.HasVideo = record.Embed.Type == "app.bsky.embed.video"
		if record.Embed.External != nil {
			media.ExternalURI = record.Embed.External.URI
		}
	}
	for _, f := range record.Facets {
		for _, feature := range f.Features {
			if feature.Type == "app.bsky.richtext.facet#link" && feature.URI != "" {
				media.FacetLinks = append(media.FacetLinks, feature.URI)
			}
		}
	}
	return media
}

// recordTime parses the record's createdAt, falling back to the event's
// stream time when the record carries a garbage timestamp.
func recordTime(createdAt string, timeUS int64) time.Time {
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		return t.UTC()
	}
	return time.UnixMicro(timeUS).UTC()
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func parseEvent(data []byte) (*jetstreamEvent, error) {
	var raw struct {
		DID    string          `json:"did"`
		TimeUS int64           `json:"time_us"`
		Kind   string          `json:"kind"`
		Commit json.RawMessage `json:"commit,omitempty"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	event := &jetstreamEvent{
		DID:    raw.DID,
		TimeUS: raw.TimeUS,
		Kind:   raw.Kind,
	}

	if raw.Kind == "commit" && len(raw.Commit) > 0 {
		var rc struct {
			Rev        string          `json:"rev"`
			Operation  string          `json:"operation"`
			Collection string          `json:"collection"`
			RKey       string          `json:"rkey"`
			Record     json.RawMessage `json:"record,omitempty"`
			CID        string          `json:"cid"`
		}
		if err := json.Unmarshal(raw.Commit, &rc); err != nil {
			return nil, fmt.Errorf("unmarshal commit: %w", err)
		}

		commit := &jetstreamCommit{
			Rev:        rc.Rev,
			Operation:  rc.Operation,
			Collection: rc.Collection,
			RKey:       rc.RKey,
			CID:        rc.CID,
		}

		if len(rc.Record) > 0 {
			switch rc.Collection {
			case postCollection:
				var record postRecord
				if err := json.Unmarshal(rc.Record, &record); err != nil {
					return nil, fmt.Errorf("unmarshal post record: %w", err)
				}
				commit.Post = &record
			case likeCollection:
				var record likeRecord
				if err := json.Unmarshal(rc.Record, &record); err != nil {
					return nil, fmt.Errorf("unmarshal like record: %w", err)
				}
				commit.Like = &record
			case repostCollection:
				var record repostRecord
				if err := json.Unmarshal(rc.Record, &record); err != nil {
					return nil, fmt.Errorf("unmarshal repost record: %w", err)
				}
				commit.Repost = &record
			}
		}

		event.Commit = commit
	}

	return event, nil
}
