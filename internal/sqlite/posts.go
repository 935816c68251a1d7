package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/blackmichael/devlog-feed/internal/domain"
	"github.com/blackmichael/devlog-feed/internal/scoring"
)

const postColumns = `uri, text, timestamp, author_did, has_media, is_first_person, image_count, has_alt_text, link_count, promo_link_count, keyword_score, hashtag_score, semantic_score, classification_score, final_score, priority, confidence, post_type`

// CreatePost inserts a new post. Re-delivery of an already-indexed URI is a
// no-op.
func (s *Store) CreatePost(ctx context.Context, post *domain.Post) error {
	query := `
		INSERT INTO posts (` + postColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uri) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		post.URI,
		post.Text,
		post.Timestamp.UnixMilli(),
		nullString(post.AuthorDID),
		boolToInt(post.HasMedia),
		boolToInt(post.IsFirstPerson),
		post.ImageCount,
		boolToInt(post.HasAltText),
		post.LinkCount,
		post.PromoLinkCount,
		post.Scores.Keyword,
		post.Scores.Hashtag,
		post.Scores.Semantic,
		post.Scores.Classification,
		post.FinalScore,
		post.Priority,
		string(post.Confidence),
		string(post.PostType),
	)
	return err
}

// DeletePost removes a post by URI. Edge rows and the engagement cache row
// cascade.
func (s *Store) DeletePost(ctx context.Context, uri string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE uri = ?`, uri)
	return err
}

// GetPost retrieves a single post by URI.
func (s *Store) GetPost(ctx context.Context, uri string) (*domain.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE uri = ?`, uri)
	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrUnknownPost
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	return post, nil
}

// GetFeedPage retrieves posts ordered by (priority desc, timestamp desc,
// uri asc), strictly after the cursor position. Posts by flagged authors are
// excluded regardless of their stored priority.
func (s *Store) GetFeedPage(ctx context.Context, limit int, cursor *domain.FeedCursor) ([]domain.Post, error) {
	var (
		rows *sql.Rows
		err  error
	)

	notSpam := `NOT EXISTS (SELECT 1 FROM spammers sp WHERE sp.did = p.author_did)`
	order := `ORDER BY p.priority DESC, p.timestamp DESC, p.uri ASC`

	if cursor != nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+prefixed(postColumns)+`
			FROM posts p
			WHERE `+notSpam+`
			  AND (p.priority < ?
			    OR (p.priority = ? AND p.timestamp < ?)
			    OR (p.priority = ? AND p.timestamp = ? AND p.uri > ?))
			`+order+`
			LIMIT ?`,
			cursor.Priority,
			cursor.Priority, cursor.Timestamp.UnixMilli(),
			cursor.Priority, cursor.Timestamp.UnixMilli(), cursor.URI,
			limit,
		)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+prefixed(postColumns)+`
			FROM posts p
			WHERE `+notSpam+`
			`+order+`
			LIMIT ?`,
			limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query feed page (limit=%d): %w", limit, err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// RescorePosts recomputes velocity and priority for every post newer than
// cutoff, joining the current engagement cache and spam flags. Runs in a
// single transaction so a feed read never observes a half-applied sweep row.
func (s *Store) RescorePosts(ctx context.Context, cutoff time.Time, rescore domain.RescoreFunc) (int64, error) {
	tx, err := s.beginImmediate(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+prefixed(postColumns)+`,
			COALESCE(e.reply_count, 0), COALESCE(e.repost_count, 0), COALESCE(e.like_count, 0),
			EXISTS (SELECT 1 FROM spammers sp WHERE sp.did = p.author_did)
		FROM posts p
		LEFT JOIN engagement_cache e ON e.post_uri = p.uri
		WHERE p.timestamp > ?`,
		cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("query posts for rescore: %w", err)
	}

	type rescored struct {
		uri      string
		priority float64
	}

	now := time.Now().UTC()
	var updates []rescored
	for rows.Next() {
		post, eng, flagged, err := scanPostWithEngagement(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan post for rescore: %w", err)
		}
		_, priority := rescore(post, eng, flagged, now)
		if priority != post.Priority {
			updates = append(updates, rescored{uri: post.URI, priority: priority})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate posts for rescore: %w", err)
	}
	rows.Close()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx,
			`UPDATE posts SET priority = ? WHERE uri = ?`, u.priority, u.uri); err != nil {
			return 0, fmt.Errorf("update priority for %s: %w", u.uri, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit rescore: %w", err)
	}
	return int64(len(updates)), nil
}

// DeleteOldPosts removes posts older than maxAge and any excess rows beyond
// maxRows, keeping the most recent posts. Returns the total number of rows deleted.
func (s *Store) DeleteOldPosts(ctx context.Context, maxAge time.Duration, maxRows int) (int64, error) {
	tx, err := s.beginImmediate(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM posts WHERE timestamp < ?`,
		time.Now().UTC().Add(-maxAge).UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired posts: %w", err)
	}
	ttlDeleted, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `
		DELETE FROM posts WHERE uri IN (
			SELECT uri FROM posts
			ORDER BY timestamp DESC, uri ASC
			LIMIT -1 OFFSET ?
		)`, maxRows,
	)
	if err != nil {
		return 0, fmt.Errorf("delete excess posts: %w", err)
	}
	capDeleted, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cleanup: %w", err)
	}
	return ttlDeleted + capDeleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*domain.Post, error) {
	var (
		p          domain.Post
		millis     int64
		author     sql.NullString
		hasMedia   int
		firstPers  int
		hasAlt     int
		confidence string
		postType   string
	)
	err := row.Scan(
		&p.URI, &p.Text, &millis, &author,
		&hasMedia, &firstPers, &p.ImageCount, &hasAlt, &p.LinkCount, &p.PromoLinkCount,
		&p.Scores.Keyword, &p.Scores.Hashtag, &p.Scores.Semantic, &p.Scores.Classification,
		&p.FinalScore, &p.Priority, &confidence, &postType,
	)
	if err != nil {
		return nil, err
	}
	p.Timestamp = time.UnixMilli(millis).UTC()
	p.AuthorDID = author.String
	p.HasMedia = hasMedia != 0
	p.IsFirstPerson = firstPers != 0
	p.HasAltText = hasAlt != 0
	p.Confidence = scoring.Confidence(confidence)
	p.PostType = scoring.PostType(postType)
	return &p, nil
}

func scanPostWithEngagement(row rowScanner) (*domain.Post, *domain.Engagement, bool, error) {
	var (
		p          domain.Post
		millis     int64
		author     sql.NullString
		hasMedia   int
		firstPers  int
		hasAlt     int
		confidence string
		postType   string
		eng        domain.Engagement
		flagged    int
	)
	err := row.Scan(
		&p.URI, &p.Text, &millis, &author,
		&hasMedia, &firstPers, &p.ImageCount, &hasAlt, &p.LinkCount, &p.PromoLinkCount,
		&p.Scores.Keyword, &p.Scores.Hashtag, &p.Scores.Semantic, &p.Scores.Classification,
		&p.FinalScore, &p.Priority, &confidence, &postType,
		&eng.ReplyCount, &eng.RepostCount, &eng.LikeCount,
		&flagged,
	)
	if err != nil {
		return nil, nil, false, err
	}
	p.Timestamp = time.UnixMilli(millis).UTC()
	p.AuthorDID = author.String
	p.HasMedia = hasMedia != 0
	p.IsFirstPerson = firstPers != 0
	p.HasAltText = hasAlt != 0
	p.Confidence = scoring.Confidence(confidence)
	p.PostType = scoring.PostType(postType)
	eng.PostURI = p.URI
	return &p, &eng, flagged != 0, nil
}

func prefixed(columns string) string {
	return "p." + strings.ReplaceAll(columns, ", ", ", p.")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
