package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blackmichael/devlog-feed/internal/domain"
)

// ApplyEvent records one engagement event: the edge insert, the cache counter
// increment, and the velocity/priority recompute all happen in a single
// transaction, so a failed update leaves the cache row unchanged and a feed
// read never observes a half-applied increment. Re-delivery of an edge whose
// natural key already exists returns (false, nil) without touching the cache.
func (s *Store) ApplyEvent(ctx context.Context, ev *domain.EngagementEvent, rescore domain.RescoreFunc) (bool, error) {
	tx, err := s.beginImmediate(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	post, err := getPostTx(ctx, tx, ev.PostURI)
	if err != nil {
		return false, err
	}

	inserted, err := insertEdge(ctx, tx, ev)
	if err != nil {
		return false, fmt.Errorf("insert %s edge: %w", ev.Kind, err)
	}
	if !inserted {
		return false, nil
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO engagement_cache (post_uri, last_updated)
		VALUES (?, ?)
		ON CONFLICT (post_uri) DO NOTHING`,
		ev.PostURI, now.UnixMilli(),
	); err != nil {
		return false, fmt.Errorf("ensure cache row: %w", err)
	}

	if column := counterColumn(ev.Kind); column != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE engagement_cache SET `+column+` = `+column+` + 1 WHERE post_uri = ?`,
			ev.PostURI,
		); err != nil {
			return false, fmt.Errorf("increment %s: %w", column, err)
		}
	}

	eng := domain.Engagement{PostURI: ev.PostURI}
	var lastUpdated int64
	if err := tx.QueryRowContext(ctx, `
		SELECT reply_count, repost_count, like_count, last_updated
		FROM engagement_cache WHERE post_uri = ?`,
		ev.PostURI,
	).Scan(&eng.ReplyCount, &eng.RepostCount, &eng.LikeCount, &lastUpdated); err != nil {
		return false, fmt.Errorf("read cache counters: %w", err)
	}

	flagged, err := isFlaggedTx(ctx, tx, post.AuthorDID)
	if err != nil {
		return false, err
	}

	velocity, priority := rescore(post, &eng, flagged, now)

	if _, err := tx.ExecContext(ctx, `
		UPDATE engagement_cache SET velocity_score = ?, last_updated = ? WHERE post_uri = ?`,
		velocity, now.UnixMilli(), ev.PostURI,
	); err != nil {
		return false, fmt.Errorf("update velocity: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE posts SET priority = ? WHERE uri = ?`, priority, ev.PostURI,
	); err != nil {
		return false, fmt.Errorf("update priority: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit engagement event: %w", err)
	}
	return true, nil
}

// GetEngagement reads the cache row for a post. Returns nil when the post has
// no recorded engagement yet.
func (s *Store) GetEngagement(ctx context.Context, postURI string) (*domain.Engagement, error) {
	eng := domain.Engagement{PostURI: postURI}
	var lastUpdated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT reply_count, repost_count, like_count, velocity_score, last_updated
		FROM engagement_cache WHERE post_uri = ?`,
		postURI,
	).Scan(&eng.ReplyCount, &eng.RepostCount, &eng.LikeCount, &eng.VelocityScore, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read engagement cache: %w", err)
	}
	eng.LastUpdated = time.UnixMilli(lastUpdated).UTC()
	return &eng, nil
}

func insertEdge(ctx context.Context, tx *sql.Tx, ev *domain.EngagementEvent) (bool, error) {
	var (
		res sql.Result
		err error
	)
	switch ev.Kind {
	case domain.KindLike:
		res, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO likes (post_uri, like_uri) VALUES (?, ?)`,
			ev.PostURI, ev.EdgeURI)
	case domain.KindRepost:
		res, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO reposts (post_uri, repost_uri, reposter_did, timestamp)
			VALUES (?, ?, ?, ?)`,
			ev.PostURI, ev.EdgeURI, ev.ActorDID, ev.Timestamp.UnixMilli())
	case domain.KindReply:
		res, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO replies (post_uri, reply_uri, author_did, timestamp)
			VALUES (?, ?, ?, ?)`,
			ev.PostURI, ev.EdgeURI, ev.ActorDID, ev.Timestamp.UnixMilli())
	case domain.KindInteraction:
		res, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO user_interactions (user_did, post_uri, interaction_type, created_at)
			VALUES (?, ?, ?, ?)`,
			ev.ActorDID, ev.PostURI, ev.InteractionType, ev.Timestamp.UnixMilli())
	default:
		return false, fmt.Errorf("unknown engagement kind %q", ev.Kind)
	}
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func counterColumn(kind domain.EngagementKind) string {
	switch kind {
	case domain.KindLike:
		return "like_count"
	case domain.KindRepost:
		return "repost_count"
	case domain.KindReply:
		return "reply_count"
	default:
		// Interactions are a signal source, not a cache counter.
		return ""
	}
}

func getPostTx(ctx context.Context, tx *sql.Tx, uri string) (*domain.Post, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE uri = ?`, uri)
	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrUnknownPost
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	return post, nil
}

func isFlaggedTx(ctx context.Context, tx *sql.Tx, did string) (bool, error) {
	if did == "" {
		return false, nil
	}
	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM spammers WHERE did = ?`, did,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("check spam flag: %w", err)
	}
	return n > 0, nil
}
