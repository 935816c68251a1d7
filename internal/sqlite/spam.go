package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/blackmichael/devlog-feed/internal/domain"
)

// IsFlagged reports whether the DID is currently in the spammers table.
func (s *Store) IsFlagged(ctx context.Context, did string) (bool, error) {
	if did == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM spammers WHERE did = ?`, did,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check spam flag: %w", err)
	}
	return n > 0, nil
}

// FlagSpammer inserts a spammer row and hard-suppresses the account's posts by
// zeroing their priority, in one transaction. An already-flagged DID is left
// untouched and reported as (false, nil); flags are sticky.
func (s *Store) FlagSpammer(ctx context.Context, spammer *domain.Spammer) (bool, error) {
	tx, err := s.beginImmediate(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO spammers (did, reason, repost_frequency, flagged_at, auto_detected)
		VALUES (?, ?, ?, ?, ?)`,
		spammer.DID,
		spammer.Reason,
		spammer.RepostFrequency,
		spammer.FlaggedAt.UnixMilli(),
		boolToInt(spammer.AutoDetected),
	)
	if err != nil {
		return false, fmt.Errorf("insert spammer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE posts SET priority = 0 WHERE author_did = ?`, spammer.DID,
	); err != nil {
		return false, fmt.Errorf("suppress flagged author posts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit spam flag: %w", err)
	}
	return true, nil
}

// CountRecentReposts counts reposts by the DID since the given time.
func (s *Store) CountRecentReposts(ctx context.Context, did string, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reposts WHERE reposter_did = ? AND timestamp > ?`,
		did, since.UnixMilli(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent reposts: %w", err)
	}
	return n, nil
}

// RecentReposterDIDs lists the distinct accounts with reposts since the given
// time, for sweep-mode spam detection.
func (s *Store) RecentReposterDIDs(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT reposter_did FROM reposts WHERE timestamp > ?`,
		since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query recent reposters: %w", err)
	}
	defer rows.Close()

	var dids []string
	for rows.Next() {
		var did string
		if err := rows.Scan(&did); err != nil {
			return nil, fmt.Errorf("scan reposter did: %w", err)
		}
		dids = append(dids, did)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reposters: %w", err)
	}
	return dids, nil
}
