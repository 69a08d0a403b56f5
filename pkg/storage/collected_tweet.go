package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"xrepost/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

const collectedColumns = `id, user_id, source_type, source_value, tweet_id, tweet_text, created_at, staged_at, publish_attempts, last_error`

func scanCollected(row interface{ Scan(...any) error }) (models.CollectedTweet, error) {
	var (
		t         models.CollectedTweet
		createdAt sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.SourceType,
		&t.SourceValue,
		&t.TweetID,
		&t.TweetText,
		&createdAt,
		&t.StagedAt,
		&t.PublishAttempts,
		&t.LastError,
	)
	if createdAt.Valid {
		t.CreatedAt = &createdAt.Time
	}
	return t, err
}

// CountRecent counts what an account consumed since the given instant:
// tweets still staged plus tweets already published.
func (db *DB) CountRecent(ctx context.Context, userID int, since time.Time) (int, error) {
	var count int
	err := db.Conn.QueryRowContext(ctx, `
               SELECT
                   (SELECT COUNT(*) FROM collected_tweets WHERE user_id = $1 AND staged_at >= $2) +
                   (SELECT COUNT(*) FROM published_tweets WHERE user_id = $1 AND published_at >= $2)`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent tweets: %w", err)
	}
	return count, nil
}

// TweetExists reports whether the tweet is staged or was already published.
func (db *DB) TweetExists(ctx context.Context, tweetID string) (bool, error) {
	var exists bool
	err := db.Conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM collected_tweets WHERE tweet_id = $1)
                    OR EXISTS(SELECT 1 FROM published_tweets WHERE tweet_id = $1)`,
		tweetID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tweet %s: %w", tweetID, err)
	}
	return exists, nil
}

// InsertStaged stages a tweet. It returns false when another row with the
// same tweet id won the race.
func (db *DB) InsertStaged(ctx context.Context, t models.CollectedTweet) (bool, error) {
	var createdAt any
	if t.CreatedAt != nil {
		createdAt = *t.CreatedAt
	}
	res, err := db.Conn.ExecContext(ctx, `
               INSERT INTO collected_tweets (user_id, source_type, source_value, tweet_id, tweet_text, created_at)
               VALUES ($1, $2, $3, $4, $5, $6)
               ON CONFLICT (tweet_id) DO NOTHING`,
		t.UserID, t.SourceType, t.SourceValue, t.TweetID, t.TweetText, createdAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert staged tweet %s: %w", t.TweetID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert staged tweet %s: %w", t.TweetID, err)
	}
	return n == 1, nil
}

// DeleteStagedByTweetID drops a staging row whatever account owns it.
func (db *DB) DeleteStagedByTweetID(ctx context.Context, tweetID string) error {
	res, err := db.Conn.ExecContext(ctx, `DELETE FROM collected_tweets WHERE tweet_id = $1`, tweetID)
	if err != nil {
		return fmt.Errorf("delete staged tweet %s: %w", tweetID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPublished moves a staged tweet into the publication ledger.
func (db *DB) MarkPublished(ctx context.Context, tweetID string, userID int) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM collected_tweets WHERE tweet_id = $1 AND user_id = $2`, tweetID, userID); err != nil {
			return fmt.Errorf("delete staged tweet %s: %w", tweetID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO published_tweets (tweet_id, user_id) VALUES ($1, $2) ON CONFLICT (tweet_id) DO NOTHING`,
			tweetID, userID,
		); err != nil {
			return fmt.Errorf("record publication %s: %w", tweetID, err)
		}
		return nil
	})
}

// MarkPublishFailed records one more failed publish attempt.
func (db *DB) MarkPublishFailed(ctx context.Context, tweetID string, userID int, reason string) error {
	_, err := db.Conn.ExecContext(ctx, `
               UPDATE collected_tweets
               SET publish_attempts = publish_attempts + 1, last_attempt_at = NOW(), last_error = $3
               WHERE tweet_id = $1 AND user_id = $2`,
		tweetID, userID, reason,
	)
	if err != nil {
		return fmt.Errorf("mark publish failure %s: %w", tweetID, err)
	}
	return nil
}

// ListRetryable returns staged tweets of an account that may be published
// again: under the attempt cap and untouched since before.
func (db *DB) ListRetryable(ctx context.Context, userID, maxAttempts int, before time.Time) ([]models.CollectedTweet, error) {
	rows, err := db.Conn.QueryContext(ctx, `
               SELECT `+collectedColumns+`
               FROM collected_tweets
               WHERE user_id = $1 AND publish_attempts < $2 AND COALESCE(last_attempt_at, staged_at) <= $3
               ORDER BY staged_at`,
		userID, maxAttempts, before,
	)
	if err != nil {
		return nil, fmt.Errorf("list retryable tweets: %w", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

// ExpireStaged evicts staged tweets that used up their attempts or were
// staged before the cutoff. It returns the evicted tweet ids.
// Evicted tweets move to the ledger at their staging time, so they keep
// counting against the rate window and are never collected again.
func (db *DB) ExpireStaged(ctx context.Context, userID, maxAttempts int, stagedBefore time.Time) ([]string, error) {
	rows, err := db.Conn.QueryContext(ctx, `
               WITH gone AS (
                   DELETE FROM collected_tweets
                   WHERE user_id = $1 AND (publish_attempts >= $2 OR staged_at < $3)
                   RETURNING tweet_id, user_id, staged_at
               ), ledgered AS (
                   INSERT INTO published_tweets (tweet_id, user_id, published_at, outcome)
                   SELECT tweet_id, user_id, staged_at, 'evicted' FROM gone
                   ON CONFLICT (tweet_id) DO NOTHING
               )
               SELECT tweet_id FROM gone ORDER BY tweet_id`,
		userID, maxAttempts, stagedBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("expire staged tweets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired tweet: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RequeueStaged resets the attempt counter so the next run retries it.
// staged_at is kept, so the row stays in the rate window it was counted in.
func (db *DB) RequeueStaged(ctx context.Context, tweetID string) error {
	res, err := db.Conn.ExecContext(ctx, `
               UPDATE collected_tweets
               SET publish_attempts = 0, last_attempt_at = NULL, last_error = ''
               WHERE tweet_id = $1`, tweetID)
	if err != nil {
		return fmt.Errorf("requeue tweet %s: %w", tweetID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStaged returns the newest staged tweets, optionally for some accounts only.
func (db *DB) ListStaged(ctx context.Context, userIDs []int, limit int) ([]models.CollectedTweet, error) {
	builder := psql.Select(collectedColumns).From("collected_tweets").OrderBy("staged_at DESC", "id DESC")
	if len(userIDs) > 0 {
		builder = builder.Where("user_id = ANY(?)", pq.Array(userIDs))
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build staged listing: %w", err)
	}

	rows, err := db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list staged tweets: %w", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

// PrunePublications forgets ledger rows older than before.
func (db *DB) PrunePublications(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := psql.Delete("published_tweets").Where(sq.Lt{"published_at": before}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build ledger prune: %w", err)
	}
	res, err := db.Conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune publications: %w", err)
	}
	return res.RowsAffected()
}

func collectRows(rows *sql.Rows) ([]models.CollectedTweet, error) {
	var out []models.CollectedTweet
	for rows.Next() {
		t, err := scanCollected(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staged tweet: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
