package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// ListMonitoredHandles returns the handles watched for an account.
// An unknown account yields an empty list.
func (db *DB) ListMonitoredHandles(ctx context.Context, userID int) ([]string, error) {
	return db.listStrings(ctx, `SELECT twitter_username FROM monitored_users WHERE user_id = $1 ORDER BY id`, userID)
}

// ListMonitoredKeywords returns the keywords watched for an account.
func (db *DB) ListMonitoredKeywords(ctx context.Context, userID int) ([]string, error) {
	return db.listStrings(ctx, `SELECT keyword FROM user_keywords WHERE user_id = $1 ORDER BY id`, userID)
}

func (db *DB) listStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query monitored sources: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan monitored source: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// replaceMonitored swaps the whole list of one monitored kind for an account.
// table and column are package constants, never user input.
func replaceMonitored(ctx context.Context, tx *sql.Tx, table, column string, userID int, values []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if len(values) == 0 {
		return nil
	}
	query := `INSERT INTO ` + table + ` (user_id, ` + column + `)
               SELECT $1, v FROM unnest($2::text[]) AS v
               ON CONFLICT DO NOTHING`
	if _, err := tx.ExecContext(ctx, query, userID, pq.Array(values)); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}
