package storage

import (
	"context"
	"database/sql"
	"fmt"

	"xrepost/models"

	sq "github.com/Masterminds/squirrel"
)

// MaxLogLimit caps a single log listing.
const MaxLogLimit = 500

// AppendAuditLog records an audit event. userID 0 stores a system event.
func (db *DB) AppendAuditLog(ctx context.Context, userID int, level, message string) error {
	var uid any
	if userID > 0 {
		uid = userID
	}
	_, err := db.Conn.ExecContext(ctx,
		`INSERT INTO logs (user_id, event_type, event_description) VALUES ($1, $2, $3)`,
		uid, level, message,
	)
	if err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

// ListLogs returns audit events newest first.
func (db *DB) ListLogs(ctx context.Context, f models.LogFilter) ([]models.LogEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}

	builder := psql.Select("id", "user_id", "event_type", "event_description", "timestamp").
		From("logs").
		OrderBy("timestamp DESC", "id DESC").
		Limit(uint64(limit))
	if f.UserID != nil {
		builder = builder.Where(sq.Eq{"user_id": *f.UserID})
	}
	if f.EventType != "" {
		builder = builder.Where(sq.Eq{"event_type": f.EventType})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build log listing: %w", err)
	}

	rows, err := db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	entries := []models.LogEntry{}
	for rows.Next() {
		var (
			e   models.LogEntry
			uid sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &uid, &e.EventType, &e.Description, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		if uid.Valid {
			id := int(uid.Int64)
			e.UserID = &id
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
