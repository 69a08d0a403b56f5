package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"xrepost/models"
)

const (
	settingRateCeiling = "rate_ceiling"
	settingRateWindow  = "rate_window"
)

// GetRateLimit reads the current rate limit. Nothing is cached so an
// operator change applies to the very next check.
func (db *DB) GetRateLimit(ctx context.Context) (models.RateLimit, error) {
	limit := db.RateDefaults

	rows, err := db.Conn.QueryContext(ctx,
		`SELECT key, value FROM settings WHERE key IN ($1, $2)`,
		settingRateCeiling, settingRateWindow,
	)
	if err != nil {
		return limit, fmt.Errorf("read rate limit: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return limit, fmt.Errorf("scan setting: %w", err)
		}
		switch key {
		case settingRateCeiling:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				slog.Warn("ignoring malformed setting", "key", key, "value", value)
				continue
			}
			limit.Ceiling = n
		case settingRateWindow:
			d, err := time.ParseDuration(value)
			if err != nil || d <= 0 {
				slog.Warn("ignoring malformed setting", "key", key, "value", value)
				continue
			}
			limit.Window = d
		}
	}
	return limit, rows.Err()
}

// SetRateLimit stores an operator override of the rate limit.
func (db *DB) SetRateLimit(ctx context.Context, limit models.RateLimit) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for key, value := range map[string]string{
			settingRateCeiling: strconv.Itoa(limit.Ceiling),
			settingRateWindow:  limit.Window.String(),
		} {
			if _, err := tx.ExecContext(ctx, `
               INSERT INTO settings (key, value) VALUES ($1, $2)
               ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
				key, value,
			); err != nil {
				return fmt.Errorf("store setting %s: %w", key, err)
			}
		}
		return nil
	})
}
