package telegram

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/gotd/td/session"
)

// DBSessionStorage keeps the alert bot session in the telegram_session table
// so restarts do not log the bot in again.
type DBSessionStorage struct {
	DB   *sql.DB
	Name string
}

var _ session.Storage = (*DBSessionStorage)(nil)

// LoadSession reads the stored session.
func (s *DBSessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	if s == nil || s.DB == nil {
		return nil, session.ErrNotFound
	}

	var data string
	err := s.DB.QueryRowContext(ctx, "SELECT data_json FROM telegram_session WHERE name = $1", s.Name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		slog.Error("telegram session read failed", "name", s.Name, "error", err)
		return nil, err
	}
	return []byte(data), nil
}

// StoreSession saves the session, replacing the previous one.
func (s *DBSessionStorage) StoreSession(ctx context.Context, data []byte) error {
	if s == nil || s.DB == nil {
		return session.ErrNotFound
	}
	_, err := s.DB.ExecContext(
		ctx,
		"INSERT INTO telegram_session (name, data_json) VALUES ($1, $2) "+
			"ON CONFLICT (name) DO UPDATE SET data_json = EXCLUDED.data_json, updated_at = NOW()",
		s.Name,
		string(data),
	)
	if err != nil {
		slog.Error("telegram session write failed", "name", s.Name, "error", err)
		return err
	}
	return nil
}
