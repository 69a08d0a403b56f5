package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"xrepost/models"

	sq "github.com/Masterminds/squirrel"
)

const accountColumns = `id, twitter_id, username, access_token, access_token_secret, language, custom_style, created_at`

func scanAccount(row interface{ Scan(...any) error }) (models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.TwitterID,
		&a.Username,
		&a.AccessToken,
		&a.AccessTokenSecret,
		&a.Language,
		&a.CustomStyle,
		&a.CreatedAt,
	)
	return a, err
}

// ListAccounts returns every registered account ordered by id.
func (db *DB) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := db.Conn.QueryContext(ctx, `SELECT `+accountColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAccountByID returns ErrNotFound for an unknown id.
func (db *DB) GetAccountByID(ctx context.Context, id int) (*models.Account, error) {
	a, err := scanAccount(db.Conn.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	return &a, nil
}

// GetAccountByTwitterID returns ErrNotFound for an unknown twitter id.
func (db *DB) GetAccountByTwitterID(ctx context.Context, twitterID string) (*models.Account, error) {
	a, err := scanAccount(db.Conn.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM users WHERE twitter_id = $1`, twitterID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", twitterID, err)
	}
	return &a, nil
}

// GetAccountDetails loads the account with its monitored handles and keywords.
func (db *DB) GetAccountDetails(ctx context.Context, twitterID string) (*models.AccountDetails, error) {
	a, err := db.GetAccountByTwitterID(ctx, twitterID)
	if err != nil {
		return nil, err
	}
	handles, err := db.ListMonitoredHandles(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	keywords, err := db.ListMonitoredKeywords(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if handles == nil {
		handles = []string{}
	}
	if keywords == nil {
		keywords = []string{}
	}
	return &models.AccountDetails{User: *a, MonitoredUsers: handles, Keywords: keywords}, nil
}

// UpsertAccount stores the OAuth result for a twitter id, refreshing the
// credentials of an existing account.
func (db *DB) UpsertAccount(ctx context.Context, a models.Account) (*models.Account, error) {
	query := `
               INSERT INTO users (twitter_id, username, access_token, access_token_secret)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (twitter_id) DO UPDATE
               SET username = EXCLUDED.username,
                   access_token = EXCLUDED.access_token,
                   access_token_secret = EXCLUDED.access_token_secret
               RETURNING ` + accountColumns
	saved, err := scanAccount(db.Conn.QueryRowContext(ctx, query, a.TwitterID, a.Username, a.AccessToken, a.AccessTokenSecret))
	if err != nil {
		slog.Error("upsert account failed", "twitter_id", a.TwitterID, "error", err)
		return nil, fmt.Errorf("upsert account: %w", err)
	}
	return &saved, nil
}

// UpdateAccount applies the non-nil fields of u. Monitored lists, when
// present, replace the stored ones in the same transaction.
func (db *DB) UpdateAccount(ctx context.Context, twitterID string, u models.AccountUpdate) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var id int
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE twitter_id = $1 FOR UPDATE`, twitterID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		set := map[string]any{}
		if u.Language != nil {
			set["language"] = *u.Language
		}
		if u.CustomStyle != nil {
			set["custom_style"] = *u.CustomStyle
		}
		if len(set) > 0 {
			query, args, err := psql.Update("users").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
			if err != nil {
				return fmt.Errorf("build account update: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("update account: %w", err)
			}
		}

		if u.MonitoredUsers != nil {
			if err := replaceMonitored(ctx, tx, "monitored_users", "twitter_username", id, u.MonitoredUsers); err != nil {
				return err
			}
		}
		if u.Keywords != nil {
			if err := replaceMonitored(ctx, tx, "user_keywords", "keyword", id, u.Keywords); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAccount removes the account; monitored sources, staged and
// published tweets go with it.
func (db *DB) DeleteAccount(ctx context.Context, twitterID string) error {
	res, err := db.Conn.ExecContext(ctx, `DELETE FROM users WHERE twitter_id = $1`, twitterID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
