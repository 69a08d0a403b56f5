package pipeline

import (
	"context"
	"time"

	"xrepost/models"
)

// GateStore is what the rate gate reads.
type GateStore interface {
	CountRecent(ctx context.Context, userID int, since time.Time) (int, error)
	GetRateLimit(ctx context.Context) (models.RateLimit, error)
}

// Store is the persistence the pipeline needs. Implementations must be safe
// for concurrent use.
type Store interface {
	GateStore
	ListAccounts(ctx context.Context) ([]models.Account, error)
	ListMonitoredHandles(ctx context.Context, userID int) ([]string, error)
	ListMonitoredKeywords(ctx context.Context, userID int) ([]string, error)
	TweetExists(ctx context.Context, tweetID string) (bool, error)
	InsertStaged(ctx context.Context, t models.CollectedTweet) (bool, error)
	MarkPublished(ctx context.Context, tweetID string, userID int) error
	MarkPublishFailed(ctx context.Context, tweetID string, userID int, reason string) error
	ListRetryable(ctx context.Context, userID, maxAttempts int, before time.Time) ([]models.CollectedTweet, error)
	ExpireStaged(ctx context.Context, userID, maxAttempts int, stagedBefore time.Time) ([]string, error)
	PrunePublications(ctx context.Context, before time.Time) (int64, error)
	AppendAuditLog(ctx context.Context, userID int, level, message string) error
}

// Searcher finds recent tweets for a search expression.
// ctx is cancelled when the run is stopped; no request may start after that.
type Searcher interface {
	Search(ctx context.Context, query, kind string, limit int) ([]models.Tweet, error)
}

// Translator rewrites text into the target language.
type Translator interface {
	Translate(ctx context.Context, text, language, style string) (string, error)
}

// Publisher posts text on behalf of an account and returns the new tweet id.
type Publisher interface {
	Publish(ctx context.Context, account models.Account, text string) (string, error)
}

// Notifier receives error events for operators. It must not block.
type Notifier interface {
	Notify(message string)
}
