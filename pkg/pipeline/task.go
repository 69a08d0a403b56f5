package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"xrepost/internal/common"
	"xrepost/models"
)

// Outcome tells how a collector task ended.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeThrottled Outcome = "throttled"
	OutcomeFailed    Outcome = "failed"
)

// TaskResult counts what one task did.
type TaskResult struct {
	Outcome      Outcome
	Fetched      int
	Duplicates   int
	Untranslated int
	Staged       int
	Published    int
	Failed       int
	Expired      int
}

func (r *TaskResult) add(o TaskResult) {
	r.Fetched += o.Fetched
	r.Duplicates += o.Duplicates
	r.Untranslated += o.Untranslated
	r.Staged += o.Staged
	r.Published += o.Published
	r.Failed += o.Failed
	r.Expired += o.Expired
}

// Collector processes one (account, query) unit end to end.
type Collector struct {
	store      Store
	searcher   Searcher
	translator Translator
	publisher  Publisher
	gate       *Gate
	audit      auditor
	logger     *slog.Logger
	opts       Options
	now        func() time.Time
}

func NewCollector(d Deps, opts Options) *Collector {
	logger := d.logger().With("component", "collector")
	return &Collector{
		store:      d.Store,
		searcher:   d.Searcher,
		translator: d.Translator,
		publisher:  d.Publisher,
		gate:       NewGate(d.Store),
		audit:      auditor{store: d.Store, notifier: d.Notifier, logger: logger},
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
}

// Run searches q for the account and stages, translates and publishes every
// new tweet until the page ends, the gate closes or sig is set.
// Search and publish failures are audited and end the task without an error;
// store failures and cancellation are returned.
func (c *Collector) Run(ctx context.Context, sig *Signal, account models.Account, q Query) (res TaskResult, err error) {
	logger := c.logger.With("account_id", account.ID, "source_type", q.Kind, "source", q.Value)
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			err = fmt.Errorf("collector task panicked: %v", r)
			logger.Error("collector task panicked", "panic", r)
			c.audit.record(ctx, account.ID, models.LevelError, fmt.Sprintf("task for %s %s crashed: %v", q.Kind, q.Value, r))
		}
	}()

	if sig.IsSet() {
		res.Outcome = OutcomeCancelled
		return res, ErrCancelled
	}
	allowed, err := c.allowed(ctx, account.ID)
	if err != nil {
		return c.storeFailure(ctx, logger, account.ID, res, err)
	}
	if !allowed {
		logger.Debug("rate limit reached, skipping search")
		res.Outcome = OutcomeThrottled
		return res, nil
	}
	if sig.IsSet() {
		res.Outcome = OutcomeCancelled
		return res, ErrCancelled
	}

	searchCtx, cancelSearch := sig.Context(ctx)
	tweets, err := c.searcher.Search(searchCtx, q.Text, q.Kind, q.Limit)
	cancelSearch()
	if sig.IsSet() {
		logger.Debug("stopped while searching")
		res.Outcome = OutcomeCancelled
		return res, ErrCancelled
	}
	if err != nil {
		logger.Warn("search failed", "error", err)
		c.audit.record(ctx, account.ID, models.LevelError, fmt.Sprintf("search for %s %s failed: %v", q.Kind, q.Value, err))
		res.Outcome = OutcomeFailed
		return res, nil
	}
	if q.Limit > 0 && len(tweets) > q.Limit {
		tweets = tweets[:q.Limit]
	}
	res.Fetched = len(tweets)
	logger.Debug("search returned", "count", len(tweets))

	for _, tw := range tweets {
		if sig.IsSet() {
			res.Outcome = OutcomeCancelled
			return res, ErrCancelled
		}
		allowed, err := c.allowed(ctx, account.ID)
		if err != nil {
			return c.storeFailure(ctx, logger, account.ID, res, err)
		}
		if !allowed {
			logger.Debug("rate limit reached mid-page")
			res.Outcome = OutcomeThrottled
			return res, nil
		}

		exists, err := c.store.TweetExists(ctx, tw.ID)
		if err != nil {
			return c.storeFailure(ctx, logger, account.ID, res, err)
		}
		if exists {
			res.Duplicates++
			continue
		}

		if sig.IsSet() {
			res.Outcome = OutcomeCancelled
			return res, ErrCancelled
		}
		text, err := c.translator.Translate(ctx, tw.Text, account.Language, account.CustomStyle)
		if err != nil || text == "" {
			logger.Debug("translation failed, skipping tweet", "tweet_id", tw.ID, "error", err)
			res.Untranslated++
			continue
		}

		staged := models.CollectedTweet{
			UserID:      account.ID,
			SourceType:  q.Kind,
			SourceValue: q.Value,
			TweetID:     tw.ID,
			TweetText:   text,
			CreatedAt:   parseTweetTime(tw.CreatedAt),
		}
		inserted, err := c.store.InsertStaged(ctx, staged)
		if err != nil {
			return c.storeFailure(ctx, logger, account.ID, res, err)
		}
		if !inserted {
			res.Duplicates++
			continue
		}
		res.Staged++

		// A stop here leaves the row staged for the retry sweep.
		if sig.IsSet() {
			res.Outcome = OutcomeCancelled
			return res, ErrCancelled
		}
		ok, err := c.publish(ctx, logger, account, staged, &res)
		if err != nil {
			return c.storeFailure(ctx, logger, account.ID, res, err)
		}
		if !ok {
			res.Outcome = OutcomeFailed
			return res, nil
		}

		if !common.WaitWithCancellation(sig.Done(), c.opts.ItemPause) {
			res.Outcome = OutcomeCancelled
			return res, ErrCancelled
		}
	}

	res.Outcome = OutcomeDone
	return res, nil
}

// RetryStaged evicts expired staging rows of the account and publishes the
// ones still eligible for another attempt.
func (c *Collector) RetryStaged(ctx context.Context, sig *Signal, account models.Account) (res TaskResult, err error) {
	logger := c.logger.With("account_id", account.ID, "source_type", "retry")
	now := c.now()

	expired, err := c.store.ExpireStaged(ctx, account.ID, c.opts.MaxPublishAttempts, now.Add(-c.opts.StagedTTL))
	if err != nil {
		return c.storeFailure(ctx, logger, account.ID, res, err)
	}
	if len(expired) > 0 {
		res.Expired = len(expired)
		c.audit.record(ctx, account.ID, models.LevelWarn, fmt.Sprintf("evicted %d staged tweets that could not be published: %v", len(expired), expired))
	}

	pending, err := c.store.ListRetryable(ctx, account.ID, c.opts.MaxPublishAttempts, now.Add(-c.opts.RetryAfter))
	if err != nil {
		return c.storeFailure(ctx, logger, account.ID, res, err)
	}
	for _, t := range pending {
		if sig.IsSet() {
			res.Outcome = OutcomeCancelled
			return res, ErrCancelled
		}
		ok, err := c.publish(ctx, logger, account, t, &res)
		if err != nil {
			return c.storeFailure(ctx, logger, account.ID, res, err)
		}
		if !ok {
			res.Outcome = OutcomeFailed
			return res, nil
		}
		if !common.WaitWithCancellation(sig.Done(), c.opts.ItemPause) {
			res.Outcome = OutcomeCancelled
			return res, ErrCancelled
		}
	}
	res.Outcome = OutcomeDone
	return res, nil
}

// publish posts a staged tweet and settles its staging row. It reports
// whether the post succeeded; the error is reserved for store failures.
func (c *Collector) publish(ctx context.Context, logger *slog.Logger, account models.Account, t models.CollectedTweet, res *TaskResult) (bool, error) {
	postedID, err := c.publisher.Publish(ctx, account, t.TweetText)
	if err != nil {
		res.Failed++
		logger.Warn("publish failed", "tweet_id", t.TweetID, "error", err)
		if merr := c.store.MarkPublishFailed(ctx, t.TweetID, account.ID, err.Error()); merr != nil {
			return false, merr
		}
		c.audit.record(ctx, account.ID, models.LevelError, fmt.Sprintf("publishing tweet %s failed: %v", t.TweetID, err))
		return false, nil
	}

	if err := c.store.MarkPublished(ctx, t.TweetID, account.ID); err != nil {
		return false, err
	}
	res.Published++
	logger.Info("tweet published", "tweet_id", t.TweetID, "posted_id", postedID)
	c.audit.record(ctx, account.ID, models.LevelInfo, fmt.Sprintf("published tweet %s from %s %s: %s", t.TweetID, t.SourceType, t.SourceValue, preview(t.TweetText)))
	return true, nil
}

func (c *Collector) allowed(ctx context.Context, accountID int) (bool, error) {
	d, err := c.gate.Check(ctx, accountID)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

func (c *Collector) storeFailure(ctx context.Context, logger *slog.Logger, accountID int, res TaskResult, err error) (TaskResult, error) {
	logger.Error("store failure, aborting task", "error", err)
	c.audit.record(ctx, accountID, models.LevelError, fmt.Sprintf("store failure: %v", err))
	res.Outcome = OutcomeFailed
	return res, err
}

func parseTweetTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RubyDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= 50 {
		return s
	}
	return string(r[:50]) + "..."
}
