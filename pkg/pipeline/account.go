package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"xrepost/models"

	"golang.org/x/sync/errgroup"
)

// AccountResult aggregates the tasks run for one account in one tick.
type AccountResult struct {
	AccountID int
	Tasks     int
	Skipped   bool
	TaskResult
}

// Orchestrator runs every collector task of one account.
type Orchestrator struct {
	store     Store
	collector *Collector
	builder   QueryBuilder
	locks     *AccountLocks
	audit     auditor
	logger    *slog.Logger
	maxTasks  int
}

func NewOrchestrator(d Deps, opts Options) *Orchestrator {
	logger := d.logger().With("component", "orchestrator")
	return &Orchestrator{
		store:     d.Store,
		collector: NewCollector(d, opts),
		builder: QueryBuilder{
			Policy:         opts.QueryPolicy,
			BurstLimit:     opts.BurstLimit,
			BurstThreshold: opts.BurstThreshold,
		},
		locks:    NewAccountLocks(),
		audit:    auditor{store: d.Store, notifier: d.Notifier, logger: logger},
		logger:   logger,
		maxTasks: opts.MaxConcurrentTasks,
	}
}

// Run collects for one account. It returns ErrCancelled when sig was set
// during the run; every other failure stays inside the tasks.
func (o *Orchestrator) Run(ctx context.Context, sig *Signal, account models.Account) (AccountResult, error) {
	res := AccountResult{AccountID: account.ID}
	logger := o.logger.With("account_id", account.ID, "username", account.Username)

	if sig.IsSet() {
		return res, ErrCancelled
	}
	if !o.locks.TryLock(account.ID) {
		logger.Warn("account still busy with a previous run, skipping")
		res.Skipped = true
		return res, nil
	}
	defer o.locks.Unlock(account.ID)

	retry, err := o.collector.RetryStaged(ctx, sig, account)
	res.add(retry)
	if errors.Is(err, ErrCancelled) {
		return res, ErrCancelled
	}
	if err != nil {
		logger.Error("retry sweep failed", "error", err)
	}

	handles, err := o.store.ListMonitoredHandles(ctx, account.ID)
	if err != nil {
		return res, o.loadFailure(ctx, logger, account.ID, err)
	}
	keywords, err := o.store.ListMonitoredKeywords(ctx, account.ID)
	if err != nil {
		return res, o.loadFailure(ctx, logger, account.ID, err)
	}
	if len(handles) == 0 && len(keywords) == 0 {
		logger.Info("nothing to monitor")
		res.Skipped = true
		return res, nil
	}

	limit, err := o.store.GetRateLimit(ctx)
	if err != nil {
		return res, o.loadFailure(ctx, logger, account.ID, err)
	}
	queries, rejected, err := o.builder.Build(handles, keywords, limit.Ceiling)
	if len(rejected) > 0 {
		logger.Warn("ignoring invalid sources", "sources", rejected)
		o.audit.record(ctx, account.ID, models.LevelWarn, fmt.Sprintf("ignoring invalid sources: %v", rejected))
	}
	if errors.Is(err, ErrNothingToSearch) {
		logger.Info("no valid source to search")
		res.Skipped = true
		return res, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	if o.maxTasks > 0 {
		g.SetLimit(o.maxTasks)
	}
	for _, q := range queries {
		if sig.IsSet() {
			break
		}
		res.Tasks++
		g.Go(func() error {
			tr, err := o.collector.Run(ctx, sig, account, q)
			if err != nil && !errors.Is(err, ErrCancelled) {
				logger.Error("collector task failed", "source_type", q.Kind, "source", q.Value, "error", err)
			}
			mu.Lock()
			res.add(tr)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	logger.Info("account run finished",
		"tasks", res.Tasks,
		"fetched", res.Fetched,
		"staged", res.Staged,
		"published", res.Published,
		"failed", res.Failed,
		"duplicates", res.Duplicates,
	)
	if sig.IsSet() {
		return res, ErrCancelled
	}
	return res, nil
}

func (o *Orchestrator) loadFailure(ctx context.Context, logger *slog.Logger, accountID int, err error) error {
	logger.Error("loading account sources failed", "error", err)
	o.audit.record(ctx, accountID, models.LevelError, fmt.Sprintf("loading monitored sources failed: %v", err))
	return err
}
