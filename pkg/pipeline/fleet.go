package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"xrepost/internal/common"
	"xrepost/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State of the fleet scheduler.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// StopResult tells what a Stop call achieved.
type StopResult int

const (
	StopNotRunning StopResult = iota
	StopDrained
	StopTimedOut
)

// TickResult summarizes one pass over all accounts.
type TickResult struct {
	RunID    string
	Accounts int
	TaskResult
}

// Fleet runs the collection loop over all accounts on its own goroutine.
type Fleet struct {
	store        Store
	orchestrator *Orchestrator
	logger       *slog.Logger
	opts         Options
	now          func() time.Time

	mu     sync.Mutex
	state  State
	signal *Signal
	done   chan struct{}
	ctx    context.Context
}

// NewFleet builds the scheduler. ctx bounds the lifetime of every run; it is
// the process context, not a stop mechanism.
func NewFleet(ctx context.Context, d Deps, opts Options) *Fleet {
	return &Fleet{
		store:        d.Store,
		orchestrator: NewOrchestrator(d, opts),
		logger:       d.logger().With("component", "fleet"),
		opts:         opts,
		now:          time.Now,
		ctx:          ctx,
	}
}

// Start launches the loop and returns at once. It reports false when the
// fleet is already running.
func (f *Fleet) Start() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateIdle {
		return false
	}

	sig := NewSignal()
	done := make(chan struct{})
	f.signal, f.done, f.state = sig, done, StateRunning
	go f.loop(sig, done)
	f.logger.Info("fleet started")
	return true
}

// Stop sets the signal and waits up to the grace period for the current
// tick to drain. The fleet is idle when Stop returns either way.
func (f *Fleet) Stop() StopResult {
	f.mu.Lock()
	if f.state != StateRunning {
		f.mu.Unlock()
		return StopNotRunning
	}
	f.state = StateStopping
	sig, done := f.signal, f.done
	f.mu.Unlock()

	sig.Set()
	result := StopDrained
	timer := time.NewTimer(f.opts.StopGrace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		result = StopTimedOut
		f.logger.Warn("stop grace period elapsed, leaving the tick to drain in background")
	}

	f.mu.Lock()
	if f.done == done {
		f.state = StateIdle
	}
	f.mu.Unlock()
	f.logger.Info("fleet stopped", "drained", result == StopDrained)
	return result
}

// Status reports the current state without side effects.
func (f *Fleet) Status() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Running reports whether a loop is active, stopping included.
func (f *Fleet) Running() bool {
	return f.Status() != StateIdle
}

func (f *Fleet) loop(sig *Signal, done chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("fleet loop panicked", "panic", r)
		}
		f.mu.Lock()
		if f.done == done {
			f.state = StateIdle
		}
		f.mu.Unlock()
		close(done)
	}()

	for {
		if _, err := f.Tick(f.ctx, sig); err != nil && !errors.Is(err, ErrCancelled) {
			f.logger.Error("tick failed", "error", err)
		}
		if sig.IsSet() || f.ctx.Err() != nil {
			return
		}
		f.logger.Info("waiting for next tick", "interval", f.opts.Interval)
		if !common.WaitWithCancellation(sig.Done(), f.opts.Interval) {
			return
		}
	}
}

// Tick runs one pass over every account and waits for all of them.
func (f *Fleet) Tick(ctx context.Context, sig *Signal) (TickResult, error) {
	res := TickResult{RunID: uuid.NewString()}
	logger := f.logger.With("run_id", res.RunID)

	if sig.IsSet() {
		return res, ErrCancelled
	}
	if f.opts.DedupRetention > 0 {
		if n, err := f.store.PrunePublications(ctx, f.now().Add(-f.opts.DedupRetention)); err != nil {
			logger.Warn("pruning publication ledger failed", "error", err)
		} else if n > 0 {
			logger.Debug("pruned publication ledger", "rows", n)
		}
	}

	accounts, err := f.store.ListAccounts(ctx)
	if err != nil {
		return res, fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) == 0 {
		logger.Info("no registered accounts")
		return res, nil
	}
	logger.Info("tick started", "accounts", len(accounts))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for i, account := range accounts {
		if sig.IsSet() {
			break
		}
		if i > 0 && !common.WaitWithCancellation(sig.Done(), f.opts.AccountStagger) {
			break
		}
		res.Accounts++
		g.Go(func() error {
			ar, err := f.runAccount(ctx, sig, account)
			switch {
			case errors.Is(err, ErrCancelled):
				logger.Info("account run cancelled", "account_id", account.ID)
			case err != nil:
				logger.Error("account run failed", "account_id", account.ID, "error", err)
			}
			mu.Lock()
			res.add(ar.TaskResult)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	logger.Info("tick finished",
		"accounts", res.Accounts,
		"fetched", res.Fetched,
		"staged", res.Staged,
		"published", res.Published,
		"failed", res.Failed,
		"duplicates", res.Duplicates,
		"expired", res.Expired,
	)
	if sig.IsSet() {
		return res, ErrCancelled
	}
	return res, nil
}

func (f *Fleet) runAccount(ctx context.Context, sig *Signal, account models.Account) (res AccountResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("account %d run panicked: %v", account.ID, r)
		}
	}()
	return f.orchestrator.Run(ctx, sig, account)
}
