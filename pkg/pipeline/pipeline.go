// Package pipeline collects tweets for every account, translates them and
// republishes them under a per-account rate limit.
package pipeline

import (
	"log/slog"
	"time"
)

// Options tunes the pipeline.
type Options struct {
	QueryPolicy        string
	BurstLimit         int
	BurstThreshold     int
	MaxConcurrentTasks int

	ItemPause      time.Duration
	AccountStagger time.Duration
	Interval       time.Duration
	StopGrace      time.Duration

	MaxPublishAttempts int
	RetryAfter         time.Duration
	StagedTTL          time.Duration
	DedupRetention     time.Duration
}

// Deps are the collaborators of the pipeline. Notifier and Logger are optional.
type Deps struct {
	Store      Store
	Searcher   Searcher
	Translator Translator
	Publisher  Publisher
	Notifier   Notifier
	Logger     *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
