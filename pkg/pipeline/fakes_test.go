package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"xrepost/models"
)

// memStore is an in-memory Store with the same semantics as the Postgres one.
type memStore struct {
	mu        sync.Mutex
	accounts  []models.Account
	handles   map[int][]string
	keywords  map[int][]string
	staged    map[string]models.CollectedTweet
	published map[string]publication
	logs      []models.LogEntry
	limit     models.RateLimit

	failInsert error
}

type publication struct {
	userID int
	at     time.Time
}

func newMemStore(ceiling int) *memStore {
	return &memStore{
		handles:   map[int][]string{},
		keywords:  map[int][]string{},
		staged:    map[string]models.CollectedTweet{},
		published: map[string]publication{},
		limit:     models.RateLimit{Ceiling: ceiling, Window: 24 * time.Hour},
	}
}

func (s *memStore) addAccount(id int, handles, keywords []string) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := models.Account{ID: id, TwitterID: fmt.Sprint(1000 + id), Username: fmt.Sprintf("acc%d", id), Language: "es"}
	s.accounts = append(s.accounts, a)
	s.handles[id] = handles
	s.keywords[id] = keywords
	return a
}

func (s *memStore) setCeiling(n int) {
	s.mu.Lock()
	s.limit.Ceiling = n
	s.mu.Unlock()
}

func (s *memStore) CountRecent(_ context.Context, userID int, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.staged {
		if t.UserID == userID && !t.StagedAt.Before(since) {
			n++
		}
	}
	for _, p := range s.published {
		if p.userID == userID && !p.at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetRateLimit(context.Context) (models.RateLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit, nil
}

func (s *memStore) ListAccounts(context.Context) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Account(nil), s.accounts...), nil
}

func (s *memStore) ListMonitoredHandles(_ context.Context, userID int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[userID], nil
}

func (s *memStore) ListMonitoredKeywords(_ context.Context, userID int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keywords[userID], nil
}

func (s *memStore) TweetExists(_ context.Context, tweetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, staged := s.staged[tweetID]
	_, published := s.published[tweetID]
	return staged || published, nil
}

func (s *memStore) InsertStaged(_ context.Context, t models.CollectedTweet) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return false, s.failInsert
	}
	if _, ok := s.staged[t.TweetID]; ok {
		return false, nil
	}
	t.StagedAt = time.Now()
	s.staged[t.TweetID] = t
	return true, nil
}

func (s *memStore) MarkPublished(_ context.Context, tweetID string, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.staged, tweetID)
	if _, ok := s.published[tweetID]; !ok {
		s.published[tweetID] = publication{userID: userID, at: time.Now()}
	}
	return nil
}

func (s *memStore) MarkPublishFailed(_ context.Context, tweetID string, userID int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.staged[tweetID]
	if !ok || t.UserID != userID {
		return nil
	}
	t.PublishAttempts++
	t.LastError = reason
	s.staged[tweetID] = t
	return nil
}

func (s *memStore) ListRetryable(_ context.Context, userID, maxAttempts int, before time.Time) ([]models.CollectedTweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CollectedTweet
	for _, t := range s.staged {
		if t.UserID == userID && t.PublishAttempts < maxAttempts && !t.StagedAt.After(before) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TweetID < out[j].TweetID })
	return out, nil
}

func (s *memStore) ExpireStaged(_ context.Context, userID, maxAttempts int, stagedBefore time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, t := range s.staged {
		if t.UserID == userID && (t.PublishAttempts >= maxAttempts || t.StagedAt.Before(stagedBefore)) {
			ids = append(ids, id)
			delete(s.staged, id)
			if _, ok := s.published[id]; !ok {
				s.published[id] = publication{userID: userID, at: t.StagedAt}
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) PrunePublications(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, p := range s.published {
		if p.at.Before(before) {
			delete(s.published, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) AppendAuditLog(_ context.Context, userID int, level, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid := userID
	s.logs = append(s.logs, models.LogEntry{UserID: &uid, EventType: level, Description: message, Timestamp: time.Now()})
	return nil
}

func (s *memStore) stagedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged)
}

func (s *memStore) countLogs(level, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.logs {
		if l.EventType == level && len(l.Description) >= len(prefix) && l.Description[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// fakeSearcher serves canned pages per query text.
type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]models.Tweet
	err     error
	calls   []string
	// onSearch runs after a call is recorded, before results are returned.
	onSearch func(query string)
}

func (f *fakeSearcher) Search(_ context.Context, query, _ string, limit int) ([]models.Tweet, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	hook := f.onSearch
	res := f.results[query]
	err := f.err
	f.mu.Unlock()
	if hook != nil {
		hook(query)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeTranslator struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeTranslator) Translate(_ context.Context, text, language, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.fail[text] {
		return "", errors.New("translation unavailable")
	}
	return "[" + language + "] " + text, nil
}

func (f *fakeTranslator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePublisher struct {
	mu    sync.Mutex
	posts []string
	err   error
	// afterPublish runs after each post is recorded.
	afterPublish func(n int)
}

func (f *fakePublisher) Publish(_ context.Context, _ models.Account, text string) (string, error) {
	f.mu.Lock()
	f.posts = append(f.posts, text)
	n := len(f.posts)
	err := f.err
	hook := f.afterPublish
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("posted-%d", n), nil
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(message string) {
	f.mu.Lock()
	f.messages = append(f.messages, message)
	f.mu.Unlock()
}

func tweets(ids ...string) []models.Tweet {
	out := make([]models.Tweet, len(ids))
	for i, id := range ids {
		out[i] = models.Tweet{ID: id, Text: "text " + id, CreatedAt: "2024-05-01T12:00:00.000000Z"}
	}
	return out
}

func testOptions() Options {
	return Options{
		QueryPolicy:        PolicyPerSource,
		BurstLimit:         11,
		BurstThreshold:     3,
		MaxConcurrentTasks: 4,
		Interval:           time.Hour,
		StopGrace:          2 * time.Second,
		MaxPublishAttempts: 3,
		RetryAfter:         time.Minute,
		StagedTTL:          72 * time.Hour,
		DedupRetention:     30 * 24 * time.Hour,
	}
}

type harness struct {
	store      *memStore
	searcher   *fakeSearcher
	translator *fakeTranslator
	publisher  *fakePublisher
	notifier   *fakeNotifier
}

func newHarness(ceiling int) *harness {
	return &harness{
		store:      newMemStore(ceiling),
		searcher:   &fakeSearcher{results: map[string][]models.Tweet{}},
		translator: &fakeTranslator{fail: map[string]bool{}},
		publisher:  &fakePublisher{},
		notifier:   &fakeNotifier{},
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Store:      h.store,
		Searcher:   h.searcher,
		Translator: h.translator,
		Publisher:  h.publisher,
		Notifier:   h.notifier,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
