package pipeline

import (
	"context"
	"testing"
	"time"

	"xrepost/models"
)

func TestGateUnknownAccountCountsZero(t *testing.T) {
	g := NewGate(newMemStore(10))
	n, err := g.CountRecent(context.Background(), 42, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestGateCountsOnlyTrailingWindow(t *testing.T) {
	s := newMemStore(10)
	s.published["old"] = publication{userID: 1, at: time.Now().Add(-48 * time.Hour)}
	s.published["new"] = publication{userID: 1, at: time.Now().Add(-time.Hour)}
	s.staged["staged"] = models.CollectedTweet{UserID: 1, TweetID: "staged", StagedAt: time.Now()}
	s.staged["other"] = models.CollectedTweet{UserID: 2, TweetID: "other", StagedAt: time.Now()}

	g := NewGate(s)
	n, err := g.CountRecent(context.Background(), 1, 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows in window, got %d", n)
	}

	under, err := g.UnderLimit(context.Background(), 1, 24*time.Hour, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if under {
		t.Fatalf("account at the ceiling must not be under the limit")
	}
}

func TestGateReadsCeilingOnEveryCheck(t *testing.T) {
	s := newMemStore(1)
	s.published["a"] = publication{userID: 1, at: time.Now()}
	g := NewGate(s)

	d, err := g.Check(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected the gate to be closed at ceiling 1")
	}

	s.setCeiling(5)
	d, err = g.Check(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Limit.Ceiling != 5 || d.Count != 1 {
		t.Fatalf("raised ceiling not applied: %+v", d)
	}
}
