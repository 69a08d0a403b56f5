package tweets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"xrepost/models"
	"xrepost/pkg/storage"
	"xrepost/pkg/twitter"

	"github.com/gin-gonic/gin"
)

type auditEntry struct {
	userID  int
	level   string
	message string
}

type fakeStore struct {
	accounts map[int]models.Account
	staged   map[string]models.CollectedTweet
	audits   []auditEntry
	listArgs []int
	limit    int
}

func (s *fakeStore) ListStaged(_ context.Context, ids []int, limit int) ([]models.CollectedTweet, error) {
	s.listArgs, s.limit = ids, limit
	var out []models.CollectedTweet
	for _, t := range s.staged {
		out = append(out, t)
	}
	return out, nil
}

func (s *fakeStore) GetAccountByID(_ context.Context, id int) (*models.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &a, nil
}

func (s *fakeStore) RequeueStaged(_ context.Context, id string) error {
	t, ok := s.staged[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.PublishAttempts = 0
	s.staged[id] = t
	return nil
}

func (s *fakeStore) DeleteStagedByTweetID(_ context.Context, id string) error {
	if _, ok := s.staged[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.staged, id)
	return nil
}

func (s *fakeStore) AppendAuditLog(_ context.Context, userID int, level, message string) error {
	s.audits = append(s.audits, auditEntry{userID, level, message})
	return nil
}

type fakePublisher struct {
	err  error
	text string
}

func (p *fakePublisher) Publish(_ context.Context, _ models.Account, text string) (string, error) {
	p.text = text
	if p.err != nil {
		return "", p.err
	}
	return "900", nil
}

type fakeNotifier struct{ messages []string }

func (n *fakeNotifier) Notify(m string) { n.messages = append(n.messages, m) }

type env struct {
	store    *fakeStore
	pub      *fakePublisher
	notifier *fakeNotifier
	router   *gin.Engine
}

func newEnv() *env {
	gin.SetMode(gin.TestMode)
	e := &env{
		store: &fakeStore{
			accounts: map[int]models.Account{1: {ID: 1, TwitterID: "42", Username: "bot"}},
			staged:   map[string]models.CollectedTweet{"100": {TweetID: "100", UserID: 1, PublishAttempts: 3}},
		},
		pub:      &fakePublisher{},
		notifier: &fakeNotifier{},
	}
	e.router = gin.New()
	SetupRoutes(e.router.Group("/api"), e.store, e.pub, e.notifier)
	return e
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestListStaged(t *testing.T) {
	e := newEnv()
	w := e.do(http.MethodGet, "/api/tweets?account_id=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(e.store.listArgs) != 1 || e.store.listArgs[0] != 1 || e.store.limit != defaultListLimit {
		t.Fatalf("unexpected listing args %v %d", e.store.listArgs, e.store.limit)
	}

	e.do(http.MethodGet, "/api/tweets?limit=9999", "")
	if e.store.limit != maxListLimit {
		t.Fatalf("limit must be capped, got %d", e.store.limit)
	}
	if w := e.do(http.MethodGet, "/api/tweets?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPostPublishes(t *testing.T) {
	e := newEnv()
	w := e.do(http.MethodPost, "/api/post_tweet", `{"user_id":1,"tweet_text":" hello "}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["tweet_id"] != "900" {
		t.Fatalf("unexpected body %v", body)
	}
	if e.pub.text != "hello" {
		t.Fatalf("text must be trimmed, got %q", e.pub.text)
	}
	if len(e.store.audits) != 1 || e.store.audits[0].level != models.LevelInfo {
		t.Fatalf("expected one info audit, got %+v", e.store.audits)
	}
}

func TestPostValidation(t *testing.T) {
	e := newEnv()
	long := strings.Repeat("ñ", twitter.MaxTweetRunes+1)
	for _, body := range []string{
		`{`,
		`{"user_id":1}`,
		`{"tweet_text":"hi"}`,
		`{"user_id":1,"tweet_text":"` + long + `"}`,
	} {
		if w := e.do(http.MethodPost, "/api/post_tweet", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %.40s: expected 400, got %d", body, w.Code)
		}
	}

	exact := strings.Repeat("ñ", twitter.MaxTweetRunes)
	if w := e.do(http.MethodPost, "/api/post_tweet", `{"user_id":1,"tweet_text":"`+exact+`"}`); w.Code != http.StatusCreated {
		t.Fatalf("280 runes must be accepted, got %d", w.Code)
	}
}

func TestPostUnknownAccount(t *testing.T) {
	e := newEnv()
	if w := e.do(http.MethodPost, "/api/post_tweet", `{"user_id":5,"tweet_text":"hi"}`); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if len(e.store.audits) != 1 || e.store.audits[0].level != models.LevelError {
		t.Fatalf("expected an error audit, got %+v", e.store.audits)
	}
}

func TestPostRejected(t *testing.T) {
	e := newEnv()
	e.pub.err = &twitter.PublishError{Status: 403, Message: "duplicate content"}
	w := e.do(http.MethodPost, "/api/post_tweet", `{"user_id":1,"tweet_text":"hi"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "duplicate content") || !strings.Contains(w.Body.String(), "403") {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	if len(e.notifier.messages) != 1 {
		t.Fatalf("failed publish must notify operators")
	}

	e.pub.err = errors.New("connection reset")
	if w := e.do(http.MethodPost, "/api/post_tweet", `{"user_id":1,"tweet_text":"hi"}`); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestRequeueAndDelete(t *testing.T) {
	e := newEnv()
	if w := e.do(http.MethodPost, "/api/tweets/100/requeue", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if e.store.staged["100"].PublishAttempts != 0 {
		t.Fatalf("attempts not reset")
	}
	if w := e.do(http.MethodPost, "/api/tweets/missing/requeue", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := e.do(http.MethodDelete, "/api/tweets/100", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := e.do(http.MethodDelete, "/api/tweets/100", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
