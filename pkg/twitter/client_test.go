package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"xrepost/models"

	"github.com/dghubble/oauth1"
)

var account = models.Account{ID: 7, AccessToken: "tok", AccessTokenSecret: "sec"}

func newTestClient(url string) *Client {
	return New(Options{ConsumerKey: "ck", ConsumerSecret: "cs", APIBase: url, Timeout: 2 * time.Second}, nil)
}

func TestPublishCreated(t *testing.T) {
	var body map[string]string
	var auth string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1790","text":"hola"}}`))
	}))
	defer s.Close()

	id, err := newTestClient(s.URL).Publish(context.Background(), account, "hola")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "1790" {
		t.Fatalf("unexpected id %q", id)
	}
	if body["text"] != "hola" {
		t.Fatalf("unexpected payload %v", body)
	}
	if !strings.HasPrefix(auth, "OAuth ") || !strings.Contains(auth, `oauth_token="tok"`) {
		t.Fatalf("request not signed with the account token: %q", auth)
	}
}

func TestPublishRejected(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"title":"Forbidden","detail":"You are not allowed to create a Tweet with duplicate content.","status":403}`))
	}))
	defer s.Close()

	_, err := newTestClient(s.URL).Publish(context.Background(), account, "hola")
	var perr *PublishError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PublishError, got %v", err)
	}
	if perr.Status != http.StatusForbidden || !strings.Contains(perr.Message, "duplicate content") {
		t.Fatalf("unexpected error %+v", perr)
	}
}

func TestPublishOKIsNotCreated(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"1"}}`))
	}))
	defer s.Close()

	_, err := newTestClient(s.URL).Publish(context.Background(), account, "hola")
	var perr *PublishError
	if !errors.As(err, &perr) || perr.Status != http.StatusOK {
		t.Fatalf("only 201 counts as success, got %v", err)
	}
}

func TestPublishWithoutCredentials(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").Publish(context.Background(), models.Account{ID: 1}, "hola")
	if err == nil {
		t.Fatalf("expected an error without credentials")
	}
}

func TestMe(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/users/me" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":{"id":"42","name":"Alice","username":"alice"}}`))
	}))
	defer s.Close()

	id, username, err := newTestClient(s.URL).me(context.Background(), "tok", "sec")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "42" || username != "alice" {
		t.Fatalf("unexpected identity %s %s", id, username)
	}
}

// recordingTransport remembers every path it carried.
type recordingTransport struct {
	mu    sync.Mutex
	paths []string
}

func (rt *recordingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.paths = append(rt.paths, r.URL.Path)
	rt.mu.Unlock()
	return http.DefaultTransport.RoundTrip(r)
}

func authEndpoint(base string) *oauth1.Endpoint {
	return &oauth1.Endpoint{
		RequestTokenURL: base + "/oauth/request_token",
		AuthorizeURL:    base + "/oauth/authenticate",
		AccessTokenURL:  base + "/oauth/access_token",
	}
}

func TestLoginUsesInjectedHTTPClient(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/request_token":
			_, _ = w.Write([]byte("oauth_token=rt&oauth_token_secret=rs&oauth_callback_confirmed=true"))
		case "/oauth/access_token":
			_, _ = w.Write([]byte("oauth_token=at&oauth_token_secret=as"))
		case "/2/users/me":
			_, _ = w.Write([]byte(`{"data":{"id":"42","username":"alice"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer s.Close()

	rt := &recordingTransport{}
	c := New(Options{ConsumerKey: "ck", ConsumerSecret: "cs", APIBase: s.URL, Timeout: 2 * time.Second, AuthEndpoint: authEndpoint(s.URL)},
		&http.Client{Transport: rt})

	authURL, token, secret, err := c.LoginURL()
	if err != nil {
		t.Fatalf("login url: %v", err)
	}
	if token != "rt" || secret != "rs" || !strings.Contains(authURL, "oauth_token=rt") {
		t.Fatalf("unexpected login %s %s %s", authURL, token, secret)
	}
	acc, err := c.CompleteLogin(context.Background(), token, secret, "verifier")
	if err != nil {
		t.Fatalf("complete login: %v", err)
	}
	if acc.TwitterID != "42" || acc.AccessToken != "at" || acc.AccessTokenSecret != "as" {
		t.Fatalf("unexpected account %+v", acc)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	want := []string{"/oauth/request_token", "/oauth/access_token", "/2/users/me"}
	if strings.Join(rt.paths, ",") != strings.Join(want, ",") {
		t.Fatalf("expected every call through the configured transport, got %v", rt.paths)
	}
}

func TestLoginTokenRequestIsTimeBounded(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte("oauth_token=rt&oauth_token_secret=rs&oauth_callback_confirmed=true"))
	}))
	defer s.Close()

	c := New(Options{ConsumerKey: "ck", ConsumerSecret: "cs", APIBase: s.URL, Timeout: 100 * time.Millisecond, AuthEndpoint: authEndpoint(s.URL)},
		&http.Client{})
	start := time.Now()
	if _, _, _, err := c.LoginURL(); err == nil {
		t.Fatalf("expected the request token call to time out")
	}
	if elapsed := time.Since(start); elapsed >= 400*time.Millisecond {
		t.Fatalf("request token call was not bounded, took %v", elapsed)
	}
}
