package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestListMentions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/users/42/mentions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("unexpected authorization header %q", got)
		}
		q := r.URL.Query()
		if q.Get("since_id") != "100" {
			t.Errorf("expected since_id=100, got %q", q.Get("since_id"))
		}
		if q.Get("expansions") != "author_id" {
			t.Errorf("expected author expansion, got %q", q.Get("expansions"))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": [
				{"id": "102", "text": "@me hi", "author_id": "7", "created_at": "2025-01-02T10:00:00.000Z"},
				{"id": "101", "text": "@me yo", "author_id": "8", "created_at": "2025-01-02T09:00:00.000Z"}
			],
			"includes": {"users": [
				{"id": "7", "name": "Seven", "username": "seven"},
				{"id": "8", "name": "Eight", "username": "eight", "profile_image_url": "https://img/8.png"}
			]},
			"meta": {"newest_id": "102", "result_count": 2}
		}`))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	page, err := c.ListMentions(context.Background(), ListMentionsInput{UserID: "42", AccessToken: "token-1", SinceID: "100"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(page.Tweets) != 2 {
		t.Fatalf("expected 2 tweets, got %d", len(page.Tweets))
	}
	if page.NewestID != "102" {
		t.Errorf("expected newest id 102, got %q", page.NewestID)
	}
	if page.Authors["8"].ProfileImageURL != "https://img/8.png" {
		t.Errorf("author not resolved: %+v", page.Authors["8"])
	}
	if page.Tweets[0].CreatedAt.IsZero() {
		t.Error("expected created_at to be parsed")
	}
}

func TestListMentions_OmitsEmptySinceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.URL.Query()["since_id"]; ok {
			t.Error("since_id must be omitted for a first fetch")
		}
		_, _ = w.Write([]byte(`{"meta": {"result_count": 0}}`))
	}))
	defer srv.Close()

	page, err := New(WithBaseURL(srv.URL)).ListMentions(context.Background(), ListMentionsInput{UserID: "42", AccessToken: "t"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Tweets) != 0 {
		t.Errorf("expected empty page, got %d", len(page.Tweets))
	}
}

func TestListMentions_RateLimited(t *testing.T) {
	reset := time.Now().Add(15 * time.Minute).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-limit", "450")
		w.Header().Set("x-rate-limit-remaining", "0")
		w.Header().Set("x-rate-limit-reset", strconv.FormatInt(reset, 10))
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"title": "Too Many Requests"}`))
	}))
	defer srv.Close()

	_, err := New(WithBaseURL(srv.URL)).ListMentions(context.Background(), ListMentionsInput{UserID: "42", AccessToken: "t"})

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.ResetAt.Unix() != reset || rl.Limit != 450 || rl.Remaining != 0 {
		t.Errorf("unexpected rate limit details: %+v", rl)
	}
}

func TestListMentions_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"title": "Unauthorized", "status": 401}`))
	}))
	defer srv.Close()

	_, err := New(WithBaseURL(srv.URL)).ListMentions(context.Background(), ListMentionsInput{UserID: "42", AccessToken: "t"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestListMentions_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"title": "Service Unavailable", "detail": "try later"}`))
	}))
	defer srv.Close()

	_, err := New(WithBaseURL(srv.URL)).ListMentions(context.Background(), ListMentionsInput{UserID: "42", AccessToken: "t"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || !apiErr.Temporary() {
		t.Errorf("unexpected api error: %+v", apiErr)
	}
}

func TestReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/2/tweets" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body replyRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if body.Text != "thanks!" || body.Reply.InReplyToTweetID != "555" {
			t.Errorf("unexpected body: %+v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data": {"id": "556", "text": "thanks!"}}`))
	}))
	defer srv.Close()

	id, err := New(WithBaseURL(srv.URL)).Reply(context.Background(), ReplyInput{AccessToken: "t", InReplyTo: "555", Text: "thanks!"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "556" {
		t.Errorf("expected reply id 556, got %q", id)
	}
}

func TestTokenRefresher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			t.Errorf("expected basic auth client credentials, got %q %q", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "old-refresh" {
			t.Errorf("unexpected form: %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "new-access", "refresh_token": "new-refresh", "expires_in": 7200, "token_type": "bearer"}`))
	}))
	defer srv.Close()

	r := NewTokenRefresher("client", "secret", WithTokenURL(srv.URL))
	tok, err := r.Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.AccessToken != "new-access" || tok.RefreshToken != "new-refresh" {
		t.Errorf("unexpected token: %+v", tok)
	}
	if time.Until(tok.Expiry) < time.Hour {
		t.Errorf("expected expiry about two hours ahead, got %v", tok.Expiry)
	}
}

func TestTokenRefresher_InvalidGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant", "error_description": "Value passed for the token was invalid."}`))
	}))
	defer srv.Close()

	r := NewTokenRefresher("client", "secret", WithTokenURL(srv.URL))
	_, err := r.Refresh(context.Background(), "revoked")

	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetrieveError, got %v", err)
	}
	if re.ErrorCode != "invalid_grant" {
		t.Errorf("expected invalid_grant, got %q", re.ErrorCode)
	}
	if re.Response.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", re.Response.StatusCode)
	}
}
