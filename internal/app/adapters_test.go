package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	mentionentity "github.com/vadim/mention-tracker/internal/domain/mention/entity"
	"github.com/vadim/mention-tracker/internal/domain/polling/entity"
	"github.com/vadim/mention-tracker/internal/httpx/upstream/twitter"
)

func TestMentionListerAdapter_ResolvesAuthors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("since_id") != "5" {
			t.Errorf("expected since_id=5, got %q", r.URL.Query().Get("since_id"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"data": [
				{"id": "7", "text": "@me hello", "author_id": "u1", "created_at": "2025-01-02T03:04:05Z"},
				{"id": "6", "text": "@me hi", "author_id": "u2", "created_at": "2025-01-02T03:04:00Z"}
			],
			"includes": {"users": [{"id": "u1", "username": "carol", "name": "Carol"}]},
			"meta": {"newest_id": "7", "result_count": 2}
		}`)
	}))
	defer srv.Close()

	a := &mentionListerAdapter{client: twitter.New(twitter.WithBaseURL(srv.URL))}
	items, err := a.ListMentions(context.Background(), "100", "token", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Author == nil || items[0].Author.Username != "carol" {
		t.Errorf("expected resolved author, got %+v", items[0].Author)
	}
	if items[1].Author != nil {
		t.Errorf("expected no author for unknown user, got %+v", items[1].Author)
	}
}

func TestMentionListerAdapter_ErrorMapping(t *testing.T) {
	reset := time.Now().Add(10 * time.Minute).Truncate(time.Second)

	tests := []struct {
		name   string
		status int
		header map[string]string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			header: map[string]string{"x-rate-limit-reset": strconv.FormatInt(reset.Unix(), 10)},
			check: func(t *testing.T, err error) {
				var rle *entity.RateLimitedError
				if !errors.As(err, &rle) {
					t.Fatalf("expected RateLimitedError, got %v", err)
				}
				if !rle.ResetAt.Equal(reset) || rle.Source != "mentions" {
					t.Errorf("unexpected rate limit error %+v", rle)
				}
			},
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, entity.ErrUnauthorized) {
					t.Errorf("expected ErrUnauthorized, got %v", err)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusServiceUnavailable,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, entity.ErrTransient) {
					t.Errorf("expected transient error, got %v", err)
				}
			},
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			check: func(t *testing.T, err error) {
				if errors.Is(err, entity.ErrTransient) {
					t.Errorf("expected non-transient error, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"title":"error"}`)
			}))
			defer srv.Close()

			a := &mentionListerAdapter{client: twitter.New(twitter.WithBaseURL(srv.URL))}
			_, err := a.ListMentions(context.Background(), "100", "token", "")
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestReplierAdapter_RejectedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"detail":"You are not allowed to create a Tweet with duplicate content."}`)
	}))
	defer srv.Close()

	a := &replierAdapter{client: twitter.New(twitter.WithBaseURL(srv.URL))}
	_, err := a.Reply(context.Background(), "token", "7", "hello")
	if !errors.Is(err, mentionentity.ErrReplyRejected) {
		t.Errorf("expected ErrReplyRejected, got %v", err)
	}
}
