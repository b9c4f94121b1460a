package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	accountentity "github.com/vadim/mention-tracker/internal/domain/account/entity"
	mentionentity "github.com/vadim/mention-tracker/internal/domain/mention/entity"
	"github.com/vadim/mention-tracker/internal/domain/polling/entity"
)

type fakeLister struct {
	mu     sync.Mutex
	page   []entity.RawMention
	err    error
	calls  int
	since  []string
	tokens []string
}

func (f *fakeLister) ListMentions(_ context.Context, _, accessToken, sinceID string) ([]entity.RawMention, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.since = append(f.since, sinceID)
	f.tokens = append(f.tokens, accessToken)
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

type fakeStore struct {
	mu       sync.Mutex
	mentions map[string]*mentionentity.Mention
}

func newFakeStore() *fakeStore {
	return &fakeStore{mentions: make(map[string]*mentionentity.Mention)}
}

func (s *fakeStore) FindByAccountAndExternalID(_ context.Context, accountID, externalID string) (*mentionentity.Mention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mentions[accountID+"/"+externalID], nil
}

func (s *fakeStore) insert(ms []*mentionentity.Mention) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range ms {
		s.mentions[m.AccountID+"/"+m.ExternalID] = m
	}
}

type fakeArchiver struct {
	pages int
	err   error
}

func (a *fakeArchiver) ArchivePage(_ context.Context, _ string, _ []entity.RawMention) error {
	a.pages++
	return a.err
}

func raw(ids ...string) []entity.RawMention {
	out := make([]entity.RawMention, 0, len(ids))
	for _, id := range ids {
		out = append(out, entity.RawMention{
			ID:        id,
			Text:      "@tracked hello " + id,
			AuthorID:  "author-" + id,
			CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Author:    &entity.RawAuthor{ID: "author-" + id, Username: "user" + id, Name: "User " + id},
		})
	}
	return out
}

func newTestExecutor(l MentionLister, s MentionStore, opts ...Option) *Executor {
	return New(l, s, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func testAccount() *accountentity.Account {
	return &accountentity.Account{
		ID:          "acc-1",
		ExternalID:  "1000",
		Username:    "tracked",
		AccessToken: "token",
	}
}

func TestFetch_CursorAdvancesToHighestID(t *testing.T) {
	lister := &fakeLister{page: raw("5", "3", "7")}
	exec := newTestExecutor(lister, newFakeStore())
	acc := testAccount()

	res, err := exec.Fetch(context.Background(), acc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NewestSeenID != "7" {
		t.Fatalf("expected cursor 7, got %q", res.NewestSeenID)
	}

	got := make([]string, 0, len(res.New))
	for _, m := range res.New {
		got = append(got, m.ExternalID)
	}
	want := []string{"3", "5", "7"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("expected oldest-first order %v, got %v", want, got)
		}
	}

	acc.MentionCursor = res.NewestSeenID
	lister.page = nil
	if _, err := exec.Fetch(context.Background(), acc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lister.since[1] != "7" {
		t.Errorf("expected next fetch since 7, got %q", lister.since[1])
	}
}

func TestFetch_CursorNeverMovesBackwards(t *testing.T) {
	lister := &fakeLister{page: raw("7", "9")}
	exec := newTestExecutor(lister, newFakeStore())
	acc := testAccount()
	acc.MentionCursor = "10"

	res, err := exec.Fetch(context.Background(), acc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NewestSeenID != "10" {
		t.Errorf("expected cursor to stay at 10, got %q", res.NewestSeenID)
	}
}

func TestFetch_ReplayIsIdempotent(t *testing.T) {
	lister := &fakeLister{page: raw("11", "12")}
	store := newFakeStore()
	exec := newTestExecutor(lister, store)
	acc := testAccount()

	first, err := exec.Fetch(context.Background(), acc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.New) != 2 {
		t.Fatalf("expected 2 new mentions, got %d", len(first.New))
	}
	store.insert(first.New)

	second, err := exec.Fetch(context.Background(), acc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second.New) != 0 {
		t.Errorf("expected no new mentions on replay, got %d", len(second.New))
	}
	if second.Fetched != 2 {
		t.Errorf("expected 2 fetched items, got %d", second.Fetched)
	}
}

func TestFetch_DropsDuplicatesWithinPage(t *testing.T) {
	lister := &fakeLister{page: raw("20", "21", "20")}
	exec := newTestExecutor(lister, newFakeStore())

	res, err := exec.Fetch(context.Background(), testAccount())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.New) != 2 {
		t.Errorf("expected 2 unique mentions, got %d", len(res.New))
	}
}

func TestFetch_NormalizesSenderAndRecipient(t *testing.T) {
	lister := &fakeLister{page: raw("30")}
	exec := newTestExecutor(lister, newFakeStore())

	res, err := exec.Fetch(context.Background(), testAccount())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := res.New[0]
	if m.ID == "" {
		t.Error("expected an internal id")
	}
	if m.Status != mentionentity.StatusPending {
		t.Errorf("expected pending status, got %s", m.Status)
	}
	if m.Sender.Username != "user30" || m.Sender.ExternalID != "author-30" {
		t.Errorf("unexpected sender: %+v", m.Sender)
	}
	if m.Recipient.AccountID != "acc-1" || m.Recipient.ExternalID != "1000" || m.Recipient.Username != "tracked" {
		t.Errorf("unexpected recipient: %+v", m.Recipient)
	}
}

func TestFetch_RateLimitedPassesThrough(t *testing.T) {
	reset := time.Date(2025, 1, 1, 12, 15, 0, 0, time.UTC)
	lister := &fakeLister{err: &entity.RateLimitedError{ResetAt: reset, Source: "mentions"}}
	exec := newTestExecutor(lister, newFakeStore())

	_, err := exec.Fetch(context.Background(), testAccount())
	if !errors.Is(err, entity.ErrRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
	var rl *entity.RateLimitedError
	if !errors.As(err, &rl) || !rl.ResetAt.Equal(reset) {
		t.Errorf("expected reset time to be preserved, got %v", err)
	}
	if errors.Is(err, entity.ErrTransient) {
		t.Error("rate limit must not be reported as transient")
	}
}

func TestFetch_ArchiveFailureIsNotFatal(t *testing.T) {
	lister := &fakeLister{page: raw("40")}
	archiver := &fakeArchiver{err: errors.New("bucket unavailable")}
	exec := newTestExecutor(lister, newFakeStore(), WithArchiver(archiver))

	res, err := exec.Fetch(context.Background(), testAccount())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if archiver.pages != 1 {
		t.Errorf("expected one archived page, got %d", archiver.pages)
	}
	if len(res.New) != 1 {
		t.Errorf("expected 1 new mention, got %d", len(res.New))
	}
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"9", "10", -1},
		{"10", "9", 1},
		{"1790000000000000001", "1790000000000000000", 1},
		{"123", "123", 0},
		{"99999999999999999999", "100000000000000000000", -1},
	}
	for _, tt := range tests {
		if got := CompareIDs(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareIDs(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}

	if MaxID("", "5") != "5" || MaxID("5", "") != "5" {
		t.Error("empty id must lose against any id")
	}
}
