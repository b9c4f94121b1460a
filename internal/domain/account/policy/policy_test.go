package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vadim/mention-tracker/internal/domain/account/entity"
	mentionentity "github.com/vadim/mention-tracker/internal/domain/mention/entity"
	pollingentity "github.com/vadim/mention-tracker/internal/domain/polling/entity"
)

type mockRepo struct {
	accounts map[string]*entity.Account
	created  *entity.Account
	replaced *entity.Credentials
}

func newMockRepo(accs ...*entity.Account) *mockRepo {
	m := &mockRepo{accounts: make(map[string]*entity.Account)}
	for _, a := range accs {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *mockRepo) ListAccounts(_ context.Context, includeInactive bool) ([]*entity.Account, error) {
	var out []*entity.Account
	for _, a := range m.accounts {
		if a.Active || includeInactive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockRepo) GetAccount(_ context.Context, id string) (*entity.Account, error) {
	return m.accounts[id], nil
}

func (m *mockRepo) GetAccountByExternalID(_ context.Context, externalID string) (*entity.Account, error) {
	for _, a := range m.accounts {
		if a.ExternalID == externalID {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) CreateAccount(_ context.Context, a *entity.Account) (*entity.Account, error) {
	if existing, _ := m.GetAccountByExternalID(context.Background(), a.ExternalID); existing != nil {
		a.ID = existing.ID
	}
	a.Active = true
	a.SyncStatus = entity.SyncStatusActive
	m.created = a
	m.accounts[a.ID] = a
	return a, nil
}

func (m *mockRepo) SetActive(_ context.Context, id string, active bool) (*entity.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, entity.ErrAccountNotFound
	}
	a.Active = active
	if active {
		a.SyncStatus = entity.SyncStatusActive
	} else {
		a.SyncStatus = entity.SyncStatusPaused
	}
	return a, nil
}

func (m *mockRepo) ReplaceCredentials(_ context.Context, id string, c entity.Credentials) (*entity.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, entity.ErrAccountNotFound
	}
	m.replaced = &c
	a.SetCredentials(c)
	a.SyncStatus = entity.SyncStatusActive
	a.ErrorMessage = nil
	return a, nil
}

func (m *mockRepo) DeleteAccount(_ context.Context, id string) error {
	if _, ok := m.accounts[id]; !ok {
		return entity.ErrAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

type chanLocker struct {
	held map[string]chan struct{}
}

func newChanLocker() *chanLocker {
	return &chanLocker{held: make(map[string]chan struct{})}
}

func (l *chanLocker) slot(id string) chan struct{} {
	ch, ok := l.held[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.held[id] = ch
	}
	return ch
}

func (l *chanLocker) Acquire(ctx context.Context, id string) error {
	select {
	case l.slot(id) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *chanLocker) Release(id string) {
	<-l.slot(id)
}

type mockPoller struct {
	outcome   pollingentity.Outcome
	err       error
	forgotten []string
}

func (m *mockPoller) PollAccount(_ context.Context, id string) (pollingentity.Outcome, error) {
	o := m.outcome
	o.AccountID = id
	return o, m.err
}

func (m *mockPoller) Forget(id string) {
	m.forgotten = append(m.forgotten, id)
}

type mockStats struct{}

func (mockStats) GetStatistics(_ context.Context, accountID string) (*mentionentity.AccountStatistics, error) {
	return &mentionentity.AccountStatistics{AccountID: accountID, Total: 3, Pending: 2, Replied: 1}, nil
}

func tokenExpiredAccount() *entity.Account {
	msg := "token refresh rejected"
	return &entity.Account{
		ID:           "acc-1",
		ExternalID:   "42",
		Username:     "tracked",
		Active:       true,
		SyncStatus:   entity.SyncStatusTokenExpired,
		ErrorMessage: &msg,
	}
}

func TestCreate_Validation(t *testing.T) {
	p := New(newMockRepo(), newChanLocker(), &mockPoller{}, mockStats{})

	_, err := p.Create(context.Background(), CreateInput{Username: "x", AccessToken: "a", RefreshToken: "r"})
	if !errors.Is(err, entity.ErrMissingExternalID) {
		t.Errorf("expected ErrMissingExternalID, got %v", err)
	}

	_, err = p.Create(context.Background(), CreateInput{ExternalID: "1", Username: "x", AccessToken: "a"})
	if !errors.Is(err, entity.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestCreate_AssignsIDAndExpiry(t *testing.T) {
	repo := newMockRepo()
	p := New(repo, newChanLocker(), &mockPoller{}, mockStats{})

	a, err := p.Create(context.Background(), CreateInput{
		ExternalID:   "1",
		Username:     "tracked",
		AccessToken:  "a",
		RefreshToken: "r",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == "" {
		t.Error("expected an id to be assigned")
	}
	if a.TokenExpiresAt.IsZero() || a.TokenExpiresAt.After(time.Now()) {
		t.Errorf("unknown expiry should be treated as due now, got %v", a.TokenExpiresAt)
	}
}

func TestReplaceCredentials_ReactivatesTokenExpired(t *testing.T) {
	repo := newMockRepo(tokenExpiredAccount())
	p := New(repo, newChanLocker(), &mockPoller{}, mockStats{})

	a, err := p.ReplaceCredentials(context.Background(), "acc-1", entity.Credentials{
		AccessToken:  "new-a",
		RefreshToken: "new-r",
		ExpiresAt:    time.Now().Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.SyncStatus != entity.SyncStatusActive || a.ErrorMessage != nil {
		t.Errorf("expected active account without error, got %s %q", a.SyncStatus, a.Error())
	}
	if repo.replaced == nil || repo.replaced.RefreshToken != "new-r" {
		t.Error("expected credentials to be passed to the repository")
	}
}

func TestReplaceCredentials_WaitsForLock(t *testing.T) {
	locker := newChanLocker()
	p := New(newMockRepo(tokenExpiredAccount()), locker, &mockPoller{}, mockStats{})

	if err := locker.Acquire(context.Background(), "acc-1"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.ReplaceCredentials(ctx, "acc-1", entity.Credentials{AccessToken: "a", RefreshToken: "r"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline while poll holds the lock, got %v", err)
	}
}

func TestCreate_ReregistrationWaitsForLock(t *testing.T) {
	locker := newChanLocker()
	repo := newMockRepo(tokenExpiredAccount())
	p := New(repo, locker, &mockPoller{}, mockStats{})

	if err := locker.Acquire(context.Background(), "acc-1"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Create(ctx, CreateInput{
		ExternalID:   "42",
		Username:     "tracked",
		AccessToken:  "new-a",
		RefreshToken: "new-r",
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline while poll holds the lock, got %v", err)
	}
	if repo.created != nil {
		t.Error("credentials were written while the account was locked")
	}
}

func TestCreate_ReregistrationKeepsID(t *testing.T) {
	repo := newMockRepo(tokenExpiredAccount())
	p := New(repo, newChanLocker(), &mockPoller{}, mockStats{})

	a, err := p.Create(context.Background(), CreateInput{
		ExternalID:   "42",
		Username:     "tracked",
		AccessToken:  "new-a",
		RefreshToken: "new-r",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID != "acc-1" {
		t.Errorf("expected existing id acc-1, got %s", a.ID)
	}
	if a.RefreshToken != "new-r" {
		t.Errorf("expected replaced refresh token, got %q", a.RefreshToken)
	}
	if len(repo.accounts) != 1 {
		t.Errorf("expected a single tracked account, got %d", len(repo.accounts))
	}
}

func TestDelete_ForgetsPollingState(t *testing.T) {
	poller := &mockPoller{}
	p := New(newMockRepo(tokenExpiredAccount()), newChanLocker(), poller, mockStats{})

	if err := p.Delete(context.Background(), "acc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(poller.forgotten) != 1 || poller.forgotten[0] != "acc-1" {
		t.Errorf("expected acc-1 to be forgotten, got %v", poller.forgotten)
	}

	if err := p.Delete(context.Background(), "acc-1"); !errors.Is(err, entity.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
	if len(poller.forgotten) != 1 {
		t.Errorf("failed delete should not forget state, got %v", poller.forgotten)
	}
}

func TestSetActive_Pause(t *testing.T) {
	acc := tokenExpiredAccount()
	acc.SyncStatus = entity.SyncStatusActive
	p := New(newMockRepo(acc), newChanLocker(), &mockPoller{}, mockStats{})

	a, err := p.SetActive(context.Background(), "acc-1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Active || a.SyncStatus != entity.SyncStatusPaused {
		t.Errorf("expected paused account, got active=%v status=%s", a.Active, a.SyncStatus)
	}
}

func TestGet_NotFound(t *testing.T) {
	p := New(newMockRepo(), newChanLocker(), &mockPoller{}, mockStats{})

	if _, err := p.Get(context.Background(), "missing"); !errors.Is(err, entity.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := p.Statistics(context.Background(), "missing"); !errors.Is(err, entity.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound from statistics, got %v", err)
	}
}

func TestTriggerFetch_PassesThrough(t *testing.T) {
	poller := &mockPoller{err: pollingentity.ErrPollInProgress}
	p := New(newMockRepo(), newChanLocker(), poller, mockStats{})

	if _, err := p.TriggerFetch(context.Background(), "acc-1"); !errors.Is(err, pollingentity.ErrPollInProgress) {
		t.Errorf("expected ErrPollInProgress, got %v", err)
	}
}
