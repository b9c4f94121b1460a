package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/mention-tracker/internal/domain/account/entity"
	mentionentity "github.com/vadim/mention-tracker/internal/domain/mention/entity"
	pollingentity "github.com/vadim/mention-tracker/internal/domain/polling/entity"
)

// AccountRepository persists tracked accounts
type AccountRepository interface {
	ListAccounts(ctx context.Context, includeInactive bool) ([]*entity.Account, error)
	GetAccount(ctx context.Context, id string) (*entity.Account, error)
	GetAccountByExternalID(ctx context.Context, externalID string) (*entity.Account, error)
	CreateAccount(ctx context.Context, a *entity.Account) (*entity.Account, error)
	SetActive(ctx context.Context, id string, active bool) (*entity.Account, error)
	ReplaceCredentials(ctx context.Context, id string, c entity.Credentials) (*entity.Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

// Locker serializes mutations with in-flight polls of the same account
type Locker interface {
	Acquire(ctx context.Context, accountID string) error
	Release(accountID string)
}

// Poller runs an on-demand poll and owns per-account polling state
type Poller interface {
	PollAccount(ctx context.Context, accountID string) (pollingentity.Outcome, error)
	Forget(accountID string)
}

// StatisticsProvider aggregates mention counts per account
type StatisticsProvider interface {
	GetStatistics(ctx context.Context, accountID string) (*mentionentity.AccountStatistics, error)
}

// Policy handles operator actions on tracked accounts
type Policy struct {
	repo   AccountRepository
	locker Locker
	poller Poller
	stats  StatisticsProvider
}

// New creates a new account policy
func New(repo AccountRepository, locker Locker, poller Poller, stats StatisticsProvider) *Policy {
	return &Policy{
		repo:   repo,
		locker: locker,
		poller: poller,
		stats:  stats,
	}
}

// List returns tracked accounts
func (p *Policy) List(ctx context.Context, includeInactive bool) ([]*entity.Account, error) {
	return p.repo.ListAccounts(ctx, includeInactive)
}

// Get returns one account
func (p *Policy) Get(ctx context.Context, id string) (*entity.Account, error) {
	a, err := p.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, entity.ErrAccountNotFound
	}
	return a, nil
}

// CreateInput represents input for registering an authorized account
type CreateInput struct {
	ExternalID   string
	Username     string
	DisplayName  string
	AvatarURL    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AddedBy      string
}

// Create registers an account. Registering an already tracked platform
// user replaces its credentials.
func (p *Policy) Create(ctx context.Context, in CreateInput) (*entity.Account, error) {
	if in.ExternalID == "" || in.Username == "" {
		return nil, entity.ErrMissingExternalID
	}
	creds := entity.Credentials{AccessToken: in.AccessToken, RefreshToken: in.RefreshToken, ExpiresAt: in.ExpiresAt}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if creds.ExpiresAt.IsZero() {
		// unknown expiry: the first poll refreshes
		creds.ExpiresAt = time.Now()
	}

	a := &entity.Account{
		ID:          uuid.NewString(),
		ExternalID:  in.ExternalID,
		Username:    in.Username,
		DisplayName: in.DisplayName,
		AvatarURL:   in.AvatarURL,
		AddedBy:     in.AddedBy,
	}
	a.SetCredentials(creds)

	existing, err := p.repo.GetAccountByExternalID(ctx, in.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return p.repo.CreateAccount(ctx, a)
	}

	// re-registration must not race a poll saving the old credentials
	var out *entity.Account
	err = p.locked(ctx, existing.ID, func() error {
		created, err := p.repo.CreateAccount(ctx, a)
		out = created
		return err
	})
	return out, err
}

// SetActive pauses or resumes polling of an account
func (p *Policy) SetActive(ctx context.Context, id string, active bool) (*entity.Account, error) {
	var out *entity.Account
	err := p.locked(ctx, id, func() error {
		a, err := p.repo.SetActive(ctx, id, active)
		out = a
		return err
	})
	return out, err
}

// ReplaceCredentials installs credentials from a new authorization and
// clears a token_expired state
func (p *Policy) ReplaceCredentials(ctx context.Context, id string, c entity.Credentials) (*entity.Account, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = time.Now()
	}

	var out *entity.Account
	err := p.locked(ctx, id, func() error {
		a, err := p.repo.ReplaceCredentials(ctx, id, c)
		out = a
		return err
	})
	return out, err
}

// Delete stops tracking an account
func (p *Policy) Delete(ctx context.Context, id string) error {
	err := p.locked(ctx, id, func() error {
		return p.repo.DeleteAccount(ctx, id)
	})
	if err != nil {
		return err
	}

	p.poller.Forget(id)
	return nil
}

// TriggerFetch polls an account immediately
func (p *Policy) TriggerFetch(ctx context.Context, id string) (pollingentity.Outcome, error) {
	return p.poller.PollAccount(ctx, id)
}

// Statistics returns mention counts for an account
func (p *Policy) Statistics(ctx context.Context, id string) (*mentionentity.AccountStatistics, error) {
	if _, err := p.Get(ctx, id); err != nil {
		return nil, err
	}
	return p.stats.GetStatistics(ctx, id)
}

func (p *Policy) locked(ctx context.Context, id string, fn func() error) error {
	if err := p.locker.Acquire(ctx, id); err != nil {
		return fmt.Errorf("waiting for account lock: %w", err)
	}
	defer p.locker.Release(id)

	return fn()
}
