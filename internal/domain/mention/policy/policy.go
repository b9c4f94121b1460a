package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	accountentity "github.com/vadim/mention-tracker/internal/domain/account/entity"
	"github.com/vadim/mention-tracker/internal/domain/mention/entity"
	"github.com/vadim/mention-tracker/internal/domain/mention/service"
)

// AccountRunner runs fn under the account lock with a valid access token
type AccountRunner interface {
	WithAccount(ctx context.Context, accountID string, fn func(ctx context.Context, acc *accountentity.Account) error) error
}

// MentionService defines the interface for mention operations
type MentionService interface {
	List(ctx context.Context, in service.ListInput) (*service.ListOutput, error)
	Get(ctx context.Context, id string) (*entity.Mention, error)
	Claim(ctx context.Context, id string) (bool, error)
	SendReply(ctx context.Context, accessToken string, m *entity.Mention, text string) error
	MarkFailed(ctx context.Context, id, reason string) error
	Ignore(ctx context.Context, id string) error
}

// Policy handles business policies for mentions
type Policy struct {
	svc    MentionService
	runner AccountRunner
	logger *slog.Logger
}

// New creates a new mention policy
func New(svc MentionService, runner AccountRunner, logger *slog.Logger) *Policy {
	return &Policy{
		svc:    svc,
		runner: runner,
		logger: logger,
	}
}

// List returns a page of mentions
func (p *Policy) List(ctx context.Context, in service.ListInput) (*service.ListOutput, error) {
	return p.svc.List(ctx, in)
}

// Get returns a mention
func (p *Policy) Get(ctx context.Context, id string) (*entity.Mention, error) {
	return p.svc.Get(ctx, id)
}

// Reply posts a public reply to a mention. The mention moves through
// processing to replied, or to error when delivery fails.
func (p *Policy) Reply(ctx context.Context, id, text string) (*entity.Mention, error) {
	if err := entity.ValidateReplyText(text); err != nil {
		return nil, err
	}

	m, err := p.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status.IsFinal() {
		return nil, entity.ErrAlreadyFinalized
	}

	claimed, err := p.svc.Claim(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, entity.ErrReplyInProgress
	}

	err = p.runner.WithAccount(ctx, m.AccountID, func(ctx context.Context, acc *accountentity.Account) error {
		return p.svc.SendReply(ctx, acc.AccessToken, m, text)
	})
	if err != nil {
		p.logger.Warn("reply delivery failed", "mention_id", id, "account_id", m.AccountID, "error", err)

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if markErr := p.svc.MarkFailed(fctx, id, err.Error()); markErr != nil {
			p.logger.Error("failed to record reply failure", "mention_id", id, "error", markErr)
		}
		return nil, fmt.Errorf("replying to mention: %w", err)
	}

	p.logger.Info("reply sent", "mention_id", id, "account_id", m.AccountID)

	return p.svc.Get(ctx, id)
}

// Ignore marks a mention as handled without a reply
func (p *Policy) Ignore(ctx context.Context, id string) (*entity.Mention, error) {
	m, err := p.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch m.Status {
	case entity.StatusReplied:
		return nil, entity.ErrAlreadyFinalized
	case entity.StatusProcessing:
		return nil, entity.ErrReplyInProgress
	}
	if m.Status == entity.StatusIgnored {
		return m, nil
	}

	if err := p.svc.Ignore(ctx, id); err != nil {
		return nil, err
	}

	return p.svc.Get(ctx, id)
}
