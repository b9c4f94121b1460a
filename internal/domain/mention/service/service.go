package service

import (
	"context"
	"fmt"

	"github.com/vadim/mention-tracker/internal/domain/mention/dao"
	"github.com/vadim/mention-tracker/internal/domain/mention/entity"
)

// Repository defines mention data access
type Repository interface {
	GetByID(ctx context.Context, id string) (*entity.Mention, error)
	List(ctx context.Context, filter dao.MentionFilter, opts dao.ListOptions) ([]entity.Mention, error)
	Count(ctx context.Context, filter dao.MentionFilter) (int64, error)
	ClaimForReply(ctx context.Context, id string) (bool, error)
	SetReplied(ctx context.Context, id, text, replyExternalID string) error
	UpdateStatus(ctx context.Context, id string, status entity.Status, errorMsg string) error
	GetStatistics(ctx context.Context, accountID string) (*entity.AccountStatistics, error)
}

// Replier posts a public reply on the platform
type Replier interface {
	Reply(ctx context.Context, accessToken, inReplyTo, text string) (string, error)
}

// Service handles mention data and reply delivery
type Service struct {
	repo    Repository
	replier Replier
}

// New creates a new mention service
func New(repo Repository, replier Replier) *Service {
	return &Service{
		repo:    repo,
		replier: replier,
	}
}

// ListInput represents input for listing mentions
type ListInput struct {
	AccountID string
	Status    *entity.Status
	Limit     int
	Offset    int
}

// ListOutput represents a page of mentions
type ListOutput struct {
	Mentions []entity.Mention `json:"mentions"`
	Total    int64            `json:"total"`
	HasMore  bool             `json:"has_more"`
}

// List returns a page of mentions
func (s *Service) List(ctx context.Context, in ListInput) (*ListOutput, error) {
	if in.Limit <= 0 || in.Limit > 100 {
		in.Limit = 20
	}
	if in.Offset < 0 {
		in.Offset = 0
	}
	if in.Status != nil && !in.Status.IsValid() {
		return nil, entity.ErrInvalidStatus
	}

	filter := dao.MentionFilter{AccountID: in.AccountID, Status: in.Status}

	mentions, err := s.repo.List(ctx, filter, dao.ListOptions{Limit: in.Limit, Offset: in.Offset})
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	if mentions == nil {
		mentions = []entity.Mention{}
	}

	return &ListOutput{
		Mentions: mentions,
		Total:    total,
		HasMore:  int64(in.Offset+len(mentions)) < total,
	}, nil
}

// Get returns a mention by id
func (s *Service) Get(ctx context.Context, id string) (*entity.Mention, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, entity.ErrMentionNotFound
	}
	return m, nil
}

// Claim moves a mention into processing
func (s *Service) Claim(ctx context.Context, id string) (bool, error) {
	return s.repo.ClaimForReply(ctx, id)
}

// SendReply posts the reply and records it on the mention
func (s *Service) SendReply(ctx context.Context, accessToken string, m *entity.Mention, text string) error {
	replyID, err := s.replier.Reply(ctx, accessToken, m.ExternalID, text)
	if err != nil {
		return fmt.Errorf("posting reply: %w", err)
	}

	if err := s.repo.SetReplied(ctx, m.ID, text, replyID); err != nil {
		return err
	}

	return nil
}

// MarkFailed records a failed reply
func (s *Service) MarkFailed(ctx context.Context, id, reason string) error {
	return s.repo.UpdateStatus(ctx, id, entity.StatusError, reason)
}

// Ignore marks a mention as not needing a reply
func (s *Service) Ignore(ctx context.Context, id string) error {
	return s.repo.UpdateStatus(ctx, id, entity.StatusIgnored, "")
}

// Statistics returns mention counts for an account
func (s *Service) Statistics(ctx context.Context, accountID string) (*entity.AccountStatistics, error) {
	return s.repo.GetStatistics(ctx, accountID)
}
