// Package fetch performs one mention listing call for an account and turns
// the raw page into new, deduplicated mentions.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	accountentity "github.com/vadim/mention-tracker/internal/domain/account/entity"
	mentionentity "github.com/vadim/mention-tracker/internal/domain/mention/entity"
	"github.com/vadim/mention-tracker/internal/domain/polling/entity"
)

// MentionLister calls the platform mention listing endpoint. Implementations
// return *entity.RateLimitedError on HTTP 429 and entity.ErrUnauthorized on 401.
type MentionLister interface {
	ListMentions(ctx context.Context, userID, accessToken, sinceID string) ([]entity.RawMention, error)
}

// MentionStore checks whether a mention was already ingested
type MentionStore interface {
	FindByAccountAndExternalID(ctx context.Context, accountID, externalID string) (*mentionentity.Mention, error)
}

// Archiver stores raw pages for later inspection
type Archiver interface {
	ArchivePage(ctx context.Context, accountID string, page []entity.RawMention) error
}

// Result is the outcome of a successful fetch
type Result struct {
	// New holds unseen mentions ordered oldest first
	New []*mentionentity.Mention
	// NewestSeenID is the highest external id seen, never below the old cursor
	NewestSeenID string
	// Fetched is the raw page size before deduplication
	Fetched int
}

// Executor fetches and normalizes mentions
type Executor struct {
	lister   MentionLister
	store    MentionStore
	archiver Archiver
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithArchiver archives every non-empty raw page
func WithArchiver(a Archiver) Option {
	return func(e *Executor) {
		e.archiver = a
	}
}

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// New creates a new fetch executor
func New(lister MentionLister, store MentionStore, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		lister: lister,
		store:  store,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fetch lists mentions newer than the account cursor and returns the unseen
// ones. Exactly one listing request is issued.
func (e *Executor) Fetch(ctx context.Context, acc *accountentity.Account) (*Result, error) {
	raw, err := e.lister.ListMentions(ctx, acc.ExternalID, acc.AccessToken, acc.MentionCursor)
	if err != nil {
		return nil, fmt.Errorf("listing mentions: %w", err)
	}

	if len(raw) > 0 && e.archiver != nil {
		if err := e.archiver.ArchivePage(ctx, acc.ID, raw); err != nil {
			e.logger.Warn("failed to archive raw mentions", "account_id", acc.ID, "error", err)
		}
	}

	result := &Result{
		NewestSeenID: acc.MentionCursor,
		Fetched:      len(raw),
	}

	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		if item.ID == "" {
			continue
		}
		result.NewestSeenID = MaxID(result.NewestSeenID, item.ID)

		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}

		existing, err := e.store.FindByAccountAndExternalID(ctx, acc.ID, item.ID)
		if err != nil {
			return nil, fmt.Errorf("checking mention %s: %w", item.ID, entity.Transient(err))
		}
		if existing != nil {
			continue
		}

		result.New = append(result.New, e.normalize(acc, item))
	}

	sort.SliceStable(result.New, func(i, j int) bool {
		return CompareIDs(result.New[i].ExternalID, result.New[j].ExternalID) < 0
	})

	return result, nil
}

func (e *Executor) normalize(acc *accountentity.Account, item entity.RawMention) *mentionentity.Mention {
	now := e.now()

	sender := mentionentity.Sender{ExternalID: item.AuthorID}
	if item.Author != nil {
		if sender.ExternalID == "" {
			sender.ExternalID = item.Author.ID
		}
		sender.Username = item.Author.Username
		sender.DisplayName = item.Author.Name
		sender.AvatarURL = item.Author.ProfileImageURL
	}

	ts := item.CreatedAt
	if ts.IsZero() {
		ts = now
	}

	return &mentionentity.Mention{
		ID:         uuid.NewString(),
		ExternalID: item.ID,
		AccountID:  acc.ID,
		Timestamp:  ts,
		Text:       item.Text,
		Sender:     sender,
		Recipient: mentionentity.Recipient{
			AccountID:  acc.ID,
			ExternalID: acc.ExternalID,
			Username:   acc.Username,
		},
		Status:    mentionentity.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
