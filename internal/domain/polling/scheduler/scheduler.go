// Package scheduler drives periodic mention polling for every active
// account with bounded concurrency and per-account single-flight.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	accountentity "github.com/vadim/mention-tracker/internal/domain/account/entity"
	mentionentity "github.com/vadim/mention-tracker/internal/domain/mention/entity"
	"github.com/vadim/mention-tracker/internal/domain/polling/entity"
	"github.com/vadim/mention-tracker/internal/domain/polling/fetch"
	"github.com/vadim/mention-tracker/internal/domain/polling/ratelimit"
	"github.com/vadim/mention-tracker/internal/domain/polling/status"
)

// AccountStore loads and persists tracked accounts
type AccountStore interface {
	LoadActiveAccounts(ctx context.Context) ([]*accountentity.Account, error)
	// GetAccount returns nil without error when the account does not exist
	GetAccount(ctx context.Context, id string) (*accountentity.Account, error)
	SaveAccount(ctx context.Context, acc *accountentity.Account) error
}

// MentionWriter persists fetched mentions, ignoring ones already stored
type MentionWriter interface {
	InsertMentions(ctx context.Context, mentions []*mentionentity.Mention) (int, error)
}

// TokenManager keeps account credentials valid
type TokenManager interface {
	EnsureValid(ctx context.Context, acc *accountentity.Account) (*accountentity.Account, error)
	RefreshIfExpiring(ctx context.Context, acc *accountentity.Account, horizon time.Duration) (*accountentity.Account, bool, error)
}

// RateLimiter tracks the per-account request budget
type RateLimiter interface {
	Allow(accountID string) bool
	RecordUse(accountID string)
	Snapshot(accountID string) ratelimit.Window
	Forget(accountID string)
}

// Fetcher performs one mention fetch for an account
type Fetcher interface {
	Fetch(ctx context.Context, acc *accountentity.Account) (*fetch.Result, error)
}

// Recorder receives polling metrics
type Recorder interface {
	ObservePoll(kind entity.OutcomeKind, d time.Duration)
	AddMentions(n int)
	ObserveTick(accounts int, d time.Duration)
	ObserveRefresh(result string)
}

type noopRecorder struct{}

func (noopRecorder) ObservePoll(entity.OutcomeKind, time.Duration) {}
func (noopRecorder) AddMentions(int) {}
func (noopRecorder) ObserveTick(int, time.Duration) {}
func (noopRecorder) ObserveRefresh(string) {}

// Config holds configuration for the polling scheduler
type Config struct {
	Interval       time.Duration
	WorkerPoolSize int
	AccountTimeout time.Duration
	InitialDelay   time.Duration
	// WriteBackTimeout bounds the account save that follows a poll,
	// which runs even when the poll itself timed out
	WriteBackTimeout time.Duration
}

// Deps groups the collaborators of the scheduler
type Deps struct {
	Accounts AccountStore
	Mentions MentionWriter
	Tokens   TokenManager
	Limiter  RateLimiter
	Fetcher  Fetcher
	Recorder Recorder
}

// Scheduler handles periodic polling of mentions
type Scheduler struct {
	accounts AccountStore
	mentions MentionWriter
	tokens   TokenManager
	limiter  RateLimiter
	fetcher  Fetcher
	recorder Recorder
	guard    *Guard

	interval         time.Duration
	workers          int
	accountTimeout   time.Duration
	initialDelay     time.Duration
	writeBackTimeout time.Duration

	now     func() time.Time
	logger  *slog.Logger
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// New creates a new polling scheduler
func New(cfg Config, deps Deps, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
	}
	if cfg.AccountTimeout <= 0 {
		cfg.AccountTimeout = 2 * time.Minute
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	if cfg.WriteBackTimeout <= 0 {
		cfg.WriteBackTimeout = 10 * time.Second
	}
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}

	return &Scheduler{
		accounts:         deps.Accounts,
		mentions:         deps.Mentions,
		tokens:           deps.Tokens,
		limiter:          deps.Limiter,
		fetcher:          deps.Fetcher,
		recorder:         deps.Recorder,
		guard:            NewGuard(),
		interval:         cfg.Interval,
		workers:          cfg.WorkerPoolSize,
		accountTimeout:   cfg.AccountTimeout,
		initialDelay:     cfg.InitialDelay,
		writeBackTimeout: cfg.WriteBackTimeout,
		now:              time.Now,
		logger:           logger,
	}
}

// Forget drops the rate limit state of a removed account
func (s *Scheduler) Forget(accountID string) {
	s.limiter.Forget(accountID)
}

// Guard exposes the per-account lock shared with other account operations
func (s *Scheduler) Guard() *Guard {
	return s.guard
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh

	// Create a cancellable context for in-flight polls
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("mention polling scheduler started",
		"interval", s.interval,
		"workers", s.workers,
		"account_timeout", s.accountTimeout,
	)

	s.wg.Add(1)
	go s.run(ctx, stopCh)
}

// Stop stops the scheduler and waits for the current tick to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	close(s.stopCh)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.wg.Wait()
	s.logger.Info("mention polling scheduler stopped")
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	// Run after a short delay on start (to let the app initialize)
	select {
	case <-time.After(s.initialDelay):
		s.Tick(ctx)
	case <-stopCh:
		return
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick polls every active account once. Busy accounts are skipped and a
// failure for one account never affects the others.
func (s *Scheduler) Tick(ctx context.Context) []entity.Outcome {
	start := s.now()

	accounts, err := s.accounts.LoadActiveAccounts(ctx)
	if err != nil {
		s.logger.Error("failed to load active accounts", "error", err)
		return nil
	}
	if len(accounts) == 0 {
		s.logger.Debug("no active accounts to poll")
		return nil
	}

	outcomes := make([]entity.Outcome, len(accounts))

	var g errgroup.Group
	g.SetLimit(s.workers)

	for i, acc := range accounts {
		if ctx.Err() != nil {
			outcomes[i] = entity.Outcome{AccountID: acc.ID, Kind: entity.OutcomeSkipped, Err: ctx.Err()}
			continue
		}

		g.Go(func() error {
			if !s.guard.TryAcquire(acc.ID) {
				s.logger.Debug("poll already in progress, skipping", "account_id", acc.ID)
				outcomes[i] = entity.Outcome{AccountID: acc.ID, Kind: entity.OutcomeSkipped, Err: entity.ErrPollInProgress}
				return nil
			}
			defer s.guard.Release(acc.ID)

			outcomes[i] = s.pollLocked(ctx, acc.ID)
			return nil
		})
	}
	_ = g.Wait()

	counts := make(map[entity.OutcomeKind]int)
	newMentions := 0
	for _, o := range outcomes {
		counts[o.Kind]++
		newMentions += o.NewMentions
	}

	duration := s.now().Sub(start)
	s.recorder.ObserveTick(len(accounts), duration)
	s.logger.Info("poll tick completed",
		"accounts", len(accounts),
		"success", counts[entity.OutcomeSuccess],
		"errors", counts[entity.OutcomeTransient],
		"token_expired", counts[entity.OutcomeTerminal],
		"rate_limited", counts[entity.OutcomeRateLimited],
		"skipped", counts[entity.OutcomeSkipped],
		"new_mentions", newMentions,
		"duration", duration,
	)

	return outcomes
}

// PollAccount runs one poll for an account on demand, through the same
// path as a scheduled tick
func (s *Scheduler) PollAccount(ctx context.Context, accountID string) (entity.Outcome, error) {
	acc, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return entity.Outcome{}, fmt.Errorf("loading account: %w", err)
	}
	if acc == nil {
		return entity.Outcome{}, entity.ErrAccountNotFound
	}
	if !acc.Active || acc.SyncStatus == accountentity.SyncStatusPaused {
		return entity.Outcome{}, entity.ErrAccountPaused
	}

	if !s.guard.TryAcquire(accountID) {
		return entity.Outcome{}, entity.ErrPollInProgress
	}
	defer s.guard.Release(accountID)

	return s.pollLocked(ctx, accountID), nil
}

// WithAccount runs fn under the account guard with a valid access token.
// Refreshed credentials are saved before fn is called.
func (s *Scheduler) WithAccount(ctx context.Context, accountID string, fn func(ctx context.Context, acc *accountentity.Account) error) error {
	if err := s.guard.Acquire(ctx, accountID); err != nil {
		return fmt.Errorf("waiting for account lock: %w", err)
	}
	defer s.guard.Release(accountID)

	acc, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}
	if acc == nil {
		return entity.ErrAccountNotFound
	}
	if acc.SyncStatus == accountentity.SyncStatusTokenExpired {
		return fmt.Errorf("account %s: %w", accountID, entity.ErrTerminalCredential)
	}

	current, err := s.tokens.EnsureValid(ctx, acc)
	if err != nil {
		if errors.Is(err, entity.ErrTerminalCredential) {
			s.writeBack(ctx, acc, entity.Outcome{AccountID: accountID, Kind: entity.OutcomeTerminal, Err: err})
		}
		return err
	}
	if current != acc {
		if err := s.save(ctx, current); err != nil {
			return fmt.Errorf("saving refreshed credentials: %w", err)
		}
	}

	return fn(ctx, current)
}

// pollLocked runs one poll for an account. The caller holds the guard.
func (s *Scheduler) pollLocked(ctx context.Context, accountID string) entity.Outcome {
	start := s.now()

	pctx, cancel := context.WithTimeout(ctx, s.accountTimeout)
	defer cancel()

	acc, err := s.accounts.GetAccount(pctx, accountID)
	if err != nil {
		s.logger.Error("failed to reload account", "account_id", accountID, "error", err)
		return s.observe(entity.Outcome{
			AccountID: accountID,
			Kind:      entity.OutcomeTransient,
			Message:   "loading account failed",
			Err:       err,
		}, start)
	}
	if acc == nil {
		return s.observe(entity.Outcome{AccountID: accountID, Kind: entity.OutcomeSkipped, Err: entity.ErrAccountNotFound}, start)
	}

	switch {
	case !acc.Active || acc.SyncStatus == accountentity.SyncStatusPaused:
		return s.observe(entity.Outcome{AccountID: accountID, Kind: entity.OutcomeSkipped, Err: entity.ErrAccountPaused}, start)
	case acc.SyncStatus == accountentity.SyncStatusTokenExpired:
		s.logger.Debug("account awaiting reauthorization, skipping", "account_id", accountID)
		return s.observe(entity.Outcome{AccountID: accountID, Kind: entity.OutcomeSkipped, Message: "awaiting reauthorization"}, start)
	}

	updated, outcome := s.poll(pctx, acc)
	outcome.AccountID = accountID

	s.writeBack(ctx, updated, outcome)
	s.logOutcome(outcome)

	return s.observe(outcome, start)
}

// poll performs the token, budget and fetch steps. The returned account
// carries any refreshed credentials even when a later step failed.
func (s *Scheduler) poll(ctx context.Context, acc *accountentity.Account) (*accountentity.Account, entity.Outcome) {
	current, err := s.tokens.EnsureValid(ctx, acc)
	if err != nil {
		return acc, s.failure(err)
	}

	if !s.limiter.Allow(current.ID) {
		win := s.limiter.Snapshot(current.ID)
		return current, entity.Outcome{
			Kind:    entity.OutcomeRateLimited,
			Message: fmt.Sprintf("request budget exhausted until %s", win.ResetAt().UTC().Format(time.RFC3339)),
			Err:     &entity.RateLimitedError{ResetAt: win.ResetAt(), Source: "local window"},
		}
	}
	s.limiter.RecordUse(current.ID)

	res, err := s.fetcher.Fetch(ctx, current)
	if err != nil {
		if errors.Is(err, entity.ErrUnauthorized) {
			// Treat the token as expired so the next tick refreshes it
			current.TokenExpiresAt = s.now()
		}
		return current, s.failure(err)
	}

	inserted, err := s.mentions.InsertMentions(ctx, res.New)
	if err != nil {
		return current, s.failure(entity.Transient(fmt.Errorf("storing mentions: %w", err)))
	}
	s.recorder.AddMentions(inserted)

	now := s.now()
	current.TotalMentionsTracked += int64(inserted)
	current.LastSyncedAt = &now
	current.MentionCursor = res.NewestSeenID

	return current, entity.Outcome{
		Kind:        entity.OutcomeSuccess,
		NewMentions: inserted,
		Cursor:      res.NewestSeenID,
	}
}

// failure maps an error onto an outcome
func (s *Scheduler) failure(err error) entity.Outcome {
	var rl *entity.RateLimitedError
	switch {
	case errors.Is(err, entity.ErrTerminalCredential):
		return entity.Outcome{Kind: entity.OutcomeTerminal, Message: err.Error(), Err: err}
	case errors.As(err, &rl):
		msg := "rate limited by platform"
		if !rl.ResetAt.IsZero() {
			msg = fmt.Sprintf("rate limited by platform until %s", rl.ResetAt.UTC().Format(time.RFC3339))
		}
		return entity.Outcome{Kind: entity.OutcomeRateLimited, Message: msg, Err: err}
	case errors.Is(err, entity.ErrRateLimited):
		return entity.Outcome{Kind: entity.OutcomeRateLimited, Message: err.Error(), Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, entity.ErrTimeout):
		return entity.Outcome{
			Kind:    entity.OutcomeTransient,
			Message: "poll timed out",
			Err:     fmt.Errorf("%w: %w", entity.ErrTimeout, err),
		}
	default:
		return entity.Outcome{Kind: entity.OutcomeTransient, Message: err.Error(), Err: err}
	}
}

// writeBack projects the outcome onto the account and saves it. It uses a
// detached context so a timed out poll still records its status.
func (s *Scheduler) writeBack(ctx context.Context, acc *accountentity.Account, outcome entity.Outcome) {
	if !status.Apply(acc, outcome) {
		return
	}
	if err := s.save(ctx, acc); err != nil {
		s.logger.Error("failed to save account after poll",
			"account_id", acc.ID,
			"outcome", outcome.Kind,
			"error", err,
		)
	}
}

func (s *Scheduler) save(ctx context.Context, acc *accountentity.Account) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeBackTimeout)
	defer cancel()

	acc.UpdatedAt = s.now()
	return s.accounts.SaveAccount(wctx, acc)
}

func (s *Scheduler) observe(o entity.Outcome, start time.Time) entity.Outcome {
	o.Duration = s.now().Sub(start)
	s.recorder.ObservePoll(o.Kind, o.Duration)
	return o
}

func (s *Scheduler) logOutcome(o entity.Outcome) {
	switch o.Kind {
	case entity.OutcomeSuccess:
		s.logger.Debug("account polled", "account_id", o.AccountID, "new_mentions", o.NewMentions, "cursor", o.Cursor)
	case entity.OutcomeRateLimited:
		s.logger.Info("account rate limited", "account_id", o.AccountID, "reason", o.Message)
	case entity.OutcomeTerminal:
		s.logger.Error("account credentials rejected, reauthorization required", "account_id", o.AccountID, "error", o.Err)
	case entity.OutcomeTransient:
		s.logger.Warn("account poll failed", "account_id", o.AccountID, "error", o.Err)
	}
}
