package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	accountentity "github.com/vadim/mention-tracker/internal/domain/account/entity"
	"github.com/vadim/mention-tracker/internal/domain/polling/entity"
)

const (
	DefaultRefreshSchedule = "0 */2 * * *"
	DefaultRefreshHorizon  = time.Hour
)

// Refresh results reported to the recorder
const (
	RefreshRefreshed = "refreshed"
	RefreshNotDue    = "not_due"
	RefreshSkipped   = "skipped"
	RefreshFailed    = "failed"
	RefreshRejected  = "rejected"
)

// RefreshJob proactively refreshes tokens that are about to expire, so
// polls rarely have to refresh inline
type RefreshJob struct {
	sched    *Scheduler
	cron     *cron.Cron
	schedule string
	horizon  time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewRefreshJob registers the refresh job on a cron schedule in standard
// five-field format
func NewRefreshJob(sched *Scheduler, schedule string, horizon time.Duration, logger *slog.Logger) (*RefreshJob, error) {
	if horizon <= 0 {
		horizon = DefaultRefreshHorizon
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &RefreshJob{
		sched:    sched,
		cron:     cron.New(),
		schedule: schedule,
		horizon:  horizon,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	if _, err := j.cron.AddFunc(schedule, func() { j.Run(j.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	return j, nil
}

// Start starts the cron scheduler
func (j *RefreshJob) Start() {
	j.cron.Start()
	j.logger.Info("token refresh job started", "schedule", j.schedule, "horizon", j.horizon)
}

// Stop cancels a running refresh and waits for it to return
func (j *RefreshJob) Stop() {
	j.cancel()
	<-j.cron.Stop().Done()
	j.logger.Info("token refresh job stopped")
}

// Run visits every active account once and refreshes tokens expiring
// within the horizon. Busy accounts are skipped.
func (j *RefreshJob) Run(ctx context.Context) map[string]int {
	j.mu.Lock()
	defer j.mu.Unlock()

	results := make(map[string]int)

	accounts, err := j.sched.accounts.LoadActiveAccounts(ctx)
	if err != nil {
		j.logger.Error("failed to load accounts for token refresh", "error", err)
		return results
	}

	for _, acc := range accounts {
		if ctx.Err() != nil {
			break
		}
		if acc.SyncStatus == accountentity.SyncStatusTokenExpired {
			continue
		}

		result := j.refreshAccount(ctx, acc.ID)
		results[result]++
		j.sched.recorder.ObserveRefresh(result)
	}

	if results[RefreshRefreshed] > 0 || results[RefreshFailed] > 0 || results[RefreshRejected] > 0 {
		j.logger.Info("token refresh run completed",
			"refreshed", results[RefreshRefreshed],
			"failed", results[RefreshFailed],
			"rejected", results[RefreshRejected],
			"skipped", results[RefreshSkipped],
		)
	}

	return results
}

func (j *RefreshJob) refreshAccount(ctx context.Context, accountID string) string {
	s := j.sched
	if !s.guard.TryAcquire(accountID) {
		return RefreshSkipped
	}
	defer s.guard.Release(accountID)

	actx, cancel := context.WithTimeout(ctx, s.accountTimeout)
	defer cancel()

	acc, err := s.accounts.GetAccount(actx, accountID)
	if err != nil || acc == nil || !acc.Active || acc.SyncStatus == accountentity.SyncStatusTokenExpired {
		return RefreshSkipped
	}

	updated, refreshed, err := s.tokens.RefreshIfExpiring(actx, acc, j.horizon)
	if err != nil {
		outcome := s.failure(err)
		outcome.AccountID = accountID
		s.writeBack(ctx, acc, outcome)
		s.logOutcome(outcome)
		if errors.Is(err, entity.ErrTerminalCredential) {
			return RefreshRejected
		}
		return RefreshFailed
	}
	if !refreshed {
		return RefreshNotDue
	}

	if err := s.save(ctx, updated); err != nil {
		j.logger.Error("failed to save refreshed credentials", "account_id", accountID, "error", err)
		return RefreshFailed
	}
	return RefreshRefreshed
}
