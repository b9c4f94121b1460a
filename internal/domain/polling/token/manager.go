// Package token keeps account OAuth credentials usable and classifies
// refresh failures as terminal or transient.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	accountentity "github.com/vadim/mention-tracker/internal/domain/account/entity"
	"github.com/vadim/mention-tracker/internal/domain/polling/entity"
)

const (
	DefaultSafetyMargin = 5 * time.Minute

	// defaultLifetime is assumed when the token endpoint omits expires_in
	defaultLifetime = 2 * time.Hour
)

// Refresher exchanges a refresh token at the OAuth token endpoint
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Manager determines token validity and performs refreshes
type Manager struct {
	refresher Refresher
	margin    time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New creates a token lifecycle manager
func New(refresher Refresher, margin time.Duration, logger *slog.Logger, opts ...Option) *Manager {
	if margin < 0 {
		margin = DefaultSafetyMargin
	}
	m := &Manager{
		refresher: refresher,
		margin:    margin,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureValid returns the account unchanged while its token is valid for
// longer than the safety margin. Otherwise it refreshes exactly once and
// returns an updated copy. The returned error wraps
// entity.ErrTerminalCredential or entity.ErrTransient.
func (m *Manager) EnsureValid(ctx context.Context, acc *accountentity.Account) (*accountentity.Account, error) {
	updated, _, err := m.ensure(ctx, acc, m.margin)
	return updated, err
}

// RefreshIfExpiring refreshes the token when it expires within horizon.
// The boolean reports whether a refresh happened.
func (m *Manager) RefreshIfExpiring(ctx context.Context, acc *accountentity.Account, horizon time.Duration) (*accountentity.Account, bool, error) {
	if horizon < m.margin {
		horizon = m.margin
	}
	return m.ensure(ctx, acc, horizon)
}

func (m *Manager) ensure(ctx context.Context, acc *accountentity.Account, margin time.Duration) (*accountentity.Account, bool, error) {
	now := m.now()
	if acc.TokenExpiresAt.After(now.Add(margin)) {
		return acc, false, nil
	}

	if acc.RefreshToken == "" {
		return acc, false, fmt.Errorf("account %s has no refresh token: %w", acc.ID, entity.ErrTerminalCredential)
	}

	tok, err := m.refresher.Refresh(ctx, acc.RefreshToken)
	if err != nil {
		classified := Classify(err)
		m.logger.Warn("token refresh failed",
			"account_id", acc.ID,
			"terminal", errors.Is(classified, entity.ErrTerminalCredential),
			"error", err,
		)
		return acc, false, classified
	}

	updated := acc.Clone()
	creds := accountentity.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = acc.RefreshToken
	}
	if creds.ExpiresAt.IsZero() {
		creds.ExpiresAt = now.Add(defaultLifetime)
	}
	updated.SetCredentials(creds)
	updated.ErrorMessage = nil

	m.logger.Info("token refreshed", "account_id", acc.ID, "expires_at", creds.ExpiresAt)

	return updated, true, nil
}

// Classify maps a refresh error onto the failure taxonomy. Rejections of
// the refresh credential are terminal; everything the next tick could fix
// is transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("refreshing token: %w: %w", entity.ErrTimeout, err)
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if IsTerminalRejection(status, re.ErrorCode) {
			return fmt.Errorf("token refresh rejected (status %d, %s): %w", status, describe(re), entity.ErrTerminalCredential)
		}
		return entity.Transient(fmt.Errorf("token refresh failed (status %d): %w", status, err))
	}

	return entity.Transient(fmt.Errorf("token refresh failed: %w", err))
}

// IsTerminalRejection decides whether a token endpoint response means the
// refresh credential itself is no longer usable
func IsTerminalRejection(status int, code string) bool {
	switch code {
	case "temporarily_unavailable", "server_error", "slow_down":
		return false
	case "invalid_grant", "invalid_token", "unauthorized_client", "invalid_client":
		return true
	}

	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return false
	case status >= 400 && status < 500:
		return true
	}
	return false
}

func describe(re *oauth2.RetrieveError) string {
	switch {
	case re.ErrorCode != "" && re.ErrorDescription != "":
		return re.ErrorCode + ": " + re.ErrorDescription
	case re.ErrorCode != "":
		return re.ErrorCode
	default:
		return "no error code"
	}
}
