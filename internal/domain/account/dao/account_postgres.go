package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/mention-tracker/internal/domain/account/entity"
)

const accountColumns = `
	id, external_id, username, display_name, avatar_url,
	active, sync_status, error_message,
	access_token, refresh_token, token_expires_at,
	mention_cursor, last_synced_at, total_mentions_tracked,
	added_by, created_at, updated_at
`

// AccountPostgres implements account persistence on the tracked_accounts table
type AccountPostgres struct {
	pool *pgxpool.Pool
}

// NewAccountPostgres creates a new PostgreSQL account repository
func NewAccountPostgres(pool *pgxpool.Pool) *AccountPostgres {
	return &AccountPostgres{pool: pool}
}

func scanAccount(row pgx.Row) (*entity.Account, error) {
	var a entity.Account
	var displayName, avatarURL, cursor, addedBy *string
	var status string

	err := row.Scan(
		&a.ID,
		&a.ExternalID,
		&a.Username,
		&displayName,
		&avatarURL,
		&a.Active,
		&status,
		&a.ErrorMessage,
		&a.AccessToken,
		&a.RefreshToken,
		&a.TokenExpiresAt,
		&cursor,
		&a.LastSyncedAt,
		&a.TotalMentionsTracked,
		&addedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.SyncStatus = entity.SyncStatus(status)
	if displayName != nil {
		a.DisplayName = *displayName
	}
	if avatarURL != nil {
		a.AvatarURL = *avatarURL
	}
	if cursor != nil {
		a.MentionCursor = *cursor
	}
	if addedBy != nil {
		a.AddedBy = *addedBy
	}

	return &a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// LoadActiveAccounts returns accounts the operator has not paused
func (r *AccountPostgres) LoadActiveAccounts(ctx context.Context) ([]*entity.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM tracked_accounts WHERE active = true ORDER BY created_at`

	return r.queryAccounts(ctx, query)
}

// ListAccounts returns all accounts, optionally including paused ones
func (r *AccountPostgres) ListAccounts(ctx context.Context, includeInactive bool) ([]*entity.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM tracked_accounts WHERE active = true OR $1 ORDER BY created_at`

	return r.queryAccounts(ctx, query, includeInactive)
}

func (r *AccountPostgres) queryAccounts(ctx context.Context, query string, args ...any) ([]*entity.Account, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*entity.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}

	return accounts, nil
}

// GetAccount retrieves an account by id; nil when it does not exist
func (r *AccountPostgres) GetAccount(ctx context.Context, id string) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM tracked_accounts WHERE id = $1`

	a, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}

	return a, nil
}

// GetAccountByExternalID retrieves an account by platform user id; nil when
// it is not tracked
func (r *AccountPostgres) GetAccountByExternalID(ctx context.Context, externalID string) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM tracked_accounts WHERE external_id = $1`

	a, err := scanAccount(r.pool.QueryRow(ctx, query, externalID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting account by external id: %w", err)
	}

	return a, nil
}

// CreateAccount inserts an account or, when the platform user is already
// tracked, replaces its profile and credentials and reactivates it
func (r *AccountPostgres) CreateAccount(ctx context.Context, a *entity.Account) (*entity.Account, error) {
	query := `
		INSERT INTO tracked_accounts (
			id, external_id, username, display_name, avatar_url,
			active, sync_status, access_token, refresh_token, token_expires_at,
			total_mentions_tracked, added_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, true, 'active', $6, $7, $8, 0, $9, $10, $10)
		ON CONFLICT (external_id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			sync_status = CASE WHEN tracked_accounts.active THEN 'active' ELSE 'paused' END,
			error_message = NULL,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + accountColumns

	now := time.Now()
	created, err := scanAccount(r.pool.QueryRow(ctx, query,
		a.ID,
		a.ExternalID,
		a.Username,
		nullable(a.DisplayName),
		nullable(a.AvatarURL),
		a.AccessToken,
		a.RefreshToken,
		a.TokenExpiresAt,
		nullable(a.AddedBy),
		now,
	))
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}

	return created, nil
}

// SaveAccount writes the poll-owned fields of an account. Operator intent
// (active) is only changed through SetActive.
func (r *AccountPostgres) SaveAccount(ctx context.Context, a *entity.Account) error {
	query := `
		UPDATE tracked_accounts SET
			sync_status = CASE WHEN active THEN $2 ELSE 'paused' END,
			error_message = $3,
			access_token = $4,
			refresh_token = $5,
			token_expires_at = $6,
			mention_cursor = $7,
			last_synced_at = $8,
			total_mentions_tracked = $9,
			updated_at = $10
		WHERE id = $1
	`

	updatedAt := a.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	tag, err := r.pool.Exec(ctx, query,
		a.ID,
		string(a.SyncStatus),
		a.ErrorMessage,
		a.AccessToken,
		a.RefreshToken,
		a.TokenExpiresAt,
		nullable(a.MentionCursor),
		a.LastSyncedAt,
		a.TotalMentionsTracked,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrAccountNotFound
	}

	return nil
}

// SetActive pauses or resumes an account. Resuming clears paused, error and
// rate_limited states; token_expired stays until credentials are replaced.
func (r *AccountPostgres) SetActive(ctx context.Context, id string, active bool) (*entity.Account, error) {
	query := `
		UPDATE tracked_accounts SET
			active = $2,
			sync_status = CASE
				WHEN NOT $2 THEN 'paused'
				WHEN sync_status = 'token_expired' THEN sync_status
				ELSE 'active'
			END,
			error_message = CASE WHEN $2 AND sync_status <> 'token_expired' THEN NULL ELSE error_message END,
			updated_at = $3
		WHERE id = $1
		RETURNING ` + accountColumns

	a, err := scanAccount(r.pool.QueryRow(ctx, query, id, active, time.Now()))
	if err == pgx.ErrNoRows {
		return nil, entity.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("setting account active: %w", err)
	}

	return a, nil
}

// ReplaceCredentials stores credentials obtained by reauthorization and
// returns the account to the active state
func (r *AccountPostgres) ReplaceCredentials(ctx context.Context, id string, c entity.Credentials) (*entity.Account, error) {
	query := `
		UPDATE tracked_accounts SET
			access_token = $2,
			refresh_token = $3,
			token_expires_at = $4,
			sync_status = CASE WHEN active THEN 'active' ELSE 'paused' END,
			error_message = NULL,
			updated_at = $5
		WHERE id = $1
		RETURNING ` + accountColumns

	a, err := scanAccount(r.pool.QueryRow(ctx, query, id, c.AccessToken, c.RefreshToken, c.ExpiresAt, time.Now()))
	if err == pgx.ErrNoRows {
		return nil, entity.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("replacing credentials: %w", err)
	}

	return a, nil
}

// DeleteAccount removes an account and, through the foreign key, its mentions
func (r *AccountPostgres) DeleteAccount(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tracked_accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrAccountNotFound
	}
	return nil
}
