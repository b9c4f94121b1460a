package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/mention-tracker/internal/domain/mention/entity"
)

const mentionColumns = `
	id, account_id, external_id, posted_at, text,
	sender_external_id, sender_username, sender_display_name, sender_avatar_url,
	recipient_external_id, recipient_username,
	status, public_response, direct_response, reply_external_id, error_message,
	credits_used, redirected, created_at, updated_at
`

// MentionPostgres implements mention persistence
type MentionPostgres struct {
	pool *pgxpool.Pool
}

// NewMentionPostgres creates a new PostgreSQL mention repository
func NewMentionPostgres(pool *pgxpool.Pool) *MentionPostgres {
	return &MentionPostgres{pool: pool}
}

func scanMention(row pgx.Row) (*entity.Mention, error) {
	var m entity.Mention
	var senderUsername, senderDisplayName, senderAvatar, recipientUsername *string
	var publicResponse, directResponse, replyID *string
	var status string

	err := row.Scan(
		&m.ID,
		&m.AccountID,
		&m.ExternalID,
		&m.Timestamp,
		&m.Text,
		&m.Sender.ExternalID,
		&senderUsername,
		&senderDisplayName,
		&senderAvatar,
		&m.Recipient.ExternalID,
		&recipientUsername,
		&status,
		&publicResponse,
		&directResponse,
		&replyID,
		&m.ErrorMessage,
		&m.CreditsUsed,
		&m.Redirected,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Status = entity.Status(status)
	m.Recipient.AccountID = m.AccountID
	m.Sender.Username = deref(senderUsername)
	m.Sender.DisplayName = deref(senderDisplayName)
	m.Sender.AvatarURL = deref(senderAvatar)
	m.Recipient.Username = deref(recipientUsername)
	m.PublicResponse = deref(publicResponse)
	m.DirectResponse = deref(directResponse)
	m.ReplyExternalID = deref(replyID)

	return &m, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FindByAccountAndExternalID returns the stored mention or nil
func (r *MentionPostgres) FindByAccountAndExternalID(ctx context.Context, accountID, externalID string) (*entity.Mention, error) {
	query := `SELECT ` + mentionColumns + ` FROM mentions WHERE account_id = $1 AND external_id = $2`

	m, err := scanMention(r.pool.QueryRow(ctx, query, accountID, externalID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding mention: %w", err)
	}

	return m, nil
}

// InsertMentions stores new mentions and returns how many rows were
// inserted. Rows that already exist for (account_id, external_id) are
// skipped.
func (r *MentionPostgres) InsertMentions(ctx context.Context, mentions []*entity.Mention) (int, error) {
	if len(mentions) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO mentions (
			id, account_id, external_id, posted_at, text,
			sender_external_id, sender_username, sender_display_name, sender_avatar_url,
			recipient_external_id, recipient_username,
			status, credits_used, redirected, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0, false, $13, $13)
		ON CONFLICT (account_id, external_id) DO NOTHING
	`

	now := time.Now()
	for _, m := range mentions {
		status := m.Status
		if status == "" {
			status = entity.StatusPending
		}
		batch.Queue(query,
			m.ID,
			m.AccountID,
			m.ExternalID,
			m.Timestamp,
			m.Text,
			m.Sender.ExternalID,
			nullable(m.Sender.Username),
			nullable(m.Sender.DisplayName),
			nullable(m.Sender.AvatarURL),
			m.Recipient.ExternalID,
			nullable(m.Recipient.Username),
			string(status),
			now,
		)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range mentions {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("executing batch insert: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing mentions: %w", err)
	}

	return inserted, nil
}

// GetByID retrieves a mention by id; nil when it does not exist
func (r *MentionPostgres) GetByID(ctx context.Context, id string) (*entity.Mention, error) {
	query := `SELECT ` + mentionColumns + ` FROM mentions WHERE id = $1`

	m, err := scanMention(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting mention: %w", err)
	}

	return m, nil
}

// List retrieves mentions newest first
func (r *MentionPostgres) List(ctx context.Context, filter MentionFilter, opts ListOptions) ([]entity.Mention, error) {
	query := `SELECT ` + mentionColumns + ` FROM mentions WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filter.AccountID != "" {
		query += fmt.Sprintf(" AND account_id = $%d", argNum)
		args = append(args, filter.AccountID)
		argNum++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(*filter.Status))
		argNum++
	}

	query += " ORDER BY posted_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, opts.Limit)
		argNum++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, opts.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mentions: %w", err)
	}
	defer rows.Close()

	var mentions []entity.Mention
	for rows.Next() {
		m, err := scanMention(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mention: %w", err)
		}
		mentions = append(mentions, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mentions: %w", err)
	}

	return mentions, nil
}

// Count returns the number of mentions matching the filter
func (r *MentionPostgres) Count(ctx context.Context, filter MentionFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM mentions WHERE ($1 = '' OR account_id::text = $1) AND ($2 = '' OR status = $2)`

	status := ""
	if filter.Status != nil {
		status = string(*filter.Status)
	}

	var count int64
	if err := r.pool.QueryRow(ctx, query, filter.AccountID, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting mentions: %w", err)
	}

	return count, nil
}

// ClaimForReply moves a mention to processing unless it is already final
// or being processed. It returns false when the claim was not taken.
func (r *MentionPostgres) ClaimForReply(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE mentions SET status = 'processing', error_message = NULL, updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'error')
	`

	tag, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return false, fmt.Errorf("claiming mention: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// SetReplied records a delivered reply
func (r *MentionPostgres) SetReplied(ctx context.Context, id, text, replyExternalID string) error {
	query := `
		UPDATE mentions SET
			status = 'replied',
			public_response = $2,
			reply_external_id = $3,
			error_message = NULL,
			updated_at = $4
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, id, text, nullable(replyExternalID), time.Now()); err != nil {
		return fmt.Errorf("marking mention replied: %w", err)
	}

	return nil
}

// UpdateStatus sets the status and error message of a mention
func (r *MentionPostgres) UpdateStatus(ctx context.Context, id string, status entity.Status, errorMsg string) error {
	query := `UPDATE mentions SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, string(status), nullable(errorMsg), time.Now())
	if err != nil {
		return fmt.Errorf("updating mention status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrMentionNotFound
	}

	return nil
}

// GetStatistics aggregates mention counts for an account
func (r *MentionPostgres) GetStatistics(ctx context.Context, accountID string) (*entity.AccountStatistics, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('pending', 'processing')),
			COUNT(*) FILTER (WHERE status = 'replied'),
			COUNT(*) FILTER (WHERE status = 'ignored'),
			COUNT(*) FILTER (WHERE status = 'error')
		FROM mentions
		WHERE account_id = $1
	`

	stats := &entity.AccountStatistics{AccountID: accountID}
	err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Replied,
		&stats.Ignored,
		&stats.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("getting mention statistics: %w", err)
	}

	return stats, nil
}
