package entity

import "time"

// SyncStatus is the externally visible polling state of an account
type SyncStatus string

const (
	SyncStatusActive       SyncStatus = "active"
	SyncStatusPaused       SyncStatus = "paused"
	SyncStatusError        SyncStatus = "error"
	SyncStatusTokenExpired SyncStatus = "token_expired"
	SyncStatusRateLimited  SyncStatus = "rate_limited"
)

// Account represents a tracked X account whose mentions are polled
type Account struct {
	ID          string `json:"id"`
	ExternalID  string `json:"external_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`

	// Active is operator intent; inactive accounts are never polled
	Active       bool       `json:"active"`
	SyncStatus   SyncStatus `json:"sync_status"`
	ErrorMessage *string    `json:"error_message,omitempty"`

	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	TokenExpiresAt time.Time `json:"token_expires_at"`

	// MentionCursor is the highest external mention id seen for this account
	MentionCursor        string     `json:"mention_cursor,omitempty"`
	LastSyncedAt         *time.Time `json:"last_synced_at,omitempty"`
	TotalMentionsTracked int64      `json:"total_mentions_tracked"`

	AddedBy   string    `json:"added_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credentials is an OAuth credential pair with its expiry
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Validate checks that a credential pair can be used for polling
func (c Credentials) Validate() error {
	if c.AccessToken == "" || c.RefreshToken == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Credentials returns the account's current credential pair
func (a *Account) Credentials() Credentials {
	return Credentials{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		ExpiresAt:    a.TokenExpiresAt,
	}
}

// SetCredentials replaces the credential pair
func (a *Account) SetCredentials(c Credentials) {
	a.AccessToken = c.AccessToken
	a.RefreshToken = c.RefreshToken
	a.TokenExpiresAt = c.ExpiresAt
}

// Error returns the last error message or an empty string
func (a *Account) Error() string {
	if a.ErrorMessage == nil {
		return ""
	}
	return *a.ErrorMessage
}

// Clone returns a copy that shares no pointers with a
func (a *Account) Clone() *Account {
	c := *a
	if a.ErrorMessage != nil {
		msg := *a.ErrorMessage
		c.ErrorMessage = &msg
	}
	if a.LastSyncedAt != nil {
		t := *a.LastSyncedAt
		c.LastSyncedAt = &t
	}
	return &c
}
