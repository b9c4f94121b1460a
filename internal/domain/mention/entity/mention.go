package entity

import "time"

// Status represents the processing lifecycle of a mention
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReplied    Status = "replied"
	StatusIgnored    Status = "ignored"
	StatusError      Status = "error"
)

// IsValid reports whether s is a known mention status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReplied, StatusIgnored, StatusError:
		return true
	}
	return false
}

// IsFinal reports whether no further transitions are expected
func (s Status) IsFinal() bool {
	return s == StatusReplied || s == StatusIgnored
}

// Sender is the platform user who wrote the mention
type Sender struct {
	ExternalID  string `json:"external_id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Recipient references the tracked account that was mentioned
type Recipient struct {
	AccountID  string `json:"account_id"`
	ExternalID string `json:"external_id"`
	Username   string `json:"username,omitempty"`
}

// Mention is one ingested item, unique per (AccountID, ExternalID)
type Mention struct {
	ID              string    `json:"id"`
	ExternalID      string    `json:"external_id"`
	AccountID       string    `json:"account_id"`
	Timestamp       time.Time `json:"timestamp"`
	Text            string    `json:"text"`
	Sender          Sender    `json:"sender"`
	Recipient       Recipient `json:"recipient"`
	Status          Status    `json:"status"`
	PublicResponse  string    `json:"public_response,omitempty"`
	DirectResponse  string    `json:"direct_response,omitempty"`
	ReplyExternalID string    `json:"reply_external_id,omitempty"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
	CreditsUsed     int       `json:"credits_used"`
	Redirected      bool      `json:"redirected"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MaxReplyLength is the maximum length of a reply post
const MaxReplyLength = 280

// ValidateReplyText validates the text of an outgoing reply
func ValidateReplyText(text string) error {
	if text == "" {
		return ErrEmptyReply
	}
	if len([]rune(text)) > MaxReplyLength {
		return ErrReplyTooLong
	}
	return nil
}
