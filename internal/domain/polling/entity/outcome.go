package entity

import "time"

// OutcomeKind classifies how one poll attempt ended
type OutcomeKind string

const (
	OutcomeSuccess     OutcomeKind = "success"
	OutcomeTransient   OutcomeKind = "transient_error"
	OutcomeTerminal    OutcomeKind = "token_expired"
	OutcomeRateLimited OutcomeKind = "rate_limited"
	OutcomeSkipped     OutcomeKind = "skipped"
)

// Outcome is the result of one poll attempt for one account
type Outcome struct {
	AccountID   string        `json:"account_id"`
	Kind        OutcomeKind   `json:"outcome"`
	NewMentions int           `json:"new_mentions"`
	Cursor      string        `json:"cursor,omitempty"`
	Message     string        `json:"message,omitempty"`
	Err         error         `json:"-"`
	Duration    time.Duration `json:"-"`
}
