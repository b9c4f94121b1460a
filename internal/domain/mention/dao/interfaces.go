package dao

import "github.com/vadim/mention-tracker/internal/domain/mention/entity"

// MentionFilter contains filters for listing mentions
type MentionFilter struct {
	AccountID string
	Status    *entity.Status
}

// ListOptions contains pagination options
type ListOptions struct {
	Limit  int
	Offset int
}
