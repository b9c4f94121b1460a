package entity

import "errors"

// Domain errors for mentions
var (
	ErrMentionNotFound  = errors.New("mention not found")
	ErrEmptyReply       = errors.New("reply text cannot be empty")
	ErrReplyTooLong     = errors.New("reply exceeds maximum length")
	ErrAlreadyFinalized = errors.New("mention is already replied or ignored")
	ErrInvalidStatus    = errors.New("invalid mention status")
	ErrReplyInProgress  = errors.New("reply already in progress")
	ErrReplyRejected    = errors.New("reply rejected by platform")
)
