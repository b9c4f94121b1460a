package entity

import "errors"

// Domain errors for tracked accounts
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrMissingCredentials = errors.New("access and refresh tokens are required")
	ErrMissingExternalID  = errors.New("external user id and username are required")
)
