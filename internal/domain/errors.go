package domain

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrMissingSessionID = errors.New("session id is required")
	ErrMissingStatus    = errors.New("status is required to create a session")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrSecretNotFound   = errors.New("secret not found")
)
