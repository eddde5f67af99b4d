package domain

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrEmailTaken         = errors.New("email_taken")
	ErrSessionInvalid     = errors.New("session_invalid")
	ErrWeakPassword       = errors.New("weak_password")
)
