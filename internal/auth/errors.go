package auth

import "errors"

// Authentication error types
var (
	ErrNoUser          = errors.New("user is required")
	ErrAlreadyLoggedIn = errors.New("user already has an active session")
)
