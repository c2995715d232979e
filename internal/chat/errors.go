package chat

import "errors"

// Chat management error types
var (
	ErrNoParticipants = errors.New("participants list cannot be empty")
)
