package types

import "errors"

var (
	ErrInvalidUsername = errors.New("username must be 1-50 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidChatName = errors.New("chat name must be at most 200 characters with no '|' or ','")
	ErrEmptyContent    = errors.New("message content cannot be empty")
	ErrContentTooLong  = errors.New("message content exceeds 64KB limit")
)
