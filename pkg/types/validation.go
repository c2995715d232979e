package types

import (
	"regexp"
	"strings"
)

// Usernames double as user IDs and appear verbatim in the flat credential
// file and the pipe-delimited chat log, so the format must exclude commas
// and pipes. The character class below does that and matches what account
// provisioning accepts.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	maxUsernameLen = 50
	maxChatNameLen = 200
	maxContentLen  = 64 * 1024
)

// IsValidUsername reports whether a username is usable as a user ID.
func IsValidUsername(username string) bool {
	if len(username) < 1 || len(username) > maxUsernameLen {
		return false
	}
	return usernameRegex.MatchString(username)
}

// ValidateChatName rejects names that would blow up listings, and names
// containing the session-record delimiters: the name is stored verbatim as a
// field of a pipe-delimited line whose participant list is comma-joined, so
// either character would corrupt the record on replay. An empty name is
// fine: sessions without one display their participants instead.
func ValidateChatName(name string) error {
	if len(name) > maxChatNameLen {
		return ErrInvalidChatName
	}
	if strings.ContainsAny(name, "|,") {
		return ErrInvalidChatName
	}
	return nil
}

// ValidateContent bounds message payloads before they reach the transcript
// and the append-only log.
func ValidateContent(content string) error {
	if content == "" {
		return ErrEmptyContent
	}
	if len(content) > maxContentLen {
		return ErrContentTooLong
	}
	return nil
}
