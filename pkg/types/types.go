package types

import (
	"fmt"
	"strings"
	"time"
)

// Role classifies a user's privileges. ADMIN users may export the server log.
type Role string

const (
	RoleGeneral Role = "GENERAL"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(RoleGeneral):
		return RoleGeneral, nil
	case string(RoleAdmin):
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Status is a user's presence state.
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// User identifies an account. Identity and equality are by ID only; the ID is
// derived from the username when the credential entry is read and never
// changes afterwards.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Status   Status `json:"status"`
}

// NewUser builds a User for the given username. The ID is the username
// itself, which keeps it stable across restarts without a separate ID column
// in the credential file.
func NewUser(username string, role Role) *User {
	return &User{
		ID:       username,
		Username: username,
		Role:     role,
		Status:   StatusOffline,
	}
}

// Message is one chat message. Fields are fixed at send time; only the
// Delivered flag is updated afterwards.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Delivered bool      `json:"delivered"`
}
