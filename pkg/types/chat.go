package types

import (
	"encoding/json"
	"sync"
)

// ChatSession is a conversation thread: a stable ID, an ordered participant
// list (unique by user ID) and an append-only transcript. A session with more
// than two participants is always a group; a two-party session is private
// unless it was explicitly created as a named group.
type ChatSession struct {
	mu           sync.RWMutex
	id           string
	name         string
	participants []*User
	messages     []*Message
	group        bool
}

// NewChatSession builds a session with the given ID. The ID is generated by
// the chat manager at creation time, or carried over from a durable session
// record during reconstruction.
func NewChatSession(id, name string, participants []*User, group bool) *ChatSession {
	cs := &ChatSession{
		id:    id,
		name:  name,
		group: group,
	}
	for _, p := range participants {
		cs.AddParticipant(p)
	}
	return cs
}

// ID returns the session's chat ID.
func (cs *ChatSession) ID() string { return cs.id }

// Name returns the session's display name, empty for unnamed chats.
func (cs *ChatSession) Name() string { return cs.name }

// IsGroup reports whether the session is a group chat.
func (cs *ChatSession) IsGroup() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.group
}

// AddParticipant adds a user to the session, ignoring duplicates by user ID.
// Growing past two participants flips the session into a group chat.
func (cs *ChatSession) AddParticipant(u *User) {
	if u == nil {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, p := range cs.participants {
		if p.ID == u.ID {
			return
		}
	}
	cs.participants = append(cs.participants, u)
	if len(cs.participants) > 2 {
		cs.group = true
	}
}

// RemoveParticipant removes a user by ID. Shrinking to two or fewer
// participants flips the session back to private.
func (cs *ChatSession) RemoveParticipant(u *User) {
	if u == nil {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for i, p := range cs.participants {
		if p.ID == u.ID {
			cs.participants = append(cs.participants[:i], cs.participants[i+1:]...)
			break
		}
	}
	if len(cs.participants) <= 2 {
		cs.group = false
	}
}

// HasParticipant reports whether the user ID is in the participant list.
func (cs *ChatSession) HasParticipant(userID string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	for _, p := range cs.participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// Participants returns a copy of the participant list.
func (cs *ChatSession) Participants() []*User {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]*User, len(cs.participants))
	copy(out, cs.participants)
	return out
}

// AddMessage appends a message to the transcript.
func (cs *ChatSession) AddMessage(m *Message) {
	if m == nil {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.messages = append(cs.messages, m)
}

// Messages returns a copy of the transcript.
func (cs *ChatSession) Messages() []*Message {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]*Message, len(cs.messages))
	copy(out, cs.messages)
	return out
}

type chatSessionJSON struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Participants []*User    `json:"participants"`
	Messages     []*Message `json:"messages"`
	Group        bool       `json:"group"`
}

// MarshalJSON serializes the session under its lock so a snapshot can be sent
// to clients while other goroutines keep appending to it.
func (cs *ChatSession) MarshalJSON() ([]byte, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return json.Marshal(chatSessionJSON{
		ID:           cs.id,
		Name:         cs.name,
		Participants: cs.participants,
		Messages:     cs.messages,
		Group:        cs.group,
	})
}
