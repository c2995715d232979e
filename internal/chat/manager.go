// Package chat owns the in-memory chat sessions: creation, membership,
// viewer tracking, routing-target computation, and reconstruction from the
// durable log.
package chat

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"parley/internal/chatlog"
	"parley/pkg/types"
)

// Presence answers whether a user currently has a live connection. The
// connection registry implements it. Routing policy lives entirely in this
// package: the sender is excluded, non-participants are excluded, offline
// participants are excluded.
type Presence interface {
	IsOnline(userID string) bool
}

// Manager is the chat session manager. One mutex guards the session map, the
// viewer sets and the history-loaded flags; it also serializes ReceiveMessage
// so the transcript append and the log append of concurrent senders cannot
// interleave.
type Manager struct {
	log      *chatlog.Log
	presence Presence

	mu       sync.Mutex
	sessions map[string]*types.ChatSession
	viewers  map[string]map[string]*types.User // chatID -> userID -> user
	loaded   map[string]bool                   // chatID -> history merged
}

// NewManager creates a chat manager backed by the given durable log.
func NewManager(l *chatlog.Log, presence Presence) *Manager {
	return &Manager{
		log:      l,
		presence: presence,
		sessions: make(map[string]*types.ChatSession),
		viewers:  make(map[string]map[string]*types.User),
		loaded:   make(map[string]bool),
	}
}

// CreateSession creates a new chat session, stores it in memory with an empty
// viewer set, and durably appends a SESSION record.
func (m *Manager) CreateSession(participants []*types.User, group bool, name string) (*types.ChatSession, error) {
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(participants, group, name), nil
}

// OpenSession returns the existing private session for exactly two
// participants when one exists, and creates a new session otherwise. Lookup
// and creation share one critical section so concurrent openers of the same
// pair cannot produce duplicate private sessions. The second return value
// reports whether a session was created.
func (m *Manager) OpenSession(participants []*types.User, group bool, name string) (*types.ChatSession, bool, error) {
	if len(participants) == 0 {
		return nil, false, ErrNoParticipants
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !group && len(participants) == 2 {
		if cs := m.findPrivateLocked(participants[0].ID, participants[1].ID); cs != nil {
			return cs, false, nil
		}
	}
	return m.createLocked(participants, group, name), true, nil
}

// FindExistingPrivateSession scans in-memory sessions for a non-group session
// containing exactly the given unordered pair. Nil for anything but two
// participants, or when no such session exists.
func (m *Manager) FindExistingPrivateSession(participants []*types.User) *types.ChatSession {
	if len(participants) != 2 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findPrivateLocked(participants[0].ID, participants[1].ID)
}

// JoinSession records that the user has the chat window open. Unknown chatID
// or nil user is a no-op.
func (m *Manager) JoinSession(chatID string, u *types.User) {
	if u == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, known := m.sessions[chatID]; !known {
		return
	}
	vs := m.viewers[chatID]
	if vs == nil {
		vs = make(map[string]*types.User)
		m.viewers[chatID] = vs
	}
	vs[u.ID] = u
}

// LeaveSession removes the user from the chat's viewer set. Unknown chatID or
// absent user is a no-op.
func (m *Manager) LeaveSession(chatID string, u *types.User) {
	if u == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if vs := m.viewers[chatID]; vs != nil {
		delete(vs, u.ID)
	}
}

// ReceiveMessage appends the message to its session's transcript and to the
// durable log, then returns the delivery targets: every online participant
// other than the sender. A message for an unknown chatID is dropped with a
// warning.
func (m *Manager) ReceiveMessage(msg *types.Message) []*types.User {
	if msg == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, known := m.sessions[msg.ChatID]
	if !known {
		log.Printf("chat: no session for chatID=%s, dropping message %s", msg.ChatID, msg.ID)
		return nil
	}

	cs.AddMessage(msg)
	m.log.AppendMessage(msg)

	var targets []*types.User
	for _, p := range cs.Participants() {
		if p.ID == msg.SenderID {
			continue
		}
		if m.presence != nil && !m.presence.IsOnline(p.ID) {
			continue
		}
		targets = append(targets, p)
	}
	return targets
}

// LoadHistory merges the chat's durable history into the in-memory
// transcript and returns it. The merge happens at most once per session
// lifetime; later calls return the already-merged transcript instead of
// appending duplicate entries.
func (m *Manager) LoadHistory(chatID string) []*types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, known := m.sessions[chatID]
	if !known {
		return nil
	}
	if m.loaded[chatID] {
		return cs.Messages()
	}
	history := m.log.MessagesForChat(chatID)
	for _, h := range history {
		cs.AddMessage(h)
	}
	m.loaded[chatID] = true
	return history
}

// LoadUserSessions returns every session the user participates in: sessions
// already resident in memory, plus sessions reconstructed from the log's
// SESSION records. Reconstructed sessions keep their original chatID, get an
// empty viewer set, and become resident.
func (m *Manager) LoadUserSessions(u *types.User) []*types.ChatSession {
	if u == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*types.ChatSession
	for _, cs := range m.sessions {
		if cs.HasParticipant(u.ID) {
			out = append(out, cs)
		}
	}

	for _, rec := range m.log.SessionRecordsForUser(u.ID) {
		if _, resident := m.sessions[rec.ChatID]; resident {
			continue
		}
		participants := make([]*types.User, 0, len(rec.ParticipantIDs))
		for _, id := range rec.ParticipantIDs {
			if id == "" {
				continue
			}
			if id == u.ID {
				participants = append(participants, u)
				continue
			}
			participants = append(participants, &types.User{
				ID:       id,
				Username: id,
				Role:     types.RoleGeneral,
				Status:   types.StatusOffline,
			})
		}
		if len(participants) < 2 {
			continue
		}
		cs := types.NewChatSession(rec.ChatID, rec.Name, participants, rec.Group)
		m.sessions[rec.ChatID] = cs
		m.viewers[rec.ChatID] = make(map[string]*types.User)
		out = append(out, cs)
		log.Printf("chat: reconstructed session id=%s participants=%d from log", rec.ChatID, len(participants))
	}
	return out
}

// Session returns the resident session for the chatID, or nil.
func (m *Manager) Session(chatID string) *types.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[chatID]
}

// Viewers returns a copy of the chat's live-viewer set.
func (m *Manager) Viewers(chatID string) []*types.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs := m.viewers[chatID]
	out := make([]*types.User, 0, len(vs))
	for _, u := range vs {
		out = append(out, u)
	}
	return out
}

func (m *Manager) createLocked(participants []*types.User, group bool, name string) *types.ChatSession {
	cs := types.NewChatSession(uuid.New().String(), name, participants, group)
	m.sessions[cs.ID()] = cs
	m.viewers[cs.ID()] = make(map[string]*types.User)
	m.loaded[cs.ID()] = true // brand-new session, nothing durable to merge
	m.log.AppendSession(cs)
	log.Printf("chat: created session id=%s group=%t participants=%d", cs.ID(), cs.IsGroup(), len(cs.Participants()))
	return cs
}

func (m *Manager) findPrivateLocked(aID, bID string) *types.ChatSession {
	for _, cs := range m.sessions {
		if cs.IsGroup() {
			continue
		}
		ps := cs.Participants()
		if len(ps) != 2 {
			continue
		}
		if (ps[0].ID == aID && ps[1].ID == bID) || (ps[0].ID == bID && ps[1].ID == aID) {
			return cs
		}
	}
	return nil
}
