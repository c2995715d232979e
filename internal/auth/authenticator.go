// Package auth owns the login session lifecycle: credential validation,
// session issue and revocation, and the one-active-session-per-user rule.
package auth

import (
	"log"
	"sync"

	"parley/internal/credstore"
	"parley/pkg/types"
)

// UserSession is one active login: a process-wide monotonic ID and the user
// it belongs to. Distinct from a ChatSession.
type UserSession struct {
	ID   int64
	User *types.User
}

// Authenticator validates credentials and tracks active login sessions. All
// mutations of the session set happen under one mutex; session traffic is low
// relative to message traffic, so a single critical section is enough.
type Authenticator struct {
	creds *credstore.Store

	mu       sync.Mutex
	sessions map[string]*UserSession // userID -> session
	nextID   int64
}

// New creates an authenticator backed by the given credential store.
func New(creds *credstore.Store) *Authenticator {
	return &Authenticator{
		creds:    creds,
		sessions: make(map[string]*UserSession),
	}
}

// ValidateCredentials checks the username/password pair against the
// credential store. On success the returned user is marked ONLINE; this is a
// transient in-memory flag, not yet a committed session.
func (a *Authenticator) ValidateCredentials(username, password string) *types.User {
	u := a.creds.Validate(username, password)
	if u == nil {
		return nil
	}
	u.Status = types.StatusOnline
	return u
}

// CreateSession issues a new session for the user. The duplicate-login check
// and the insert happen under the same lock, so two concurrent logins for the
// same user can never both succeed. Session IDs increase monotonically for
// the life of the process and are never reused.
func (a *Authenticator) CreateSession(u *types.User) (int64, error) {
	if u == nil {
		return 0, ErrNoUser
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, active := a.sessions[u.ID]; active {
		return 0, ErrAlreadyLoggedIn
	}
	a.nextID++
	s := &UserSession{ID: a.nextID, User: u}
	a.sessions[u.ID] = s
	log.Printf("auth: session %d created for user %s", s.ID, u.Username)
	return s.ID, nil
}

// EndSession removes the session with the given ID and marks its user
// OFFLINE. It reports whether a session was actually removed.
func (a *Authenticator) EndSession(sessionID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for userID, s := range a.sessions {
		if s.ID == sessionID {
			delete(a.sessions, userID)
			s.User.Status = types.StatusOffline
			log.Printf("auth: session %d ended for user %s", s.ID, s.User.Username)
			return true
		}
	}
	return false
}

// CheckStatus reports whether an active session exists for the user's ID.
func (a *Authenticator) CheckStatus(u *types.User) bool {
	if u == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, active := a.sessions[u.ID]
	return active
}

// SessionFor returns the active session for the user, or nil.
func (a *Authenticator) SessionFor(u *types.User) *UserSession {
	if u == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[u.ID]
}
