package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"parley/pkg/types"
)

// clientHandler runs the per-connection dispatch loop. A connection moves
// through two states: unauthenticated (only login is accepted) and
// authenticated (everything else). Cleanup runs exactly once no matter how
// the loop exits.
type clientHandler struct {
	srv  *Server
	conn *Conn

	user      *types.User // nil until login succeeds
	sessionID int64

	cleanupOnce sync.Once
}

// run reads frames until the transport fails or the client logs out.
// Per-request failures never terminate the loop; only read errors do.
func (h *clientHandler) run() {
	defer h.cleanup()

	for {
		_, data, err := h.conn.ws.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			h.send(Event{Type: EvtError, Reason: "malformed request"})
			continue
		}

		if h.dispatch(&req) {
			return
		}
	}
}

// dispatch handles one request and reports whether the loop should end. A
// panic in a handler is logged and the connection keeps serving requests.
func (h *clientHandler) dispatch(req *Request) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("server: panic handling %q request: %v", req.Type, r)
			h.send(Event{Type: EvtError, Reason: "internal error"})
		}
	}()

	if h.user == nil {
		if req.Type != ReqLogin {
			h.send(Event{Type: EvtError, Reason: "login required"})
			return false
		}
		h.handleLogin(req)
		return false
	}

	switch req.Type {
	case ReqLogin:
		h.send(Event{Type: EvtError, Reason: "already logged in"})
	case ReqListOnline:
		h.send(Event{Type: EvtOnlineUsers, Users: h.srv.online.list()})
	case ReqListUsers:
		h.send(Event{Type: EvtAllUsers, Users: h.srv.creds.ListAll()})
	case ReqOpenChat:
		h.handleOpenChat(req)
	case ReqCloseChat:
		h.srv.chats.LeaveSession(req.ChatID, h.user)
	case ReqMessage:
		h.handleMessage(req)
	case ReqViewLog:
		h.handleViewLog()
	case ReqLogout:
		h.send(Event{Type: EvtLogoutOK})
		return true
	default:
		h.send(Event{Type: EvtError, Reason: "unknown request type"})
	}
	return false
}

// handleLogin validates credentials, issues the login session, registers the
// connection, and replies with the user's reconstructed chat sessions and the
// current online list. Every failure produces the same generic rejection and
// leaves the connection open for another attempt.
func (h *clientHandler) handleLogin(req *Request) {
	if !types.IsValidUsername(req.Username) {
		h.send(Event{Type: EvtLoginFailed, Reason: "invalid credentials"})
		return
	}

	u := h.srv.auth.ValidateCredentials(req.Username, req.Password)
	if u == nil {
		h.send(Event{Type: EvtLoginFailed, Reason: "invalid credentials"})
		return
	}

	sessionID, err := h.srv.auth.CreateSession(u)
	if err != nil {
		log.Printf("server: login rejected for %s: %v", req.Username, err)
		h.send(Event{Type: EvtLoginFailed, Reason: "invalid credentials"})
		return
	}

	if err := h.srv.registry.Register(u, h.conn); err != nil {
		log.Printf("server: registering %s failed: %v", u.Username, err)
		h.srv.auth.EndSession(sessionID)
		h.send(Event{Type: EvtLoginFailed, Reason: "invalid credentials"})
		return
	}

	h.user = u
	h.sessionID = sessionID
	h.srv.online.add(u)

	chats := h.srv.chats.LoadUserSessions(u)
	if chats == nil {
		chats = []*types.ChatSession{}
	}
	h.send(Event{
		Type:      EvtLoginOK,
		SessionID: sessionID,
		User:      u,
		Chats:     chats,
		Users:     h.srv.online.list(),
	})
	h.srv.broadcastOnline()
	log.Printf("server: user %s logged in (session=%d)", u.Username, sessionID)
}

// handleOpenChat reuses an existing private session for a two-party request
// when one exists, creates a session otherwise, joins the requester as a
// viewer, replays history to the requester, and pushes the session (with an
// empty history) to the other online participants.
func (h *clientHandler) handleOpenChat(req *Request) {
	if err := types.ValidateChatName(req.Name); err != nil {
		h.send(Event{Type: EvtError, Reason: err.Error()})
		return
	}
	participants := h.resolveParticipants(req.Participants)
	if len(participants) == 0 {
		h.send(Event{Type: EvtError, Reason: "participants required"})
		return
	}

	cs, created, err := h.srv.chats.OpenSession(participants, req.Group, req.Name)
	if err != nil {
		h.send(Event{Type: EvtError, Reason: err.Error()})
		return
	}

	h.srv.chats.JoinSession(cs.ID(), h.user)
	history := h.srv.chats.LoadHistory(cs.ID())
	if history == nil {
		history = []*types.Message{}
	}
	h.send(Event{Type: EvtChatOpened, Chat: cs, History: history})

	if created {
		log.Printf("server: %s opened new chat %s", h.user.Username, cs.ID())
	}

	for _, p := range cs.Participants() {
		if p.ID == h.user.ID {
			continue
		}
		if c, online := h.srv.registry.Writable(p.ID); online {
			if err := c.WriteJSON(Event{Type: EvtChatPush, Chat: cs, History: []*types.Message{}}); err != nil {
				log.Printf("server: pushing chat %s to %s: %v", cs.ID(), p.ID, err)
			}
		}
	}
}

// handleMessage stamps the message server-side, routes it through the chat
// manager, delivers to every computed target, and echoes it back to the
// sender as delivery confirmation. Failed deliveries mean "recipient gone"
// and never bounce back to the sender.
func (h *clientHandler) handleMessage(req *Request) {
	if req.ChatID == "" {
		h.send(Event{Type: EvtError, Reason: "chat_id required"})
		return
	}
	if err := types.ValidateContent(req.Content); err != nil {
		h.send(Event{Type: EvtError, Reason: err.Error()})
		return
	}

	msg := &types.Message{
		ID:        uuid.New().String(),
		ChatID:    req.ChatID,
		SenderID:  h.user.ID,
		Timestamp: time.Now(),
		Content:   req.Content,
	}

	targets := h.srv.chats.ReceiveMessage(msg)
	for _, target := range targets {
		c, online := h.srv.registry.Writable(target.ID)
		if !online {
			continue
		}
		if err := c.WriteJSON(Event{Type: EvtMessage, Message: msg}); err != nil {
			log.Printf("server: delivering message %s to %s: %v", msg.ID, target.ID, err)
		}
	}

	msg.Delivered = true
	h.send(Event{Type: EvtMessage, Message: msg})
}

// handleViewLog returns the full log to ADMIN users and access_denied to
// everyone else. The log content itself never leaks on denial.
func (h *clientHandler) handleViewLog() {
	if h.user.Role != types.RoleAdmin {
		h.send(Event{Type: EvtAccessDenied, Reason: "admin role required"})
		return
	}
	h.send(Event{Type: EvtLogDump, Content: h.srv.chatlog.Dump()})
}

// resolveParticipants maps requested user IDs to User objects, preferring the
// live objects of online users. Unknown IDs are dropped. The requester is
// always included.
func (h *clientHandler) resolveParticipants(ids []string) []*types.User {
	if len(ids) == 0 {
		return nil
	}
	var out []*types.User
	seen := map[string]bool{h.user.ID: true}
	out = append(out, h.user)

	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		var u *types.User
		for _, online := range h.srv.online.list() {
			if online.ID == id {
				u = online
				break
			}
		}
		if u == nil {
			u = h.srv.creds.Find(id)
		}
		if u == nil {
			log.Printf("server: open_chat from %s names unknown user %q", h.user.Username, id)
			continue
		}
		out = append(out, u)
	}
	if len(out) < 2 {
		// The requester alone is not a conversation.
		return nil
	}
	return out
}

// cleanup releases everything tied to this connection: the login session, the
// registry entry, the online-index entry. It runs exactly once per connection
// regardless of the exit path, and finishes by broadcasting the updated
// online list.
func (h *clientHandler) cleanup() {
	h.cleanupOnce.Do(func() {
		if h.user != nil {
			h.srv.auth.EndSession(h.sessionID)
			if err := h.srv.registry.Unregister(h.user, h.conn); err != nil {
				log.Printf("server: unregistering %s: %v", h.user.ID, err)
			}
			h.srv.online.remove(h.user)
			h.srv.broadcastOnline()
			log.Printf("server: user %s disconnected", h.user.Username)
		}
		if err := h.conn.Close(); err != nil {
			log.Printf("server: closing connection: %v", err)
		}
	})
}

func (h *clientHandler) send(evt Event) {
	if err := h.conn.WriteJSON(evt); err != nil {
		log.Printf("server: writing %s event: %v", evt.Type, err)
	}
}
