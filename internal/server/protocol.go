package server

import "parley/pkg/types"

// Wire protocol: JSON text frames over one WebSocket per client. Each frame
// carries a "type" discriminator; unused fields are omitted.

// Request types accepted from clients.
const (
	ReqLogin      = "login"
	ReqListOnline = "list_online"
	ReqListUsers  = "list_users"
	ReqOpenChat   = "open_chat"
	ReqCloseChat  = "close_chat"
	ReqMessage    = "message"
	ReqViewLog    = "view_log"
	ReqLogout     = "logout"
)

// Event types pushed to clients.
const (
	EvtLoginOK      = "login_ok"
	EvtLoginFailed  = "login_failed"
	EvtOnlineUsers  = "online_users"
	EvtAllUsers     = "all_users"
	EvtChatOpened   = "chat_opened"
	EvtChatPush     = "chat_push"
	EvtMessage      = "message"
	EvtLogDump      = "log_dump"
	EvtAccessDenied = "access_denied"
	EvtLogoutOK     = "logout_ok"
	EvtError        = "error"
)

// Request is one client frame.
type Request struct {
	Type string `json:"type"`

	// login
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// open_chat
	Participants []string `json:"participants,omitempty"`
	Group        bool     `json:"group,omitempty"`
	Name         string   `json:"name,omitempty"`

	// open_chat response routing, close_chat, message
	ChatID  string `json:"chat_id,omitempty"`
	Content string `json:"content,omitempty"`
}

// Event is one server frame.
type Event struct {
	Type string `json:"type"`

	SessionID int64              `json:"session_id,omitempty"`
	User      *types.User        `json:"user,omitempty"`
	Users     []*types.User      `json:"users,omitempty"`
	Chat      *types.ChatSession `json:"chat,omitempty"`

	// Chats and History stay on the wire even when empty: login_ok always
	// carries a session list and chat_opened/chat_push always carry a
	// history array, so clients can distinguish "empty" from "absent".
	Chats   []*types.ChatSession `json:"chats"`
	History []*types.Message     `json:"history"`
	Message   *types.Message       `json:"message,omitempty"`
	Content   string               `json:"content,omitempty"`
	Reason    string               `json:"reason,omitempty"`
}
