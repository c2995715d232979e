package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"parley/internal/auth"
	"parley/internal/chat"
	"parley/internal/chatlog"
	"parley/internal/config"
	"parley/internal/credstore"
	"parley/pkg/types"
)

// wireEvent mirrors Event but keeps the chat payload raw so tests can decode
// just the fields they assert on.
type wireEvent struct {
	Type      string           `json:"type"`
	SessionID int64            `json:"session_id"`
	User      *types.User      `json:"user"`
	Users     []*types.User    `json:"users"`
	Chat      json.RawMessage  `json:"chat"`
	Chats     json.RawMessage  `json:"chats"`
	History   []*types.Message `json:"history"`
	Message   *types.Message   `json:"message"`
	Content   string           `json:"content"`
	Reason    string           `json:"reason"`
}

func newTestServer(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	credPath := filepath.Join(dir, "credentials.txt")
	creds := "alice,password123,GENERAL\nbob,hunter2,GENERAL\ncarol,secret,ADMIN\n"
	if err := os.WriteFile(credPath, []byte(creds), 0o644); err != nil {
		t.Fatalf("writing credentials: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Files.Credentials = credPath
	cfg.Files.ChatLog = filepath.Join(dir, "server.log")

	chatLog := chatlog.New(cfg.Files.ChatLog)
	store := credstore.New(cfg.Files.Credentials)
	authn := auth.New(store)
	registry := NewRegistry()
	chats := chat.NewManager(chatLog, registry)
	srv := New(cfg, store, authn, chats, chatLog, registry)
	registry.Start()

	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialTestServer(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendRequest(t *testing.T, ws *websocket.Conn, req Request) {
	t.Helper()
	if err := ws.WriteJSON(req); err != nil {
		t.Fatalf("writing %s request: %v", req.Type, err)
	}
}

// readUntil reads frames until one of the wanted type arrives, skipping
// interleaved pushes such as online-list broadcasts.
func readUntil(t *testing.T, ws *websocket.Conn, evtType string) wireEvent {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for i := 0; i < 32; i++ {
		var evt wireEvent
		if err := ws.ReadJSON(&evt); err != nil {
			t.Fatalf("waiting for %s: %v", evtType, err)
		}
		if evt.Type == evtType {
			return evt
		}
	}
	t.Fatalf("never received %s", evtType)
	return wireEvent{}
}

func login(t *testing.T, ws *websocket.Conn, username, password string) wireEvent {
	t.Helper()
	sendRequest(t, ws, Request{Type: ReqLogin, Username: username, Password: password})
	evt := readUntil(t, ws, EvtLoginOK)
	if evt.User == nil || evt.User.Username != username {
		t.Fatalf("login_ok user = %+v, want %s", evt.User, username)
	}
	return evt
}

func chatIDOf(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decoding chat payload: %v", err)
	}
	if payload.ID == "" {
		t.Fatal("chat payload has no id")
	}
	return payload.ID
}

func TestLoginSuccess(t *testing.T) {
	url := newTestServer(t)
	ws := dialTestServer(t, url)

	evt := login(t, ws, "alice", "password123")
	if evt.SessionID <= 0 {
		t.Errorf("session_id = %d, want > 0", evt.SessionID)
	}
	if evt.User.Status != types.StatusOnline {
		t.Errorf("user status = %s, want ONLINE", evt.User.Status)
	}
	found := false
	for _, u := range evt.Users {
		if u.Username == "alice" {
			found = true
		}
	}
	if !found {
		t.Error("online list in login_ok should include the user themselves")
	}
	if string(evt.Chats) != "[]" {
		t.Errorf("fresh user's session list = %s, want an empty array", evt.Chats)
	}
}

func TestLoginBadPasswordThenRetry(t *testing.T) {
	url := newTestServer(t)
	ws := dialTestServer(t, url)

	sendRequest(t, ws, Request{Type: ReqLogin, Username: "alice", Password: "wrong"})
	evt := readUntil(t, ws, EvtLoginFailed)
	if evt.Reason != "invalid credentials" {
		t.Errorf("reason = %q, want generic rejection", evt.Reason)
	}

	// The connection survives a failed attempt.
	login(t, ws, "alice", "password123")
}

func TestLoginRejectsDuplicateSession(t *testing.T) {
	url := newTestServer(t)
	first := dialTestServer(t, url)
	login(t, first, "alice", "password123")

	second := dialTestServer(t, url)
	sendRequest(t, second, Request{Type: ReqLogin, Username: "alice", Password: "password123"})
	readUntil(t, second, EvtLoginFailed)
}

func TestRequestsRequireLogin(t *testing.T) {
	url := newTestServer(t)
	ws := dialTestServer(t, url)

	sendRequest(t, ws, Request{Type: ReqListOnline})
	evt := readUntil(t, ws, EvtError)
	if evt.Reason != "login required" {
		t.Errorf("reason = %q, want login required", evt.Reason)
	}
}

func TestOpenChatPushesToParticipant(t *testing.T) {
	url := newTestServer(t)
	alice := dialTestServer(t, url)
	bob := dialTestServer(t, url)
	login(t, alice, "alice", "password123")
	login(t, bob, "bob", "hunter2")

	sendRequest(t, alice, Request{Type: ReqOpenChat, Participants: []string{"bob"}})
	opened := readUntil(t, alice, EvtChatOpened)
	if opened.History == nil {
		t.Error("chat_opened should carry a history array, even when empty")
	}
	openedID := chatIDOf(t, opened.Chat)

	pushed := readUntil(t, bob, EvtChatPush)
	if chatIDOf(t, pushed.Chat) != openedID {
		t.Error("chat_push should reference the same session")
	}
	if pushed.History == nil {
		t.Error("chat_push should carry a history array, even when empty")
	}

	// A second open with the same pair reuses the private session.
	sendRequest(t, bob, Request{Type: ReqOpenChat, Participants: []string{"alice"}})
	reopened := readUntil(t, bob, EvtChatOpened)
	if chatIDOf(t, reopened.Chat) != openedID {
		t.Error("reopening the same private pair should reuse the session")
	}
}

func TestMessageFanOutAndEcho(t *testing.T) {
	url := newTestServer(t)
	alice := dialTestServer(t, url)
	bob := dialTestServer(t, url)
	login(t, alice, "alice", "password123")
	login(t, bob, "bob", "hunter2")

	sendRequest(t, alice, Request{Type: ReqOpenChat, Participants: []string{"bob"}})
	opened := readUntil(t, alice, EvtChatOpened)
	chatID := chatIDOf(t, opened.Chat)

	sendRequest(t, alice, Request{Type: ReqMessage, ChatID: chatID, Content: "hello bob"})

	delivered := readUntil(t, bob, EvtMessage)
	if delivered.Message == nil || delivered.Message.Content != "hello bob" {
		t.Fatalf("delivered message = %+v", delivered.Message)
	}
	if delivered.Message.SenderID != "alice" {
		t.Errorf("sender = %s, want alice", delivered.Message.SenderID)
	}

	echo := readUntil(t, alice, EvtMessage)
	if echo.Message == nil || !echo.Message.Delivered {
		t.Error("sender echo should carry delivered=true")
	}
}

func TestMessageRequiresChatAndContent(t *testing.T) {
	url := newTestServer(t)
	ws := dialTestServer(t, url)
	login(t, ws, "alice", "password123")

	sendRequest(t, ws, Request{Type: ReqMessage, Content: "no chat"})
	readUntil(t, ws, EvtError)
}

func TestViewLogRequiresAdmin(t *testing.T) {
	url := newTestServer(t)

	general := dialTestServer(t, url)
	login(t, general, "alice", "password123")
	sendRequest(t, general, Request{Type: ReqViewLog})
	denied := readUntil(t, general, EvtAccessDenied)
	if denied.Content != "" {
		t.Error("denial must not leak log content")
	}

	admin := dialTestServer(t, url)
	login(t, admin, "carol", "secret")
	sendRequest(t, admin, Request{Type: ReqViewLog})
	readUntil(t, admin, EvtLogDump)
}

func TestViewLogDumpContainsActivity(t *testing.T) {
	url := newTestServer(t)
	alice := dialTestServer(t, url)
	login(t, alice, "alice", "password123")

	sendRequest(t, alice, Request{Type: ReqOpenChat, Participants: []string{"bob"}})
	opened := readUntil(t, alice, EvtChatOpened)
	chatID := chatIDOf(t, opened.Chat)
	sendRequest(t, alice, Request{Type: ReqMessage, ChatID: chatID, Content: "for the record"})
	readUntil(t, alice, EvtMessage)

	admin := dialTestServer(t, url)
	login(t, admin, "carol", "secret")
	sendRequest(t, admin, Request{Type: ReqViewLog})
	dump := readUntil(t, admin, EvtLogDump)
	if !strings.Contains(dump.Content, "SESSION|") || !strings.Contains(dump.Content, "MESSAGE|") {
		t.Errorf("log dump missing records:\n%s", dump.Content)
	}
	if !strings.Contains(dump.Content, "for the record") {
		t.Error("log dump missing message content")
	}
}

func TestLogoutAcknowledgesAndBroadcasts(t *testing.T) {
	url := newTestServer(t)
	alice := dialTestServer(t, url)
	bob := dialTestServer(t, url)
	login(t, alice, "alice", "password123")
	login(t, bob, "bob", "hunter2")

	sendRequest(t, alice, Request{Type: ReqLogout})
	readUntil(t, alice, EvtLogoutOK)

	// Bob eventually sees an online list without alice.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		evt := readUntil(t, bob, EvtOnlineUsers)
		withoutAlice := true
		for _, u := range evt.Users {
			if u.Username == "alice" {
				withoutAlice = false
			}
		}
		if withoutAlice {
			return
		}
	}
	t.Error("never observed an online list without alice")
}

func TestReloginAfterLogout(t *testing.T) {
	url := newTestServer(t)
	ws := dialTestServer(t, url)
	first := login(t, ws, "alice", "password123")

	sendRequest(t, ws, Request{Type: ReqLogout})
	readUntil(t, ws, EvtLogoutOK)

	again := dialTestServer(t, url)
	second := login(t, again, "alice", "password123")
	if second.SessionID <= first.SessionID {
		t.Errorf("session IDs must increase: first=%d second=%d", first.SessionID, second.SessionID)
	}
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	url := newTestServer(t)
	ws := dialTestServer(t, url)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("writing raw frame: %v", err)
	}
	evt := readUntil(t, ws, EvtError)
	if evt.Reason != "malformed request" {
		t.Errorf("reason = %q, want malformed request", evt.Reason)
	}

	login(t, ws, "alice", "password123")
}

func TestChatHistoryReplaysOnOpen(t *testing.T) {
	url := newTestServer(t)
	alice := dialTestServer(t, url)
	bob := dialTestServer(t, url)
	login(t, alice, "alice", "password123")
	login(t, bob, "bob", "hunter2")

	sendRequest(t, alice, Request{Type: ReqOpenChat, Participants: []string{"bob"}})
	opened := readUntil(t, alice, EvtChatOpened)
	chatID := chatIDOf(t, opened.Chat)
	sendRequest(t, alice, Request{Type: ReqMessage, ChatID: chatID, Content: "first"})
	readUntil(t, alice, EvtMessage)

	// Bob opens the same pair and gets the session back, transcript included.
	sendRequest(t, bob, Request{Type: ReqOpenChat, Participants: []string{"alice"}})
	reopened := readUntil(t, bob, EvtChatOpened)
	if chatIDOf(t, reopened.Chat) != chatID {
		t.Fatal("bob should land in the existing private session")
	}
	var payload struct {
		Messages []*types.Message `json:"messages"`
	}
	if err := json.Unmarshal(reopened.Chat, &payload); err != nil {
		t.Fatalf("decoding chat payload: %v", err)
	}
	if len(payload.Messages) != 1 || payload.Messages[0].Content != "first" {
		t.Errorf("session transcript = %+v, want the one sent message", payload.Messages)
	}
}
