// Package chatlog implements the durable append-only server log. Two tagged
// line formats share one file:
//
//	MESSAGE|id|chatID|senderID|timestamp|content
//	SESSION|chatID|timestamp|isGroup|participantID,participantID,...|chatName
//
// Pipe characters inside message content are replaced with "/" on write and
// reversed on read. This keeps the line format intact but is lossy: a literal
// "/" in the original content is indistinguishable from the substitute and
// comes back as "|" after replay. The behavior is kept as-is for
// compatibility with existing log files.
package chatlog

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"parley/pkg/types"
)

const (
	messageTag = "MESSAGE"
	sessionTag = "SESSION"

	fieldSep       = "|"
	pipeSubstitute = "/"
)

// Log appends records to and replays records from a single flat file. Every
// operation opens and closes the file; appends are serialized by a mutex so
// concurrent writers cannot interleave partial lines.
type Log struct {
	mu   sync.Mutex
	path string
}

// New creates a log backed by the given file path. The file is created on
// first append.
func New(path string) *Log {
	return &Log{path: path}
}

// AppendMessage writes one MESSAGE record. I/O failures are logged and the
// record is dropped; the server keeps running.
func (l *Log) AppendMessage(m *types.Message) {
	if m == nil {
		return
	}
	line := strings.Join([]string{
		messageTag,
		m.ID,
		m.ChatID,
		m.SenderID,
		m.Timestamp.Format(time.RFC3339Nano),
		escapeContent(m.Content),
	}, fieldSep)
	l.appendLine(line)
}

// AppendSession writes one SESSION record for a newly created chat session.
func (l *Log) AppendSession(cs *types.ChatSession) {
	if cs == nil {
		return
	}
	participants := cs.Participants()
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ID)
	}
	line := strings.Join([]string{
		sessionTag,
		cs.ID(),
		time.Now().Format(time.RFC3339Nano),
		strconv.FormatBool(cs.IsGroup()),
		strings.Join(ids, ","),
		cs.Name(),
	}, fieldSep)
	l.appendLine(line)
}

// MessagesForChat replays every MESSAGE record for the given chat, in log
// order, with the original IDs and timestamps and the content unescaped.
func (l *Log) MessagesForChat(chatID string) []*types.Message {
	var out []*types.Message
	for _, line := range l.readAll() {
		parts := strings.Split(line, fieldSep)
		if len(parts) < 6 || parts[0] != messageTag || parts[2] != chatID {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, parts[4])
		if err != nil {
			log.Printf("chatlog: skipping message record with bad timestamp %q", parts[4])
			continue
		}
		out = append(out, &types.Message{
			ID:        parts[1],
			ChatID:    parts[2],
			SenderID:  parts[3],
			Timestamp: ts,
			Content:   unescapeContent(parts[5]),
		})
	}
	return out
}

// SessionRecord is one parsed SESSION line, used to reconstruct chat sessions
// that are not resident in memory.
type SessionRecord struct {
	ChatID         string
	Timestamp      time.Time
	Group          bool
	ParticipantIDs []string
	Name           string
}

// SessionRecordsForUser returns every SESSION record whose participant list
// contains the given user ID, in log order.
func (l *Log) SessionRecordsForUser(userID string) []SessionRecord {
	var out []SessionRecord
	for _, line := range l.readAll() {
		parts := strings.Split(line, fieldSep)
		if len(parts) < 5 || parts[0] != sessionTag {
			continue
		}
		ids := strings.Split(parts[4], ",")
		member := false
		for _, id := range ids {
			if id == userID {
				member = true
				break
			}
		}
		if !member {
			continue
		}
		rec := SessionRecord{
			ChatID:         parts[1],
			Group:          parts[3] == "true",
			ParticipantIDs: ids,
		}
		if ts, err := time.Parse(time.RFC3339Nano, parts[2]); err == nil {
			rec.Timestamp = ts
		}
		if len(parts) > 5 {
			rec.Name = parts[5]
		}
		out = append(out, rec)
	}
	return out
}

// Dump returns the raw log content for administrative review. Read failures
// degrade to an empty string.
func (l *Log) Dump() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := os.ReadFile(l.path)
	if err != nil {
		log.Printf("chatlog: cannot read %s: %v", l.path, err)
		return ""
	}
	return string(data)
}

func (l *Log) appendLine(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("chatlog: cannot open %s for append: %v", l.path, err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		log.Printf("chatlog: write to %s failed: %v", l.path, err)
	}
}

func (l *Log) readAll() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("chatlog: cannot open %s: %v", l.path, err)
		}
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Printf("chatlog: error reading %s: %v", l.path, err)
	}
	return lines
}

func escapeContent(s string) string {
	return strings.ReplaceAll(s, fieldSep, pipeSubstitute)
}

func unescapeContent(s string) string {
	return strings.ReplaceAll(s, pipeSubstitute, fieldSep)
}
