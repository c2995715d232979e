package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps a WebSocket connection with a single writer goroutine. All
// outbound frames go through a buffered channel so any goroutine can write to
// any client without racing on the underlying connection; a full buffer means
// the recipient is too slow and the frame is refused rather than blocking the
// sender.
type Conn struct {
	ws           *websocket.Conn
	sendCh       chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	writerDone   chan struct{}
	closeOnce    sync.Once
}

func newConn(ws *websocket.Conn, buffer int, writeTimeout time.Duration) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:           ws,
		sendCh:       make(chan []byte, buffer),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		writerDone:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// writeLoop is the connection's single writer. writerDone closes only after
// the final flush, so Close can wait for in-flight frames to hit the socket.
func (c *Conn) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case data := <-c.sendCh:
			if !c.writeFrame(data) {
				return
			}
		case <-c.ctx.Done():
			// Best-effort flush of frames queued before the close.
			for {
				select {
				case data := <-c.sendCh:
					if !c.writeFrame(data) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Conn) writeFrame(data []byte) bool {
	if c.ws == nil {
		return false
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return false
	}
	return c.ws.WriteMessage(websocket.TextMessage, data) == nil
}

// WriteJSON queues a frame for delivery. It never blocks: a closed connection
// or a full send buffer returns an error that callers treat as "recipient
// gone".
func (c *Conn) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case c.sendCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		// Wait for the writer to finish flushing already-queued frames (the
		// logout acknowledgment in particular) before the socket goes away.
		select {
		case <-c.writerDone:
		case <-time.After(c.writeTimeout):
		}
		if c.ws != nil {
			err = c.ws.Close()
		}
	})
	return err
}
