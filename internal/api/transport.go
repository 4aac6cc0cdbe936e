package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnState tracks the transport lifecycle.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Inbound frames are small JSON documents; anything past this limit is a
// protocol violation, not a bigger page.
const maxFrameSize = 1 << 22

// Transport owns the persistent WebSocket connection. A single goroutine
// reads via Receive; writes are serialized internally so any number of
// callers may Send concurrently.
type Transport struct {
	logger *zap.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	state ConnState
}

func NewTransport(logger *zap.Logger) *Transport {
	return &Transport{logger: logger, state: StateDisconnected}
}

// Dial opens the connection. header carries the session cookie from the web
// login flow.
func (t *Transport) Dial(ctx context.Context, endpoint string, header http.Header) error {
	t.mu.Lock()
	if t.state == StateOpen || t.state == StateConnecting {
		t.mu.Unlock()
		return errors.New("already connected")
	}
	t.state = StateConnecting
	t.mu.Unlock()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		t.mu.Lock()
		t.state = StateDisconnected
		t.mu.Unlock()
		if resp != nil {
			return fmt.Errorf("dialing %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return fmt.Errorf("dialing %s: %w", endpoint, err)
	}
	conn.SetReadLimit(maxFrameSize)

	t.mu.Lock()
	t.conn = conn
	t.state = StateOpen
	t.mu.Unlock()

	t.logger.Debug("websocket open", zap.String("endpoint", endpoint))
	return nil
}

// Send writes one text frame.
func (t *Transport) Send(frame string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateOpen {
		return ErrNotConnected
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Receive blocks for the next inbound frame. It must be called from a single
// reader goroutine; frames come back in the order the server sent them.
func (t *Transport) Receive() (string, error) {
	t.mu.Lock()
	conn := t.conn
	state := t.state
	t.mu.Unlock()

	if state != StateOpen || conn == nil {
		return "", ErrConnectionClosed
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("reading frame: %w", err)
	}
	return string(data), nil
}

// Close tears the connection down. Safe to call more than once; a reader
// blocked in Receive is unblocked with an error.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateClosed {
		return nil
	}
	t.state = StateClosed
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

// State reports the current lifecycle state.
func (t *Transport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Closed reports whether Close has been called.
func (t *Transport) Closed() bool {
	return t.State() == StateClosed
}
