package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnState tracks the transport session lifecycle.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateJoined
	StateLeaving
)

const (
	defaultAckTimeout    = 5 * time.Second
	defaultReconnectWait = 3 * time.Second
)

// RoomConnection owns the single websocket session to the chat server.
// One instance serves one room membership: Join binds the params, Leave
// releases them, and every Join has exactly one matching Leave. Inbound
// frames are decoded and delivered on the Events channel by a reader
// goroutine that lives for exactly one join.
type RoomConnection struct {
	serverURL     string
	dialer        *websocket.Dialer
	reconnectWait time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	state   ConnState
	params  RoomParams
	selfID  string
	leaveCh chan struct{}

	writeMu sync.Mutex

	events chan Event

	ackMu sync.Mutex
	acks  map[string]chan ackPayload

	stats *SessionStats
}

// NewRoomConnection builds a connection against the given websocket URL
// (e.g. ws://localhost:8080/ws). It does not dial until Join.
func NewRoomConnection(serverURL string, stats *SessionStats) *RoomConnection {
	if stats == nil {
		stats = NewSessionStats()
	}
	return &RoomConnection{
		serverURL:     serverURL,
		dialer:        websocket.DefaultDialer,
		reconnectWait: defaultReconnectWait,
		selfID:        uuid.NewString(),
		events:        make(chan Event, 64),
		acks:          make(map[string]chan ackPayload),
		stats:         stats,
	}
}

// Events returns the inbound event stream. The channel is shared across
// rejoin cycles; only the reader of the current join writes to it.
func (rc *RoomConnection) Events() <-chan Event {
	return rc.events
}

// SelfID returns the local identity. It is minted once per connection and
// announced with every join, so it stays stable across reconnects.
func (rc *RoomConnection) SelfID() string {
	return rc.selfID
}

// State reports the current lifecycle state.
func (rc *RoomConnection) State() ConnState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

// Params returns the room params bound by the last Join.
func (rc *RoomConnection) Params() RoomParams {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.params
}

// Stats exposes the session counters.
func (rc *RoomConnection) Stats() *SessionStats {
	return rc.stats
}

func validateParams(params RoomParams) error {
	if strings.TrimSpace(params.Room) == "" || strings.TrimSpace(params.Name) == "" {
		return ErrInvalidParams
	}
	return nil
}

// Join establishes the transport session and announces presence in the
// room. Calling Join again with identical params while joined is a no-op,
// so a duplicate join never produces a second announcement. Joining a
// different room requires Leave first.
func (rc *RoomConnection) Join(ctx context.Context, params RoomParams) error {
	if err := validateParams(params); err != nil {
		return err
	}

	rc.mu.Lock()
	switch rc.state {
	case StateJoined:
		if rc.params == params {
			rc.mu.Unlock()
			return nil
		}
		rc.mu.Unlock()
		return fmt.Errorf("already joined room %q, leave first", rc.params.Room)
	case StateConnecting, StateLeaving:
		rc.mu.Unlock()
		return errors.New("connection is busy")
	}
	rc.state = StateConnecting
	rc.mu.Unlock()

	conn, err := rc.dialAndAnnounce(ctx, params)
	if err != nil {
		rc.mu.Lock()
		rc.state = StateDisconnected
		rc.mu.Unlock()
		return err
	}

	leaveCh := make(chan struct{})
	rc.mu.Lock()
	rc.conn = conn
	rc.params = params
	rc.leaveCh = leaveCh
	rc.state = StateJoined
	rc.mu.Unlock()

	go rc.readLoop(conn, leaveCh)
	return nil
}

func (rc *RoomConnection) dialAndAnnounce(ctx context.Context, params RoomParams) (*websocket.Conn, error) {
	joinURL, err := normalizeWSURL(rc.serverURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := rc.dialer.DialContext(ctx, joinURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", joinURL, err)
	}
	announce := struct {
		RoomParams
		UserID string `json:"userId"`
	}{RoomParams: params, UserID: rc.selfID}
	env, err := newEnvelope(eventJoin, "", announce)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := rc.writeEnvelope(conn, env); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("announce join: %w", err)
	}
	return conn, nil
}

// Leave announces departure and tears the session down. It is safe to call
// from any state and runs the teardown at most once per join, which makes
// it suitable for deferred cleanup on every exit path.
func (rc *RoomConnection) Leave() error {
	rc.mu.Lock()
	if rc.state != StateJoined || rc.conn == nil {
		// A half-open session (reader died, send never reconnected) still
		// needs its bookkeeping cleared.
		rc.teardownLocked()
		rc.mu.Unlock()
		return nil
	}
	rc.state = StateLeaving
	conn := rc.conn
	params := rc.params
	leaveCh := rc.leaveCh
	rc.mu.Unlock()

	if env, err := newEnvelope(eventLeaveRoom, "", leavePayload{Params: params}); err == nil {
		_ = rc.writeEnvelope(conn, env)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	if leaveCh != nil {
		close(leaveCh)
	}
	err := conn.Close()

	rc.mu.Lock()
	rc.teardownLocked()
	rc.mu.Unlock()
	return err
}

func (rc *RoomConnection) teardownLocked() {
	rc.conn = nil
	rc.leaveCh = nil
	rc.state = StateDisconnected
	rc.failPendingAcks()
}

// Send emits one chat message and waits for a single acknowledgment. When
// the session is down it first makes one bounded reconnect attempt; there
// is never more than one send attempt per call.
func (rc *RoomConnection) Send(ctx context.Context, text string, file *AttachmentRef, ackTimeout time.Duration) error {
	if ackTimeout <= 0 {
		ackTimeout = defaultAckTimeout
	}

	rc.mu.Lock()
	conn := rc.conn
	params := rc.params
	joined := rc.state == StateJoined && conn != nil
	rc.mu.Unlock()

	if !joined {
		if params.Room == "" {
			return ErrNotConnected
		}
		if err := rc.rejoin(ctx, params); err != nil {
			return fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
		rc.mu.Lock()
		conn = rc.conn
		rc.mu.Unlock()
		if conn == nil {
			return ErrNotConnected
		}
	}

	ackID := uuid.NewString()
	ackCh := make(chan ackPayload, 1)
	rc.ackMu.Lock()
	rc.acks[ackID] = ackCh
	rc.ackMu.Unlock()
	defer func() {
		rc.ackMu.Lock()
		delete(rc.acks, ackID)
		rc.ackMu.Unlock()
	}()

	env, err := newEnvelope(eventSend, ackID, sendPayload{Message: text, Params: params, File: file})
	if err != nil {
		return err
	}
	if err := rc.writeEnvelope(conn, env); err != nil {
		rc.stats.IncFailed()
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	select {
	case ack, ok := <-ackCh:
		if !ok {
			rc.stats.IncFailed()
			return ErrSendFailed
		}
		if ack.Error != "" {
			rc.stats.IncFailed()
			return fmt.Errorf("%w: %s", ErrSendFailed, ack.Error)
		}
		rc.stats.IncDelivered()
		return nil
	case <-time.After(ackTimeout):
		rc.stats.IncFailed()
		return ErrAckTimeout
	case <-ctx.Done():
		rc.stats.IncFailed()
		return ctx.Err()
	}
}

// rejoin performs the bounded reconnect attempt before a send. The session
// is known to be down, so the state guard in Join applies cleanly.
func (rc *RoomConnection) rejoin(ctx context.Context, params RoomParams) error {
	dialCtx, cancel := context.WithTimeout(ctx, rc.reconnectWait)
	defer cancel()
	if err := rc.Join(dialCtx, params); err != nil {
		return err
	}
	rc.stats.IncReconnect()
	return nil
}

// SendTyping emits the local typing state. Best effort: a down session
// drops the signal rather than forcing a reconnect for an indicator.
func (rc *RoomConnection) SendTyping(isTyping bool) {
	rc.mu.Lock()
	conn := rc.conn
	params := rc.params
	selfID := rc.selfID
	joined := rc.state == StateJoined && conn != nil
	rc.mu.Unlock()
	if !joined {
		return
	}
	payload := typingPayload{Room: params.Room, UserID: selfID, Name: params.Name, IsTyping: isTyping}
	if env, err := newEnvelope(eventTyping, "", payload); err == nil {
		_ = rc.writeEnvelope(conn, env)
	}
}

func (rc *RoomConnection) writeEnvelope(conn *websocket.Conn, env envelope) error {
	encoded, err := json.Marshal(env)
	if err != nil {
		return err
	}
	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, encoded)
}

// readLoop decodes inbound frames for exactly one join. Acks are routed to
// their waiting sender; everything else goes to the events channel. The
// leave channel gates delivery so a reader from a previous join can never
// double-apply events after a rejoin.
func (rc *RoomConnection) readLoop(conn *websocket.Conn, leaveCh chan struct{}) {
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			rc.handleReadClosed(conn)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			continue
		}
		if env.Event == eventAck && env.Ack != "" {
			var ack ackPayload
			_ = json.Unmarshal(env.Data, &ack)
			rc.resolveAck(env.Ack, ack)
			continue
		}
		ev, ok := decodeEvent(env)
		if !ok {
			continue
		}
		select {
		case rc.events <- ev:
			rc.stats.IncReceived()
		case <-leaveCh:
			return
		}
	}
}

// handleReadClosed marks the session disconnected when the current reader
// dies underneath a live join. A reader outliving its join (conn already
// swapped or nil) changes nothing.
func (rc *RoomConnection) handleReadClosed(conn *websocket.Conn) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.conn != conn {
		return
	}
	if rc.state == StateJoined {
		rc.conn = nil
		rc.leaveCh = nil
		rc.state = StateDisconnected
		rc.failPendingAcks()
	}
}

func (rc *RoomConnection) resolveAck(ackID string, ack ackPayload) {
	rc.ackMu.Lock()
	ch, ok := rc.acks[ackID]
	if ok {
		delete(rc.acks, ackID)
	}
	rc.ackMu.Unlock()
	if ok {
		ch <- ack
	}
}

// failPendingAcks wakes every waiter with a closed channel so an in-flight
// Send resolves as failed instead of hanging until its timeout. Callers
// hold rc.mu.
func (rc *RoomConnection) failPendingAcks() {
	rc.ackMu.Lock()
	for id, ch := range rc.acks {
		close(ch)
		delete(rc.acks, id)
	}
	rc.ackMu.Unlock()
}

func normalizeWSURL(base string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	return parsed.String(), nil
}
