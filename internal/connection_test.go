package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeAuthority is a scripted stand-in for the chat server: it accepts
// joins, acknowledges sends, and lets tests push inbound events.
type fakeAuthority struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	ackError string

	joins  chan RoomParams
	leaves chan RoomParams
	sends  chan sendPayload
	typing chan typingPayload
}

func newFakeAuthority(t *testing.T) *fakeAuthority {
	t.Helper()
	auth := &fakeAuthority{
		t:      t,
		joins:  make(chan RoomParams, 8),
		leaves: make(chan RoomParams, 8),
		sends:  make(chan sendPayload, 8),
		typing: make(chan typingPayload, 8),
	}
	auth.server = httptest.NewServer(http.HandlerFunc(auth.serveWS))
	t.Cleanup(auth.server.Close)
	return auth
}

func (a *fakeAuthority) url() string {
	return "ws" + strings.TrimPrefix(a.server.URL, "http")
}

func (a *fakeAuthority) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			continue
		}
		switch env.Event {
		case eventJoin:
			var params RoomParams
			_ = json.Unmarshal(env.Data, &params)
			a.joins <- params
		case eventLeaveRoom:
			var leave leavePayload
			_ = json.Unmarshal(env.Data, &leave)
			a.leaves <- leave.Params
		case eventTyping:
			var tp typingPayload
			_ = json.Unmarshal(env.Data, &tp)
			a.typing <- tp
		case eventSend:
			var send sendPayload
			_ = json.Unmarshal(env.Data, &send)
			a.sends <- send
			a.mu.Lock()
			ackErr := a.ackError
			a.mu.Unlock()
			a.writeTo(conn, envelopeOrFatal(a.t, eventAck, env.Ack, ackPayload{Error: ackErr}))
		}
	}
}

func (a *fakeAuthority) setAckError(msg string) {
	a.mu.Lock()
	a.ackError = msg
	a.mu.Unlock()
}

// emit pushes one inbound event on the current connection.
func (a *fakeAuthority) emit(event string, data interface{}) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		a.t.Fatalf("no client connected")
	}
	a.writeTo(conn, envelopeOrFatal(a.t, event, "", data))
}

// dropClient severs the transport from the server side.
func (a *fakeAuthority) dropClient() {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (a *fakeAuthority) writeTo(conn *websocket.Conn, env envelope) {
	encoded, err := json.Marshal(env)
	if err != nil {
		a.t.Fatalf("encode envelope: %v", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, encoded)
}

func envelopeOrFatal(t *testing.T, event, ack string, data interface{}) envelope {
	t.Helper()
	env, err := newEnvelope(event, ack, data)
	if err != nil {
		t.Fatalf("newEnvelope: %v", err)
	}
	return env
}

func receiveEvent(t *testing.T, rc *RoomConnection) Event {
	t.Helper()
	select {
	case ev := <-rc.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return nil
	}
}

func receiveJoin(t *testing.T, auth *fakeAuthority) RoomParams {
	t.Helper()
	select {
	case params := <-auth.joins:
		return params
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for join")
		return RoomParams{}
	}
}

func TestJoinValidatesParams(t *testing.T) {
	rc := NewRoomConnection("ws://localhost:0", nil)
	if err := rc.Join(context.Background(), RoomParams{Room: "lobby"}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if err := rc.Join(context.Background(), RoomParams{Name: "alice"}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if rc.State() != StateDisconnected {
		t.Fatalf("failed join must leave state disconnected")
	}
}

func TestJoinAnnouncesOnce(t *testing.T) {
	auth := newFakeAuthority(t)
	rc := NewRoomConnection(auth.url(), nil)
	params := RoomParams{Room: "lobby", Name: "alice"}

	if err := rc.Join(context.Background(), params); err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer rc.Leave()
	if got := receiveJoin(t, auth); got != params {
		t.Fatalf("wrong announcement: %+v", got)
	}

	// Identical params while joined: idempotent, no second announcement.
	if err := rc.Join(context.Background(), params); err != nil {
		t.Fatalf("repeat Join: %v", err)
	}
	select {
	case extra := <-auth.joins:
		t.Fatalf("duplicate join announcement: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}

	// A different room needs an explicit leave first.
	if err := rc.Join(context.Background(), RoomParams{Room: "dev", Name: "alice"}); err == nil {
		t.Fatalf("expected rebind without leave to fail")
	}
}

func TestLeaveAnnouncesExactlyOnce(t *testing.T) {
	auth := newFakeAuthority(t)
	rc := NewRoomConnection(auth.url(), nil)
	params := RoomParams{Room: "lobby", Name: "alice"}

	if err := rc.Join(context.Background(), params); err != nil {
		t.Fatalf("Join: %v", err)
	}
	receiveJoin(t, auth)

	if err := rc.Leave(); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	select {
	case got := <-auth.leaves:
		if got != params {
			t.Fatalf("wrong leave params: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("leave never announced")
	}

	// Second leave is a no-op, as on deferred cleanup paths.
	if err := rc.Leave(); err != nil {
		t.Fatalf("repeated Leave: %v", err)
	}
	select {
	case <-auth.leaves:
		t.Fatalf("leave announced twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInboundEventsArriveInOrder(t *testing.T) {
	auth := newFakeAuthority(t)
	rc := NewRoomConnection(auth.url(), nil)
	if err := rc.Join(context.Background(), RoomParams{Room: "lobby", Name: "alice"}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer rc.Leave()
	receiveJoin(t, auth)

	history := []Message{
		{User: User{ID: "u1", Name: "bob"}, Body: "first", Type: MessageChat, Timestamp: 1},
		{User: User{ID: "u1", Name: "bob"}, Body: "second", Type: MessageChat, Timestamp: 2},
	}
	auth.emit(eventHistory, dataWrapper{Data: mustMarshal(t, history)})
	auth.emit(eventMessage, dataWrapper{Data: mustMarshal(t, Message{Body: "third", Type: MessageChat})})
	auth.emit(eventStatus, PresenceEvent{UserID: "u1", IsOnline: true})

	state := NewChatState(rc.SelfID())
	state.Apply(receiveEvent(t, rc))
	state.Apply(receiveEvent(t, rc))
	state.Apply(receiveEvent(t, rc))

	msgs := state.Messages()
	if len(msgs) != 3 || msgs[0].Body != "first" || msgs[1].Body != "second" || msgs[2].Body != "third" {
		t.Fatalf("events applied out of order: %+v", msgs)
	}
	if !state.Online("u1") {
		t.Fatalf("presence event lost")
	}
	if got := rc.Stats().Received(); got != 3 {
		t.Fatalf("received counter = %d, want 3", got)
	}
}

func TestSendAwaitsAck(t *testing.T) {
	auth := newFakeAuthority(t)
	rc := NewRoomConnection(auth.url(), nil)
	if err := rc.Join(context.Background(), RoomParams{Room: "lobby", Name: "alice"}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer rc.Leave()
	receiveJoin(t, auth)

	if err := rc.Send(context.Background(), "hello", nil, time.Second); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case sent := <-auth.sends:
		if sent.Message != "hello" || sent.Params.Room != "lobby" {
			t.Fatalf("wrong payload: %+v", sent)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("send never reached the server")
	}
	if rc.Stats().Delivered() != 1 {
		t.Fatalf("delivered counter not bumped")
	}
}

func TestSendSurfacesAckError(t *testing.T) {
	auth := newFakeAuthority(t)
	auth.setAckError("room closed")
	rc := NewRoomConnection(auth.url(), nil)
	if err := rc.Join(context.Background(), RoomParams{Room: "lobby", Name: "alice"}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer rc.Leave()
	receiveJoin(t, auth)

	err := rc.Send(context.Background(), "hello", nil, time.Second)
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "room closed") {
		t.Fatalf("ack error message lost: %v", err)
	}
}

func TestSendReconnectsBeforeSending(t *testing.T) {
	auth := newFakeAuthority(t)
	rc := NewRoomConnection(auth.url(), nil)
	if err := rc.Join(context.Background(), RoomParams{Room: "lobby", Name: "alice"}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer rc.Leave()
	receiveJoin(t, auth)

	auth.dropClient()
	waitForState(t, rc, StateDisconnected)

	if err := rc.Send(context.Background(), "back again", nil, time.Second); err != nil {
		t.Fatalf("Send after drop: %v", err)
	}
	receiveJoin(t, auth) // the reconnect re-announced the room
	select {
	case sent := <-auth.sends:
		if sent.Message != "back again" {
			t.Fatalf("wrong payload: %+v", sent)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("send never arrived after reconnect")
	}
	if rc.Stats().Reconnects() != 1 {
		t.Fatalf("reconnect counter not bumped")
	}
}

func TestIdentityStableAcrossReconnect(t *testing.T) {
	auth := newFakeAuthority(t)
	rc := NewRoomConnection(auth.url(), nil)
	if err := rc.Join(context.Background(), RoomParams{Room: "lobby", Name: "alice"}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer rc.Leave()
	receiveJoin(t, auth)

	idBefore := rc.SelfID()
	state := NewChatState(idBefore)

	auth.dropClient()
	waitForState(t, rc, StateDisconnected)
	if err := rc.Send(context.Background(), "back again", nil, time.Second); err != nil {
		t.Fatalf("Send after drop: %v", err)
	}
	announced := receiveJoin(t, auth)
	if announced.Room != "lobby" {
		t.Fatalf("wrong re-announcement: %+v", announced)
	}
	<-auth.sends

	if rc.SelfID() != idBefore {
		t.Fatalf("identity changed across reconnect: %s -> %s", idBefore, rc.SelfID())
	}

	// The local-identity typing filter must still hold against events the
	// server echoes back after the reconnect.
	auth.emit(eventTyping, TypingEvent{UserID: rc.SelfID(), Name: "alice", IsTyping: true})
	state.Apply(receiveEvent(t, rc))
	if got := state.TypingUsers(); len(got) != 0 {
		t.Fatalf("local user appears in own typing roster after reconnect: %+v", got)
	}
}

func TestSendFailsFastWhenNeverJoined(t *testing.T) {
	rc := NewRoomConnection("ws://localhost:0", nil)
	err := rc.Send(context.Background(), "hello", nil, time.Second)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestRejoinDeliversEventsExactlyOnce(t *testing.T) {
	auth := newFakeAuthority(t)
	rc := NewRoomConnection(auth.url(), nil)
	params := RoomParams{Room: "lobby", Name: "alice"}

	if err := rc.Join(context.Background(), params); err != nil {
		t.Fatalf("Join: %v", err)
	}
	receiveJoin(t, auth)
	if err := rc.Leave(); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	<-auth.leaves

	if err := rc.Join(context.Background(), params); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	defer rc.Leave()
	receiveJoin(t, auth)

	auth.emit(eventMessage, dataWrapper{Data: mustMarshal(t, Message{Body: "once", Type: MessageChat})})
	ev := receiveEvent(t, rc)
	if msg, ok := ev.(MessageEvent); !ok || msg.Message.Body != "once" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	select {
	case dup := <-rc.Events():
		t.Fatalf("event delivered twice after rejoin: %+v", dup)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTypingSignalReachesServer(t *testing.T) {
	auth := newFakeAuthority(t)
	rc := NewRoomConnection(auth.url(), nil)
	if err := rc.Join(context.Background(), RoomParams{Room: "lobby", Name: "alice"}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer rc.Leave()
	receiveJoin(t, auth)

	rc.SendTyping(true)
	select {
	case tp := <-auth.typing:
		if !tp.IsTyping || tp.Room != "lobby" || tp.Name != "alice" {
			t.Fatalf("wrong typing payload: %+v", tp)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("typing signal never arrived")
	}
}

func TestRemoteErrorEventIsDelivered(t *testing.T) {
	auth := newFakeAuthority(t)
	rc := NewRoomConnection(auth.url(), nil)
	if err := rc.Join(context.Background(), RoomParams{Room: "lobby", Name: "alice"}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer rc.Leave()
	receiveJoin(t, auth)

	auth.emit(eventError, ErrorEvent{Message: "room is full"})
	ev := receiveEvent(t, rc)
	errEv, ok := ev.(ErrorEvent)
	if !ok || errEv.Message != "room is full" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func waitForState(t *testing.T, rc *RoomConnection, want ConnState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rc.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state never reached %v (now %v)", want, rc.State())
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}
