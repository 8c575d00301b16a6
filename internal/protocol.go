package internal

import (
	"encoding/json"
	"fmt"
)

// Event names exchanged with the server. Every frame on the wire is one
// JSON envelope; outbound frames that expect an acknowledgment carry an
// ack correlation id the server echoes back.
const (
	eventJoin      = "join"
	eventLeaveRoom = "leaveRoom"
	eventTyping    = "typing"
	eventSend      = "sendMessage"
	eventAck       = "ack"

	eventMessage  = "message"
	eventHistory  = "history"
	eventRoomData = "roomData"
	eventStatus   = "userStatusChanged"
	eventError    = "error"
)

type envelope struct {
	Event string          `json:"event"`
	Ack   string          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func newEnvelope(event string, ack string, data interface{}) (envelope, error) {
	env := envelope{Event: event, Ack: ack}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Data = raw
	}
	return env, nil
}

// Outbound payloads.

type leavePayload struct {
	Params RoomParams `json:"params"`
}

type typingPayload struct {
	Room     string `json:"room"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	IsTyping bool   `json:"isTyping"`
}

type sendPayload struct {
	Message string         `json:"message"`
	Params  RoomParams     `json:"params"`
	File    *AttachmentRef `json:"file,omitempty"`
}

type ackPayload struct {
	Error string `json:"error,omitempty"`
}

// Inbound events, decoded from envelopes and dispatched to the state
// reducers. The concrete type tells the reducer which rule to apply.
type Event interface {
	eventName() string
}

// MessageEvent delivers one new message to append.
type MessageEvent struct {
	Message Message
}

func (MessageEvent) eventName() string { return eventMessage }

// HistoryEvent replaces the full message sequence. Messages is nil when the
// payload was not list-shaped; the reducer treats that as an empty history.
type HistoryEvent struct {
	Messages []Message
}

func (HistoryEvent) eventName() string { return eventHistory }

// RoomDataEvent replaces the member list wholesale.
type RoomDataEvent struct {
	Users []User
}

func (RoomDataEvent) eventName() string { return eventRoomData }

// TypingEvent reports a remote user's typing state change.
type TypingEvent struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	IsTyping bool   `json:"isTyping"`
}

func (TypingEvent) eventName() string { return eventTyping }

// PresenceEvent reports a single user's online flag.
type PresenceEvent struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

func (PresenceEvent) eventName() string { return eventStatus }

// ErrorEvent is a fatal-to-this-session condition from the server. The
// consumer must leave the room; the connection does not retry or suppress it.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (ErrorEvent) eventName() string { return eventError }

type dataWrapper struct {
	Data json.RawMessage `json:"data"`
}

type roomDataPayload struct {
	Users []User `json:"users"`
}

// decodeEvent turns an inbound envelope into a typed event. Malformed
// payloads never produce an error that would kill the read loop: history
// falls back to nil, the rest fall back to zero values.
func decodeEvent(env envelope) (Event, bool) {
	switch env.Event {
	case eventMessage:
		var wrapper dataWrapper
		var msg Message
		if err := json.Unmarshal(env.Data, &wrapper); err != nil {
			return nil, false
		}
		if err := json.Unmarshal(wrapper.Data, &msg); err != nil {
			return nil, false
		}
		return MessageEvent{Message: msg}, true
	case eventHistory:
		var wrapper dataWrapper
		if err := json.Unmarshal(env.Data, &wrapper); err != nil {
			return HistoryEvent{}, true
		}
		var msgs []Message
		if err := json.Unmarshal(wrapper.Data, &msgs); err != nil {
			return HistoryEvent{}, true
		}
		return HistoryEvent{Messages: msgs}, true
	case eventRoomData:
		var wrapper struct {
			Data roomDataPayload `json:"data"`
		}
		if err := json.Unmarshal(env.Data, &wrapper); err != nil {
			return RoomDataEvent{}, true
		}
		return RoomDataEvent{Users: wrapper.Data.Users}, true
	case eventTyping:
		var ev TypingEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, false
		}
		return ev, true
	case eventStatus:
		var ev PresenceEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, false
		}
		return ev, true
	case eventError:
		var ev ErrorEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return ErrorEvent{Message: "room error"}, true
		}
		return ev, true
	}
	return nil, false
}
