package internal

import (
	"context"
	"strings"
	"time"
)

// MessageSender is the outbound half ChatState needs from RoomConnection.
type MessageSender interface {
	Send(ctx context.Context, text string, file *AttachmentRef, ackTimeout time.Duration) error
}

// Composition is the local draft: text being typed plus a pending uploaded
// attachment and its optimistic preview. It is cleared only after the
// server acknowledges the send, never before, so a failed send loses
// nothing the user typed.
type Composition struct {
	Text    string
	File    *AttachmentRef
	Preview string
}

// Empty reports whether there is nothing to send.
func (c Composition) Empty() bool {
	return strings.TrimSpace(c.Text) == "" && c.File == nil
}

// ChatState is the authoritative local view of one room: the message
// sequence, the member list, presence flags and the set of remote users
// currently typing. All mutation goes through the reducers; each reducer
// handles exactly one inbound event kind.
type ChatState struct {
	selfID   string
	messages []Message
	users    []User
	presence map[string]bool
	typing   []User

	draft Composition
}

// NewChatState builds an empty view for the local identity. Events about
// selfID's own typing are ignored, matching the no-self-indicator rule.
func NewChatState(selfID string) *ChatState {
	return &ChatState{
		selfID:   selfID,
		presence: make(map[string]bool),
	}
}

// SetSelfID rebinds the local identity after a rejoin assigned a new one.
func (s *ChatState) SetSelfID(selfID string) {
	s.selfID = selfID
}

func (s *ChatState) SelfID() string       { return s.selfID }
func (s *ChatState) Messages() []Message  { return s.messages }
func (s *ChatState) Users() []User        { return s.users }
func (s *ChatState) TypingUsers() []User  { return s.typing }
func (s *ChatState) Draft() Composition   { return s.draft }
func (s *ChatState) Online(id string) bool { return s.presence[id] }

// Apply routes one inbound event to its reducer. Unknown events are
// dropped; a malformed payload never panics the state.
func (s *ChatState) Apply(ev Event) {
	switch typed := ev.(type) {
	case MessageEvent:
		s.applyMessage(typed)
	case HistoryEvent:
		s.applyHistory(typed)
	case RoomDataEvent:
		s.applyRoomData(typed)
	case TypingEvent:
		s.applyTyping(typed)
	case PresenceEvent:
		s.applyPresence(typed)
	}
}

// applyMessage appends in arrival order. The server owns ordering; the
// client never reorders or deduplicates.
func (s *ChatState) applyMessage(ev MessageEvent) {
	s.messages = append(s.messages, ev.Message)
}

// applyHistory replaces the sequence wholesale. A payload that was not
// list-shaped arrives as nil and clears the view.
func (s *ChatState) applyHistory(ev HistoryEvent) {
	if ev.Messages == nil {
		s.messages = []Message{}
		return
	}
	s.messages = ev.Messages
}

func (s *ChatState) applyRoomData(ev RoomDataEvent) {
	s.users = ev.Users
}

// applyTyping maintains the typing roster: an id reappearing with
// isTyping=true replaces its prior entry rather than duplicating it, and
// isTyping=false removes it. The local user never appears.
func (s *ChatState) applyTyping(ev TypingEvent) {
	if ev.UserID == s.selfID {
		return
	}
	filtered := s.typing[:0]
	for _, u := range s.typing {
		if u.ID != ev.UserID {
			filtered = append(filtered, u)
		}
	}
	s.typing = filtered
	if ev.IsTyping {
		s.typing = append(s.typing, User{ID: ev.UserID, Name: ev.Name})
	}
}

// applyPresence overwrites a single key and never touches the rest.
func (s *ChatState) applyPresence(ev PresenceEvent) {
	s.presence[ev.UserID] = ev.IsOnline
}

// Draft editing.

func (s *ChatState) SetDraftText(text string) {
	s.draft.Text = text
}

// AttachFile stages an uploaded attachment (with an optional local-only
// preview) on the draft.
func (s *ChatState) AttachFile(ref *AttachmentRef, preview string) {
	s.draft.File = ref
	s.draft.Preview = preview
}

// ClearAttachment drops the staged attachment without touching the text.
func (s *ChatState) ClearAttachment() {
	s.draft.File = nil
	s.draft.Preview = ""
}

// Submit sends the current draft. It fails fast with ErrEmptyMessage when
// there is neither text nor attachment, making no network call. The draft
// is cleared only on a positive acknowledgment; on any failure it stays
// intact so the user retries without retyping.
func (s *ChatState) Submit(ctx context.Context, sender MessageSender, ackTimeout time.Duration) error {
	if s.draft.Empty() {
		return ErrEmptyMessage
	}
	text := strings.TrimSpace(s.draft.Text)
	if err := sender.Send(ctx, text, s.draft.File, ackTimeout); err != nil {
		return err
	}
	s.draft = Composition{}
	return nil
}
