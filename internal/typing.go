package internal

import (
	"sync"
	"time"
)

// DefaultTypingQuiet is how long after the last keystroke the typing=false
// signal fires.
const DefaultTypingQuiet = 2 * time.Second

// TypingSignal turns raw keystroke activity into a debounced two-state
// outbound signal. Every keystroke emits typing=true immediately and
// (re)arms a single timer that emits typing=false after the quiet interval.
// There is one pending-timer slot: a new keystroke replaces the scheduled
// false emission, so at most one transition is pending at any instant.
type TypingSignal struct {
	mu    sync.Mutex
	quiet time.Duration
	timer *time.Timer
	emit  func(isTyping bool)
}

// NewTypingSignal wires the debounce to an emit callback, typically
// RoomConnection.SendTyping. A non-positive quiet interval falls back to
// the default.
func NewTypingSignal(quiet time.Duration, emit func(isTyping bool)) *TypingSignal {
	if quiet <= 0 {
		quiet = DefaultTypingQuiet
	}
	return &TypingSignal{quiet: quiet, emit: emit}
}

// Keystroke reports one unit of local input activity.
func (s *TypingSignal) Keystroke() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quiet, s.fire)
	s.mu.Unlock()

	s.emit(true)
}

func (s *TypingSignal) fire() {
	s.mu.Lock()
	s.timer = nil
	s.mu.Unlock()
	s.emit(false)
}

// Stop cancels any pending false emission without emitting it. Used when
// the room is left while the timer is still armed.
func (s *TypingSignal) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Pending reports whether a false emission is currently scheduled.
func (s *TypingSignal) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
