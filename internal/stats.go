package internal

import "sync/atomic"

// SessionStats counts what happened over one client session. Shown in the
// chat footer and handy when debugging a flaky server.
type SessionStats struct {
	received   atomic.Uint64
	delivered  atomic.Uint64
	failed     atomic.Uint64
	reconnects atomic.Uint64
}

func NewSessionStats() *SessionStats {
	return &SessionStats{}
}

func (s *SessionStats) IncReceived() {
	s.received.Add(1)
}

func (s *SessionStats) IncDelivered() {
	s.delivered.Add(1)
}

func (s *SessionStats) IncFailed() {
	s.failed.Add(1)
}

func (s *SessionStats) IncReconnect() {
	s.reconnects.Add(1)
}

func (s *SessionStats) Received() uint64   { return s.received.Load() }
func (s *SessionStats) Delivered() uint64  { return s.delivered.Load() }
func (s *SessionStats) Failed() uint64     { return s.failed.Load() }
func (s *SessionStats) Reconnects() uint64 { return s.reconnects.Load() }
