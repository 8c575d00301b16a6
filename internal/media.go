package internal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CaptureKind selects which tracks a session requests from the device.
type CaptureKind int

const (
	// CaptureAudio records microphone only.
	CaptureAudio CaptureKind = iota
	// CaptureVideo records camera plus microphone.
	CaptureVideo
)

func (k CaptureKind) String() string {
	if k == CaptureVideo {
		return "video"
	}
	return "audio"
}

// MIME returns the container type of the assembled clip.
func (k CaptureKind) MIME() string {
	if k == CaptureVideo {
		return "video/webm"
	}
	return "audio/wav"
}

// Extension returns the filename extension for the assembled clip.
func (k CaptureKind) Extension() string {
	if k == CaptureVideo {
		return ".webm"
	}
	return ".wav"
}

// AttachmentType maps the capture kind to its attachment classification.
func (k CaptureKind) AttachmentType() AttachmentType {
	if k == CaptureVideo {
		return AttachmentVideo
	}
	return AttachmentAudio
}

// Track is one hardware track opened for a capture session.
type Track interface {
	// Stop releases the track. Must be safe to call more than once.
	Stop()
}

// CaptureStream is an open device stream: data chunks plus the hardware
// tracks backing them. The chunk channel closes when the device stops
// producing.
type CaptureStream interface {
	Chunks() <-chan []byte
	Tracks() []Track
}

// CaptureDevice acquires hardware. Implementations wrap real devices
// (ffmpeg) or test fakes.
type CaptureDevice interface {
	Open(ctx context.Context, kind CaptureKind) (CaptureStream, error)
}

// CaptureState is the session lifecycle.
type CaptureState int

const (
	CaptureIdle CaptureState = iota
	CaptureAcquiring
	CaptureRecording
	CaptureStopped
	CaptureCommitted
	CaptureDiscarded
)

// Clip is the assembled recording artifact, playable locally and ready for
// the attachment pipeline.
type Clip struct {
	Data     []byte
	MIME     string
	Duration time.Duration
}

// MediaSession drives one hardware capture session: acquire, record with a
// one-second elapsed timer, stop, preview, then commit or discard. The
// device stream and the timer live exactly as long as the recording state;
// teardown on any path releases every track that was opened.
type MediaSession struct {
	kind   CaptureKind
	device CaptureDevice

	mu      sync.Mutex
	state   CaptureState
	gen     int
	stream  CaptureStream
	chunks  [][]byte
	clip    *Clip
	elapsed int64

	tickerDone    chan struct{}
	collectorDone chan struct{}
}

// NewMediaSession builds an idle session for the given kind.
func NewMediaSession(kind CaptureKind, device CaptureDevice) *MediaSession {
	return &MediaSession{kind: kind, device: device}
}

// Kind returns what the session records.
func (m *MediaSession) Kind() CaptureKind { return m.kind }

// State returns the current lifecycle state.
func (m *MediaSession) State() CaptureState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Elapsed returns how long the session has been recording, at one-second
// resolution.
func (m *MediaSession) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Duration(m.elapsed) * time.Second
}

// Start acquires the device and begins recording. On denial the session
// stays idle so the user can retry after fixing permissions.
func (m *MediaSession) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != CaptureIdle && m.state != CaptureDiscarded {
		m.mu.Unlock()
		return ErrSessionState
	}
	if m.device == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: no capture device configured", ErrDeviceDenied)
	}
	m.state = CaptureAcquiring
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	stream, err := m.device.Open(ctx, m.kind)
	if err != nil {
		m.mu.Lock()
		if m.state == CaptureAcquiring && m.gen == gen {
			m.state = CaptureIdle
		}
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrDeviceDenied, err)
	}

	m.mu.Lock()
	if m.state != CaptureAcquiring || m.gen != gen {
		// Torn down while the device was opening. The fresh tracks have
		// no owner, stop them before reporting the dead session.
		m.mu.Unlock()
		for _, track := range stream.Tracks() {
			track.Stop()
		}
		return ErrSessionState
	}
	m.stream = stream
	m.chunks = nil
	m.clip = nil
	m.elapsed = 0
	m.state = CaptureRecording
	m.tickerDone = make(chan struct{})
	m.collectorDone = make(chan struct{})
	ticker := m.tickerDone
	collector := m.collectorDone
	m.mu.Unlock()

	go m.runTimer(ticker)
	go m.collect(stream, collector)
	return nil
}

func (m *MediaSession) runTimer(done chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			if m.state == CaptureRecording {
				m.elapsed++
			}
			m.mu.Unlock()
		case <-done:
			return
		}
	}
}

func (m *MediaSession) collect(stream CaptureStream, done chan struct{}) {
	for {
		select {
		case chunk, ok := <-stream.Chunks():
			if !ok {
				return
			}
			if len(chunk) == 0 {
				continue
			}
			m.mu.Lock()
			if m.state == CaptureRecording {
				m.chunks = append(m.chunks, chunk)
			}
			m.mu.Unlock()
		case <-done:
			return
		}
	}
}

// Stop halts the recording: every track opened for this session is
// released, the timer stops, and the buffered chunks are assembled into
// one playable clip for preview. No hardware stays active past this call.
func (m *MediaSession) Stop() {
	m.mu.Lock()
	if m.state != CaptureRecording {
		m.mu.Unlock()
		return
	}
	m.releaseLocked()
	m.assembleLocked()
	m.state = CaptureStopped
	m.mu.Unlock()
}

// releaseLocked stops every track and both goroutines. Callers hold m.mu.
func (m *MediaSession) releaseLocked() {
	if m.stream != nil {
		for _, track := range m.stream.Tracks() {
			track.Stop()
		}
		m.stream = nil
	}
	if m.tickerDone != nil {
		close(m.tickerDone)
		m.tickerDone = nil
	}
	if m.collectorDone != nil {
		close(m.collectorDone)
		m.collectorDone = nil
	}
}

func (m *MediaSession) assembleLocked() {
	var size int
	for _, chunk := range m.chunks {
		size += len(chunk)
	}
	data := make([]byte, 0, size)
	for _, chunk := range m.chunks {
		data = append(data, chunk...)
	}
	m.chunks = nil
	m.clip = &Clip{
		Data:     data,
		MIME:     m.kind.MIME(),
		Duration: time.Duration(m.elapsed) * time.Second,
	}
}

// Clip returns the assembled artifact, or nil before Stop.
func (m *MediaSession) Clip() *Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clip
}

// Save hands the clip to the caller and exits the session. Only valid once
// the recording has stopped.
func (m *MediaSession) Save() (*Clip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != CaptureStopped || m.clip == nil {
		return nil, ErrSessionState
	}
	clip := m.clip
	m.clip = nil
	m.state = CaptureCommitted
	return clip, nil
}

// Retry abandons the stopped clip and returns the session to a state
// equivalent to idle, ready for a fresh Start.
func (m *MediaSession) Retry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != CaptureStopped {
		return
	}
	m.clip = nil
	m.elapsed = 0
	m.state = CaptureDiscarded
}

// Close is the unconditional teardown for the owning surface going away.
// Whatever state the session is in — even mid-recording — any open stream
// has its tracks stopped and any running timer is cancelled. Idempotent.
func (m *MediaSession) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
	m.chunks = nil
	m.clip = nil
	m.state = CaptureDiscarded
}
