package internal

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
)

const captureChunkSize = 32 * 1024

// FFmpegDevice captures microphone or camera+microphone by shelling out to
// ffmpeg and chunking its stdout. It satisfies CaptureDevice for platforms
// where ffmpeg is installed; a missing binary surfaces as device denial.
type FFmpegDevice struct {
	// Binary overrides the ffmpeg executable name, mainly for tests.
	Binary string
	// ExtraArgs are appended before the output arguments (e.g. alternate input
	// devices).
	ExtraArgs []string
}

func (d *FFmpegDevice) binary() string {
	if d.Binary != "" {
		return d.Binary
	}
	return "ffmpeg"
}

// Open starts an ffmpeg process recording the requested tracks and returns
// its output as a chunk stream. The returned track terminates the process
// when stopped.
func (d *FFmpegDevice) Open(ctx context.Context, kind CaptureKind) (CaptureStream, error) {
	bin, err := exec.LookPath(d.binary())
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	args := captureArgs(kind, runtime.GOOS)
	args = append(args, d.ExtraArgs...)
	args = append(args, "-f", outputFormat(kind), "pipe:1")

	cmd := exec.CommandContext(ctx, bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	stream := &ffmpegStream{
		chunks:  make(chan []byte, 64),
		stopped: make(chan struct{}),
	}
	stream.tracks = []Track{&processTrack{cmd: cmd, stopped: stream.stopped}}

	go stream.pump(stdout)
	return stream, nil
}

// captureArgs picks the platform input devices. Defaults cover the common
// case; ExtraArgs exist for everything else.
func captureArgs(kind CaptureKind, goos string) []string {
	switch goos {
	case "darwin":
		if kind == CaptureVideo {
			return []string{"-f", "avfoundation", "-framerate", "30", "-i", "0:0"}
		}
		return []string{"-f", "avfoundation", "-i", ":0"}
	default:
		if kind == CaptureVideo {
			return []string{
				"-f", "v4l2", "-framerate", "30", "-i", "/dev/video0",
				"-f", "pulse", "-i", "default",
			}
		}
		return []string{"-f", "pulse", "-i", "default"}
	}
}

func outputFormat(kind CaptureKind) string {
	if kind == CaptureVideo {
		return "webm"
	}
	return "wav"
}

type ffmpegStream struct {
	chunks  chan []byte
	stopped chan struct{}
	tracks  []Track
}

func (s *ffmpegStream) Chunks() <-chan []byte { return s.chunks }
func (s *ffmpegStream) Tracks() []Track       { return s.tracks }

func (s *ffmpegStream) pump(r io.Reader) {
	defer close(s.chunks)
	for {
		buf := make([]byte, captureChunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case s.chunks <- buf[:n]:
			case <-s.stopped:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// processTrack stops the capture by terminating the ffmpeg process. Stop
// is idempotent and does not block on process exit, so it is safe to call
// from teardown paths.
type processTrack struct {
	once    sync.Once
	cmd     *exec.Cmd
	stopped chan struct{}
}

func (t *processTrack) Stop() {
	t.once.Do(func() {
		close(t.stopped)
		if t.cmd.Process != nil {
			// SIGINT lets ffmpeg flush its output before exiting.
			_ = t.cmd.Process.Signal(syscall.SIGINT)
		}
		go func() { _ = t.cmd.Wait() }()
	})
}
