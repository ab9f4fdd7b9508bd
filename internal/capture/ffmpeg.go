package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

const defaultChunkSize = 64 * 1024

// FFmpegDevice records camera and microphone through an external capture
// command that writes WebM to stdout.
type FFmpegDevice struct {
	Command     string
	VideoDevice string // e.g. /dev/video0; skipped when empty
	AudioDevice string // alsa device name
	// Args replaces the default ffmpeg arguments when set.
	Args      []string
	ChunkSize int
}

func NewFFmpegDevice(command string) *FFmpegDevice {
	return &FFmpegDevice{
		Command:     command,
		VideoDevice: "/dev/video0",
		AudioDevice: "default",
		ChunkSize:   defaultChunkSize,
	}
}

func (d *FFmpegDevice) args() []string {
	if len(d.Args) > 0 {
		return d.Args
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2", "-i", d.VideoDevice,
		"-f", "alsa", "-i", d.AudioDevice,
		"-c:v", "libvpx", "-deadline", "realtime",
		"-c:a", "libopus",
		"-f", "webm", "pipe:1",
	}
}

// Open checks that the command and the video device are reachable. Nothing
// runs until Record.
func (d *FFmpegDevice) Open(ctx context.Context) (Stream, error) {
	path, err := exec.LookPath(d.Command)
	if err != nil {
		return nil, &CaptureError{Kind: KindDeviceNotFound, Err: err}
	}
	if d.VideoDevice != "" {
		f, err := os.Open(d.VideoDevice)
		if err != nil {
			return nil, classify(err, "")
		}
		_ = f.Close()
	}
	size := d.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	return &ffmpegStream{ctx: ctx, path: path, args: d.args(), chunkSize: size}, nil
}

type ffmpegStream struct {
	ctx       context.Context
	path      string
	args      []string
	chunkSize int

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	done   chan error
}

func (s *ffmpegStream) Record(onChunk func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return fmt.Errorf("%w: already recording", ErrInvalidState)
	}

	cmd := exec.CommandContext(s.ctx, s.path, s.args...)
	cmd.Stderr = &s.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return classify(err, s.stderr.String())
	}

	s.cmd = cmd
	s.stdin = stdin
	s.done = make(chan error, 1)

	go func() {
		buf := make([]byte, s.chunkSize)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				onChunk(buf[:n])
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				s.done <- err
				return
			}
		}
	}()
	return nil
}

// Stop asks the capture command to finish ("q" on stdin, the ffmpeg
// convention), waits for stdout to drain and for the process to exit.
func (s *ffmpegStream) Stop() error {
	s.mu.Lock()
	cmd, stdin, done := s.cmd, s.stdin, s.done
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}

	_, _ = io.WriteString(stdin, "q\n")
	_ = stdin.Close()

	readErr := <-done
	waitErr := cmd.Wait()

	s.mu.Lock()
	s.cmd = nil
	diag := s.stderr.String()
	s.mu.Unlock()

	if readErr != nil {
		return classify(readErr, diag)
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return classify(waitErr, diag)
	}
	if exitErr != nil && diag != "" {
		return classify(waitErr, diag)
	}
	return nil
}

func (s *ffmpegStream) Close() error {
	s.mu.Lock()
	cmd := s.cmd
	s.cmd = nil
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	return nil
}
