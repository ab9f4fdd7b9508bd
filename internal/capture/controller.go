// Package capture drives the camera and microphone through preview, recording
// and stop, or takes a video file chosen from disk, and hands the resulting
// media to the upload pipeline.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/MikeSquared-Agency/rehearse/internal/events"
)

type State string

const (
	StateIdle       State = "idle"
	StatePreviewing State = "previewing"
	StateRecording  State = "recording"
	StateStopped    State = "stopped"
)

// Device opens the camera and microphone.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an opened device.
type Stream interface {
	// Record starts delivering chunks to onChunk.
	Record(onChunk func([]byte)) error
	// Stop ends recording and returns once the last chunk has been delivered.
	Stop() error
	// Close releases the device.
	Close() error
}

// Handoff receives finalized media, typically the upload pipeline.
type Handoff func(ctx context.Context, m *Media) error

type Controller struct {
	dev     Device
	logger  logrus.FieldLogger
	changes events.Bus[State]
	buf     chunkBuffer

	mu      sync.Mutex
	state   State
	stream  Stream
	handoff Handoff
}

func NewController(dev Device, logger logrus.FieldLogger) *Controller {
	return &Controller{dev: dev, logger: logger, state: StateIdle}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) OnStateChange(fn func(State)) events.Subscription {
	return c.changes.Subscribe(fn)
}

func (c *Controller) SetHandoff(h Handoff) {
	c.mu.Lock()
	c.handoff = h
	c.mu.Unlock()
}

// transition sets the state under c.mu and reports whether it changed.
func (c *Controller) transition(to State) bool {
	if c.state == to {
		return false
	}
	c.logger.WithFields(logrus.Fields{"from": c.state, "to": to}).Debug("capture state")
	c.state = to
	return true
}

// Preview opens the device. On failure the controller stays Idle and the
// error is a *CaptureError.
func (c *Controller) Preview(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		s := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: preview from %s", ErrInvalidState, s)
	}
	c.mu.Unlock()

	stream, err := c.dev.Open(ctx)
	if err != nil {
		ce := classify(err, "")
		c.logger.WithError(err).WithField("kind", ce.Kind).Warn("open capture device")
		return ce
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		_ = stream.Close()
		return fmt.Errorf("%w: state changed during preview", ErrInvalidState)
	}
	c.stream = stream
	changed := c.transition(StatePreviewing)
	c.mu.Unlock()

	if changed {
		c.changes.Emit(StatePreviewing)
	}
	return nil
}

// Start begins recording. The chunk buffer is cleared first.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.state != StatePreviewing || c.stream == nil {
		s := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidState, s)
	}
	stream := c.stream
	c.buf.reset()

	if err := stream.Record(c.buf.add); err != nil {
		c.stream = nil
		changed := c.transition(StateIdle)
		c.mu.Unlock()
		_ = stream.Close()
		if changed {
			c.changes.Emit(StateIdle)
		}
		return classify(err, "")
	}
	changed := c.transition(StateRecording)
	c.mu.Unlock()

	if changed {
		c.changes.Emit(StateRecording)
	}
	return nil
}

// Stop finalizes the recording into one Media and passes it to the handoff.
// The returned error is the stop failure or the handoff's error. Stop cannot
// be called again until Reset.
func (c *Controller) Stop(ctx context.Context) (*Media, error) {
	c.mu.Lock()
	if c.state != StateRecording || c.stream == nil {
		s := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: stop from %s", ErrInvalidState, s)
	}
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	stopErr := stream.Stop()
	_ = stream.Close()

	if stopErr != nil {
		c.mu.Lock()
		c.buf.reset()
		changed := c.transition(StateIdle)
		c.mu.Unlock()
		if changed {
			c.changes.Emit(StateIdle)
		}
		return nil, classify(stopErr, "")
	}

	c.logger.WithField("chunks", c.buf.count()).Debug("recording stopped")
	m := &Media{
		Filename:    RecordingFilename,
		ContentType: "video/webm",
		Data:        c.buf.bytes(),
	}
	return m, c.finish(ctx, m)
}

// SelectFile takes a video file from disk instead of a live recording.
// Non-video content is rejected with ErrNotVideo and the state is unchanged.
func (c *Controller) SelectFile(ctx context.Context, path string) (*Media, error) {
	c.mu.Lock()
	if c.state == StateRecording {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: select file while recording", ErrInvalidState)
	}
	c.mu.Unlock()

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect file type: %w", err)
	}
	if !isVideo(mt) {
		c.logger.WithFields(logrus.Fields{"path": path, "mime": mt.String()}).Info("rejected non-video file")
		return nil, ErrNotVideo
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()
	if stream != nil {
		_ = stream.Close()
	}

	m := &Media{
		Filename:    filepath.Base(path),
		ContentType: strings.SplitN(mt.String(), ";", 2)[0],
		Data:        data,
	}
	return m, c.finish(ctx, m)
}

func isVideo(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") {
			return true
		}
	}
	return false
}

func (c *Controller) finish(ctx context.Context, m *Media) error {
	c.mu.Lock()
	changed := c.transition(StateStopped)
	h := c.handoff
	c.mu.Unlock()

	if changed {
		c.changes.Emit(StateStopped)
	}
	if h == nil {
		return nil
	}
	return h(ctx, m)
}

// Reset stops any live recording, discards recorded data and returns to Idle.
func (c *Controller) Reset() {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.buf.reset()
	changed := c.transition(StateIdle)
	c.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			c.logger.WithError(err).Debug("stop stream on reset")
		}
		_ = stream.Close()
		c.buf.reset()
	}
	if changed {
		c.changes.Emit(StateIdle)
	}
}
