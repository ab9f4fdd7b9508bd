package capture

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/rehearse/internal/logger"
)

type fakeDevice struct {
	openErr error
	stream  *fakeStream
}

func (d *fakeDevice) Open(context.Context) (Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.stream, nil
}

// fakeStream replays chunks on Stop, the way a recorder flushes its last
// buffers when it is told to finish.
type fakeStream struct {
	mu      sync.Mutex
	chunks  [][]byte
	onChunk func([]byte)
	stopErr error
	closed  bool
}

func (s *fakeStream) Record(onChunk func([]byte)) error {
	s.mu.Lock()
	s.onChunk = onChunk
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	fn := s.onChunk
	s.onChunk = nil
	s.mu.Unlock()
	if fn != nil {
		for _, c := range s.chunks {
			fn(c)
		}
	}
	return s.stopErr
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func TestController_RecordFlow(t *testing.T) {
	stream := &fakeStream{chunks: [][]byte{[]byte("ab"), {}, []byte("c"), nil, []byte("de")}}
	c := NewController(&fakeDevice{stream: stream}, logger.Discard())
	ctx := context.Background()

	var states []State
	c.OnStateChange(func(s State) { states = append(states, s) })

	var handed *Media
	c.SetHandoff(func(_ context.Context, m *Media) error {
		handed = m
		return nil
	})

	require.NoError(t, c.Preview(ctx))
	require.NoError(t, c.Start())
	m, err := c.Stop(ctx)
	require.NoError(t, err)

	assert.Equal(t, []byte("abcde"), m.Data)
	assert.Equal(t, "video/webm", m.ContentType)
	assert.Equal(t, RecordingFilename, m.Filename)
	assert.Same(t, m, handed)
	assert.Equal(t, []State{StatePreviewing, StateRecording, StateStopped}, states)
	assert.True(t, stream.closed)

	_, err = c.Stop(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, c.Start(), ErrInvalidState)

	c.Reset()
	assert.Equal(t, StateIdle, c.State())
}

func TestController_NewRecordingClearsBuffer(t *testing.T) {
	stream := &fakeStream{chunks: [][]byte{[]byte("first")}}
	c := NewController(&fakeDevice{stream: stream}, logger.Discard())
	ctx := context.Background()

	require.NoError(t, c.Preview(ctx))
	require.NoError(t, c.Start())
	_, err := c.Stop(ctx)
	require.NoError(t, err)

	c.Reset()
	stream.chunks = [][]byte{[]byte("second")}
	require.NoError(t, c.Preview(ctx))
	require.NoError(t, c.Start())
	m, err := c.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), m.Data)
}

func TestController_PreviewFailureStaysIdle(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"permission", os.ErrPermission, KindPermissionDenied},
		{"missing binary", exec.ErrNotFound, KindDeviceNotFound},
		{"missing device", &os.PathError{Op: "open", Path: "/dev/video0", Err: os.ErrNotExist}, KindDeviceNotFound},
		{"other", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(&fakeDevice{openErr: tt.err}, logger.Discard())
			err := c.Preview(context.Background())

			var ce *CaptureError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.kind, ce.Kind)
			assert.NotEmpty(t, ce.Message())
			assert.Equal(t, StateIdle, c.State())
		})
	}
}

func TestController_StopFailureReturnsToIdle(t *testing.T) {
	stream := &fakeStream{stopErr: errors.New("encoder crashed")}
	c := NewController(&fakeDevice{stream: stream}, logger.Discard())
	ctx := context.Background()

	require.NoError(t, c.Preview(ctx))
	require.NoError(t, c.Start())
	_, err := c.Stop(ctx)

	var ce *CaptureError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StateIdle, c.State())
}

func TestController_HandoffErrorIsReturned(t *testing.T) {
	stream := &fakeStream{chunks: [][]byte{[]byte("x")}}
	c := NewController(&fakeDevice{stream: stream}, logger.Discard())
	ctx := context.Background()
	boom := errors.New("upload failed")
	c.SetHandoff(func(context.Context, *Media) error {
		c.Reset()
		return boom
	})

	require.NoError(t, c.Preview(ctx))
	require.NoError(t, c.Start())
	_, err := c.Stop(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateIdle, c.State())
}

func TestController_SelectFile(t *testing.T) {
	dir := t.TempDir()
	c := NewController(&fakeDevice{}, logger.Discard())
	ctx := context.Background()

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("just some text"), 0o644))
	_, err := c.SelectFile(ctx, txt)
	assert.ErrorIs(t, err, ErrNotVideo)
	assert.Equal(t, StateIdle, c.State())

	// EBML header with the webm doctype.
	webm := []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x86, 0x81, 0x01, 0x42, 0xF7, 0x81, 0x01,
		0x42, 0xF2, 0x81, 0x04, 0x42, 0xF3, 0x81, 0x08, 0x42, 0x82, 0x84, 'w', 'e', 'b', 'm'}
	vid := filepath.Join(dir, "answer.webm")
	require.NoError(t, os.WriteFile(vid, webm, 0o644))

	m, err := c.SelectFile(ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, "answer.webm", m.Filename)
	assert.Equal(t, "video/webm", m.ContentType)
	assert.Equal(t, StateStopped, c.State())
}

func TestChunkBuffer_DropsEmptyAndKeepsOrder(t *testing.T) {
	var b chunkBuffer
	b.add([]byte("1"))
	b.add(nil)
	b.add([]byte{})
	b.add([]byte("23"))

	assert.Equal(t, 2, b.count())
	assert.Equal(t, []byte("123"), b.bytes())

	b.reset()
	assert.Equal(t, 0, b.count())
	assert.Empty(t, b.bytes())
}

func TestChunkBuffer_CopiesInput(t *testing.T) {
	var b chunkBuffer
	src := []byte("abc")
	b.add(src)
	src[0] = 'z'
	assert.Equal(t, []byte("abc"), b.bytes())
}

func TestClassifyFromDiagnostics(t *testing.T) {
	err := errors.New("exit status 1")
	assert.Equal(t, KindPermissionDenied, classify(err, "/dev/video0: Permission denied").Kind)
	assert.Equal(t, KindDeviceNotFound, classify(err, "Cannot open video device /dev/video0").Kind)
	assert.Equal(t, KindUnknown, classify(err, "").Kind)

	ce := &CaptureError{Kind: KindPermissionDenied}
	assert.Same(t, ce, classify(ce, ""))
}
