package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/rehearse/internal/backend"
	"github.com/MikeSquared-Agency/rehearse/internal/capture"
	"github.com/MikeSquared-Agency/rehearse/internal/interview"
	"github.com/MikeSquared-Agency/rehearse/internal/logger"
	"github.com/MikeSquared-Agency/rehearse/internal/state"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	stages   []Stage
}

func (p *recordingPublisher) Publish(subject string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.stages = append(p.stages, data.(Progress).Stage)
	return nil
}

type countingResetter struct{ n atomic.Int32 }

func (r *countingResetter) Reset() { r.n.Add(1) }

type fakeBackend struct {
	processStatus int
	hits          map[string]*atomic.Int32
}

func newFakeBackend(t *testing.T, processStatus int) (*httptest.Server, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{processStatus: processStatus, hits: map[string]*atomic.Int32{
		"/upload_video/":       {},
		"/process_interview/":  {},
		"/start_conversation/": {},
	}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := fb.hits[r.URL.Path]; ok {
			c.Add(1)
		}
		switch r.URL.Path {
		case "/upload_video/":
			_, _ = w.Write([]byte(`{"message":"ok","file_path":"uploads\\clip.webm"}`))
		case "/process_interview/":
			var req backend.ProcessRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "uploads/clip.webm", req.VideoPath)
			assert.Equal(t, 8, req.FrameInterval)
			if fb.processStatus != http.StatusOK {
				w.WriteHeader(fb.processStatus)
				_, _ = w.Write([]byte(`{"detail":"analysis crashed"}`))
				return
			}
			_, _ = w.Write([]byte(`{
				"image_result": "good posture",
				"speech_result": "steady",
				"text_result": {"relevance": "high"},
				"model_predictions": {"logic": 0.72},
				"transcript": "hello",
				"selected_frame_paths": ["frames\\f1.jpg"],
				"audio_output_path": "audio\\a.wav",
				"text_output_path": "text\\t.txt"
			}`))
		case "/start_conversation/":
			_, _ = w.Write([]byte(`{"initial_response":"Hi","conversation_history":[{"role":"assistant","content":"Hi"},{"role":"user","content":"Hello"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, fb
}

func setup(t *testing.T, srvURL string) (*Orchestrator, *interview.Results, *recordingPublisher, *countingResetter) {
	t.Helper()
	fs, err := state.NewFileStore(t.TempDir())
	require.NoError(t, err)
	results := interview.NewResults(state.Session(fs, time.Hour))
	pub := &recordingPublisher{}
	o := New(backend.NewClient(srvURL, 0, nil), results, pub, logger.Discard(), Options{})
	r := &countingResetter{}
	o.SetCapture(r)
	return o, results, pub, r
}

func media() *capture.Media {
	return &capture.Media{Filename: capture.RecordingFilename, ContentType: "video/webm", Data: []byte("webm")}
}

func TestRun_Success(t *testing.T) {
	srv, fb := newFakeBackend(t, http.StatusOK)
	o, results, pub, resetter := setup(t, srv.URL)
	ctx := context.Background()

	var progress []Progress
	o.OnProgress(func(p Progress) { progress = append(progress, p) })

	nav, err := o.Run(ctx, media(), "")
	require.NoError(t, err)
	assert.Equal(t, interview.TargetReport, nav.Target)
	assert.Equal(t, int32(1), fb.hits["/start_conversation/"].Load())
	assert.Equal(t, int32(0), resetter.n.Load())

	require.Len(t, progress, 4)
	assert.Equal(t, []int{0, 30, 70, 100}, []int{progress[0].Percent, progress[1].Percent, progress[2].Percent, progress[3].Percent})
	assert.Equal(t, progress[0].RunID, progress[3].RunID)
	assert.Equal(t, []Stage{StageUploading, StageProcessing, StageConversing, StageDone}, pub.stages)

	s, err := results.Canonical(ctx)
	require.NoError(t, err)
	assert.Equal(t, interview.DefaultJobType, s.JobType)
	assert.Equal(t, "good posture", backend.ArtifactText(s.ImageResult))
	assert.InDelta(t, 0.72, s.ModelPredictions["logic"], 1e-9)
	require.Len(t, s.ConversationAnalysis, 2)
	assert.JSONEq(t, `"[assistant]: Hi"`, string(s.ConversationAnalysis[0]))
	assert.JSONEq(t, `"[user]: Hello"`, string(s.ConversationAnalysis[1]))
	assert.Equal(t, []string{"frames/f1.jpg"}, s.ProcessedFramePaths)
	assert.Equal(t, "audio/a.wav", s.ProcessedAudioPath)
	assert.Equal(t, "text/t.txt", s.ProcessedTextContentPath)

	snap, hit, err := results.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, s, snap)
}

func TestRun_AbortsOnProcessFailure(t *testing.T) {
	srv, fb := newFakeBackend(t, http.StatusInternalServerError)
	o, results, pub, resetter := setup(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, results.SetJobType(ctx, "java_engineer"))

	_, err := o.Run(ctx, media(), "java_engineer")
	require.Error(t, err)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepProcess, se.Step)
	assert.Equal(t, http.StatusInternalServerError, backend.StatusOf(err))
	assert.Equal(t, "analysis crashed", backend.MessageOf(err))

	assert.Equal(t, int32(1), fb.hits["/upload_video/"].Load())
	assert.Equal(t, int32(1), fb.hits["/process_interview/"].Load())
	assert.Equal(t, int32(0), fb.hits["/start_conversation/"].Load())
	assert.Equal(t, int32(1), resetter.n.Load())
	assert.Equal(t, StageFailed, pub.stages[len(pub.stages)-1])

	s, err := results.Canonical(ctx)
	require.NoError(t, err)
	assert.Equal(t, "java_engineer", s.JobType)
	assert.Empty(t, s.ImageResult)
	_, hit, err := results.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRun_UploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()
	o, _, _, resetter := setup(t, srv.URL)

	_, err := o.Run(context.Background(), media(), "python_engineer")
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepUpload, se.Step)
	assert.Equal(t, http.StatusRequestEntityTooLarge, backend.StatusOf(err))
	assert.Equal(t, int32(1), resetter.n.Load())
}

type blockingBackend struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) UploadVideo(ctx context.Context, _, _ string, _ io.Reader) (string, error) {
	close(b.entered)
	<-b.release
	return "", context.Canceled
}

func (b *blockingBackend) ProcessInterview(context.Context, backend.ProcessRequest) (*backend.Analysis, error) {
	return nil, nil
}

func (b *blockingBackend) StartConversation(context.Context, *backend.Analysis) (*backend.ConversationSeed, error) {
	return nil, nil
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	fs, err := state.NewFileStore(t.TempDir())
	require.NoError(t, err)
	bb := &blockingBackend{entered: make(chan struct{}), release: make(chan struct{})}
	o := New(bb, interview.NewResults(state.Session(fs, time.Hour)), nil, logger.Discard(), Options{})

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), media(), "")
		done <- err
	}()
	<-bb.entered

	_, err = o.Run(context.Background(), media(), "")
	assert.ErrorIs(t, err, ErrBusy)

	close(bb.release)
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestHandoff_FromCaptureController(t *testing.T) {
	srv, _ := newFakeBackend(t, http.StatusOK)
	o, results, _, _ := setup(t, srv.URL)
	ctx := context.Background()

	c := capture.NewController(nil, logger.Discard())
	c.SetHandoff(o.Handoff("data_analyst"))
	o.SetCapture(c)

	path := t.TempDir() + "/answer.webm"
	webm := []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x86, 0x81, 0x01, 0x42, 0xF7, 0x81, 0x01,
		0x42, 0xF2, 0x81, 0x04, 0x42, 0xF3, 0x81, 0x08, 0x42, 0x82, 0x84, 'w', 'e', 'b', 'm'}
	require.NoError(t, os.WriteFile(path, webm, 0o644))

	_, err := c.SelectFile(ctx, path)
	require.NoError(t, err)

	s, err := results.Canonical(ctx)
	require.NoError(t, err)
	assert.Equal(t, "data_analyst", s.JobType)
	assert.Equal(t, capture.StateStopped, c.State())
}
