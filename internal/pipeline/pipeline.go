// Package pipeline uploads finished media and runs the analysis sequence:
// upload, process, seed the conversation, persist the result.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/MikeSquared-Agency/rehearse/internal/backend"
	"github.com/MikeSquared-Agency/rehearse/internal/capture"
	"github.com/MikeSquared-Agency/rehearse/internal/events"
	"github.com/MikeSquared-Agency/rehearse/internal/interview"
)

// ErrBusy is returned when a run is already in progress.
var ErrBusy = errors.New("interview submission already in progress")

type Step string

const (
	StepUpload   Step = "upload"
	StepProcess  Step = "process"
	StepConverse Step = "converse"
	StepPersist  Step = "persist"
)

// StepError reports the step that aborted a run.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

type Stage string

const (
	StageUploading  Stage = "uploading"
	StageProcessing Stage = "processing"
	StageConversing Stage = "conversing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

var stagePercent = map[Stage]int{
	StageUploading:  0,
	StageProcessing: 30,
	StageConversing: 70,
	StageDone:       100,
	StageFailed:     0,
}

// Progress is emitted in-process and published to NATS.
type Progress struct {
	RunID     string    `json:"run_id"`
	Stage     Stage     `json:"stage"`
	Percent   int       `json:"percent"`
	JobType   string    `json:"job_type"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Backend interface {
	UploadVideo(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
	ProcessInterview(ctx context.Context, req backend.ProcessRequest) (*backend.Analysis, error)
	StartConversation(ctx context.Context, a *backend.Analysis) (*backend.ConversationSeed, error)
}

// Resetter puts the capture controller back into a retryable state.
type Resetter interface {
	Reset()
}

type Options struct {
	FrameInterval int
	DefaultJob    string
}

type Orchestrator struct {
	api       Backend
	results   *interview.Results
	publisher events.Publisher
	logger    logrus.FieldLogger
	opts      Options
	sem       *semaphore.Weighted
	progress  events.Bus[Progress]
	capture   Resetter
}

func New(api Backend, results *interview.Results, publisher events.Publisher, logger logrus.FieldLogger, opts Options) *Orchestrator {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 8
	}
	if opts.DefaultJob == "" {
		opts.DefaultJob = interview.DefaultJobType
	}
	return &Orchestrator{
		api:       api,
		results:   results,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		sem:       semaphore.NewWeighted(1),
	}
}

// SetCapture registers the controller to reset when a run fails.
func (o *Orchestrator) SetCapture(r Resetter) {
	o.capture = r
}

func (o *Orchestrator) OnProgress(fn func(Progress)) events.Subscription {
	return o.progress.Subscribe(fn)
}

// Handoff adapts Run to the capture controller.
func (o *Orchestrator) Handoff(jobType string) capture.Handoff {
	return func(ctx context.Context, m *capture.Media) error {
		_, err := o.Run(ctx, m, jobType)
		return err
	}
}

// Run executes the steps in order. The first failure aborts the rest, resets
// the capture controller and leaves stored results untouched.
func (o *Orchestrator) Run(ctx context.Context, m *capture.Media, jobType string) (*interview.Navigation, error) {
	if !o.sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer o.sem.Release(1)

	if jobType == "" {
		jobType = o.opts.DefaultJob
	}
	runID := uuid.New().String()
	log := o.logger.WithFields(logrus.Fields{"run_id": runID, "job_type": jobType})

	nav, err := o.run(ctx, log, runID, m, jobType)
	if err != nil {
		log.WithError(err).Error("interview pipeline failed")
		o.emit(log, Progress{RunID: runID, Stage: StageFailed, JobType: jobType, Error: err.Error()})
		if o.capture != nil {
			o.capture.Reset()
		}
		return nil, err
	}
	return nav, nil
}

func (o *Orchestrator) run(ctx context.Context, log logrus.FieldLogger, runID string, m *capture.Media, jobType string) (*interview.Navigation, error) {
	o.emit(log, Progress{RunID: runID, Stage: StageUploading, JobType: jobType})
	videoPath, err := o.api.UploadVideo(ctx, m.Filename, m.ContentType, m.Reader())
	if err != nil {
		return nil, &StepError{Step: StepUpload, Err: err}
	}
	log.WithFields(logrus.Fields{"step": StepUpload, "video_path": videoPath, "bytes": m.Size()}).Info("video uploaded")

	o.emit(log, Progress{RunID: runID, Stage: StageProcessing, JobType: jobType})
	analysis, err := o.api.ProcessInterview(ctx, backend.ProcessRequest{
		VideoPath:     videoPath,
		FrameInterval: o.opts.FrameInterval,
		JobType:       jobType,
	})
	if err != nil {
		return nil, &StepError{Step: StepProcess, Err: err}
	}
	log.WithField("step", StepProcess).Info("interview processed")

	o.emit(log, Progress{RunID: runID, Stage: StageConversing, JobType: jobType})
	seed, err := o.api.StartConversation(ctx, analysis)
	if err != nil {
		return nil, &StepError{Step: StepConverse, Err: err}
	}
	log.WithFields(logrus.Fields{"step": StepConverse, "turns": len(seed.ConversationHistory)}).Info("conversation seeded")

	if err := o.results.SaveAll(ctx, sessionFrom(jobType, analysis, seed)); err != nil {
		return nil, &StepError{Step: StepPersist, Err: err}
	}

	o.emit(log, Progress{RunID: runID, Stage: StageDone, JobType: jobType})
	return &interview.Navigation{Target: interview.TargetReport}, nil
}

func sessionFrom(jobType string, a *backend.Analysis, seed *backend.ConversationSeed) *interview.Session {
	lines := make([]json.RawMessage, 0, len(seed.ConversationHistory))
	for _, msg := range seed.ConversationHistory {
		lines = append(lines, interview.ConversationLine(msg))
	}
	frames := make([]string, len(a.SelectedFramePaths))
	for i, p := range a.SelectedFramePaths {
		frames[i] = backend.NormalizePath(p)
	}
	return &interview.Session{
		JobType:                  jobType,
		ImageResult:              a.ImageResult,
		SpeechResult:             a.SpeechResult,
		TextResult:               a.TextResult,
		ModelPredictions:         a.ModelPredictions,
		ConversationAnalysis:     lines,
		Transcript:               a.Transcript,
		ProcessedFramePaths:      frames,
		ProcessedAudioPath:       backend.NormalizePath(a.AudioOutputPath),
		ProcessedTextContentPath: backend.NormalizePath(a.TextOutputPath),
	}
}

func (o *Orchestrator) emit(log logrus.FieldLogger, p Progress) {
	p.Percent = stagePercent[p.Stage]
	p.Timestamp = time.Now().UTC()
	o.progress.Emit(p)
	if err := o.publisher.Publish(events.SubjectPipelineProgress, p); err != nil {
		log.WithError(err).Warn("publish progress")
	}
}
