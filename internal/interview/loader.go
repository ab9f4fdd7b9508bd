package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/MikeSquared-Agency/rehearse/internal/backend"
)

// ErrBusy is returned when a load is already in flight.
var ErrBusy = errors.New("question load already in progress")

type Question struct {
	Number    int    `json:"number"`
	Text      string `json:"text"`
	AudioPath string `json:"audio_path"`
}

type QuestionSource interface {
	GenerateQuestions(ctx context.Context, interviewType, jobType string) (*backend.QuestionSet, error)
	ResolveURL(ref string) string
}

// Loader fetches a question set and keeps the last successful one.
type Loader struct {
	src     QuestionSource
	results *Results
	logger  logrus.FieldLogger
	sem     *semaphore.Weighted

	mu        sync.RWMutex
	questions []Question
}

func NewLoader(src QuestionSource, results *Results, logger logrus.FieldLogger) *Loader {
	return &Loader{
		src:     src,
		results: results,
		logger:  logger,
		sem:     semaphore.NewWeighted(1),
	}
}

// Load records positionType as the job type, then asks the backend for
// questions. On failure the previously loaded questions are kept.
func (l *Loader) Load(ctx context.Context, interviewType, positionType string) ([]Question, error) {
	if !l.sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer l.sem.Release(1)

	if err := l.results.SetJobType(ctx, positionType); err != nil {
		return nil, err
	}

	set, err := l.src.GenerateQuestions(ctx, interviewType, positionType)
	if err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"interview_type": interviewType,
			"job_type":       positionType,
		}).Warn("generate questions failed")
		return nil, fmt.Errorf("generate questions: %w", err)
	}

	qs := make([]Question, len(set.Questions))
	for i, text := range set.Questions {
		qs[i] = Question{
			Number:    i + 1,
			Text:      text,
			AudioPath: backend.NormalizePath(set.AudioPaths[i]),
		}
	}

	l.mu.Lock()
	l.questions = qs
	l.mu.Unlock()

	l.logger.WithField("count", len(qs)).Info("questions loaded")
	return qs, nil
}

// Questions returns the last successfully loaded set.
func (l *Loader) Questions() []Question {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Question, len(l.questions))
	copy(out, l.questions)
	return out
}

// AudioURL resolves a question's narration against the backend.
func (l *Loader) AudioURL(q Question) string {
	return l.src.ResolveURL(q.AudioPath)
}
