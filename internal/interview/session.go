// Package interview holds the canonical interview result and the question
// loader that opens a practice run.
package interview

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MikeSquared-Agency/rehearse/internal/backend"
	"github.com/MikeSquared-Agency/rehearse/internal/state"
)

// DefaultJobType is used when no position was chosen.
const DefaultJobType = "python_engineer"

// Session is the interview result shared by the pipeline, the report and the
// chat. The analysis artifacts are opaque JSON.
type Session struct {
	JobType          string             `json:"job_type,omitempty"`
	ImageResult      json.RawMessage    `json:"image_result,omitempty"`
	SpeechResult     json.RawMessage    `json:"speech_result,omitempty"`
	TextResult       json.RawMessage    `json:"text_result,omitempty"`
	ModelPredictions map[string]float64 `json:"model_predictions,omitempty"`

	// Either "[role]: content" strings or {speaker, text} objects.
	ConversationAnalysis []json.RawMessage `json:"conversation_analysis,omitempty"`

	OverallScore *float64                   `json:"overall_score,omitempty"`
	ScoreDetails map[string]float64         `json:"score_details,omitempty"`
	AIAnalysis   map[string]json.RawMessage `json:"ai_analysis,omitempty"`

	Transcript               string   `json:"transcript,omitempty"`
	ProcessedFramePaths      []string `json:"processed_frame_paths,omitempty"`
	ProcessedAudioPath       string   `json:"processed_audio_path,omitempty"`
	ProcessedTextContentPath string   `json:"processed_text_content_path,omitempty"`
	RadarChartPath           string   `json:"radar_chart_path,omitempty"`
}

// HasArtifacts reports whether all four analysis artifacts are present.
func (s *Session) HasArtifacts() bool {
	return !backend.ArtifactEmpty(s.ImageResult) &&
		!backend.ArtifactEmpty(s.SpeechResult) &&
		!backend.ArtifactEmpty(s.TextResult) &&
		len(s.ModelPredictions) > 0
}

// Merge overlays fields onto s. A present field replaces the old value
// whole; map fields are not merged key by key.
func (s *Session) Merge(fields map[string]json.RawMessage) error {
	if len(fields) == 0 {
		return nil
	}
	for key := range fields {
		switch key {
		case "model_predictions":
			s.ModelPredictions = nil
		case "score_details":
			s.ScoreDetails = nil
		case "ai_analysis":
			s.AIAnalysis = nil
		case "overall_score":
			s.OverallScore = nil
		}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	if err := json.Unmarshal(b, s); err != nil {
		return fmt.Errorf("merge fields: %w", err)
	}
	return nil
}

// ConversationLine formats a turn the way it is stored in
// conversation_analysis.
func ConversationLine(m backend.Message) json.RawMessage {
	b, _ := json.Marshal(fmt.Sprintf("[%s]: %s", m.Role, m.Content))
	return b
}

// Navigation names the page the user should land on next.
type Navigation struct {
	Target string `json:"target"`
}

const (
	TargetEntry     = "/ui/index.html"
	TargetDashboard = "/ui/dashboard.html"
	TargetReport    = "reports.html"
	TargetSignIn    = "index.html"
)

// Results reads and writes the canonical result and the raw snapshot.
type Results struct {
	ns *state.Namespace
}

func NewResults(ns *state.Namespace) *Results {
	return &Results{ns: ns}
}

// Canonical returns the canonical result, or an empty one when nothing is stored.
func (r *Results) Canonical(ctx context.Context) (*Session, error) {
	var s Session
	if _, err := r.ns.Get(ctx, state.KeyInterviewResults, &s); err != nil {
		return nil, fmt.Errorf("read %s: %w", state.KeyInterviewResults, err)
	}
	return &s, nil
}

// Snapshot returns the raw analysis snapshot written by the pipeline.
func (r *Results) Snapshot(ctx context.Context) (*Session, bool, error) {
	var s Session
	hit, err := r.ns.Get(ctx, state.KeyStoredDataForAnalysis, &s)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", state.KeyStoredDataForAnalysis, err)
	}
	return &s, hit, nil
}

func (r *Results) SaveCanonical(ctx context.Context, s *Session) error {
	if err := r.ns.Set(ctx, state.KeyInterviewResults, s); err != nil {
		return fmt.Errorf("write %s: %w", state.KeyInterviewResults, err)
	}
	return nil
}

// SaveAll writes s as the raw snapshot and then as the canonical result, so
// a failed write never leaves a canonical result behind.
func (r *Results) SaveAll(ctx context.Context, s *Session) error {
	if err := r.ns.Set(ctx, state.KeyStoredDataForAnalysis, s); err != nil {
		return fmt.Errorf("write %s: %w", state.KeyStoredDataForAnalysis, err)
	}
	return r.SaveCanonical(ctx, s)
}

// SetJobType records the chosen position on the canonical result.
func (r *Results) SetJobType(ctx context.Context, jobType string) error {
	s, err := r.Canonical(ctx)
	if err != nil {
		return err
	}
	s.JobType = jobType
	return r.SaveCanonical(ctx, s)
}
