package backend

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Message is one conversation turn as the backend exchanges it.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type GenerateQuestionsRequest struct {
	InterviewType string `json:"interview_type"`
	JobType       string `json:"job_type"`
}

type QuestionSet struct {
	Questions  []string `json:"questions"`
	AudioPaths []string `json:"audio_paths"`
}

type UploadResult struct {
	Message  string `json:"message,omitempty"`
	FilePath string `json:"file_path"`
}

type ProcessRequest struct {
	VideoPath     string `json:"video_path"`
	FrameInterval int    `json:"frame_interval"`
	JobType       string `json:"job_type"`
}

// Analysis holds the multimodal analysis artifacts. The three results are
// kept as raw JSON because the backend treats them as opaque.
type Analysis struct {
	ImageResult      json.RawMessage    `json:"image_result"`
	SpeechResult     json.RawMessage    `json:"speech_result"`
	TextResult       json.RawMessage    `json:"text_result"`
	ModelPredictions map[string]float64 `json:"model_predictions"`

	Transcript         string   `json:"transcript,omitempty"`
	SelectedFramePaths []string `json:"selected_frame_paths,omitempty"`
	AudioOutputPath    string   `json:"audio_output_path,omitempty"`
	TextOutputPath     string   `json:"text_output_path,omitempty"`
}

type StartConversationRequest struct {
	ImageResult         json.RawMessage    `json:"image_result"`
	SpeechResult        json.RawMessage    `json:"speech_result"`
	TextResult          json.RawMessage    `json:"text_result"`
	ModelPredictions    map[string]float64 `json:"model_predictions"`
	ConversationHistory []Message          `json:"conversation_history"`
}

type ConversationSeed struct {
	InitialResponse     string    `json:"initial_response,omitempty"`
	ConversationHistory []Message `json:"conversation_history"`
}

type ChatRequest struct {
	Message             string    `json:"message"`
	ConversationHistory []Message `json:"conversation_history"`
}

type ChatReply struct {
	Reply string `json:"reply"`
}

// ReportRequest is the normalized result subset sent to /analyze_for_report/
// and /generate_report/.
type ReportRequest struct {
	JobType                  string             `json:"job_type"`
	ImageResult              json.RawMessage    `json:"image_result"`
	SpeechResult             json.RawMessage    `json:"speech_result"`
	TextResult               json.RawMessage    `json:"text_result"`
	ConversationHistory      []json.RawMessage  `json:"conversation_history"`
	ModelPredictions         map[string]float64 `json:"model_predictions"`
	ProcessedFramePaths      []string           `json:"processed_frame_paths"`
	ProcessedAudioPath       string             `json:"processed_audio_path"`
	ProcessedTextContentPath string             `json:"processed_text_content_path"`
}

type GeneratedReport struct {
	PDFFilePath    string `json:"pdf_file_path"`
	RadarChartPath string `json:"radar_chart_path"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message    string          `json:"message"`
	User       json.RawMessage `json:"user"`
	Token      string          `json:"token"`
	Redirect   string          `json:"redirect,omitempty"`
	Expiration int64           `json:"expiration,omitempty"`
}

type RegisterRequest struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	ConfirmPassword  string `json:"confirm_password"`
	VerificationCode string `json:"verification_code"`
}

type RegisterResponse struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

type VerificationResponse struct {
	Message  string `json:"message"`
	Cooldown int    `json:"cooldown,omitempty"`
}

// RecordID accepts both numeric and string identifiers.
type RecordID string

func (id *RecordID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = RecordID(s)
		return nil
	}
	*id = RecordID(string(b))
	return nil
}

type HistoryRecord struct {
	ID       RecordID `json:"id"`
	Date     string   `json:"date"`
	Type     string   `json:"type"`
	TypeKey  string   `json:"typeKey"`
	Position string   `json:"position"`
	Score    *float64 `json:"score,omitempty"`
	Status   string   `json:"status"`
}

// HistoryQuery carries the server-side filter parameters of /api/interviews.
type HistoryQuery struct {
	Type      string
	StartDate string
	EndDate   string
	Search    string
}

// ArtifactEmpty reports whether an opaque artifact carries no information:
// absent, null, "", {} or [].
func ArtifactEmpty(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	switch s {
	case "", "null", `""`, "{}", "[]":
		return true
	}
	return false
}

// ArtifactText renders an artifact for display: JSON strings are unquoted,
// anything else is indented JSON.
func ArtifactText(raw json.RawMessage) string {
	if ArtifactEmpty(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
