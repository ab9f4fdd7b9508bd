package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// GenerateQuestions asks for questions and their narration audio.
func (c *Client) GenerateQuestions(ctx context.Context, interviewType, jobType string) (*QuestionSet, error) {
	const op = "Client.GenerateQuestions"

	var out QuestionSet
	err := c.postJSON(ctx, op, "/generate_questions", GenerateQuestionsRequest{
		InterviewType: interviewType,
		JobType:       jobType,
	}, schemaQuestions, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Questions) != len(out.AudioPaths) {
		return nil, transportErr(op, "malformed response",
			fmt.Errorf("%d questions but %d audio paths", len(out.Questions), len(out.AudioPaths)))
	}
	return &out, nil
}

// UploadVideo sends the media as multipart field "file" and returns the
// server-side storage path with separators normalized.
func (c *Client) UploadVideo(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	const op = "Client.UploadVideo"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", transportErr(op, "create multipart part", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", transportErr(op, "write multipart body", err)
	}
	if err := mw.Close(); err != nil {
		return "", transportErr(op, "close multipart body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload_video/", &buf)
	if err != nil {
		return "", transportErr(op, "create request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResult
	if err := c.do(req, op, schemaUpload, &out); err != nil {
		return "", err
	}
	return NormalizePath(out.FilePath), nil
}

// ProcessInterview triggers server-side multimodal analysis of an uploaded video.
func (c *Client) ProcessInterview(ctx context.Context, req ProcessRequest) (*Analysis, error) {
	const op = "Client.ProcessInterview"

	var out Analysis
	if err := c.postJSON(ctx, op, "/process_interview/", req, schemaAnalysis, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartConversation seeds the conversation from the analysis artifacts.
func (c *Client) StartConversation(ctx context.Context, a *Analysis) (*ConversationSeed, error) {
	const op = "Client.StartConversation"

	predictions := a.ModelPredictions
	if predictions == nil {
		predictions = map[string]float64{}
	}
	var out ConversationSeed
	err := c.postJSON(ctx, op, "/start_conversation/", StartConversationRequest{
		ImageResult:         a.ImageResult,
		SpeechResult:        a.SpeechResult,
		TextResult:          a.TextResult,
		ModelPredictions:    predictions,
		ConversationHistory: []Message{},
	}, schemaConversation, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatWithAI sends the message and the full history and returns the reply.
func (c *Client) ChatWithAI(ctx context.Context, message string, history []Message) (string, error) {
	const op = "Client.ChatWithAI"

	if history == nil {
		history = []Message{}
	}
	var out ChatReply
	err := c.postJSON(ctx, op, "/chat_with_ai/", ChatRequest{
		Message:             message,
		ConversationHistory: history,
	}, schemaChat, &out)
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

// AnalyzeForReport returns the full report object. It is kept as raw fields
// so callers can merge everything the backend returned.
func (c *Client) AnalyzeForReport(ctx context.Context, req ReportRequest) (map[string]json.RawMessage, error) {
	const op = "Client.AnalyzeForReport"

	var out map[string]json.RawMessage
	if err := c.postJSON(ctx, op, "/analyze_for_report/", req, schemaReport, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateReport asks for the PDF report and radar chart.
func (c *Client) GenerateReport(ctx context.Context, req ReportRequest) (*GeneratedReport, error) {
	const op = "Client.GenerateReport"

	var out GeneratedReport
	if err := c.postJSON(ctx, op, "/generate_report/", req, schemaGeneratedReport, &out); err != nil {
		return nil, err
	}
	out.PDFFilePath = NormalizePath(out.PDFFilePath)
	out.RadarChartPath = NormalizePath(out.RadarChartPath)
	return &out, nil
}
