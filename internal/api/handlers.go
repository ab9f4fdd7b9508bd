package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/rehearse/internal/backend"
	"github.com/MikeSquared-Agency/rehearse/internal/chat"
	"github.com/MikeSquared-Agency/rehearse/internal/history"
	"github.com/MikeSquared-Agency/rehearse/internal/interview"
	"github.com/MikeSquared-Agency/rehearse/internal/report"
)

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Thread []chat.Line `json:"thread"`
	Error  string      `json:"error,omitempty"`
}

type HistoryResponse = history.View

type QuestionView struct {
	interview.Question
	AudioURL string `json:"audio_url,omitempty"`
}

// questions lists the catalog. With interview_type and position set, it also
// loads a question set for them.
func (s *Server) questions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	interviewType, position := q.Get("interview_type"), q.Get("position")
	if interviewType == "" && position == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"interview_types": s.deps.Catalog.InterviewTypes,
			"positions":       s.deps.Catalog.Positions,
			"questions":       s.questionViews(s.deps.Questions.Questions()),
		})
		return
	}
	if !s.deps.Catalog.HasInterviewType(interviewType) {
		writeError(w, http.StatusBadRequest, "unknown interview_type "+strconv.Quote(interviewType))
		return
	}
	if !s.deps.Catalog.HasPosition(position) {
		writeError(w, http.StatusBadRequest, "unknown position "+strconv.Quote(position))
		return
	}
	if _, err := s.deps.Gate.Current(r.Context()); err != nil {
		s.gateError(w, err)
		return
	}

	qs, err := s.deps.Questions.Load(r.Context(), interviewType, position)
	if err != nil {
		s.failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": s.questionViews(qs)})
}

func (s *Server) questionViews(qs []interview.Question) []QuestionView {
	out := make([]QuestionView, 0, len(qs))
	for _, item := range qs {
		v := QuestionView{Question: item}
		if item.AudioPath != "" {
			v.AudioURL = s.deps.Questions.AudioURL(item)
		}
		out = append(out, v)
	}
	return out
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Reports.View(r.Context())
	if err != nil {
		s.failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// seedChat fills the chat from the stored interview. The chat is reseeded
// whenever the stored interview changes, so it never carries turns from an
// earlier interview.
func (s *Server) seedChat(r *http.Request) error {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	result, err := s.deps.Reports.Load(r.Context())
	if err != nil {
		return err
	}
	key, err := interviewKey(result)
	if err != nil {
		return err
	}
	if key == s.seededAt {
		return nil
	}
	s.deps.Chat.SeedFromAnalysis(result.ConversationAnalysis)
	s.seededAt = key
	s.deps.Logger.WithField("interview", key[:12]).Debug("chat seeded")
	return nil
}

// interviewKey identifies an interview by its conversation and transcript.
func interviewKey(result *interview.Session) (string, error) {
	b, err := json.Marshal(struct {
		Conversation []json.RawMessage `json:"c"`
		Transcript   string            `json:"t"`
	}{result.ConversationAnalysis, result.Transcript})
	if err != nil {
		return "", fmt.Errorf("hash interview: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (s *Server) chatThread(w http.ResponseWriter, r *http.Request) {
	if err := s.seedChat(r); err != nil {
		s.failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Thread: s.deps.Chat.Thread()})
}

func (s *Server) chatSend(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.seedChat(r); err != nil {
		s.failure(w, err)
		return
	}

	err := s.deps.Chat.Send(r.Context(), req.Message)
	switch {
	case errors.Is(err, chat.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeJSON(w, http.StatusBadGateway, ChatResponse{Thread: s.deps.Chat.Thread(), Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, ChatResponse{Thread: s.deps.Chat.Thread()})
	}
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window, err := history.ParseWindow(q.Get("time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := 1
	if p := q.Get("page"); p != "" {
		page, err = strconv.Atoi(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid page "+strconv.Quote(p))
			return
		}
	}

	f := history.Filter{Search: q.Get("search"), Type: q.Get("type"), Window: window}
	v, err := s.deps.History.Query(r.Context(), f, page)
	if err != nil {
		s.failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// historyPage pages through the records already fetched.
func (s *Server) historyPage(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "page")
	page, err := strconv.Atoi(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page "+strconv.Quote(p))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.History.Snapshot(page))
}

func (s *Server) historyRetry(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.History.Retry(r.Context())
	if err != nil {
		s.failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) historyReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.History.Reset())
}

// failure maps component errors onto status codes.
func (s *Server) failure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, history.ErrBusy), errors.Is(err, interview.ErrBusy), errors.Is(err, report.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case backend.IsRejected(err), backend.IsTransport(err):
		s.deps.Logger.WithError(err).Warn("backend request failed")
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.deps.Logger.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}
