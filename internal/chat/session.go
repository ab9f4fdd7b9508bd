// Package chat holds the follow-up conversation about an interview report.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/MikeSquared-Agency/rehearse/internal/backend"
	"github.com/MikeSquared-Agency/rehearse/internal/events"
)

// ErrBusy is returned while a message is waiting for its reply.
var ErrBusy = errors.New("waiting for the previous reply")

const (
	SpeakerUser    = "User"
	SpeakerAI      = "AI"
	SpeakerUnknown = "Unknown"

	Welcome = "Hello! I am your AI interview assistant. Ask me anything about this report."
)

// Line is one rendered entry in the chat thread.
type Line struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type Backend interface {
	ChatWithAI(ctx context.Context, message string, history []backend.Message) (string, error)
}

// Session owns the conversation history. History only grows; failed sends
// keep the user turn.
type Session struct {
	api    Backend
	logger logrus.FieldLogger
	sem    *semaphore.Weighted
	bus    events.Bus[Line]

	mu      sync.Mutex
	history []backend.Message
	thread  []Line
}

func NewSession(api Backend, logger logrus.FieldLogger) *Session {
	return &Session{
		api:    api,
		logger: logger,
		sem:    semaphore.NewWeighted(1),
	}
}

// OnMessage registers fn for every line added to the thread.
func (s *Session) OnMessage(fn func(Line)) events.Subscription {
	return s.bus.Subscribe(fn)
}

// History returns a copy of the conversation sent to the backend.
func (s *Session) History() []backend.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Thread returns a copy of every rendered line, including apologies and the
// welcome message.
func (s *Session) Thread() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Line, len(s.thread))
	copy(out, s.thread)
	return out
}

// SeedFromAnalysis replaces the history with the turns recorded during the
// interview. Unrecognized items are skipped. With nothing to seed, a welcome
// line is rendered but not added to the history.
func (s *Session) SeedFromAnalysis(items []json.RawMessage) {
	s.mu.Lock()
	s.history = nil
	s.thread = nil
	s.mu.Unlock()

	seeded := 0
	for _, raw := range items {
		line, msg, ok := parseItem(raw)
		if !ok {
			s.logger.WithField("item", string(raw)).Debug("skipping conversation item")
			continue
		}
		s.mu.Lock()
		s.history = append(s.history, msg)
		s.mu.Unlock()
		s.render(line)
		seeded++
	}
	if seeded == 0 {
		s.render(Line{Speaker: SpeakerAI, Text: Welcome})
	}
}

// Send posts text with the full history and appends the reply. Blank input is
// ignored. On failure an apology is rendered and the error returned.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !s.sem.TryAcquire(1) {
		return ErrBusy
	}
	defer s.sem.Release(1)

	s.mu.Lock()
	s.history = append(s.history, backend.Message{Role: backend.RoleUser, Content: text})
	history := make([]backend.Message, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()
	s.render(Line{Speaker: SpeakerUser, Text: text})

	reply, err := s.api.ChatWithAI(ctx, text, history)
	if err != nil {
		s.logger.WithError(err).Warn("chat request failed")
		s.render(Line{
			Speaker: SpeakerAI,
			Text:    fmt.Sprintf("Sorry, the conversation with the AI ran into a problem. Please try again later. (%s)", apologyDetail(err)),
		})
		return fmt.Errorf("chat: %w", err)
	}

	s.mu.Lock()
	s.history = append(s.history, backend.Message{Role: backend.RoleAssistant, Content: reply})
	s.mu.Unlock()
	s.render(Line{Speaker: SpeakerAI, Text: reply})
	return nil
}

func (s *Session) render(l Line) {
	s.mu.Lock()
	s.thread = append(s.thread, l)
	s.mu.Unlock()
	s.bus.Emit(l)
}

func apologyDetail(err error) string {
	if msg := backend.MessageOf(err); msg != "" {
		return msg
	}
	return err.Error()
}

var bracketRole = regexp.MustCompile(`(?s)^\[([^\]]+)\]:\s*(.*)$`)

// parseItem reads one conversation_analysis entry: a {speaker, text} object,
// a "[role]: content" string, or an "ai:"/"user:" prefixed string. Any other
// string is an assistant turn with the whole text.
func parseItem(raw json.RawMessage) (Line, backend.Message, bool) {
	var obj struct {
		Speaker string  `json:"speaker"`
		Text    *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Speaker != "" && obj.Text != nil {
		return Line{Speaker: obj.Speaker, Text: *obj.Text},
			backend.Message{Role: roleOf(obj.Speaker), Content: *obj.Text}, true
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return Line{}, backend.Message{}, false
	}

	speaker, text := SpeakerUnknown, str
	lower := strings.ToLower(str)
	switch {
	case bracketRole.MatchString(str):
		m := bracketRole.FindStringSubmatch(str)
		speaker, text = SpeakerAI, m[2]
		if roleOf(m[1]) == backend.RoleUser {
			speaker = SpeakerUser
		}
	case strings.HasPrefix(lower, "ai:"):
		speaker, text = SpeakerAI, strings.TrimSpace(str[3:])
	case strings.HasPrefix(lower, "user:"):
		speaker, text = SpeakerUser, strings.TrimSpace(str[5:])
	}
	return Line{Speaker: speaker, Text: text},
		backend.Message{Role: roleOf(speaker), Content: text}, true
}

func roleOf(speaker string) string {
	if strings.EqualFold(strings.TrimSpace(speaker), backend.RoleUser) {
		return backend.RoleUser
	}
	return backend.RoleAssistant
}
