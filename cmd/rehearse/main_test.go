package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/rehearse/internal/auth"
)

// fakeBackend answers every endpoint the commands use.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	var flakyCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			assert.Equal(t, "Bearer T", r.Header.Get("Authorization"), r.URL.Path)
		}
		switch r.URL.Path {
		case "/auth/login":
			_, _ = w.Write([]byte(`{"message": "welcome back", "token": "T", "user": {"name": "ana"}}`))
		case "/generate_questions":
			_, _ = w.Write([]byte(`{"questions": ["Explain interfaces"], "audio_paths": ["audio/q1.mp3"]}`))
		case "/upload_video/":
			_, _ = w.Write([]byte(`{"file_path": "uploads/recorded_video.webm"}`))
		case "/process_interview/":
			_, _ = w.Write([]byte(`{"image_result": "calm", "speech_result": "clear", "text_result": "relevant", "model_predictions": {"logic": 0.8}}`))
		case "/start_conversation/":
			_, _ = w.Write([]byte(`{"conversation_history": [{"role": "assistant", "content": "Tell me more"}]}`))
		case "/analyze_for_report/":
			_, _ = w.Write([]byte(`{"overall_score": 88, "score_details": {"communication": 90}}`))
		case "/chat_with_ai/":
			_, _ = w.Write([]byte(`{"reply": "Work on pacing."}`))
		case "/audio/q1.mp3":
			_, _ = w.Write([]byte("ID3-narration"))
		case "/api/interviews":
			// Every other "flaky" search fails.
			if r.URL.Query().Get("search") == "flaky" && flakyCalls.Add(1)%2 == 1 {
				http.Error(w, `{"detail": "try again"}`, http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`[{"id": 7, "date": "2024-05-01", "type": "Technical interview", "typeKey": "technical", "position": "Python Engineer", "score": 81.5, "status": "done"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	srv := fakeBackend(t)
	dir := t.TempDir()
	t.Setenv("REHEARSE_BACKEND_URL", srv.URL)
	t.Setenv("REHEARSE_STATE_DIR", dir)
	t.Setenv("REHEARSE_STORE", "file")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("NATS_URL", "")
	t.Setenv("REHEARSE_CATALOG", "")
	return dir
}

func TestProtectedCommandsNeedLogin(t *testing.T) {
	setupEnv(t)

	for _, args := range [][]string{{"whoami"}, {"report"}, {"history"}, {"questions"}} {
		_, err := execute(t, "", args...)
		assert.ErrorIs(t, err, auth.ErrSessionExpired, args[0])
	}
}

func TestLoginWhoamiLogout(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "x\n", "login", "--email", "a@b.com")
	require.NoError(t, err)
	assert.Contains(t, out, "welcome back")
	assert.Contains(t, out, "/ui/dashboard.html")

	out, err = execute(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "ana"`)

	_, err = execute(t, "", "logout")
	require.NoError(t, err)
	_, err = execute(t, "", "whoami")
	assert.ErrorIs(t, err, auth.ErrSessionExpired)
}

func TestLogin_ValidationError(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "", "login", "--email", "", "--password", "x")
	var ve *auth.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestInterviewFlow(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "", "login", "-e", "a@b.com", "-p", "x")
	require.NoError(t, err)

	audioDir := t.TempDir()
	out, err := execute(t, "", "questions", "--type", "technical", "--position", "java_engineer", "--save-audio", audioDir)
	require.NoError(t, err)
	assert.Contains(t, out, "1. Explain interfaces")
	assert.Contains(t, out, "/audio/q1.mp3")
	narration, err := os.ReadFile(filepath.Join(audioDir, "question-1.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "ID3-narration", string(narration))

	video := filepath.Join(t.TempDir(), "answer.webm")
	// EBML header with the webm doctype.
	header := []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x86, 0x81, 0x01, 0x42, 0xF7, 0x81, 0x01,
		0x42, 0xF2, 0x81, 0x04, 0x42, 0xF3, 0x81, 0x08, 0x42, 0x82, 0x84, 'w', 'e', 'b', 'm'}
	require.NoError(t, os.WriteFile(video, header, 0o600))

	out, err = execute(t, "", "submit", video)
	require.NoError(t, err)
	assert.Contains(t, out, "capture: stopped")
	assert.Contains(t, out, "[100%] done")
	assert.Contains(t, out, "reports.html")

	out, err = execute(t, "", "report", "--json")
	require.NoError(t, err)
	var view struct {
		JobType string `json:"job_type"`
		Overall string `json:"overall"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "java_engineer", view.JobType)
	assert.Equal(t, "88", view.Overall)

	out, err = execute(t, "", "chat", "-m", "how was my pacing?")
	require.NoError(t, err)
	assert.Contains(t, out, "AI: Tell me more")
	assert.Contains(t, out, "User: how was my pacing?")
	assert.Contains(t, out, "AI: Work on pacing.")
}

func TestSubmit_RejectsNonVideo(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "", "login", "-e", "a@b.com", "-p", "x")
	require.NoError(t, err)

	notes := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("plain text"), 0o600))
	_, err = execute(t, "", "submit", notes)
	assert.Error(t, err)
}

func TestHistoryCommand(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "", "login", "-e", "a@b.com", "-p", "x")
	require.NoError(t, err)

	out, err := execute(t, "", "history", "--search", "python")
	require.NoError(t, err)
	assert.Contains(t, out, "Python Engineer")
	assert.Contains(t, out, "81.5")
	assert.Contains(t, out, "showing 1-1 of 1")

	_, err = execute(t, "", "history", "--time", "decade")
	assert.Error(t, err)

	_, err = execute(t, "", "history", "--page", "4")
	assert.Error(t, err)
}

func TestHistoryCommand_Retries(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "", "login", "-e", "a@b.com", "-p", "x")
	require.NoError(t, err)

	out, err := execute(t, "", "history", "--search", "flaky", "--retries", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "no interviews found")

	_, err = execute(t, "", "history", "--search", "flaky")
	assert.ErrorContains(t, err, "try again")
}
