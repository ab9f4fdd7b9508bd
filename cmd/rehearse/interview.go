package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/rehearse/internal/capture"
	"github.com/MikeSquared-Agency/rehearse/internal/interview"
	"github.com/MikeSquared-Agency/rehearse/internal/pipeline"
)

var (
	questionsType      string
	questionsPosition  string
	questionsSaveAudio string

	recordPosition string
	recordDuration time.Duration
	recordDevice   string

	submitPosition string
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Generate interview questions for a type and position",
	RunE:  runQuestions,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record an answer with the camera and submit it for analysis",
	Long:  "Opens the capture device, records until Enter is pressed (or --duration elapses) and runs upload, analysis and the conversation seed.",
	RunE:  runRecord,
}

var submitCmd = &cobra.Command{
	Use:   "submit <video-file>",
	Short: "Submit an existing video file for analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func init() {
	questionsCmd.Flags().StringVarP(&questionsType, "type", "t", "technical", "Interview type")
	questionsCmd.Flags().StringVarP(&questionsPosition, "position", "p", "", "Position type (defaults to REHEARSE_DEFAULT_JOB)")
	questionsCmd.Flags().StringVar(&questionsSaveAudio, "save-audio", "", "Download each question's narration into this directory")

	recordCmd.Flags().StringVarP(&recordPosition, "position", "p", "", "Position type (defaults to the one chosen for questions)")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Stop automatically after this long")
	recordCmd.Flags().StringVar(&recordDevice, "device", "", "Video device (default /dev/video0)")

	submitCmd.Flags().StringVarP(&submitPosition, "position", "p", "", "Position type (defaults to the one chosen for questions)")

	rootCmd.AddCommand(questionsCmd, recordCmd, submitCmd)
}

func runQuestions(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		ctx := cmd.Context()
		if _, err := a.requireSession(ctx); err != nil {
			return err
		}
		position := questionsPosition
		if position == "" {
			position = a.cfg.DefaultJob
		}
		if !a.catalog.HasInterviewType(questionsType) {
			return fmt.Errorf("unknown interview type %q", questionsType)
		}
		if !a.catalog.HasPosition(position) {
			return fmt.Errorf("unknown position %q", position)
		}

		loader := interview.NewLoader(a.client, a.results, a.log)
		qs, err := loader.Load(ctx, questionsType, position)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s questions for %s\n\n", questionsType, a.catalog.PositionLabel(position))
		for _, q := range qs {
			fmt.Fprintf(out, "%d. %s\n", q.Number, q.Text)
			if q.AudioPath == "" {
				continue
			}
			fmt.Fprintf(out, "   audio: %s\n", loader.AudioURL(q))
			if questionsSaveAudio != "" {
				path, err := saveNarration(ctx, a, q, questionsSaveAudio)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "   saved: %s\n", path)
			}
		}
		return nil
	})
}

func saveNarration(ctx context.Context, a *app, q interview.Question, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("question-%d%s", q.Number, filepath.Ext(q.AudioPath)))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := a.client.Download(ctx, q.AudioPath, f); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// jobTypeFor picks the flag value, then the position stored when questions
// were loaded, then the configured default.
func jobTypeFor(ctx context.Context, a *app, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	canonical, err := a.results.Canonical(ctx)
	if err != nil {
		return "", err
	}
	if canonical.JobType != "" {
		return canonical.JobType, nil
	}
	return a.cfg.DefaultJob, nil
}

// newSubmission wires capture to the pipeline and prints progress.
func newSubmission(a *app, out io.Writer, dev capture.Device, jobType string) (*capture.Controller, *pipeline.Orchestrator, func()) {
	publisher, closePublisher := a.publisher()
	orch := pipeline.New(a.client, a.results, publisher, a.log, pipeline.Options{
		FrameInterval: a.cfg.FrameInterval,
		DefaultJob:    a.cfg.DefaultJob,
	})
	ctrl := capture.NewController(dev, a.log)
	orch.SetCapture(ctrl)
	ctrl.SetHandoff(orch.Handoff(jobType))

	stateSub := ctrl.OnStateChange(func(st capture.State) {
		fmt.Fprintf(out, "capture: %s\n", st)
	})
	sub := orch.OnProgress(func(p pipeline.Progress) {
		if p.Stage == pipeline.StageFailed {
			fmt.Fprintf(out, "[failed] %s\n", p.Error)
			return
		}
		fmt.Fprintf(out, "[%3d%%] %s\n", p.Percent, p.Stage)
	})
	return ctrl, orch, func() {
		sub.Unsubscribe()
		stateSub.Unsubscribe()
		closePublisher()
	}
}

func runRecord(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if _, err := a.requireSession(ctx); err != nil {
			return err
		}
		jobType, err := jobTypeFor(ctx, a, recordPosition)
		if err != nil {
			return err
		}

		dev := capture.NewFFmpegDevice(a.cfg.CaptureCmd)
		if recordDevice != "" {
			dev.VideoDevice = recordDevice
		}
		out := cmd.OutOrStdout()
		ctrl, _, done := newSubmission(a, out, dev, jobType)
		defer done()

		if err := ctrl.Preview(ctx); err != nil {
			return err
		}
		if err := ctrl.Start(); err != nil {
			return err
		}
		if recordDuration > 0 {
			fmt.Fprintf(out, "recording for %s...\n", recordDuration)
			select {
			case <-time.After(recordDuration):
			case <-ctx.Done():
			}
		} else {
			fmt.Fprintln(out, "recording... press Enter to stop")
			waitForEnter(ctx, cmd.InOrStdin())
		}

		// The pipeline still runs if the recording was interrupted.
		m, err := ctrl.Stop(context.WithoutCancel(ctx))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "submitted %d bytes, next: %s\n", m.Size(), interview.TargetReport)
		return nil
	})
}

func waitForEnter(ctx context.Context, in io.Reader) {
	done := make(chan struct{})
	go func() {
		_, _ = readLine(in, nil, "")
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func runSubmit(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		ctx := cmd.Context()
		if _, err := a.requireSession(ctx); err != nil {
			return err
		}
		jobType, err := jobTypeFor(ctx, a, submitPosition)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		ctrl, _, done := newSubmission(a, out, capture.NewFFmpegDevice(a.cfg.CaptureCmd), jobType)
		defer done()

		m, err := ctrl.SelectFile(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "submitted %s (%d bytes), next: %s\n", m.Filename, m.Size(), interview.TargetReport)
		return nil
	})
}
