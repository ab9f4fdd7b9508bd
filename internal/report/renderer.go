// Package report loads the interview result (recovering it from the backend
// when only the raw analysis is stored), projects it for display and
// downloads the generated PDF report.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/MikeSquared-Agency/rehearse/internal/backend"
	"github.com/MikeSquared-Agency/rehearse/internal/catalog"
	"github.com/MikeSquared-Agency/rehearse/internal/interview"
)

var (
	ErrBusy = errors.New("report download already in progress")
	// ErrNoResults means there is nothing to build a report from.
	ErrNoResults = errors.New("no interview results found, cannot generate a report")
)

type Backend interface {
	AnalyzeForReport(ctx context.Context, req backend.ReportRequest) (map[string]json.RawMessage, error)
	GenerateReport(ctx context.Context, req backend.ReportRequest) (*backend.GeneratedReport, error)
	Download(ctx context.Context, ref string, w io.Writer) (int64, error)
	ResolveURL(ref string) string
}

type Renderer struct {
	api     Backend
	results *interview.Results
	catalog *catalog.Catalog
	logger  logrus.FieldLogger
	sem     *semaphore.Weighted
}

func NewRenderer(api Backend, results *interview.Results, cat *catalog.Catalog, logger logrus.FieldLogger) *Renderer {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Renderer{
		api:     api,
		results: results,
		catalog: cat,
		logger:  logger,
		sem:     semaphore.NewWeighted(1),
	}
}

// Load returns the canonical result. When it has no overall score and the raw
// snapshot holds all four analysis artifacts, the full report is requested
// once, merged over the canonical result and stored. A failed recovery is
// logged and the partial result returned.
func (r *Renderer) Load(ctx context.Context) (*interview.Session, error) {
	canonical, err := r.results.Canonical(ctx)
	if err != nil {
		return nil, err
	}
	if canonical.OverallScore != nil {
		return canonical, nil
	}

	snap, hit, err := r.results.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !hit || !snap.HasArtifacts() {
		r.logger.Debug("no complete analysis snapshot, rendering what is stored")
		return canonical, nil
	}

	jobType := canonical.JobType
	if jobType == "" {
		jobType = snap.JobType
	}
	if jobType == "" {
		jobType = interview.DefaultJobType
	}

	req := requestFrom(snap, jobType)
	full, err := r.api.AnalyzeForReport(ctx, req)
	if err != nil {
		r.logger.WithError(err).Warn("report recovery failed")
		return canonical, nil
	}
	if err := canonical.Merge(full); err != nil {
		r.logger.WithError(err).Warn("merge recovered report")
		return canonical, nil
	}
	if err := r.results.SaveCanonical(ctx, canonical); err != nil {
		return nil, err
	}
	r.logger.WithField("job_type", jobType).Info("report recovered from backend")
	return canonical, nil
}

// View loads and projects the current result.
func (r *Renderer) View(ctx context.Context) (View, error) {
	s, err := r.Load(ctx)
	if err != nil {
		return View{}, err
	}
	return Project(s, r.catalog, r.api.ResolveURL), nil
}

// requestFrom normalizes a session into the report request; missing fields
// become empty values rather than nulls.
func requestFrom(s *interview.Session, jobType string) backend.ReportRequest {
	req := backend.ReportRequest{
		JobType:                  jobType,
		ImageResult:              orEmptyString(s.ImageResult),
		SpeechResult:             orEmptyString(s.SpeechResult),
		TextResult:               orEmptyString(s.TextResult),
		ConversationHistory:      s.ConversationAnalysis,
		ModelPredictions:         s.ModelPredictions,
		ProcessedFramePaths:      s.ProcessedFramePaths,
		ProcessedAudioPath:       s.ProcessedAudioPath,
		ProcessedTextContentPath: s.ProcessedTextContentPath,
	}
	if req.ConversationHistory == nil {
		req.ConversationHistory = []json.RawMessage{}
	}
	if req.ModelPredictions == nil {
		req.ModelPredictions = map[string]float64{}
	}
	if req.ProcessedFramePaths == nil {
		req.ProcessedFramePaths = []string{}
	}
	return req
}

func orEmptyString(raw json.RawMessage) json.RawMessage {
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		return json.RawMessage(`""`)
	}
	return raw
}

// Files are the local copies written by Download.
type Files struct {
	PDF        string `json:"pdf"`
	RadarChart string `json:"radar_chart,omitempty"`
}

// Download asks the backend for the PDF report and saves it into dir as
// interview-report_<job type>.pdf, plus the radar chart when one is returned.
// On failure nothing is stored.
func (r *Renderer) Download(ctx context.Context, dir string) (*Files, error) {
	if !r.sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer r.sem.Release(1)

	canonical, err := r.results.Canonical(ctx)
	if err != nil {
		return nil, err
	}
	if isEmpty(canonical) {
		return nil, ErrNoResults
	}

	jobType := canonical.JobType
	if jobType == "" {
		jobType = UnknownPosition
	}
	gen, err := r.api.GenerateReport(ctx, requestFrom(canonical, jobType))
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}
	if gen.PDFFilePath == "" {
		return nil, fmt.Errorf("generate report: backend returned no pdf path")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	files := &Files{PDF: filepath.Join(dir, "interview-report_"+safeName(jobType)+".pdf")}
	if err := r.fetch(ctx, gen.PDFFilePath, files.PDF); err != nil {
		return nil, err
	}

	if gen.RadarChartPath != "" {
		local := filepath.Join(dir, safeName(filepath.Base(gen.RadarChartPath)))
		if err := r.fetch(ctx, gen.RadarChartPath, local); err != nil {
			r.logger.WithError(err).Warn("radar chart download failed")
		} else {
			files.RadarChart = local
		}
		canonical.RadarChartPath = gen.RadarChartPath
		if err := r.results.SaveCanonical(ctx, canonical); err != nil {
			r.logger.WithError(err).Warn("record radar chart path")
		}
	}

	r.logger.WithFields(logrus.Fields{"pdf": files.PDF, "radar_chart": files.RadarChart}).Info("report downloaded")
	return files, nil
}

func (r *Renderer) fetch(ctx context.Context, ref, dest string) error {
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := r.api.Download(ctx, ref, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("download %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", dest, err)
	}
	return os.Rename(tmp, dest)
}

func isEmpty(s *interview.Session) bool {
	b, err := json.Marshal(s)
	return err != nil || string(b) == "{}"
}

var nameReplacer = strings.NewReplacer("/", "_", `\`, "_", ":", "_", "..", "_")

func safeName(s string) string {
	return nameReplacer.Replace(s)
}
