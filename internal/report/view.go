package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/rehearse/internal/backend"
	"github.com/MikeSquared-Agency/rehearse/internal/catalog"
	"github.com/MikeSquared-Agency/rehearse/internal/interview"
)

const (
	Placeholder       = "not available"
	UnknownPosition   = "unknown position"
	NoScoreFeedback   = "no score yet"
	analysisImage     = "Image analysis"
	analysisSpeech    = "Speech analysis"
	analysisText      = "Text analysis"
	aiAnalysisSummary = "AI evaluation"
)

type Score struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

type Prediction struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Percent string `json:"percent"`
}

type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// View is the display projection of an interview result. Missing fields
// carry placeholders; scores are clamped to [0, 100].
type View struct {
	JobType       string       `json:"job_type"`
	Position      string       `json:"position"`
	OverallScore  *float64     `json:"overall_score,omitempty"`
	Overall       string       `json:"overall"`
	Feedback      string       `json:"feedback"`
	ScoreDetails  []Score      `json:"score_details"`
	Predictions   []Prediction `json:"predictions"`
	Analysis      []Section    `json:"analysis"`
	RadarChartURL string       `json:"radar_chart_url,omitempty"`
}

// Clamp limits a score to [0, 100]. NaN reads as 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

// Feedback names the tier of a clamped overall score.
func Feedback(score float64) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 80:
		return "very good"
	case score >= 70:
		return "good"
	case score >= 60:
		return "pass"
	default:
		return "needs work"
	}
}

// Project builds the view for s. resolve turns backend paths into URLs and
// may be nil.
func Project(s *interview.Session, cat *catalog.Catalog, resolve func(string) string) View {
	if s == nil {
		s = &interview.Session{}
	}
	v := View{
		JobType:      s.JobType,
		Overall:      Placeholder,
		Feedback:     NoScoreFeedback,
		ScoreDetails: []Score{},
		Predictions:  []Prediction{},
		Analysis:     []Section{},
	}
	if v.JobType == "" {
		v.JobType = Placeholder
		v.Position = Placeholder
	} else {
		v.Position = cat.PositionLabel(s.JobType)
	}

	if s.OverallScore != nil {
		score := Clamp(*s.OverallScore)
		v.OverallScore = &score
		v.Overall = formatScore(score)
		v.Feedback = Feedback(score)
	}

	for k, val := range s.ScoreDetails {
		v.ScoreDetails = append(v.ScoreDetails, Score{Key: k, Value: Clamp(val)})
	}
	sort.Slice(v.ScoreDetails, func(i, j int) bool {
		a, b := v.ScoreDetails[i].Key, v.ScoreDetails[j].Key
		ra, rb := cat.ScoreDetailRank(a), cat.ScoreDetailRank(b)
		if ra != rb {
			return ra < rb
		}
		return a < b
	})

	for k, val := range s.ModelPredictions {
		v.Predictions = append(v.Predictions, Prediction{
			Key:     k,
			Label:   cat.PredictionLabel(k),
			Percent: fmt.Sprintf("%.2f", val*100),
		})
	}
	sort.Slice(v.Predictions, func(i, j int) bool {
		a, b := v.Predictions[i].Key, v.Predictions[j].Key
		ra, rb := cat.PredictionRank(a), cat.PredictionRank(b)
		if ra != rb {
			return ra < rb
		}
		return a < b
	})

	v.Analysis = analysisSections(s)

	if s.RadarChartPath != "" {
		v.RadarChartURL = s.RadarChartPath
		if resolve != nil {
			v.RadarChartURL = resolve(s.RadarChartPath)
		}
	}
	return v
}

// analysisSections lists the AI evaluation entries first, then the image,
// speech and text results that are non-empty.
func analysisSections(s *interview.Session) []Section {
	out := []Section{}
	keys := make([]string, 0, len(s.AIAnalysis))
	for k := range s.AIAnalysis {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if body := backend.ArtifactText(s.AIAnalysis[k]); body != "" {
			out = append(out, Section{Title: k, Body: body})
		}
	}
	for _, a := range []struct {
		title string
		raw   json.RawMessage
	}{
		{analysisImage, s.ImageResult},
		{analysisSpeech, s.SpeechResult},
		{analysisText, s.TextResult},
	} {
		if body := backend.ArtifactText(a.raw); body != "" {
			out = append(out, Section{Title: a.title, Body: body})
		}
	}
	return out
}

func formatScore(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

// PrintView writes a plain-text rendering of v.
func PrintView(w io.Writer, v View) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Position:  %s\n", v.Position)
	fmt.Fprintf(&b, "Overall:   %s (%s)\n", v.Overall, v.Feedback)

	b.WriteString("\nScore details\n")
	if len(v.ScoreDetails) == 0 {
		fmt.Fprintf(&b, "  %s\n", Placeholder)
	}
	for _, s := range v.ScoreDetails {
		fmt.Fprintf(&b, "  %-24s %s\n", s.Key, formatScore(s.Value))
	}

	b.WriteString("\nModel predictions\n")
	if len(v.Predictions) == 0 {
		fmt.Fprintf(&b, "  %s\n", Placeholder)
	}
	for _, p := range v.Predictions {
		fmt.Fprintf(&b, "  %-24s %s%%\n", p.Label+":", p.Percent)
	}

	b.WriteString("\n" + aiAnalysisSummary + "\n")
	if len(v.Analysis) == 0 {
		fmt.Fprintf(&b, "  %s\n", Placeholder)
	}
	for _, s := range v.Analysis {
		fmt.Fprintf(&b, "  [%s]\n", s.Title)
		for _, line := range strings.Split(s.Body, "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}

	if v.RadarChartURL != "" {
		fmt.Fprintf(&b, "\nRadar chart: %s\n", v.RadarChartURL)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
