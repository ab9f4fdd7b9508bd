// Package history lists past interviews with client-side filtering and
// pagination.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/MikeSquared-Agency/rehearse/internal/backend"
)

var ErrBusy = errors.New("history fetch already in progress")

// DefaultPageSize is used when the configured size is not positive.
const DefaultPageSize = 5

// pageButtons is the number of page links shown at most.
const pageButtons = 5

type Window string

const (
	WindowAll   Window = ""
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowYear  Window = "year"
)

// ParseWindow accepts the window names used on the command line and in the
// companion API. "all" and "" both mean no restriction.
func ParseWindow(s string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(s))); w {
	case WindowAll, WindowToday, WindowWeek, WindowMonth, WindowYear:
		return w, nil
	case "all":
		return WindowAll, nil
	default:
		return "", fmt.Errorf("unknown time window %q (want today, week, month or year)", s)
	}
}

type Filter struct {
	Search string `json:"search,omitempty"`
	Type   string `json:"type,omitempty"`
	Window Window `json:"time,omitempty"`
}

type Lister interface {
	ListInterviews(ctx context.Context, q backend.HistoryQuery) ([]backend.HistoryRecord, error)
}

// Page is one rendered page plus the counters shown around it.
type Page struct {
	Records    []backend.HistoryRecord `json:"records"`
	Number     int                     `json:"page"`
	TotalPages int                     `json:"total_pages"`
	First      int                     `json:"first"`
	Last       int                     `json:"last"`
	Total      int                     `json:"total"`
	HasPrev    bool                    `json:"has_prev"`
	HasNext    bool                    `json:"has_next"`
}

// Browser keeps every fetched record and a filtered view of them. The
// filtered view never mutates the fetched records.
type Browser struct {
	api      Lister
	pageSize int
	logger   logrus.FieldLogger
	sem      *semaphore.Weighted
	now      func() time.Time

	mu       sync.RWMutex
	all      []backend.HistoryRecord
	filtered []backend.HistoryRecord
	filter   Filter
	last     Filter
	page     int
}

func NewBrowser(api Lister, pageSize int, logger logrus.FieldLogger) *Browser {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Browser{
		api:      api,
		pageSize: pageSize,
		logger:   logger,
		sem:      semaphore.NewWeighted(1),
		now:      time.Now,
		page:     1,
	}
}

// View is one page together with the filter and page links it was built
// from.
type View struct {
	Filter Filter `json:"filter"`
	Page   Page   `json:"page"`
	Window []int  `json:"window"`
}

// Apply fetches records for f and filters them locally. On failure the
// previous records stay in place and the error is returned.
func (b *Browser) Apply(ctx context.Context, f Filter) error {
	_, err := b.Query(ctx, f, 1)
	return err
}

// Query is Apply followed by a move to page n. The returned view is taken
// under the same lock that installs the new records, so it always reflects f.
// An out-of-range n leaves the view on page 1.
func (b *Browser) Query(ctx context.Context, f Filter, n int) (View, error) {
	if !b.sem.TryAcquire(1) {
		return View{}, ErrBusy
	}
	defer b.sem.Release(1)

	f.Search = strings.TrimSpace(f.Search)
	f.Type = strings.TrimSpace(f.Type)

	b.mu.Lock()
	b.last = f
	b.mu.Unlock()

	q := backend.HistoryQuery{Type: f.Type, Search: f.Search}
	if start, ok := windowStart(f.Window, b.now()); ok {
		q.StartDate = start.Format("2006-01-02")
	}

	records, err := b.api.ListInterviews(ctx, q)
	if err != nil {
		b.logger.WithError(err).Warn("history fetch failed")
		return View{}, fmt.Errorf("list interviews: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = records
	b.filter = f
	b.refilter()
	b.gotoLocked(n)
	b.logger.WithFields(logrus.Fields{"fetched": len(records), "matched": len(b.filtered)}).Debug("history loaded")
	return b.viewLocked(), nil
}

// Retry repeats the last fetch with the same filter.
func (b *Browser) Retry(ctx context.Context) (View, error) {
	b.mu.RLock()
	f := b.last
	b.mu.RUnlock()
	return b.Query(ctx, f, 1)
}

// Reset clears every filter and re-filters the records already fetched.
func (b *Browser) Reset() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = Filter{}
	b.last = Filter{}
	b.refilter()
	return b.viewLocked()
}

// Snapshot moves to page n when it is in range and returns the view.
func (b *Browser) Snapshot(n int) View {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gotoLocked(n)
	return b.viewLocked()
}

func (b *Browser) Filter() Filter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter
}

// refilter rebuilds the filtered view and returns to page 1. Callers hold mu.
func (b *Browser) refilter() {
	now := b.now()
	search := strings.ToLower(b.filter.Search)
	out := make([]backend.HistoryRecord, 0, len(b.all))
	for _, r := range b.all {
		if matches(r, search, b.filter.Type, b.filter.Window, now) {
			out = append(out, r)
		}
	}
	b.filtered = out
	b.page = 1
}

func (b *Browser) totalPages() int {
	return (len(b.filtered) + b.pageSize - 1) / b.pageSize
}

// Goto moves to page n. Out-of-range pages are ignored and reported false.
func (b *Browser) Goto(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gotoLocked(n)
}

func (b *Browser) gotoLocked(n int) bool {
	if n < 1 || n > b.totalPages() {
		return false
	}
	b.page = n
	return true
}

// Page returns the current page. Records without an id, date or type are
// left out of the slice but still counted.
func (b *Browser) Page() Page {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pageLocked()
}

func (b *Browser) viewLocked() View {
	return View{Filter: b.filter, Page: b.pageLocked(), Window: pageWindow(b.page, b.totalPages())}
}

func (b *Browser) pageLocked() Page {
	total := len(b.filtered)
	p := Page{
		Records:    []backend.HistoryRecord{},
		Number:     b.page,
		TotalPages: b.totalPages(),
		Total:      total,
	}
	start := (b.page - 1) * b.pageSize
	end := min(start+b.pageSize, total)
	if total > 0 {
		p.First = start + 1
		p.Last = end
	}
	for _, r := range b.filtered[start:end] {
		if r.ID == "" || r.Date == "" || r.Type == "" {
			continue
		}
		p.Records = append(p.Records, r)
	}
	p.HasPrev = b.page > 1
	p.HasNext = b.page < p.TotalPages
	return p
}

// Window returns up to five page numbers around the current page.
func (b *Browser) Window() []int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return pageWindow(b.page, b.totalPages())
}

func pageWindow(current, total int) []int {
	start := max(1, current-2)
	end := min(total, start+pageButtons-1)
	if end-start < pageButtons-1 && total > pageButtons {
		start = max(1, end-pageButtons+1)
	}
	out := []int{}
	for i := start; i <= end; i++ {
		out = append(out, i)
	}
	return out
}

func matches(r backend.HistoryRecord, search, typeKey string, w Window, now time.Time) bool {
	if search != "" &&
		!strings.Contains(strings.ToLower(r.Position), search) &&
		!strings.Contains(strings.ToLower(r.Type), search) {
		return false
	}
	if typeKey != "" && r.TypeKey != typeKey {
		return false
	}
	if w == WindowAll {
		return true
	}
	if r.Date == "" {
		return false
	}
	d, ok := parseDate(r.Date, now.Location())
	if !ok {
		return false
	}
	start, ok := windowStart(w, now)
	return !ok || !d.Before(start)
}

// windowStart is the inclusive lower bound of w relative to now: local
// midnight today, Monday of this week, the 1st of this month or January 1st.
func windowStart(w Window, now time.Time) (time.Time, bool) {
	y, m, d := now.Date()
	loc := now.Location()
	switch w {
	case WindowToday:
		return time.Date(y, m, d, 0, 0, 0, 0, loc), true
	case WindowWeek:
		offset := (int(now.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc), true
	case WindowMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), true
	case WindowYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

// parseDate reads a record date. Values without a zone are local time.
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
