package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/rehearse/internal/backend"
	"github.com/MikeSquared-Agency/rehearse/internal/logger"
)

// Wednesday.
var fixedNow = time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu      sync.Mutex
	records []map[string]any
	fail    bool
	queries []url.Values
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/interviews", r.URL.Path)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.queries = append(f.queries, r.URL.Query())
		if f.fail {
			http.Error(w, `{"detail": "database down"}`, http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(f.records)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeAPI) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func record(id int, date, typ, typeKey, position string) map[string]any {
	return map[string]any{"id": id, "date": date, "type": typ, "typeKey": typeKey, "position": position, "status": "done"}
}

func newBrowser(t *testing.T, f *fakeAPI, pageSize int) *Browser {
	b := NewBrowser(backend.NewClient(f.server(t).URL, 0, nil), pageSize, logger.Discard())
	b.now = func() time.Time { return fixedNow }
	return b
}

func sampleRecords() []map[string]any {
	return []map[string]any{
		record(1, "2026-10-14 09:30:00", "Technical interview", "technical", "Python Engineer"),
		record(2, "2026-10-12", "Behavioral interview", "behavioral", "Java Engineer"),
		record(3, "2026-10-11", "Technical interview", "technical", "Frontend Engineer"),
		record(4, "2026-10-01T08:00:00Z", "Comprehensive interview", "comprehensive", "Data Analyst"),
		record(5, "2026-02-03", "Technical interview", "technical", "python engineer"),
		record(6, "2025-12-31", "Behavioral interview", "behavioral", "General"),
		record(7, "not a date", "Technical interview", "technical", "Python Engineer"),
	}
}

func ids(recs []backend.HistoryRecord) []backend.RecordID {
	out := make([]backend.RecordID, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestApply_WindowBoundaries(t *testing.T) {
	tests := []struct {
		window Window
		want   []backend.RecordID
	}{
		{WindowAll, []backend.RecordID{"1", "2", "3", "4", "5", "6", "7"}},
		{WindowToday, []backend.RecordID{"1"}},
		{WindowWeek, []backend.RecordID{"1", "2"}},
		{WindowMonth, []backend.RecordID{"1", "2", "3", "4"}},
		{WindowYear, []backend.RecordID{"1", "2", "3", "4", "5"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.window), func(t *testing.T) {
			f := &fakeAPI{records: sampleRecords()}
			b := newBrowser(t, f, 10)
			require.NoError(t, b.Apply(context.Background(), Filter{Window: tt.window}))
			assert.Equal(t, tt.want, ids(b.Page().Records))
		})
	}
}

func TestWindowStart_WeekStartsMonday(t *testing.T) {
	sunday := time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)
	start, ok := windowStart(WindowWeek, sunday)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), start)

	monday := time.Date(2026, 10, 12, 0, 0, 1, 0, time.UTC)
	start, _ = windowStart(WindowWeek, monday)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), start)
}

func TestApply_FiltersAreConjunctive(t *testing.T) {
	f := &fakeAPI{records: sampleRecords()}
	b := newBrowser(t, f, 10)

	require.NoError(t, b.Apply(context.Background(), Filter{Search: " PYTHON ", Type: "technical", Window: WindowYear}))
	assert.Equal(t, []backend.RecordID{"1", "5"}, ids(b.Page().Records))

	require.Len(t, f.queries, 1)
	q := f.queries[0]
	assert.Equal(t, "PYTHON", q.Get("search"))
	assert.Equal(t, "technical", q.Get("type"))
	assert.Equal(t, "2026-01-01", q.Get("startDate"))
	assert.False(t, q.Has("endDate"))
}

func TestApply_SearchMatchesType(t *testing.T) {
	f := &fakeAPI{records: sampleRecords()}
	b := newBrowser(t, f, 10)

	require.NoError(t, b.Apply(context.Background(), Filter{Search: "behavioral"}))
	assert.Equal(t, []backend.RecordID{"2", "6"}, ids(b.Page().Records))
	assert.Empty(t, f.queries[0].Get("type"))
}

func TestApply_ResetsPage(t *testing.T) {
	f := &fakeAPI{records: sampleRecords()}
	b := newBrowser(t, f, 2)
	ctx := context.Background()

	require.NoError(t, b.Apply(ctx, Filter{}))
	require.True(t, b.Goto(3))
	assert.Equal(t, 3, b.Page().Number)

	require.NoError(t, b.Apply(ctx, Filter{Type: "technical"}))
	assert.Equal(t, 1, b.Page().Number)
}

func TestPage_CountersAndSkips(t *testing.T) {
	recs := sampleRecords()
	recs = append(recs, map[string]any{"id": nil, "date": "2026-10-14", "type": "Technical interview"})
	f := &fakeAPI{records: recs}
	b := newBrowser(t, f, 5)
	require.NoError(t, b.Apply(context.Background(), Filter{}))

	p := b.Page()
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, 2, p.TotalPages)
	assert.Equal(t, 8, p.Total)
	assert.Equal(t, 1, p.First)
	assert.Equal(t, 5, p.Last)
	assert.False(t, p.HasPrev)
	assert.True(t, p.HasNext)

	require.True(t, b.Goto(2))
	p = b.Page()
	assert.Equal(t, 6, p.First)
	assert.Equal(t, 8, p.Last)
	assert.Equal(t, []backend.RecordID{"6", "7"}, ids(p.Records), "record without id is skipped")
	assert.False(t, p.HasNext)
}

func TestGoto_IgnoresOutOfRange(t *testing.T) {
	f := &fakeAPI{records: sampleRecords()}
	b := newBrowser(t, f, 5)
	require.NoError(t, b.Apply(context.Background(), Filter{}))

	assert.False(t, b.Goto(0))
	assert.False(t, b.Goto(3))
	assert.Equal(t, 1, b.Page().Number)
}

func TestPage_Empty(t *testing.T) {
	f := &fakeAPI{records: []map[string]any{}}
	b := newBrowser(t, f, 5)
	require.NoError(t, b.Apply(context.Background(), Filter{}))

	p := b.Page()
	assert.Equal(t, 0, p.Total)
	assert.Equal(t, 0, p.First)
	assert.Equal(t, 0, p.Last)
	assert.Equal(t, 0, p.TotalPages)
	assert.Empty(t, p.Records)
	assert.Empty(t, b.Window())
}

func TestPageWindow(t *testing.T) {
	tests := []struct {
		current, total int
		want           []int
	}{
		{1, 1, []int{1}},
		{1, 3, []int{1, 2, 3}},
		{1, 10, []int{1, 2, 3, 4, 5}},
		{4, 10, []int{2, 3, 4, 5, 6}},
		{9, 10, []int{6, 7, 8, 9, 10}},
		{10, 10, []int{6, 7, 8, 9, 10}},
		{5, 5, []int{3, 4, 5}},
		{1, 0, []int{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pageWindow(tt.current, tt.total), "current=%d total=%d", tt.current, tt.total)
	}
}

func TestApply_FailureKeepsRecords(t *testing.T) {
	f := &fakeAPI{records: sampleRecords()}
	b := newBrowser(t, f, 10)
	ctx := context.Background()
	require.NoError(t, b.Apply(ctx, Filter{Type: "behavioral"}))

	f.setFail(true)
	err := b.Apply(ctx, Filter{Type: "technical"})
	require.Error(t, err)
	assert.True(t, backend.IsRejected(err))
	assert.Equal(t, []backend.RecordID{"2", "6"}, ids(b.Page().Records))
	assert.Equal(t, "behavioral", b.Filter().Type)

	f.setFail(false)
	v, err := b.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, "technical", v.Filter.Type)
	assert.Equal(t, "technical", b.Filter().Type)
	assert.Len(t, f.queries, 3)
	assert.Equal(t, "technical", f.queries[2].Get("type"))
}

func TestReset_ClearsFilters(t *testing.T) {
	f := &fakeAPI{records: sampleRecords()}
	b := newBrowser(t, f, 10)
	require.NoError(t, b.Apply(context.Background(), Filter{Search: "java"}))
	require.Len(t, b.Page().Records, 1)

	v := b.Reset()
	assert.Equal(t, Filter{}, v.Filter)
	assert.Equal(t, 7, v.Page.Total)
	assert.Equal(t, Filter{}, b.Filter())
	assert.Len(t, b.Page().Records, 7)
	assert.Len(t, f.queries, 1)
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("Week")
	require.NoError(t, err)
	assert.Equal(t, WindowWeek, w)

	w, err = ParseWindow("all")
	require.NoError(t, err)
	assert.Equal(t, WindowAll, w)

	_, err = ParseWindow("decade")
	assert.Error(t, err)
}

func TestQuery_ViewMatchesFilterAndPage(t *testing.T) {
	f := &fakeAPI{records: sampleRecords()}
	b := newBrowser(t, f, 2)
	ctx := context.Background()

	v, err := b.Query(ctx, Filter{Search: "  engineer "}, 2)
	require.NoError(t, err)
	assert.Equal(t, "engineer", v.Filter.Search)
	assert.Equal(t, 2, v.Page.Number)
	assert.Equal(t, b.Page(), v.Page)
	assert.Equal(t, b.Window(), v.Window)

	v, err = b.Query(ctx, Filter{}, 99)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Page.Number)
}

func TestSnapshot(t *testing.T) {
	f := &fakeAPI{records: sampleRecords()}
	b := newBrowser(t, f, 2)
	require.NoError(t, b.Apply(context.Background(), Filter{}))

	v := b.Snapshot(3)
	assert.Equal(t, 3, v.Page.Number)
	assert.Equal(t, 5, v.Page.First)
	assert.Equal(t, []int{1, 2, 3, 4}, v.Window)

	v = b.Snapshot(9)
	assert.Equal(t, 3, v.Page.Number)
}
