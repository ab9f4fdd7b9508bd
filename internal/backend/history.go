package backend

import (
	"context"
	"net/url"
)

// ListInterviews fetches interview records. Only non-empty query fields are sent.
func (c *Client) ListInterviews(ctx context.Context, q HistoryQuery) ([]HistoryRecord, error) {
	const op = "Client.ListInterviews"

	params := url.Values{}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	if q.StartDate != "" {
		params.Set("startDate", q.StartDate)
	}
	if q.EndDate != "" {
		params.Set("endDate", q.EndDate)
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}

	var out []HistoryRecord
	if err := c.getJSON(ctx, op, "/api/interviews", params, schemaHistory, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []HistoryRecord{}
	}
	return out, nil
}
