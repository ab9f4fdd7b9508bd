// Package backend is the HTTP client for the interview-practice backend:
// question generation, upload and analysis, conversation, reports, auth and
// interview history.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Client struct {
	baseURL string
	mu      sync.RWMutex
	token   string
	client  *http.Client
	logger  logrus.FieldLogger
}

// NewClient builds a client for the backend at baseURL. A zero timeout leaves
// requests bounded only by ctx and the transport.
func NewClient(baseURL string, timeout time.Duration, logger logrus.FieldLogger) *Client {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SetToken attaches a bearer token to subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) authorize(req *http.Request) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// ResolveURL turns a backend-relative path (audio, report, chart) into an
// absolute URL. Windows separators are normalized first.
func (c *Client) ResolveURL(ref string) string {
	ref = NormalizePath(ref)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return c.baseURL + ref
}

// NormalizePath replaces backslashes with forward slashes.
func NormalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

func (c *Client) postJSON(ctx context.Context, op, path string, in any, schema string, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return transportErr(op, "marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return transportErr(op, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, schema, out)
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, schema string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return transportErr(op, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, schema, out)
}

func (c *Client) do(req *http.Request, op, schema string, out any) error {
	c.authorize(req)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return transportErr(op, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportErr(op, "read response", err)
	}

	c.logger.WithFields(logrus.Fields{
		"op":          op,
		"method":      req.Method,
		"path":        req.URL.Path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return rejectedErr(op, resp.StatusCode, errorDetail(respBody))
	}

	if schema != "" {
		if err := validateBody(schema, respBody); err != nil {
			return transportErr(op, "malformed response", err)
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return transportErr(op, "malformed response", err)
	}
	return nil
}

// errorDetail extracts the server message from an error body. FastAPI sends
// {"detail": "..."} or a list of validation errors under detail.
func errorDetail(body []byte) string {
	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		s := strings.TrimSpace(string(body))
		if len(s) > 200 {
			s = s[:200]
		}
		return s
	}
	if len(envelope.Detail) > 0 {
		var s string
		if json.Unmarshal(envelope.Detail, &s) == nil {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(envelope.Detail, &items) == nil && len(items) > 0 {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				msgs = append(msgs, it.Msg)
			}
			return strings.Join(msgs, "; ")
		}
		return string(envelope.Detail)
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return envelope.Error
}

// Download streams the file at a backend reference into w and returns the
// number of bytes written.
func (c *Client) Download(ctx context.Context, ref string, w io.Writer) (int64, error) {
	const op = "Client.Download"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ResolveURL(ref), nil)
	if err != nil {
		return 0, transportErr(op, "create request", err)
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, transportErr(op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, rejectedErr(op, resp.StatusCode, errorDetail(body))
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, transportErr(op, fmt.Sprintf("copy %s", ref), err)
	}
	return n, nil
}
