// Package nanosearch is a Go client for the NanoSearch HTTP API.
package nanosearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Document is a searchable record.
type Document struct {
	ID        string `json:"id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"` // unix nanoseconds
	Source    string `json:"source,omitempty"`
	Text      string `json:"text"`
}

// IngestResult lists the IDs assigned to ingested documents.
type IngestResult struct {
	Ingested int      `json:"ingested"`
	IDs      []string `json:"ids"`
}

// SearchRequest selects documents. Zero fields are not sent.
type SearchRequest struct {
	Query  string
	Source string
	Start  time.Time
	End    time.Time
	Limit  int
}

// HistogramPoint is one time bucket of a histogram.
type HistogramPoint struct {
	Time  int64 `json:"time"`
	Count int   `json:"count"`
}

// Stats mirrors the server's /api/stats response.
type Stats struct {
	IngestionRate float64          `json:"ingestion_rate"`
	TotalDocs     int64            `json:"total_docs"`
	TotalBytes    int64            `json:"total_bytes"`
	MemTableDocs  int              `json:"memtable_docs"`
	Segments      int              `json:"segments"`
	DiskUsage     int64            `json:"disk_usage"`
	TopSources    map[string]int64 `json:"top_sources"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nanosearch: HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to a NanoSearch server.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New creates a client for the server at baseURL. token may be empty when
// the server runs without authentication.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Ingest sends documents in one request.
func (c *Client) Ingest(ctx context.Context, docs ...Document) (IngestResult, error) {
	var result IngestResult
	if len(docs) == 0 {
		return result, nil
	}

	data, err := json.Marshal(docs)
	if err != nil {
		return result, err
	}
	err = c.do(ctx, http.MethodPost, "/api/ingest", nil, data, &result)
	return result, err
}

// Search returns the matching documents, newest first.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Document, error) {
	params := req.values()
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}

	var docs []Document
	err := c.do(ctx, http.MethodGet, "/api/search", params, nil, &docs)
	return docs, err
}

// Histogram counts matching documents per interval.
func (c *Client) Histogram(ctx context.Context, req SearchRequest, interval time.Duration) ([]HistogramPoint, error) {
	params := req.values()
	if interval > 0 {
		params.Set("interval", interval.String())
	}

	var points []HistogramPoint
	err := c.do(ctx, http.MethodGet, "/api/histogram", params, nil, &points)
	return points, err
}

// Parse returns the server's JSON rendering of the query AST.
func (c *Client) Parse(ctx context.Context, query string) (json.RawMessage, error) {
	var ast json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/parse", url.Values{"q": {query}}, nil, &ast)
	return ast, err
}

// Stats returns server statistics.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, nil, &stats)
	return stats, err
}

func (r SearchRequest) values() url.Values {
	params := url.Values{}
	if r.Query != "" {
		params.Set("q", r.Query)
	}
	if r.Source != "" {
		params.Set("source", r.Source)
	}
	if !r.Start.IsZero() {
		params.Set("start", strconv.FormatInt(r.Start.UnixNano(), 10))
	}
	if !r.End.IsZero() {
		params.Set("end", strconv.FormatInt(r.End.UnixNano(), 10))
	}
	return params
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, out any) error {
	target := c.BaseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
