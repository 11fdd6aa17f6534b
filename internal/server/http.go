package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coffersTech/nanosearch/internal/auth"
	"github.com/coffersTech/nanosearch/internal/engine"
	"github.com/coffersTech/nanosearch/internal/pkg/searchql"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

// DefaultSource is assigned to ingested documents without a source.
const DefaultSource = "default"

// Options tunes request handling.
type Options struct {
	DefaultLimit int   // search results when no limit is given
	MaxLimit     int   // upper bound for the limit parameter
	MaxBodyBytes int64 // ingest request size limit
}

func (o *Options) setDefaults() {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 100
	}
	if o.MaxLimit < o.DefaultLimit {
		o.MaxLimit = max(10000, o.DefaultLimit)
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 16 << 20
	}
}

// IngestResponse is returned by POST /api/ingest.
type IngestResponse struct {
	Ingested int      `json:"ingested"`
	IDs      []string `json:"ids"`
}

// Server exposes the query engine over HTTP.
type Server struct {
	queryEngine *engine.QueryEngine
	tokens      *auth.Store
	logger      *zap.Logger
	opts        Options
	srv         *http.Server
	parser      fastjson.ParserPool
}

// New creates a Server. A nil or empty token store leaves the API open.
func New(qe *engine.QueryEngine, tokens *auth.Store, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.setDefaults()
	s := &Server{
		queryEngine: qe,
		tokens:      tokens,
		logger:      logger,
		opts:        opts,
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/api/ingest", s.AuthMiddleware(auth.ScopeWrite, http.HandlerFunc(s.handleIngest)))
	mux.Handle("/api/search", s.AuthMiddleware(auth.ScopeRead, http.HandlerFunc(s.handleSearch)))
	mux.Handle("/api/parse", s.AuthMiddleware(auth.ScopeRead, http.HandlerFunc(s.handleParse)))
	mux.Handle("/api/histogram", s.AuthMiddleware(auth.ScopeRead, http.HandlerFunc(s.handleHistogram)))
	mux.Handle("/api/stats", s.AuthMiddleware(auth.ScopeRead, http.HandlerFunc(s.handleStats)))

	return mux
}

// Start runs the HTTP server until Shutdown is called. It returns nil
// without serving when Shutdown already ran.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server. It is safe to call before or
// concurrently with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// AuthMiddleware checks for a token granting scope in the Authorization
// header or the token query parameter.
func (s *Server) AuthMiddleware(scope auth.Scope, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokens == nil || s.tokens.Empty() {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		var secret string
		if strings.HasPrefix(authHeader, "Bearer ") {
			secret = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			secret = r.URL.Query().Get("token")
		}

		if secret == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="NanoSearch"`)
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}

		token, ok := s.tokens.Verify(secret)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="NanoSearch"`)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
		if !token.Allows(scope) {
			http.Error(w, fmt.Sprintf("Forbidden: token %q lacks %s scope", token.Name, scope), http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, "ok\n")
}

// handleIngest processes POST requests with a JSON document or an array of
// documents. The batch is rejected as a whole if any entry is invalid.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Warn("failed to read ingest body", zap.Error(err))
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	docs, err := s.parseDocuments(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := IngestResponse{IDs: make([]string, 0, len(docs))}
	for _, doc := range docs {
		stored, err := s.queryEngine.Ingest(doc)
		if err != nil {
			s.logger.Error("ingest failed", zap.Error(err))
			http.Error(w, "Ingest failed", http.StatusInternalServerError)
			return
		}
		resp.IDs = append(resp.IDs, stored.ID)
	}
	resp.Ingested = len(resp.IDs)

	// Sync WAL to disk once per request
	if err := s.queryEngine.SyncWAL(); err != nil {
		s.logger.Error("WAL sync failed", zap.Error(err))
	}

	s.writeJSON(w, resp)
}

// parseDocuments decodes a document object or an array of them.
func (s *Server) parseDocuments(body []byte) ([]engine.Document, error) {
	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("Invalid JSON: %v", err)
	}

	if v.Type() != fastjson.TypeArray {
		doc, err := documentFromJSON(v)
		if err != nil {
			return nil, err
		}
		return []engine.Document{doc}, nil
	}

	arr, _ := v.Array()
	docs := make([]engine.Document, 0, len(arr))
	for i, val := range arr {
		doc, err := documentFromJSON(val)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// documentFromJSON copies the fields of a JSON document. The returned
// strings do not reference parser memory.
func documentFromJSON(v *fastjson.Value) (engine.Document, error) {
	if v.Type() != fastjson.TypeObject {
		return engine.Document{}, fmt.Errorf("expected object, got %s", v.Type())
	}

	doc := engine.Document{
		ID:     string(v.GetStringBytes("id")),
		Source: string(v.GetStringBytes("source")),
		Text:   string(v.GetStringBytes("text")),
	}
	if ts := v.Get("timestamp"); ts != nil {
		n, err := ts.Int64()
		if err != nil {
			return engine.Document{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		doc.Timestamp = n
	}
	if doc.Text == "" {
		doc.Text = string(v.GetStringBytes("message"))
	}
	if doc.Text == "" {
		return engine.Document{}, errors.New("missing text")
	}
	if doc.Source == "" {
		doc.Source = DefaultSource
	}
	return doc, nil
}

// handleSearch processes GET /api/search requests.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit := s.opts.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(parsed, s.opts.MaxLimit)
	}

	docs, err := s.queryEngine.ExecuteScan(filter, limit)
	if err != nil {
		s.logger.Error("query failed", zap.String("q", filter.Query), zap.Error(err))
		http.Error(w, "Query failed", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, docs)
}

// handleParse returns the AST of the q parameter as JSON.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	nodes := searchql.Parse(r.URL.Query().Get("q"))

	w.Header().Set("Content-Type", "application/json")
	out := searchql.AppendJSON(nil, nodes)
	if _, err := w.Write(append(out, '\n')); err != nil {
		s.logger.Debug("write failed", zap.Error(err))
	}
}

// handleHistogram counts matching documents per time bucket. interval is a
// duration such as 30s or 5m; start and end default to the last hour.
func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Default last 1h
	if filter.MaxTime == 0 {
		filter.MaxTime = time.Now().UnixNano()
	}
	if filter.MinTime == 0 {
		filter.MinTime = filter.MaxTime - time.Hour.Nanoseconds()
	}

	interval := time.Minute
	if intervalStr := r.URL.Query().Get("interval"); intervalStr != "" {
		interval, err = time.ParseDuration(intervalStr)
		if err != nil || interval <= 0 {
			http.Error(w, "Invalid interval", http.StatusBadRequest)
			return
		}
	}

	points, err := s.queryEngine.ComputeHistogram(filter, interval.Nanoseconds())
	if err != nil {
		s.logger.Error("histogram failed", zap.Error(err))
		http.Error(w, "Histogram failed", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, points)
}

// handleStats returns system statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.queryEngine.GetStats())
}

// filterFromQuery reads q, source, start and end (unix nanoseconds).
func filterFromQuery(r *http.Request) (engine.Filter, error) {
	q := r.URL.Query()
	filter := engine.Filter{
		Source: q.Get("source"),
		Query:  q.Get("q"),
	}

	var err error
	if filter.MinTime, err = parseTimestamp(q.Get("start")); err != nil {
		return filter, fmt.Errorf("Invalid start: %w", err)
	}
	if filter.MaxTime, err = parseTimestamp(q.Get("end")); err != nil {
		return filter, fmt.Errorf("Invalid end: %w", err)
	}
	return filter, nil
}

// parseTimestamp accepts unix nanoseconds or an RFC 3339 time.
func parseTimestamp(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, err
	}
	return t.UnixNano(), nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("JSON encode error", zap.Error(err))
	}
}
