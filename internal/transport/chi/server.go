// Package chi is the HTTP boundary: a chi router over the indexing,
// search, chat, and health use cases, with SSE streaming for chat turns.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	domchat "github.com/kailas-cloud/findex/internal/domain/chat"
	"github.com/kailas-cloud/findex/internal/domain/embedding"
	"github.com/kailas-cloud/findex/internal/domain/filing"
	"github.com/kailas-cloud/findex/internal/domain/search"
	healthuc "github.com/kailas-cloud/findex/internal/usecase/health"
	indexeruc "github.com/kailas-cloud/findex/internal/usecase/indexer"
)

// Error codes returned in JSON error bodies.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeUnauthorized     = "unauthorized"
	codeIndexingConflict = "indexing_conflict"
	codeCompanyNotFound  = "company_not_found"
	codeNotIndexed       = "company_not_indexed"
	codeNoFilings        = "no_filings"
	codeProviderError    = "provider_error"
	codeInternalError    = "internal_error"
)

// Indexer triggers and inspects per-company index runs.
type Indexer interface {
	Start(ctx context.Context, ticker string) error
	Status(ctx context.Context, ticker string) (indexeruc.StatusReport, error)
	DeleteIndex(ctx context.Context, ticker string) (int, error)
}

// Searcher runs metadata-filtered vector search.
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]search.Result, error)
}

// Chatter streams one agentic chat turn into sink.
type Chatter interface {
	Respond(ctx context.Context, ticker string,
		messages []domchat.Message, sink func(domchat.Event) error) error
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers for the filing index API.
type Server struct {
	indexer Indexer
	search  Searcher
	chat    Chatter
	health  HealthChecker
	logger  *zap.Logger

	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(indexer Indexer, searcher Searcher, chatter Chatter,
	health HealthChecker, logger *zap.Logger,
) *Server {
	s := &Server{
		indexer: indexer,
		search:  searcher,
		chat:    chatter,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(filing.ErrIndexingConflict, http.StatusConflict, codeIndexingConflict),
		sentinelHandler(filing.ErrCompanyNotFound, http.StatusNotFound, codeCompanyNotFound),
		sentinelHandler(filing.ErrNotIndexed, http.StatusNotFound, codeNotIndexed),
		sentinelHandler(filing.ErrNoFilings, http.StatusUnprocessableEntity, codeNoFilings),
		sentinelHandler(embedding.ErrProviderError, http.StatusBadGateway, codeProviderError),
	}
	return s
}

// Register mounts all routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Route("/api/v1/companies/{ticker}", func(r chi.Router) {
		r.Post("/index", s.StartIndexing)
		r.Delete("/index", s.DeleteIndex)
		r.Get("/status", s.GetStatus)
		r.Post("/search", s.Search)
		r.Post("/chat", s.Chat)
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// StartIndexing handles POST /api/v1/companies/{ticker}/index.
// The run continues in the background; the response only acknowledges it.
func (s *Server) StartIndexing(w http.ResponseWriter, r *http.Request) {
	ticker, ok := tickerParam(w, r)
	if !ok {
		return
	}

	if err := s.indexer.Start(r.Context(), ticker); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"ticker":  ticker,
		"status":  string(filing.StatusIndexing),
		"message": fmt.Sprintf("Indexing started for %s", ticker),
	})
}

// GetStatus handles GET /api/v1/companies/{ticker}/status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	ticker, ok := tickerParam(w, r)
	if !ok {
		return
	}

	report, err := s.indexer.Status(r.Context(), ticker)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusToResponse(report))
}

// DeleteIndex handles DELETE /api/v1/companies/{ticker}/index.
func (s *Server) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	ticker, ok := tickerParam(w, r)
	if !ok {
		return
	}

	deleted, err := s.indexer.DeleteIndex(r.Context(), ticker)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticker":           ticker,
		"passages_deleted": deleted,
	})
}

// searchRequest is the POST /search body.
type searchRequest struct {
	Query       string   `json:"query"`
	FilingTypes []string `json:"filing_types,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	MinDate     string   `json:"min_date,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	TokenBudget int      `json:"token_budget,omitempty"`
}

// Search handles POST /api/v1/companies/{ticker}/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	ticker, ok := tickerParam(w, r)
	if !ok {
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "query is required")
		return
	}

	q, err := searchQueryFromRequest(ticker, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	results, err := s.search.Search(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultItem, len(results))
	for i := range results {
		items[i] = searchResultToItem(&results[i])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticker":  ticker,
		"results": items,
		"count":   len(items),
	})
}

// chatRequest is the POST /chat body.
type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat handles POST /api/v1/companies/{ticker}/chat as an SSE stream.
// Each chat event goes out as one `data:` line and is flushed immediately.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	ticker, ok := tickerParam(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	messages, err := messagesFromRequest(req.Messages)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable proxy buffering; tokens must reach the client as they stream.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sent := 0
	sink := func(e domchat.Event) error {
		payload, err := json.Marshal(sseEvent{Type: string(e.Type), Content: e.Content})
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		flusher.Flush()
		sent++
		return nil
	}

	// Headers are sent; failures can only be reported in-stream.
	if err := s.chat.Respond(r.Context(), ticker, messages, sink); err != nil {
		s.logger.Warn("Chat turn failed",
			zap.String("ticker", ticker),
			zap.Error(err),
		)
		if sent == 0 {
			_ = sink(domchat.Event{Type: domchat.EventError, Content: "chat turn failed"})
		}
	}
}

// HealthCheck handles GET /health and /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// sseEvent is the JSON payload of one SSE data line.
type sseEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

func tickerParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	ticker := chi.URLParam(r, "ticker")
	if ticker == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "ticker is required")
		return "", false
	}
	return ticker, true
}

func searchQueryFromRequest(ticker string, req searchRequest) (search.Query, error) {
	q := search.Query{
		Ticker:      ticker,
		Text:        req.Query,
		MinDate:     req.MinDate,
		TopK:        req.TopK,
		TokenBudget: req.TokenBudget,
	}
	for _, ft := range req.FilingTypes {
		t, ok := filing.ParseType(ft)
		if !ok {
			return search.Query{}, fmt.Errorf("unknown filing type %q", ft)
		}
		q.Types = append(q.Types, t)
	}
	for _, c := range req.Categories {
		q.Categories = append(q.Categories, filing.Category(c))
	}
	return q, nil
}

func messagesFromRequest(in []chatMessage) ([]domchat.Message, error) {
	if len(in) == 0 {
		return nil, errors.New("messages must not be empty")
	}
	out := make([]domchat.Message, len(in))
	for i, m := range in {
		switch domchat.Role(m.Role) {
		case domchat.RoleUser, domchat.RoleAssistant:
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
		if m.Content == "" {
			return nil, fmt.Errorf("message %d has empty content", i)
		}
		out[i] = domchat.Message{Role: domchat.Role(m.Role), Content: m.Content}
	}
	return out, nil
}

// searchResultItem is the JSON view of one retrieved passage.
type searchResultItem struct {
	Text       string   `json:"text"`
	FilingType string   `json:"filing_type"`
	FilingDate string   `json:"filing_date"`
	Section    string   `json:"section"`
	Category   string   `json:"category"`
	Topics     []string `json:"topics,omitempty"`
	IsTable    bool     `json:"is_table,omitempty"`
	Similarity float64  `json:"similarity"`
	TokenCount int      `json:"token_count"`
}

func searchResultToItem(r *search.Result) searchResultItem {
	return searchResultItem{
		Text:       r.Text,
		FilingType: string(r.FilingType),
		FilingDate: r.FilingDate,
		Section:    r.SectionName,
		Category:   string(r.SectionCategory),
		Topics:     r.Topics,
		IsTable:    r.IsTable,
		Similarity: r.Similarity,
		TokenCount: r.TokenCount,
	}
}

// statusResponse is the JSON view of a company's index status.
type statusResponse struct {
	Ticker         string         `json:"ticker"`
	Status         string         `json:"status"`
	FilingsIndexed int            `json:"filings_indexed"`
	ChunksTotal    int            `json:"chunks_total"`
	LastFilingDate string         `json:"last_filing_date,omitempty"`
	LastIndexedAt  *time.Time     `json:"last_indexed_at,omitempty"`
	Error          string         `json:"error,omitempty"`
	Progress       string         `json:"progress,omitempty"`
	Breakdown      map[string]int `json:"filing_type_breakdown,omitempty"`
}

func statusToResponse(report indexeruc.StatusReport) statusResponse {
	st := report.State
	resp := statusResponse{
		Ticker:         st.Ticker,
		Status:         string(st.Status),
		FilingsIndexed: st.FilingsIndexed,
		ChunksTotal:    st.ChunksTotal,
		LastFilingDate: st.LastFilingDate,
		Error:          st.ErrorMessage,
		Progress:       report.ProgressMessage,
	}
	if !st.LastIndexedAt.IsZero() {
		at := st.LastIndexedAt.UTC()
		resp.LastIndexedAt = &at
	}
	if len(report.FilingTypeBreakdown) > 0 {
		resp.Breakdown = make(map[string]int, len(report.FilingTypeBreakdown))
		for t, n := range report.FilingTypeBreakdown {
			resp.Breakdown[string(t)] = n
		}
	}
	return resp
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		filing.ErrIndexingConflict,
		filing.ErrCompanyNotFound,
		filing.ErrNotIndexed,
		filing.ErrNoFilings,
		embedding.ErrProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			s.logger.Warn("domain error", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
