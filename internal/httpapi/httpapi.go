// Package httpapi exposes pkg/retriever over the five-endpoint HTTP
// surface from spec.md §6. Every handler is a thin adapter: no
// retrieval logic lives here. Grounded on the original's FastAPI
// app.py for the exact request/response shapes and on the broader
// example pack's chi-based routers for the Go realization.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmrproject/dmr/internal/applog"
	"github.com/dmrproject/dmr/pkg/retriever"
	"github.com/dmrproject/dmr/pkg/signature"
)

const version = "1.0.0"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dmr_requests_total", Help: "Total requests"},
		[]string{"endpoint"},
	)
	latencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "dmr_latency_ms", Help: "Latency ms"},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, latencyMs)
}

func mark(endpoint string) func() {
	requestsTotal.WithLabelValues(endpoint).Inc()
	start := time.Now()
	return func() {
		latencyMs.WithLabelValues(endpoint).Observe(float64(time.Since(start)) / float64(time.Millisecond))
	}
}

// Server wires a *retriever.Retriever into the HTTP surface.
type Server struct {
	Retriever *retriever.Retriever
	Log       applog.Logger
}

// Router builds the chi router for all five endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/pre", s.handlePre)
	r.Post("/post", s.handlePost)
	r.Post("/forget", s.handleForget)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type preRequest struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Query    string `json:"query"`
}

type evidenceOut struct {
	TurnID    string  `json:"turn_id"`
	Signature string  `json:"signature"`
	Score     float64 `json:"score"`
	Source    string  `json:"source"`
	Text      string  `json:"text"`
}

type preResponse struct {
	Reliable      bool          `json:"reliable"`
	PackSignature string        `json:"pack_signature"`
	Evidence      []evidenceOut `json:"evidence"`
	EvidenceBlock string        `json:"evidence_block"`
}

func (s *Server) handlePre(w http.ResponseWriter, r *http.Request) {
	defer mark("pre")()

	var req preRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	items, err := s.Retriever.Retrieve(r.Context(), req.TenantID, req.UserID, req.Query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	tuples := make([]signature.EvidenceTuple, len(items))
	evOut := make([]evidenceOut, len(items))
	for i, e := range items {
		tuples[i] = signature.EvidenceTuple{TurnID: e.TurnID, Signature: e.Signature, Score: e.Score, Source: e.Source}
		evOut[i] = evidenceOut{TurnID: e.TurnID, Signature: e.Signature, Score: e.Score, Source: e.Source, Text: e.Text}
	}

	policy := signature.Policy{
		Threshold:    s.Retriever.Policy.Threshold,
		KFinal:       s.Retriever.Policy.KFinal,
		MaxChars:     s.Retriever.Policy.MaxChars,
		BudgetMsHot:  s.Retriever.Policy.BudgetMsHot,
		BudgetMsCold: s.Retriever.Policy.BudgetMsCold,
	}
	sig := signature.PackSignature(req.TenantID, req.UserID, req.Query, policy, tuples)

	writeJSON(w, http.StatusOK, preResponse{
		Reliable:      len(items) > 0,
		PackSignature: sig,
		Evidence:      evOut,
		EvidenceBlock: formatEvidenceBlock(items),
	})
}

// formatEvidenceBlock joins evidence with "\n\n---\n\n" separators and
// a per-item "[SOURCE|turn_id|signature|score=0.xxxxxx]" header, per
// spec.md §6.
func formatEvidenceBlock(items []retriever.EvidenceItem) string {
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, len(items))
	for i, e := range items {
		parts[i] = fmt.Sprintf("[%s|%s|%s|score=%.6f]\n%s", strings.ToUpper(e.Source), e.TurnID, e.Signature, e.Score, e.Text)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

type postRequest struct {
	TenantID         string `json:"tenant_id"`
	UserID           string `json:"user_id"`
	UserMessage      string `json:"user_message"`
	AssistantMessage string `json:"assistant_message"`
}

type postResponse struct {
	Status    string `json:"status"`
	TurnID    string `json:"turn_id"`
	Signature string `json:"signature"`
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	defer mark("post")()

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	turnID, sig, err := s.Retriever.Ingest(r.Context(), req.TenantID, req.UserID, req.UserMessage, req.AssistantMessage, time.Now().Unix())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, postResponse{Status: "ok", TurnID: turnID, Signature: sig})
}

type forgetRequest struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	TurnID   string `json:"turn_id"`
}

type forgetResponse struct {
	Status string `json:"status"`
	TurnID string `json:"turn_id"`
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	defer mark("forget")()

	var req forgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	status := "ok"
	if err := s.Retriever.Forget(r.Context(), req.TenantID, req.UserID, req.TurnID); err != nil {
		status = "not_found"
	}
	writeJSON(w, http.StatusOK, forgetResponse{Status: status, TurnID: req.TurnID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
