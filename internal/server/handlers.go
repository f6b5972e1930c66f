package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-copilot/internal/audit"
	"github.com/kubilitics/kubilitics-copilot/internal/db"
	"github.com/kubilitics/kubilitics-copilot/internal/diagnosis"
	"github.com/kubilitics/kubilitics-copilot/internal/reasoning/engine"
	"github.com/kubilitics/kubilitics-copilot/pkg/types"
)

// Diagnosis response headers.
const (
	HeaderTier  = "X-Copilot-Tier"
	HeaderModel = "X-Copilot-Model"
	HeaderPath  = "X-Copilot-Path"
)

const readyTimeout = 2 * time.Second

// handleHealthz is the liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealth reports version and whether a live model is configured.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:        "healthy",
		Version:       Version,
		LLMConfigured: s.llmAdapter.IsConfigured(),
	})
}

// handleReady checks the metrics store. A server without a store is always ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": "metrics store unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleInfo describes the running configuration without secrets.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":           "kubilitics-copilot",
		"version":        Version,
		"llm_provider":   string(s.llmAdapter.Provider()),
		"llm_configured": s.llmAdapter.IsConfigured(),
		"models": map[string]string{
			"light": s.config.LLM.LightModel,
			"full":  s.config.LLM.FullModel,
		},
		"routing": map[string]int{
			"max_light_log_chars": s.config.Routing.MaxLightLogChars,
			"max_light_files":     s.config.Routing.MaxLightFiles,
		},
		"retrieval_top_k":    s.config.Retrieval.TopK,
		"context_half_width": s.config.Context.HalfWidth,
		"exemplars":          len(s.exemplars.Examples()),
		"metrics_store":      s.store != nil,
	})
}

// handleDiagnose runs one diagnosis: decode, pipeline, JSON result.
func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	var req types.DiagnoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	out, err := s.engine.Diagnose(r.Context(), s.engineRequest(r.Context(), req), nil)
	if err != nil {
		writeDiagnoseError(w, err)
		return
	}

	w.Header().Set(HeaderTier, string(out.Tier))
	w.Header().Set(HeaderModel, out.Model)
	w.Header().Set(HeaderPath, out.Path)
	writeJSON(w, http.StatusOK, out.Result)
}

func (s *Server) engineRequest(ctx context.Context, req types.DiagnoseRequest) engine.Request {
	return engine.Request{
		RequestID: audit.CorrelationID(ctx),
		Files:     DecodeFiles(req.Files, s.logger.Logger),
		ErrorLog:  req.ErrorLog,
		Summary:   req.Summary,
	}
}

// writeDiagnoseError maps an engine error to a response.
func writeDiagnoseError(w http.ResponseWriter, err error) {
	var schemaErr *diagnosis.ResponseSchemaError
	if errors.As(err, &schemaErr) {
		writeError(w, http.StatusInternalServerError, schemaErr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "Diagnosis failed")
}

// handleMetricsList returns the most recent usage records.
func (s *Server) handleMetricsList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Metrics store not configured")
		return
	}

	limit := db.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.store.ListMetrics(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list metrics")
		return
	}
	writeJSON(w, http.StatusOK, types.MetricsListResponse{Records: records, Count: len(records)})
}

// handleMetricsSummary returns aggregates over the whole metrics table.
func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Metrics store not configured")
		return
	}

	summary, err := s.store.SummarizeMetrics(r.Context())
	if err != nil {
		s.logger.Error("failed to summarize metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to summarize metrics")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// writeJSON encodes v before touching the response so an unencodable value
// becomes a 500 instead of a committed status with an empty body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(types.ErrorResponse{Error: "Failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}
