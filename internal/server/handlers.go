package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/plansmith/plansmith/internal/backend"
	"github.com/plansmith/plansmith/internal/errors"
	"github.com/plansmith/plansmith/internal/health"
	"github.com/plansmith/plansmith/internal/orchestrator"
	"github.com/plansmith/plansmith/internal/ux"
)

// maxRequestBytes caps the generate request body. Prompts with a large
// snapshot of existing packets stay well under this.
const maxRequestBytes = 4 << 20

type errorDetail struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
	DocsURL     string   `json:"docs_url,omitempty"`
}

// errorEnvelope is the error body. Response carries the partial outcome
// with its trace when the run got far enough to produce one.
type errorEnvelope struct {
	Error    errorDetail            `json:"error"`
	Response *orchestrator.Response `json:"response,omitempty"`
}

// handleGenerate runs one plan generation.
// POST /v1/plans/generate
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req orchestrator.Request
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest,
			errors.Wrap(errors.ErrCodeServerRequest, "decode generate request", err), nil)
		return
	}

	resp, err := s.generator.Generate(r.Context(), &req)
	if err != nil {
		s.writeError(w, statusForError(err), err, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleBackends reports live availability of the configured backends.
// GET /v1/backends
func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.backendsReport(r.Context()))
}

// backendsReport probes local candidates and classifies the rest by
// kind. Cloud and CLI availability depends on credentials and PATH at
// generation time, so those rows stay unknown here.
func (s *Server) backendsReport(ctx context.Context) ux.BackendsReport {
	probed := make([]backend.Candidate, len(s.candidates))
	copy(probed, s.candidates)
	outcomes := s.prober.Probe(ctx, probed)

	rows := make([]ux.BackendRow, 0, len(probed))
	for i, c := range probed {
		row := ux.BackendRow{
			ID:   c.ID,
			Kind: string(c.Kind),
		}
		switch c.Kind {
		case backend.KindLocalHTTP:
			if outcomes[i].Online {
				row.Status = ux.StatusOnline
				row.LoadedModel = outcomes[i].LoadedModel
				row.LatencyMs = outcomes[i].Latency.Milliseconds()
			} else {
				row.Status = ux.StatusOffline
				row.Detail = outcomes[i].Error
			}
		default:
			row.Status = ux.StatusUnknown
			row.Detail = "availability checked at generation time"
		}
		rows = append(rows, row)
	}
	return ux.BackendsReport{Backends: rows}
}

// handleLiveness handles liveness probe requests.
// GET /healthz
//
// Liveness always returns 200; a shutting-down server is still alive.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := s.probeManager.CheckLiveness(r.Context())
	s.writeProbeResponse(w, result, http.StatusOK)
}

// handleReadiness handles readiness probe requests.
// GET /readyz
//
// Returns 503 while shutting down or when a registered check is
// unhealthy. All local backends being offline only degrades the result;
// the paid fallback can still serve requests.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := s.probeManager.CheckReadiness(r.Context())
	s.writeProbeResponse(w, result, http.StatusServiceUnavailable)
}

// handleOpenAPI serves the document the server was built against.
// GET /openapi.yaml
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(openapiDocument); err != nil {
		s.logger.Warn("write openapi document", "error", err)
	}
}

// writeProbeResponse writes probe responses with consistent error handling.
func (s *Server) writeProbeResponse(w http.ResponseWriter, result *health.ProbeResult, unhealthyStatus int) {
	w.Header().Set("Content-Type", "application/json")

	if result.Status == health.StatusUnhealthy {
		w.WriteHeader(unhealthyStatus)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode response: %v", err), http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error, resp *orchestrator.Response) {
	detail := errorDetail{
		Code:    string(errors.ErrCodeServerInternal),
		Message: err.Error(),
	}
	var perr *errors.PlansmithError
	if stderrors.As(err, &perr) {
		detail = errorDetail{
			Code:        string(perr.Code),
			Message:     perr.Message,
			Suggestions: perr.Suggestions,
			DocsURL:     perr.DocsURL,
		}
		if perr.Cause != nil {
			detail.Message = fmt.Sprintf("%s: %v", perr.Message, perr.Cause)
		}
	}

	s.writeJSON(w, status, errorEnvelope{Error: detail, Response: resp})
}

// statusForError maps an orchestration error to an HTTP status.
func statusForError(err error) int {
	var perr *errors.PlansmithError
	if !stderrors.As(err, &perr) {
		return http.StatusInternalServerError
	}

	switch perr.Code {
	case errors.ErrCodeInvalidRequest, errors.ErrCodeServerRequest:
		return http.StatusBadRequest
	case errors.ErrCodeCredentialMissing, errors.ErrCodeCredentialStore:
		return http.StatusUnauthorized
	case errors.ErrCodeAllBackendsExhausted, errors.ErrCodeBackendUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
