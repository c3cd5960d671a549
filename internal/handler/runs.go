package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"smallarea/internal/codec"
	"smallarea/internal/domain"
	"smallarea/internal/service"
)

// RunHandler handles estimation requests and stored runs
type RunHandler struct {
	svc             *service.EstimationService
	logger          *slog.Logger
	defaultScenario domain.Scenario
}

// NewRunHandler creates a new run handler. Requests that name no scenario
// fall back to defaultScenario.
func NewRunHandler(svc *service.EstimationService, defaultScenario domain.Scenario, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		svc:             svc,
		logger:          loggerOrDefault(logger),
		defaultScenario: defaultScenario,
	}
}

// RunResponse is a run's estimate table with precision measures
type RunResponse struct {
	codec.RunDocument
	CreatedAt  time.Time `json:"created_at"`
	DurationMS int64     `json:"duration_ms"`
	Cached     bool      `json:"cached"`
}

func newRunResponse(run *domain.EstimationRun, cached bool) RunResponse {
	return RunResponse{
		RunDocument: codec.NewRunDocument(run),
		CreatedAt:   run.CreatedAt,
		DurationMS:  run.DurationMS,
		Cached:      cached,
	}
}

// Estimate runs the estimator over a stored survey. An empty body uses the
// default scenario. A fresh run answers 201, a cached one 200.
func (h *RunHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	surveyID := r.PathValue("id")
	if surveyID == "" {
		writeError(h.logger, w, "Invalid survey ID", "Survey ID is required", http.StatusBadRequest)
		return
	}

	var req service.RunRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(h.logger, w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("force") == "true" {
		req.Force = true
	}

	run, cached, err := h.svc.Estimate(r.Context(), surveyID, req, h.defaultScenario)
	if err != nil {
		writeServiceError(h.logger, w, "Failed to estimate", err)
		return
	}

	code := http.StatusCreated
	if cached {
		code = http.StatusOK
	}
	writeJSON(h.logger, w, newRunResponse(run, cached), code)
}

// ListRuns returns run summaries, filtered by ?survey_id=
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.ListRuns(r.Context(), r.URL.Query().Get("survey_id"))
	if err != nil {
		writeServiceError(h.logger, w, "Failed to list runs", err)
		return
	}
	writeJSON(h.logger, w, runs, http.StatusOK)
}

// GetRun returns a run's estimate table
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(h.logger, w, "Failed to get run", err)
		return
	}
	writeJSON(h.logger, w, newRunResponse(run, false), http.StatusOK)
}

// DeleteRun removes a stored run
func (h *RunHandler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRun(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(h.logger, w, "Failed to delete run", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Coverage returns every frame and sampled domain with its estimate, if any.
// With ?format= the table is rendered as an export instead.
func (h *RunHandler) Coverage(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Coverage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(h.logger, w, "Failed to build coverage", err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		writeJSON(h.logger, w, entries, http.StatusOK)
		return
	}

	var buf bytes.Buffer
	if err := codec.ExportCoverage(entries, format, &buf); err != nil {
		writeError(h.logger, w, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", codec.ContentType(format))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("failed to write coverage", "error", err)
	}
}

// Export downloads a run's estimate table as ?format=csv|tsv|json|yaml
func (h *RunHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	exp, err := codec.NewExporter(format)
	if err != nil {
		writeError(h.logger, w, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}

	// Buffer so a failure can still be reported as a JSON error
	var buf bytes.Buffer
	if err := h.svc.Export(r.Context(), id, exp.Format(), &buf); err != nil {
		writeServiceError(h.logger, w, "Failed to export run", err)
		return
	}

	w.Header().Set("Content-Type", codec.ContentType(exp.Format()))
	w.Header().Set("Content-Disposition", "attachment; filename=estimates-"+id+"."+exp.Format())
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("failed to write export", "run_id", id, "error", err)
	}
}
