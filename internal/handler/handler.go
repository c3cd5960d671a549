package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"smallarea/internal/domain"
	"smallarea/internal/repository"
	"smallarea/internal/service"
)

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Health reports that the server is up
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(slog.Default(), w, map[string]string{"status": "ok"}, http.StatusOK)
}

// Scenarios lists the supported design scenarios
func Scenarios(w http.ResponseWriter, r *http.Request) {
	type scenarioInfo struct {
		Name          domain.Scenario     `json:"name"`
		Config        domain.DesignConfig `json:"config"`
		RequiresFrame bool                `json:"requires_frame"`
		Description   string              `json:"description"`
	}

	out := make([]scenarioInfo, 0, len(domain.AllScenarios))
	for _, s := range domain.AllScenarios {
		out = append(out, scenarioInfo{
			Name:          s,
			Config:        s.Config(),
			RequiresFrame: s.RequiresFrame(),
			Description:   s.Description(),
		})
	}
	writeJSON(slog.Default(), w, out, http.StatusOK)
}

// statusFor maps a service error to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmptySurvey), errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case domain.IsValidationError(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with the status it maps to. Server-side
// failures are logged.
func writeServiceError(logger *slog.Logger, w http.ResponseWriter, msg string, err error) {
	code := statusFor(err)
	switch code {
	case http.StatusNotFound:
		msg = "Not found"
	case http.StatusInternalServerError:
		logger.Error(msg, "error", err)
	}
	writeError(logger, w, msg, err.Error(), code)
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode JSON", "error", err)
	}
}

func writeError(logger *slog.Logger, w http.ResponseWriter, error, details string, statusCode int) {
	writeJSON(logger, w, ErrorResponse{Error: error, Details: details}, statusCode)
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
