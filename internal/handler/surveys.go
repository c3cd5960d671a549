package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"smallarea/internal/codec"
	"smallarea/internal/domain"
	"smallarea/internal/service"
)

// DefaultMaxUploadBytes bounds survey and frame request bodies
const DefaultMaxUploadBytes = 32 << 20

// SurveyHandler handles survey upload and management requests
type SurveyHandler struct {
	svc       *service.SurveyService
	logger    *slog.Logger
	maxUpload int64
}

// NewSurveyHandler creates a new survey handler
func NewSurveyHandler(svc *service.SurveyService, logger *slog.Logger) *SurveyHandler {
	return &SurveyHandler{
		svc:       svc,
		logger:    loggerOrDefault(logger),
		maxUpload: DefaultMaxUploadBytes,
	}
}

// SetMaxUploadBytes sets the request body limit for uploads
func (h *SurveyHandler) SetMaxUploadBytes(n int64) {
	if n > 0 {
		h.maxUpload = n
	}
}

// ListSurveys returns all survey summaries
func (h *SurveyHandler) ListSurveys(w http.ResponseWriter, r *http.Request) {
	surveys, err := h.svc.ListSurveys(r.Context())
	if err != nil {
		writeServiceError(h.logger, w, "Failed to list surveys", err)
		return
	}
	writeJSON(h.logger, w, surveys, http.StatusOK)
}

// CreateSurvey imports a survey from the request body. JSON and YAML bodies
// carry a name, observations and an optional frame; CSV bodies carry the
// observation rows and take the name from ?name=. With ?replace=true the
// newest survey of the same name is replaced instead.
func (h *SurveyHandler) CreateSurvey(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if kind := q.Get("kind"); kind != "" && kind != "observations" {
		if kind == "frame" {
			h.writeBadRequest(w, "Frames are uploaded per survey", "use PUT /api/surveys/{id}/frame")
			return
		}
		h.writeBadRequest(w, "Invalid kind", fmt.Sprintf("unknown kind %q", kind))
		return
	}

	imp, err := h.importer(r)
	if err != nil {
		h.writeBadRequest(w, "Unsupported format", err.Error())
		return
	}

	survey, err := imp.ParseSurvey(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		h.writeBodyError(w, err)
		return
	}
	if name := strings.TrimSpace(q.Get("name")); name != "" {
		survey.Name = name
	}

	if q.Get("replace") == "true" && survey.Name != "" {
		saved, created, err := h.svc.UpsertSurveyByName(r.Context(), survey)
		if err != nil {
			writeServiceError(h.logger, w, "Failed to import survey", err)
			return
		}
		code := http.StatusOK
		if created {
			code = http.StatusCreated
		}
		writeJSON(h.logger, w, saved.Summary(), code)
		return
	}

	saved, err := h.svc.ImportSurvey(r.Context(), survey)
	if err != nil {
		writeServiceError(h.logger, w, "Failed to import survey", err)
		return
	}
	writeJSON(h.logger, w, saved.Summary(), http.StatusCreated)
}

// GetSurvey returns a survey with its observations and frame
func (h *SurveyHandler) GetSurvey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeBadRequest(w, "Invalid survey ID", "Survey ID is required")
		return
	}

	survey, err := h.svc.GetSurvey(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, "Failed to get survey", err)
		return
	}
	writeJSON(h.logger, w, survey, http.StatusOK)
}

// DeleteSurvey removes a survey and its runs
func (h *SurveyHandler) DeleteSurvey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeBadRequest(w, "Invalid survey ID", "Survey ID is required")
		return
	}

	if err := h.svc.DeleteSurvey(r.Context(), id); err != nil {
		writeServiceError(h.logger, w, "Failed to delete survey", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateFrame replaces a survey's population frame
func (h *SurveyHandler) UpdateFrame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeBadRequest(w, "Invalid survey ID", "Survey ID is required")
		return
	}

	imp, err := h.importer(r)
	if err != nil {
		h.writeBadRequest(w, "Unsupported format", err.Error())
		return
	}

	frame, err := imp.ParseFrame(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		h.writeBodyError(w, err)
		return
	}

	if err := h.svc.UpdateFrame(r.Context(), id, frame); err != nil {
		writeServiceError(h.logger, w, "Failed to update frame", err)
		return
	}
	writeJSON(h.logger, w, map[string]any{
		"survey_id":     id,
		"frame_domains": len(frame),
		"population":    frame.Total(),
	}, http.StatusOK)
}

// importer picks a codec from ?format= or the Content-Type, defaulting to JSON
func (h *SurveyHandler) importer(r *http.Request) (codec.Importer, error) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = codec.FormatFromContentType(r.Header.Get("Content-Type"))
	}
	if format == "" {
		format = "json"
	}
	return codec.NewImporter(format)
}

func (h *SurveyHandler) writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(h.logger, w, "Request body too large", err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if errors.Is(err, io.EOF) {
		h.writeBadRequest(w, "Invalid request body", "request body is empty")
		return
	}
	if domain.IsValidationError(err) {
		writeError(h.logger, w, "Invalid survey data", err.Error(), http.StatusUnprocessableEntity)
		return
	}
	h.writeBadRequest(w, "Invalid request body", err.Error())
}

func (h *SurveyHandler) writeBadRequest(w http.ResponseWriter, msg, details string) {
	writeError(h.logger, w, msg, details, http.StatusBadRequest)
}
