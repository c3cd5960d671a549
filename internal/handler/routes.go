package handler

import "net/http"

// Register adds the JSON API routes to mux
func Register(mux *http.ServeMux, surveys *SurveyHandler, runs *RunHandler) {
	mux.HandleFunc("GET /api/health", Health)
	mux.HandleFunc("GET /api/scenarios", Scenarios)

	// Surveys
	mux.HandleFunc("GET /api/surveys", surveys.ListSurveys)
	mux.HandleFunc("POST /api/surveys", surveys.CreateSurvey)
	mux.HandleFunc("GET /api/surveys/{id}", surveys.GetSurvey)
	mux.HandleFunc("DELETE /api/surveys/{id}", surveys.DeleteSurvey)
	mux.HandleFunc("PUT /api/surveys/{id}/frame", surveys.UpdateFrame)

	// Estimation runs
	mux.HandleFunc("POST /api/surveys/{id}/estimate", runs.Estimate)
	mux.HandleFunc("GET /api/runs", runs.ListRuns)
	mux.HandleFunc("GET /api/runs/{id}", runs.GetRun)
	mux.HandleFunc("DELETE /api/runs/{id}", runs.DeleteRun)
	mux.HandleFunc("GET /api/runs/{id}/coverage", runs.Coverage)
	mux.HandleFunc("GET /api/runs/{id}/export", runs.Export)
}
