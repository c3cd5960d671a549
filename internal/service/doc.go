// Package service implements the business logic of the estimation server.
//
// SurveyService imports, replaces and deletes surveys and their population
// frames. EstimationService runs the direct estimator over a stored survey,
// stores the run, and answers repeated requests with identical inputs from
// the stored run. It also builds coverage reports and exports.
//
// Both services publish events on an EventBus; the SSE hub forwards them to
// connected clients.
package service
