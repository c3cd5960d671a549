// Package handler implements the HTTP JSON API of the estimation server.
//
// SurveyHandler accepts survey uploads (JSON or YAML documents, or CSV
// observation rows) and frame replacements. RunHandler triggers estimation
// runs and serves stored runs, their coverage view and exports.
//
// Errors are returned as JSON with an {error, details} body. Missing
// resources answer 404, malformed bodies and unknown scenarios 400, and
// rows rejected by the estimator's validation 422.
//
// Middleware provides panic recovery, CORS and request logging. The
// Server-Sent Events stream at /events is served by the hub package.
package handler
