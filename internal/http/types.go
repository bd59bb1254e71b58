package http

import "github.com/fyrsmithlabs/forge/internal/pipeline"

// RunRequest is the request body for POST /api/v1/runs. The response body
// is the run's delivery.Report.
type RunRequest struct {
	Requirement string   `json:"requirement" validate:"required,max=65536"`
	Title       string   `json:"title,omitempty" validate:"max=200"`
	Language    string   `json:"language,omitempty" validate:"max=32"`
	Sources     []string `json:"sources,omitempty" validate:"max=32,dive,url"`

	// MaxAttempts overrides the configured budget when positive.
	MaxAttempts int `json:"max_attempts,omitempty" validate:"gte=0,lte=20"`
}

// Spec converts the request to a requirement spec.
func (r RunRequest) Spec() pipeline.RequirementSpec {
	return pipeline.RequirementSpec{
		Text:     r.Requirement,
		Title:    r.Title,
		Language: r.Language,
		Sources:  append([]string(nil), r.Sources...),
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned when no report could be produced.
type ErrorResponse struct {
	Error string `json:"error"`
}
