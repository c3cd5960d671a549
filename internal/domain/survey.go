package domain

import (
	"sort"
	"time"
)

// Survey bundles a sample with the population frame it was drawn from
type Survey struct {
	ID           string        `json:"id" yaml:"id,omitempty"`
	Name         string        `json:"name" yaml:"name"`
	Observations []Observation `json:"observations" yaml:"observations"`
	Frame        DomainFrame   `json:"frame,omitempty" yaml:"frame,omitempty"`
	CreatedAt    time.Time     `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time     `json:"updated_at" yaml:"-"`
}

// NewSurvey creates a survey with an empty frame
func NewSurvey(id, name string) *Survey {
	now := time.Now()
	return &Survey{
		ID:           id,
		Name:         name,
		Observations: make([]Observation, 0),
		Frame:        NewDomainFrame(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// AddObservation appends an observation to the sample
func (s *Survey) AddObservation(o Observation) {
	s.Observations = append(s.Observations, o)
}

// SampleSizes counts observations per domain
func (s *Survey) SampleSizes() map[string]int {
	counts := make(map[string]int)
	for _, o := range s.Observations {
		counts[o.DomainID]++
	}
	return counts
}

// Weighted reports whether every observation carries a weight
func (s *Survey) Weighted() bool {
	if len(s.Observations) == 0 {
		return false
	}
	for _, o := range s.Observations {
		if !o.HasWeight() {
			return false
		}
	}
	return true
}

// SurveySummary is the list view of a survey without its rows
type SurveySummary struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ObservationCount int       `json:"observation_count"`
	SampledDomains   int       `json:"sampled_domains"`
	FrameDomains     int       `json:"frame_domains"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Summary builds the list view of the survey
func (s *Survey) Summary() SurveySummary {
	return SurveySummary{
		ID:               s.ID,
		Name:             s.Name,
		ObservationCount: len(s.Observations),
		SampledDomains:   len(s.SampleSizes()),
		FrameDomains:     len(s.Frame),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

// EstimationRun records one estimator invocation over a survey
type EstimationRun struct {
	ID          string           `json:"id"`
	SurveyID    string           `json:"survey_id"`
	Scenario    Scenario         `json:"scenario"`
	Fingerprint string           `json:"fingerprint"`
	Estimates   []DirectEstimate `json:"estimates"`
	Warnings    []string         `json:"warnings,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	DurationMS  int64            `json:"duration_ms"`
}

// Estimate returns the estimate for a domain, if the run has one
func (r *EstimationRun) Estimate(domainID string) (DirectEstimate, bool) {
	for _, e := range r.Estimates {
		if e.DomainID == domainID {
			return e, true
		}
	}
	return DirectEstimate{}, false
}

// RunSummary is the list view of a run without its estimate table
type RunSummary struct {
	ID           string    `json:"id"`
	SurveyID     string    `json:"survey_id"`
	Scenario     Scenario  `json:"scenario"`
	Fingerprint  string    `json:"fingerprint"`
	DomainCount  int       `json:"domain_count"`
	WarningCount int       `json:"warning_count"`
	CreatedAt    time.Time `json:"created_at"`
	DurationMS   int64     `json:"duration_ms"`
}

// Summary builds the list view of the run
func (r *EstimationRun) Summary() RunSummary {
	return RunSummary{
		ID:           r.ID,
		SurveyID:     r.SurveyID,
		Scenario:     r.Scenario,
		Fingerprint:  r.Fingerprint,
		DomainCount:  len(r.Estimates),
		WarningCount: len(r.Warnings),
		CreatedAt:    r.CreatedAt,
		DurationMS:   r.DurationMS,
	}
}

// CoverageEntry is one row of the full-domain view: every frame domain plus
// every sampled domain, with the direct estimate when one exists
type CoverageEntry struct {
	DomainID       string          `json:"domain_id"`
	InSample       bool            `json:"in_sample"`
	InFrame        bool            `json:"in_frame"`
	PopulationSize *int64          `json:"population_size,omitempty"`
	Estimate       *DirectEstimate `json:"estimate,omitempty"`
}

// Coverage unions a frame with a set of estimates. Out-of-sample domains get
// an entry with no estimate. Entries are sorted by domain id.
func Coverage(frame DomainFrame, estimates []DirectEstimate) []CoverageEntry {
	byID := make(map[string]*CoverageEntry, len(frame)+len(estimates))

	for id, n := range frame {
		size := n
		byID[id] = &CoverageEntry{DomainID: id, InFrame: true, PopulationSize: &size}
	}

	for i := range estimates {
		est := estimates[i]
		entry, ok := byID[est.DomainID]
		if !ok {
			entry = &CoverageEntry{DomainID: est.DomainID}
			byID[est.DomainID] = entry
		}
		entry.InSample = est.SampleSize > 0
		entry.Estimate = &est
	}

	entries := make([]CoverageEntry, 0, len(byID))
	for _, e := range byID {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DomainID < entries[j].DomainID
	})
	return entries
}
