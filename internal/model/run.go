package model

import "time"

// ExtractionMethod records which path produced a record.
type ExtractionMethod string

const (
	MethodAgent    ExtractionMethod = "agent"
	MethodFallback ExtractionMethod = "fallback"
)

// SearchBatch is the ordered result list for one query.
type SearchBatch struct {
	Query string   `json:"query"`
	URLs  []string `json:"urls"`
}

// Extraction pairs a processed URL with its record and provenance.
type Extraction struct {
	URL    string           `json:"url"`
	Record ServiceRecord    `json:"record"`
	Method ExtractionMethod `json:"method"`
	Error  string           `json:"error,omitempty"`
}

// RunInput is the tuple a pipeline run starts from.
type RunInput struct {
	City     string   `json:"city"`
	State    string   `json:"state"`
	Category Category `json:"category"`
	PerQuery int      `json:"perQuery,omitempty"`
	MaxURLs  int      `json:"maxUrls,omitempty"`
}

// PipelineRun is the immutable result of one orchestrator invocation.
type PipelineRun struct {
	ID            string        `json:"id"`
	Input         RunInput      `json:"input"`
	Queries       []string      `json:"queries"`
	SearchResults []SearchBatch `json:"searchResults"`
	CandidateURLs []string      `json:"candidateUrls"`
	Extracted     []Extraction  `json:"extracted"`
	StartedAt     time.Time     `json:"startedAt"`
	FinishedAt    time.Time     `json:"finishedAt"`
}

// Records returns the sanity documents in processing order.
func (r *PipelineRun) Records() []ServiceRecord {
	out := make([]ServiceRecord, 0, len(r.Extracted))
	for _, e := range r.Extracted {
		out = append(out, e.Record)
	}
	return out
}
