package model

import "time"

// AnalysisStatus represents the current state of an analysis run.
type AnalysisStatus string

const (
	AnalysisPending   AnalysisStatus = "pending"
	AnalysisRunning   AnalysisStatus = "running"
	AnalysisCompleted AnalysisStatus = "completed"
	AnalysisFailed    AnalysisStatus = "failed"
	AnalysisStopped   AnalysisStatus = "stopped"
)

// Terminal reports whether the status admits no further mutation.
func (s AnalysisStatus) Terminal() bool {
	switch s {
	case AnalysisCompleted, AnalysisFailed, AnalysisStopped:
		return true
	default:
		return false
	}
}

// Analysis is the durable record of one pipeline run over a scenario.
// It is mutated exclusively by the orchestrator via partial updates.
type Analysis struct {
	ID             string           `json:"id"`
	ScenarioID     string           `json:"scenario_id"`
	Status         AnalysisStatus   `json:"status"`
	Progress       int              `json:"progress"`
	CurrentPhase   int              `json:"current_phase"`
	Results        []YearResult     `json:"results,omitempty"`
	PartialResults []PartialResult  `json:"partial_results,omitempty"`
	MarkdownReport string           `json:"markdown_report,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// ExpertAnalysis is one expert's phase-1 take on the scenario for one year.
type ExpertAnalysis struct {
	ExpertName      string    `json:"expert_name"`
	ExpertRole      string    `json:"expert_role"`
	Year            int       `json:"year"`
	Content         string    `json:"content"`
	Recommendations []string  `json:"recommendations"`
	CompletedAt     time.Time `json:"completed_at"`
}

// YearResult is the compiled output for a single target year. Phases 1-2 are
// per-year; the phase 3-5 texts are computed once against the aggregate and
// duplicated into every year bucket (kept for compatibility with consumers
// that read each bucket as self-contained).
type YearResult struct {
	Year                 int              `json:"year"`
	ExpertAnalyses       []ExpertAnalysis `json:"expert_analyses"`
	ScenarioText         string           `json:"scenario_text"`
	LongTermPerspective  string           `json:"long_term_perspective"`
	StrategicAlignment   string           `json:"strategic_alignment"`
	IntegratedSimulation string           `json:"integrated_simulation"`
}

// PartialResult is one progressively-emitted fragment retained on the
// Analysis record. The slice is append-only across a run.
type PartialResult struct {
	Type        string    `json:"type"`
	Phase       int       `json:"phase"`
	Year        int       `json:"year,omitempty"`
	Expert      string    `json:"expert,omitempty"`
	Title       string    `json:"title,omitempty"`
	Content     string    `json:"content"`
	CompletedAt time.Time `json:"completed_at"`
}
