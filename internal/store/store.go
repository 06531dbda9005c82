// Package store persists experts, scenarios, and analyses behind a single
// interface with SQLite and Postgres backends.
package store

import (
	"context"

	"github.com/scenariolab/foresight/internal/model"
)

// AnalysisFilter specifies criteria for listing analyses.
type AnalysisFilter struct {
	Status     model.AnalysisStatus `json:"status,omitempty"`
	ScenarioID string               `json:"scenario_id,omitempty"`
	Limit      int                  `json:"limit,omitempty"`
	Offset     int                  `json:"offset,omitempty"`
}

// AnalysisUpdate is a partial mutation of an Analysis record. Nil fields are
// left unchanged; AppendPartials is appended to the existing slice. Every
// applied update bumps updated_at. Backends apply the merge atomically
// against the current row, so concurrent writers (fan-out tasks, the stop
// handler) cannot erase each other's appends, and an update against a
// terminal record is a no-op that returns the record unchanged.
type AnalysisUpdate struct {
	Status         *model.AnalysisStatus
	Progress       *int
	CurrentPhase   *int
	Results        []model.YearResult
	AppendPartials []model.PartialResult
	MarkdownReport *string
	Error          *string
}

// Store defines the persistence interface for the analysis pipeline.
type Store interface {
	// Analyses
	CreateAnalysis(ctx context.Context, scenarioID string) (*model.Analysis, error)
	GetAnalysis(ctx context.Context, id string) (*model.Analysis, error)
	UpdateAnalysis(ctx context.Context, id string, upd AnalysisUpdate) (*model.Analysis, error)
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error)

	// Experts
	CreateExpert(ctx context.Context, expert *model.Expert) error
	ListExperts(ctx context.Context) ([]model.Expert, error)

	// Scenarios
	CreateScenario(ctx context.Context, scenario *model.Scenario) error
	GetScenario(ctx context.Context, id string) (*model.Scenario, error)
	ListScenarios(ctx context.Context) ([]model.Scenario, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// applyUpdate merges upd into a, in place. Shared by both backends so the
// merge semantics cannot drift.
func applyUpdate(a *model.Analysis, upd AnalysisUpdate) {
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	if upd.Progress != nil {
		a.Progress = *upd.Progress
	}
	if upd.CurrentPhase != nil {
		a.CurrentPhase = *upd.CurrentPhase
	}
	if upd.Results != nil {
		a.Results = upd.Results
	}
	if len(upd.AppendPartials) > 0 {
		a.PartialResults = append(a.PartialResults, upd.AppendPartials...)
	}
	if upd.MarkdownReport != nil {
		a.MarkdownReport = *upd.MarkdownReport
	}
	if upd.Error != nil {
		a.Error = *upd.Error
	}
}
