package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenariolab/foresight/internal/model"
	"github.com/scenariolab/foresight/internal/progress"
	"github.com/scenariolab/foresight/internal/store"
	"github.com/scenariolab/foresight/pkg/anthropic"
	"github.com/scenariolab/foresight/pkg/anthropic/anthropictest"
)

// memStore is an in-memory store.Store for orchestrator tests. The optional
// onUpdate hook observes every applied update in order.
type memStore struct {
	mu        sync.Mutex
	analyses  map[string]*model.Analysis
	scenarios map[string]*model.Scenario
	experts   []model.Expert
	onUpdate  func(upd store.AnalysisUpdate)
}

func newMemStore() *memStore {
	return &memStore{
		analyses:  make(map[string]*model.Analysis),
		scenarios: make(map[string]*model.Scenario),
	}
}

func (m *memStore) CreateAnalysis(_ context.Context, scenarioID string) (*model.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &model.Analysis{
		ID:         "analysis-" + scenarioID,
		ScenarioID: scenarioID,
		Status:     model.AnalysisPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	m.analyses[a.ID] = a
	return cloneAnalysis(a), nil
}

func (m *memStore) GetAnalysis(_ context.Context, id string) (*model.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.analyses[id]
	if !ok {
		return nil, nil
	}
	return cloneAnalysis(a), nil
}

func (m *memStore) UpdateAnalysis(_ context.Context, id string, upd store.AnalysisUpdate) (*model.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.analyses[id]
	if !ok {
		return nil, nil
	}
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
	a.UpdatedAt = time.Now()
	if m.onUpdate != nil {
		m.onUpdate(upd)
	}
	return cloneAnalysis(a), nil
}

func (m *memStore) ListAnalyses(context.Context, store.AnalysisFilter) ([]model.Analysis, error) {
	return nil, nil
}

func (m *memStore) CreateExpert(_ context.Context, e *model.Expert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.experts = append(m.experts, *e)
	return nil
}

func (m *memStore) ListExperts(context.Context) ([]model.Expert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Expert, len(m.experts))
	copy(out, m.experts)
	return out, nil
}

func (m *memStore) CreateScenario(_ context.Context, sc *model.Scenario) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenarios[sc.ID] = sc
	return nil
}

func (m *memStore) GetScenario(_ context.Context, id string) (*model.Scenario, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scenarios[id]
	if !ok {
		return nil, nil
	}
	out := *sc
	return &out, nil
}

func (m *memStore) ListScenarios(context.Context) ([]model.Scenario, error) { return nil, nil }
func (m *memStore) Migrate(context.Context) error                          { return nil }
func (m *memStore) Close() error                                           { return nil }

func (m *memStore) setStatus(id string, status model.AnalysisStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[id].Status = status
}

func cloneAnalysis(a *model.Analysis) *model.Analysis {
	out := *a
	out.Results = append([]model.YearResult(nil), a.Results...)
	out.PartialResults = append([]model.PartialResult(nil), a.PartialResults...)
	return &out
}

func testProfile() anthropic.Profile {
	return anthropic.Profile{
		MaxCallTimeout: 2 * time.Second,
		MaxAttempts:    1,
		MaxTokens:      256,
		Temperature:    0.3,
	}
}

// seedRun prepares a scenario, experts, and a pending analysis.
func seedRun(t *testing.T, st *memStore, years []int, expertNames ...string) *model.Analysis {
	t.Helper()
	sc := &model.Scenario{
		ID:              "sc-1",
		Theme:           "Autonomous logistics",
		CurrentStrategy: "Regional hub consolidation",
		TargetYears:     years,
		CharacterCount:  1500,
	}
	require.NoError(t, st.CreateScenario(context.Background(), sc))
	for _, name := range expertNames {
		require.NoError(t, st.CreateExpert(context.Background(), &model.Expert{
			Name:           name,
			Role:           "Analyst",
			Specialization: "Logistics",
		}))
	}
	a, err := st.CreateAnalysis(context.Background(), sc.ID)
	require.NoError(t, err)
	return a
}

// respond scripts the fake client: expert-analysis prompts get structured
// JSON, everything else plain prose.
func respond(prompt string) (string, error) {
	if strings.Contains(prompt, "single JSON object") {
		return `{"content": "Expert view.", "recommendations": ["Act early"]}`, nil
	}
	return "Narrative text.", nil
}

func TestRunCompletesAllPhases(t *testing.T) {
	st := newMemStore()
	a := seedRun(t, st, []int{2035, 2030}, "Ada", "Grace")

	gen := anthropictest.NewScripted(respond)
	o := New(Config{Profile: testProfile()}, st, gen, progress.NewHub())

	require.NoError(t, o.Run(context.Background(), a.ID))

	got, err := st.GetAnalysis(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Empty(t, got.Error)
	assert.NotEmpty(t, got.MarkdownReport)

	// 2 years x 2 experts + 2 year scenarios + 3 single phases.
	assert.Equal(t, 9, gen.Calls())

	require.Len(t, got.Results, 2)
	assert.Equal(t, 2030, got.Results[0].Year)
	assert.Equal(t, 2035, got.Results[1].Year)
	for _, r := range got.Results {
		assert.Len(t, r.ExpertAnalyses, 2)
		assert.Equal(t, "Narrative text.", r.ScenarioText)
		assert.Equal(t, "Narrative text.", r.LongTermPerspective)
		assert.Equal(t, "Narrative text.", r.StrategicAlignment)
		assert.Equal(t, "Narrative text.", r.IntegratedSimulation)
		for _, ea := range r.ExpertAnalyses {
			assert.Equal(t, "Expert view.", ea.Content)
			assert.Equal(t, []string{"Act early"}, ea.Recommendations)
		}
	}
}

func TestRunToleratesExpertFailure(t *testing.T) {
	st := newMemStore()
	a := seedRun(t, st, []int{2030}, "Ada", "Grace")

	gen := anthropictest.NewScripted(func(prompt string) (string, error) {
		if strings.Contains(prompt, "Grace") {
			return "", eris.New("upstream exploded")
		}
		return respond(prompt)
	})
	o := New(Config{Profile: testProfile()}, st, gen, progress.NewHub())

	require.NoError(t, o.Run(context.Background(), a.ID))

	got, err := st.GetAnalysis(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisCompleted, got.Status)
	require.Len(t, got.Results, 1)
	require.Len(t, got.Results[0].ExpertAnalyses, 1)
	assert.Equal(t, "Ada", got.Results[0].ExpertAnalyses[0].ExpertName)
}

func TestRunSinglePhaseFailureIsFatal(t *testing.T) {
	st := newMemStore()
	a := seedRun(t, st, []int{2030}, "Ada")

	gen := anthropictest.NewScripted(func(prompt string) (string, error) {
		if strings.Contains(prompt, "Looking back from") {
			return "", eris.New("upstream exploded")
		}
		return respond(prompt)
	})
	o := New(Config{Profile: testProfile()}, st, gen, progress.NewHub())

	err := o.Run(context.Background(), a.ID)
	require.Error(t, err)

	got, getErr := st.GetAnalysis(context.Background(), a.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.AnalysisFailed, got.Status)
	assert.Contains(t, got.Error, "phase 3")
	assert.Empty(t, got.MarkdownReport)
	// Partials from the completed phases survive the failure.
	assert.NotEmpty(t, got.PartialResults)
}

func TestRunHonorsStopAfterPhaseOne(t *testing.T) {
	st := newMemStore()
	a := seedRun(t, st, []int{2030}, "Ada")

	// The stop request lands while phase 1 is in flight.
	gen := anthropictest.NewScripted(func(prompt string) (string, error) {
		if strings.Contains(prompt, "single JSON object") {
			st.setStatus(a.ID, model.AnalysisStopped)
		}
		return respond(prompt)
	})
	o := New(Config{Profile: testProfile()}, st, gen, progress.NewHub())

	require.NoError(t, o.Run(context.Background(), a.ID))

	got, err := st.GetAnalysis(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisStopped, got.Status)
	assert.Empty(t, got.MarkdownReport)
	// Only the phase 1 call ran; the boundary check blocked phases 2-5.
	assert.Equal(t, 1, gen.Calls())
}

func TestRunNeverResurrectsTerminalAnalysis(t *testing.T) {
	st := newMemStore()
	a := seedRun(t, st, []int{2030}, "Ada")
	st.setStatus(a.ID, model.AnalysisStopped)

	gen := anthropictest.NewScripted(respond)
	o := New(Config{Profile: testProfile()}, st, gen, progress.NewHub())

	require.NoError(t, o.Run(context.Background(), a.ID))

	got, err := st.GetAnalysis(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisStopped, got.Status)
	assert.Zero(t, gen.Calls())
}

func TestRunProgressIsMonotonic(t *testing.T) {
	st := newMemStore()
	var progressWrites []int
	st.onUpdate = func(upd store.AnalysisUpdate) {
		if upd.Progress != nil {
			progressWrites = append(progressWrites, *upd.Progress)
		}
	}
	a := seedRun(t, st, []int{2030, 2035, 2040}, "Ada", "Grace")

	gen := anthropictest.NewScripted(respond)
	o := New(Config{Profile: testProfile()}, st, gen, progress.NewHub())

	require.NoError(t, o.Run(context.Background(), a.ID))

	require.NotEmpty(t, progressWrites)
	for i := 1; i < len(progressWrites); i++ {
		assert.GreaterOrEqual(t, progressWrites[i], progressWrites[i-1])
	}
	assert.Equal(t, 100, progressWrites[len(progressWrites)-1])
}

func TestRunPublishesPartialEvents(t *testing.T) {
	st := newMemStore()
	a := seedRun(t, st, []int{2030}, "Ada")

	hub := progress.NewHub()
	events, cancel := hub.Subscribe(a.ID)
	defer cancel()

	gen := anthropictest.NewScripted(respond)
	o := New(Config{Profile: testProfile()}, st, gen, hub)
	require.NoError(t, o.Run(context.Background(), a.ID))

	seen := map[progress.EventType]int{}
	for {
		select {
		case ev := <-events:
			seen[ev.Type]++
		default:
			assert.Equal(t, 1, seen[progress.EventPartialExpertAnalysis])
			assert.Equal(t, 1, seen[progress.EventPartialYearScenario])
			assert.Equal(t, 3, seen[progress.EventPartialPhaseResult])
			assert.GreaterOrEqual(t, seen[progress.EventLog], 2)
			return
		}
	}
}

func TestParseExpertResponse(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantContent string
		wantRecs    []string
	}{
		{
			name:        "clean json",
			in:          `{"content": "Analysis.", "recommendations": ["a", "b"]}`,
			wantContent: "Analysis.",
			wantRecs:    []string{"a", "b"},
		},
		{
			name:        "json wrapped in prose",
			in:          "Here you go:\n{\"content\": \"Analysis.\", \"recommendations\": []}\nDone.",
			wantContent: "Analysis.",
			wantRecs:    []string{},
		},
		{
			name:        "null recommendations coerced",
			in:          `{"content": "Analysis.", "recommendations": null}`,
			wantContent: "Analysis.",
			wantRecs:    []string{},
		},
		{
			name:        "plain prose kept whole",
			in:          "  Just prose, no structure.  ",
			wantContent: "Just prose, no structure.",
			wantRecs:    []string{},
		},
		{
			name:        "malformed json kept whole",
			in:          `{"content": "broken`,
			wantContent: `{"content": "broken`,
			wantRecs:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, recs := parseExpertResponse(tt.in)
			assert.Equal(t, tt.wantContent, content)
			assert.Equal(t, tt.wantRecs, recs)
		})
	}
}
