// Package pipeline orchestrates the five-phase, multi-year scenario
// analysis: per-expert fan-out, per-year synthesis, long-term perspective,
// strategic alignment, and the final integrated simulation.
package pipeline

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scenariolab/foresight/internal/model"
	"github.com/scenariolab/foresight/internal/progress"
	"github.com/scenariolab/foresight/internal/resilience"
	"github.com/scenariolab/foresight/internal/store"
	"github.com/scenariolab/foresight/pkg/anthropic"
)

// Config controls pipeline behavior.
type Config struct {
	// Model is the generation model used when the scenario does not name one.
	Model string

	// Concurrency caps simultaneous generation calls in fan-out phases.
	Concurrency int

	// Profile bounds each individual generation call.
	Profile anthropic.Profile

	// Retry applies to each generation call; only qualifying upstream
	// failures are retried.
	Retry resilience.RetryConfig
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = anthropic.Qualifying
	return Config{
		Model:       "claude-sonnet-4-5-20250929",
		Concurrency: DefaultConcurrency,
		Profile:     anthropic.DetailedProfile(),
		Retry:       retry,
	}
}

// Orchestrator drives one analysis at a time through the phase sequence.
// Stop is cooperative: the analysis status is re-read at phase boundaries,
// and every store write is conditioned on the record still being
// non-terminal, so a stopped analysis is never resurrected by stragglers.
type Orchestrator struct {
	cfg     Config
	store   store.Store
	gen     anthropic.Client
	hub     *progress.Hub
	limiter *Limiter

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates an Orchestrator with all dependencies.
func New(cfg Config, st store.Store, gen anthropic.Client, hub *progress.Hub) *Orchestrator {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Profile.MaxCallTimeout <= 0 {
		cfg.Profile = def.Profile
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry = def.Retry
	}
	return &Orchestrator{
		cfg:     cfg,
		store:   st,
		gen:     gen,
		hub:     hub,
		limiter: NewLimiter(cfg.Concurrency),
		nowFunc: time.Now,
	}
}

// progressTracker converts settled steps into a monotonic percentage.
// Phase 1 counts as one step regardless of fan-out size; phase 2 counts one
// step per year; phases 3-5 one step each.
type progressTracker struct {
	mu        sync.Mutex
	completed int
	total     int
}

func (t *progressTracker) step() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed++
	pct := t.completed * 100 / t.total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Run executes the full phase sequence for analysisID. Errors escaping the
// phase sequence mark the analysis failed; partial progress already
// persisted is left in place.
func (o *Orchestrator) Run(ctx context.Context, analysisID string) error {
	log := zap.L().With(zap.String("analysis_id", analysisID))

	if err := o.run(ctx, analysisID, log); err != nil {
		log.Error("pipeline: analysis failed", zap.Error(err))
		failed := model.AnalysisFailed
		msg := err.Error()
		o.update(ctx, analysisID, store.AnalysisUpdate{Status: &failed, Error: &msg})
		return err
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, analysisID string, log *zap.Logger) error {
	analysis, err := o.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load analysis")
	}
	if analysis == nil {
		return eris.Errorf("pipeline: analysis %s not found", analysisID)
	}

	scenario, err := o.store.GetScenario(ctx, analysis.ScenarioID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load scenario")
	}
	if scenario == nil {
		return eris.Errorf("pipeline: scenario %s not found", analysis.ScenarioID)
	}
	scenario.ClampCharacterCount()
	if len(scenario.TargetYears) == 0 {
		return eris.New("pipeline: scenario has no target years")
	}

	// The expert list is snapshotted here; later edits to expert records do
	// not affect this run.
	experts, err := o.store.ListExperts(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: load experts")
	}

	tracker := &progressTracker{total: 1 + len(scenario.TargetYears) + 3}

	if o.halted(ctx, analysisID) {
		log.Info("pipeline: stop observed before phase 1")
		return nil
	}

	running := model.AnalysisRunning
	o.setPhase(ctx, analysisID, 1, &running)
	o.publishLog(analysisID, "analysis started")
	log.Info("pipeline: starting analysis",
		zap.Ints("target_years", scenario.TargetYears),
		zap.Int("experts", len(experts)),
	)

	// ===== Phase 1: expert analysis (experts × years fan-out) =====
	byYear := o.runExpertPhase(ctx, analysisID, scenario, experts, log)
	o.setProgress(ctx, analysisID, tracker.step())

	if o.halted(ctx, analysisID) {
		log.Info("pipeline: stop observed after phase 1")
		return nil
	}

	// ===== Phase 2: per-year scenario synthesis =====
	o.setPhase(ctx, analysisID, 2, nil)
	yearScenarios := o.runYearScenarioPhase(ctx, analysisID, scenario, byYear, tracker, log)

	// ===== Phase 3: long-term perspective =====
	o.setPhase(ctx, analysisID, 3, nil)
	vantage := scenario.MaxTargetYear() + 10
	longTerm, err := o.runSinglePhase(ctx, analysisID, 3, "Long-term perspective",
		longTermPrompt(scenario, vantage, yearScenarios), scenario.Model, tracker)
	if err != nil {
		return err
	}

	if o.halted(ctx, analysisID) {
		log.Info("pipeline: stop observed after phase 3")
		return nil
	}

	// ===== Phase 4: strategic alignment evaluation =====
	o.setPhase(ctx, analysisID, 4, nil)
	alignment, err := o.runSinglePhase(ctx, analysisID, 4, "Strategic alignment",
		alignmentPrompt(scenario, yearScenarios, longTerm), scenario.Model, tracker)
	if err != nil {
		return err
	}

	// ===== Phase 5: integrated simulation =====
	o.setPhase(ctx, analysisID, 5, nil)
	simulation, err := o.runSinglePhase(ctx, analysisID, 5, "Integrated simulation",
		simulationPrompt(scenario, yearScenarios, longTerm, alignment), scenario.Model, tracker)
	if err != nil {
		return err
	}

	results := compileResults(scenario.TargetYears, byYear, yearScenarios, longTerm, alignment, simulation)
	report := RenderReport(scenario, results)

	completed := model.AnalysisCompleted
	hundred := 100
	o.update(ctx, analysisID, store.AnalysisUpdate{
		Status:         &completed,
		Progress:       &hundred,
		Results:        results,
		MarkdownReport: &report,
	})
	o.publishLog(analysisID, "analysis complete")
	log.Info("pipeline: analysis complete", zap.Int("years", len(results)))
	return nil
}

// runExpertPhase fans out one task per (expert, year) pair under the
// limiter. Individual failures are logged and recorded, never phase-fatal;
// a year with zero successful experts proceeds with an empty analysis list.
func (o *Orchestrator) runExpertPhase(ctx context.Context, analysisID string, scenario *model.Scenario, experts []model.Expert, log *zap.Logger) map[int][]model.ExpertAnalysis {
	g, gCtx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	byYear := make(map[int][]model.ExpertAnalysis, len(scenario.TargetYears))

	for _, year := range scenario.TargetYears {
		for _, expert := range experts {
			g.Go(func() error {
				limErr := o.limiter.Do(gCtx, func() {
					ea, err := o.analyzeAsExpert(gCtx, scenario, expert, year)
					if err != nil {
						log.Warn("pipeline: expert analysis failed",
							zap.String("expert", expert.Name),
							zap.Int("year", year),
							zap.Error(err),
						)
						o.publishLog(analysisID, "expert analysis failed: "+expert.Name)
						return
					}

					// Grouping key is the year tagged onto the task, not
					// completion position.
					mu.Lock()
					byYear[year] = append(byYear[year], ea)
					mu.Unlock()

					o.hub.Publish(analysisID, progress.Event{
						Type: progress.EventPartialExpertAnalysis,
						Payload: progress.ExpertAnalysisPayload{
							Expert:          ea.ExpertName,
							Year:            ea.Year,
							Content:         ea.Content,
							Recommendations: ea.Recommendations,
							CompletedAt:     ea.CompletedAt,
						},
					})
					o.update(gCtx, analysisID, store.AnalysisUpdate{
						AppendPartials: []model.PartialResult{{
							Type:        string(progress.EventPartialExpertAnalysis),
							Phase:       1,
							Year:        ea.Year,
							Expert:      ea.ExpertName,
							Content:     ea.Content,
							CompletedAt: ea.CompletedAt,
						}},
					})
				})
				if limErr != nil {
					log.Debug("pipeline: task cancelled while queued", zap.Error(limErr))
				}
				return nil // per-task errors never abort the phase
			})
		}
	}
	_ = g.Wait()
	return byYear
}

// runYearScenarioPhase fans out one synthesis task per year. A failed year
// yields an empty scenario text for later phases rather than aborting.
func (o *Orchestrator) runYearScenarioPhase(ctx context.Context, analysisID string, scenario *model.Scenario, byYear map[int][]model.ExpertAnalysis, tracker *progressTracker, log *zap.Logger) map[int]string {
	g, gCtx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	yearScenarios := make(map[int]string, len(scenario.TargetYears))

	for _, year := range scenario.TargetYears {
		g.Go(func() error {
			_ = o.limiter.Do(gCtx, func() {
				text, err := o.generate(gCtx, scenario.Model, yearScenarioPrompt(scenario, year, byYear[year]))
				completedAt := o.nowFunc()

				mu.Lock()
				if err != nil {
					yearScenarios[year] = ""
				} else {
					yearScenarios[year] = text
				}
				mu.Unlock()

				if err != nil {
					log.Warn("pipeline: year scenario failed", zap.Int("year", year), zap.Error(err))
					o.publishLog(analysisID, "year scenario failed")
				} else {
					o.hub.Publish(analysisID, progress.Event{
						Type: progress.EventPartialYearScenario,
						Payload: progress.YearScenarioPayload{
							Year:        year,
							Content:     text,
							CompletedAt: completedAt,
						},
					})
					o.update(gCtx, analysisID, store.AnalysisUpdate{
						AppendPartials: []model.PartialResult{{
							Type:        string(progress.EventPartialYearScenario),
							Phase:       2,
							Year:        year,
							Content:     text,
							CompletedAt: completedAt,
						}},
					})
				}
				// A failed year still settles its progress unit.
				o.setProgress(gCtx, analysisID, tracker.step())
			})
			return nil
		})
	}
	_ = g.Wait()
	return yearScenarios
}

// runSinglePhase issues one generation call for phases 3-5. Unlike fan-out
// tasks, a failure here escapes the phase sequence and fails the analysis.
func (o *Orchestrator) runSinglePhase(ctx context.Context, analysisID string, phase int, title, prompt, modelID string, tracker *progressTracker) (string, error) {
	text, err := o.generate(ctx, modelID, prompt)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: phase %d (%s)", phase, title)
	}

	completedAt := o.nowFunc()
	o.hub.Publish(analysisID, progress.Event{
		Type: progress.EventPartialPhaseResult,
		Payload: progress.PhaseResultPayload{
			Phase:       phase,
			Title:       title,
			Content:     text,
			CompletedAt: completedAt,
		},
	})
	o.update(ctx, analysisID, store.AnalysisUpdate{
		AppendPartials: []model.PartialResult{{
			Type:        string(progress.EventPartialPhaseResult),
			Phase:       phase,
			Title:       title,
			Content:     text,
			CompletedAt: completedAt,
		}},
	})
	o.setProgress(ctx, analysisID, tracker.step())
	return text, nil
}

// analyzeAsExpert runs one (expert, year) generation call and parses the
// structured response, accepting plain prose as a degraded form.
func (o *Orchestrator) analyzeAsExpert(ctx context.Context, scenario *model.Scenario, expert model.Expert, year int) (model.ExpertAnalysis, error) {
	text, err := o.generate(ctx, scenario.Model, expertAnalysisPrompt(scenario, expert, year))
	if err != nil {
		return model.ExpertAnalysis{}, err
	}

	content, recommendations := parseExpertResponse(text)
	return model.ExpertAnalysis{
		ExpertName:      expert.Name,
		ExpertRole:      expert.Role,
		Year:            year,
		Content:         content,
		Recommendations: recommendations,
		CompletedAt:     o.nowFunc(),
	}, nil
}

// generate issues one bounded generation call with retries on qualifying
// upstream failures.
func (o *Orchestrator) generate(ctx context.Context, modelID, prompt string) (string, error) {
	if modelID == "" {
		modelID = o.cfg.Model
	}

	retry := o.cfg.Retry
	retry.MaxAttempts = o.cfg.Profile.MaxAttempts
	retry.OnRetry = resilience.RetryLogger("anthropic", "generate")

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.Profile.MaxCallTimeout)
		defer cancel()

		temp := o.cfg.Profile.Temperature
		resp, err := o.gen.CreateMessage(callCtx, anthropic.MessageRequest{
			Model:     modelID,
			MaxTokens: o.cfg.Profile.MaxTokens,
			System:    analysisSystemPrompt,
			Messages: []anthropic.Message{
				{Role: "user", Content: prompt},
			},
			Temperature: &temp,
		})
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", eris.New("pipeline: empty generation response")
		}
		return text, nil
	})
}

// expertResponse mirrors the JSON the expert-analysis prompt requests.
type expertResponse struct {
	Content         string   `json:"content"`
	Recommendations []string `json:"recommendations"`
}

// parseExpertResponse extracts content and recommendations from raw model
// output. A response that is not valid JSON is kept whole as content.
func parseExpertResponse(text string) (string, []string) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		var resp expertResponse
		if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err == nil && resp.Content != "" {
			if resp.Recommendations == nil {
				resp.Recommendations = []string{}
			}
			return resp.Content, resp.Recommendations
		}
	}
	return strings.TrimSpace(text), []string{}
}

// compileResults assembles the per-year buckets. Phases 1-2 contribute
// per-year content; the phase 3-5 texts are duplicated into every bucket so
// each reads as self-contained.
func compileResults(years []int, byYear map[int][]model.ExpertAnalysis, yearScenarios map[int]string, longTerm, alignment, simulation string) []model.YearResult {
	sorted := make([]int, len(years))
	copy(sorted, years)
	sort.Ints(sorted)

	results := make([]model.YearResult, 0, len(sorted))
	for _, year := range sorted {
		analyses := byYear[year]
		if analyses == nil {
			analyses = []model.ExpertAnalysis{}
		}
		results = append(results, model.YearResult{
			Year:                 year,
			ExpertAnalyses:       analyses,
			ScenarioText:         yearScenarios[year],
			LongTermPerspective:  longTerm,
			StrategicAlignment:   alignment,
			IntegratedSimulation: simulation,
		})
	}
	return results
}

// halted reports whether the analysis has reached a terminal status.
func (o *Orchestrator) halted(ctx context.Context, analysisID string) bool {
	a, err := o.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		zap.L().Warn("pipeline: status check failed", zap.String("analysis_id", analysisID), zap.Error(err))
		return false
	}
	return a != nil && a.Status.Terminal()
}

// update applies upd only while the record is still non-terminal.
func (o *Orchestrator) update(ctx context.Context, analysisID string, upd store.AnalysisUpdate) {
	a, err := o.store.GetAnalysis(ctx, analysisID)
	if err != nil || a == nil {
		if err != nil {
			zap.L().Warn("pipeline: update read failed", zap.String("analysis_id", analysisID), zap.Error(err))
		}
		return
	}
	if a.Status.Terminal() {
		return
	}
	if _, err := o.store.UpdateAnalysis(ctx, analysisID, upd); err != nil {
		zap.L().Warn("pipeline: update failed", zap.String("analysis_id", analysisID), zap.Error(err))
	}
}

func (o *Orchestrator) setPhase(ctx context.Context, analysisID string, phase int, status *model.AnalysisStatus) {
	o.update(ctx, analysisID, store.AnalysisUpdate{Status: status, CurrentPhase: &phase})
}

func (o *Orchestrator) setProgress(ctx context.Context, analysisID string, pct int) {
	o.update(ctx, analysisID, store.AnalysisUpdate{Progress: &pct})
}

func (o *Orchestrator) publishLog(analysisID, message string) {
	o.hub.Publish(analysisID, progress.Event{
		Type:    progress.EventLog,
		Payload: progress.LogPayload{Message: message},
	})
}
