// Package server exposes the analysis pipeline over HTTP: scenario and
// expert management, analysis lifecycle, a markdown download, an SSE
// progress stream, and the interactive expert-prediction endpoint.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/scenariolab/foresight/internal/model"
	"github.com/scenariolab/foresight/internal/predictor"
	"github.com/scenariolab/foresight/internal/progress"
	"github.com/scenariolab/foresight/internal/store"
)

// Runner starts one pipeline run to completion. Satisfied by
// pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, analysisID string) error
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	store  store.Store
	pred   *predictor.Predictor
	runner Runner
	hub    *progress.Hub

	// runCtx is the parent context for spawned pipeline runs; it outlives
	// individual requests and is cancelled on shutdown.
	runCtx context.Context
}

// New creates a Server. runCtx bounds the lifetime of background pipeline
// runs started through the API.
func New(runCtx context.Context, st store.Store, pred *predictor.Predictor, runner Runner, hub *progress.Hub) *Server {
	return &Server{
		store:  st,
		pred:   pred,
		runner: runner,
		hub:    hub,
		runCtx: runCtx,
	}
}

// Router builds the chi router for the API surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/scenarios", s.handleCreateScenario)
		r.Get("/scenarios", s.handleListScenarios)
		r.Get("/scenarios/{id}", s.handleGetScenario)

		r.Post("/experts", s.handleCreateExpert)
		r.Get("/experts", s.handleListExperts)
		r.Post("/experts/predict", s.handlePredict)

		r.Post("/analysis/start", s.handleStartAnalysis)
		r.Get("/analysis", s.handleListAnalyses)
		r.Get("/analysis/{id}", s.handleGetAnalysis)
		r.Post("/analysis/{id}/stop", s.handleStopAnalysis)
		r.Get("/analysis/{id}/download", s.handleDownload)
		r.Get("/analysis/{id}/events", s.handleEvents)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var sc model.Scenario
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", codeServiceError)
		return
	}
	if sc.Theme == "" || sc.CurrentStrategy == "" {
		writeError(w, http.StatusBadRequest, "theme and current_strategy are required", codeServiceError)
		return
	}
	if len(sc.TargetYears) == 0 {
		writeError(w, http.StatusBadRequest, "at least one target year is required", codeServiceError)
		return
	}
	sc.ClampCharacterCount()

	if err := s.store.CreateScenario(r.Context(), &sc); err != nil {
		zap.L().Error("server: create scenario", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store scenario", codeServiceError)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := s.store.ListScenarios(r.Context())
	if err != nil {
		zap.L().Error("server: list scenarios", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list scenarios", codeServiceError)
		return
	}
	writeJSON(w, http.StatusOK, scenarios)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.GetScenario(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("server: get scenario", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load scenario", codeServiceError)
		return
	}
	if sc == nil {
		writeError(w, http.StatusNotFound, "scenario not found", codeServiceError)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleCreateExpert(w http.ResponseWriter, r *http.Request) {
	var e model.Expert
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", codeServiceError)
		return
	}
	if e.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", codeServiceError)
		return
	}
	if e.ExpertiseLevel != "" && !model.ValidExpertiseLevel(string(e.ExpertiseLevel)) {
		writeError(w, http.StatusBadRequest, "expertise_level must be specialist, expert, or senior", codeServiceError)
		return
	}

	if err := s.store.CreateExpert(r.Context(), &e); err != nil {
		zap.L().Error("server: create expert", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store expert", codeServiceError)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleListExperts(w http.ResponseWriter, r *http.Request) {
	experts, err := s.store.ListExperts(r.Context())
	if err != nil {
		zap.L().Error("server: list experts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list experts", codeServiceError)
		return
	}
	writeJSON(w, http.StatusOK, experts)
}

// handlePredict resolves an expert name to predicted metadata. The predictor
// absorbs upstream failures into fallback synthesis, so the only error
// surfaced here is a prediction with no usable content.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", codeServiceError)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", codeServiceError)
		return
	}

	pred := s.pred.Predict(r.Context(), req.Name)
	if pred.Empty() {
		writeError(w, http.StatusBadGateway, "prediction produced no usable content", codeNoContent)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", codeServiceError)
		return
	}
	if req.ScenarioID == "" {
		writeError(w, http.StatusBadRequest, "scenario_id is required", codeServiceError)
		return
	}

	sc, err := s.store.GetScenario(r.Context(), req.ScenarioID)
	if err != nil {
		zap.L().Error("server: load scenario for start", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load scenario", codeServiceError)
		return
	}
	if sc == nil {
		writeError(w, http.StatusNotFound, "scenario not found", codeServiceError)
		return
	}

	analysis, err := s.store.CreateAnalysis(r.Context(), req.ScenarioID)
	if err != nil {
		zap.L().Error("server: create analysis", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create analysis", codeServiceError)
		return
	}

	go func(id string) {
		if err := s.runner.Run(s.runCtx, id); err != nil {
			zap.L().Error("server: analysis run failed",
				zap.String("analysis_id", id),
				zap.Error(err),
			)
		}
	}(analysis.ID)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"analysis_id": analysis.ID,
		"status":      "started",
	})
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	filter := store.AnalysisFilter{
		Status:     model.AnalysisStatus(r.URL.Query().Get("status")),
		ScenarioID: r.URL.Query().Get("scenario_id"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", codeServiceError)
			return
		}
		filter.Limit = n
	}

	analyses, err := s.store.ListAnalyses(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list analyses", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list analyses", codeServiceError)
		return
	}
	writeJSON(w, http.StatusOK, analyses)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, ok := s.loadAnalysis(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// handleStopAnalysis requests a cooperative stop. The pipeline observes the
// status at its next phase boundary; in-flight calls are not aborted.
func (s *Server) handleStopAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, ok := s.loadAnalysis(w, r)
	if !ok {
		return
	}
	if analysis.Status.Terminal() {
		writeError(w, http.StatusConflict, "analysis already finished", codeServiceError)
		return
	}

	stopped := model.AnalysisStopped
	if _, err := s.store.UpdateAnalysis(r.Context(), analysis.ID, store.AnalysisUpdate{
		Status: &stopped,
	}); err != nil {
		zap.L().Error("server: stop analysis", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not stop analysis", codeServiceError)
		return
	}

	zap.L().Info("server: analysis stop requested", zap.String("analysis_id", analysis.ID))
	writeJSON(w, http.StatusOK, map[string]string{
		"analysis_id": analysis.ID,
		"status":      string(model.AnalysisStopped),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	analysis, ok := s.loadAnalysis(w, r)
	if !ok {
		return
	}
	if analysis.MarkdownReport == "" {
		writeError(w, http.StatusNotFound, "analysis has no report yet", codeNoContent)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="analysis-`+analysis.ID+`.md"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(analysis.MarkdownReport))
}

// handleEvents streams progress events for an analysis as server-sent
// events until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	analysis, ok := s.loadAnalysis(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", codeServiceError)
		return
	}

	events, cancel := s.hub.Subscribe(analysis.ID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// loadAnalysis fetches the path's analysis, writing the error response
// itself when the record cannot be served.
func (s *Server) loadAnalysis(w http.ResponseWriter, r *http.Request) (*model.Analysis, bool) {
	analysis, err := s.store.GetAnalysis(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("server: get analysis", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load analysis", codeServiceError)
		return nil, false
	}
	if analysis == nil {
		writeError(w, http.StatusNotFound, "analysis not found", codeServiceError)
		return nil, false
	}
	return analysis, true
}

func writeSSE(w http.ResponseWriter, ev progress.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + string(ev.Type) + "\n")); err != nil {
		return err
	}
	_, err = w.Write(append(append([]byte("data: "), data...), '\n', '\n'))
	return err
}
