package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/scenariolab/foresight/internal/pipeline"
	"github.com/scenariolab/foresight/internal/predictor"
	"github.com/scenariolab/foresight/internal/store"
	"github.com/scenariolab/foresight/pkg/anthropic"
)

// openStore opens the configured backend and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// newGenerator builds the shared Anthropic client with request smoothing.
func newGenerator() anthropic.Client {
	return anthropic.NewClient(cfg.Anthropic.Key,
		anthropic.WithRateLimit(cfg.Anthropic.RateLimit),
	)
}

// newPredictor builds the expert predictor from config.
func newPredictor(gen anthropic.Client) *predictor.Predictor {
	return predictor.New(gen, predictor.Config{
		Model:        cfg.Anthropic.HaikuModel,
		HardDeadline: time.Duration(cfg.Predictor.HardDeadlineMillis) * time.Millisecond,
		CacheTTL:     time.Duration(cfg.Predictor.CacheTTLMinutes) * time.Minute,
		Profile:      anthropic.FastProfile(),
	})
}

// pipelineConfig builds the orchestrator config from config.
func pipelineConfig() pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.Model = cfg.Anthropic.SonnetModel
	pc.Concurrency = cfg.Pipeline.Concurrency
	if cfg.Pipeline.MaxAttempts > 0 {
		pc.Profile.MaxAttempts = cfg.Pipeline.MaxAttempts
	}
	return pc
}
