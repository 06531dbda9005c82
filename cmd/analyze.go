package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scenariolab/foresight/internal/export"
	"github.com/scenariolab/foresight/internal/model"
	"github.com/scenariolab/foresight/internal/pipeline"
	"github.com/scenariolab/foresight/internal/progress"
	"github.com/scenariolab/foresight/pkg/notion"
)

var analyzeScenarioID string

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a full scenario analysis synchronously",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		scenario, err := st.GetScenario(ctx, analyzeScenarioID)
		if err != nil {
			return err
		}
		if scenario == nil {
			return eris.Errorf("scenario %s not found", analyzeScenarioID)
		}

		analysis, err := st.CreateAnalysis(ctx, scenario.ID)
		if err != nil {
			return err
		}

		hub := progress.NewHub()
		events, cancel := hub.Subscribe(analysis.ID)
		defer cancel()
		go logEvents(events)

		zap.L().Info("analysis starting",
			zap.String("analysis_id", analysis.ID),
			zap.String("theme", scenario.Theme),
			zap.Ints("target_years", scenario.TargetYears),
		)

		orch := pipeline.New(pipelineConfig(), st, newGenerator(), hub)
		runErr := orch.Run(ctx, analysis.ID)

		final, err := st.GetAnalysis(ctx, analysis.ID)
		if err != nil {
			return err
		}
		zap.L().Info("analysis finished",
			zap.String("analysis_id", final.ID),
			zap.String("status", string(final.Status)),
			zap.Int("progress", final.Progress),
		)

		if runErr != nil {
			return eris.Wrap(runErr, "analyze")
		}

		// Publishing is best-effort; a Notion outage does not fail the run.
		if final.Status == model.AnalysisCompleted && cfg.Notion.Token != "" && cfg.Notion.ParentID != "" {
			pub := export.NewPublisher(notion.NewClient(cfg.Notion.Token), cfg.Notion.ParentID)
			if url, err := pub.Publish(ctx, scenario, final); err != nil {
				zap.L().Warn("notion publish failed", zap.Error(err))
			} else {
				zap.L().Info("report published", zap.String("url", url))
			}
		}

		return nil
	},
}

// logEvents mirrors the progress stream into the CLI log.
func logEvents(events <-chan progress.Event) {
	for ev := range events {
		switch p := ev.Payload.(type) {
		case progress.LogPayload:
			zap.L().Info("progress", zap.String("message", p.Message))
		case progress.ExpertAnalysisPayload:
			zap.L().Info("expert analysis ready",
				zap.String("expert", p.Expert),
				zap.Int("year", p.Year),
			)
		case progress.YearScenarioPayload:
			zap.L().Info("year scenario ready", zap.Int("year", p.Year))
		case progress.PhaseResultPayload:
			zap.L().Info("phase result ready",
				zap.Int("phase", p.Phase),
				zap.String("title", p.Title),
			)
		}
	}
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeScenarioID, "scenario", "", "scenario ID to analyze (required)")
	_ = analyzeCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(analyzeCmd)
}
