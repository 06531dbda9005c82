package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scenariolab/foresight/internal/export"
	"github.com/scenariolab/foresight/pkg/notion"
)

var publishCmd = &cobra.Command{
	Use:   "publish <analysis-id>",
	Short: "Publish an analysis report to Notion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("publish"); err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		analysis, err := st.GetAnalysis(ctx, args[0])
		if err != nil {
			return err
		}
		if analysis == nil {
			return eris.Errorf("analysis %s not found", args[0])
		}
		scenario, err := st.GetScenario(ctx, analysis.ScenarioID)
		if err != nil {
			return err
		}
		if scenario == nil {
			return eris.Errorf("scenario %s not found", analysis.ScenarioID)
		}

		pub := export.NewPublisher(notion.NewClient(cfg.Notion.Token), cfg.Notion.ParentID)
		url, err := pub.Publish(ctx, scenario, analysis)
		if err != nil {
			return eris.Wrap(err, "publish report")
		}

		zap.L().Info("report published",
			zap.String("analysis_id", analysis.ID),
			zap.String("url", url),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
