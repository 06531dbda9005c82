package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scenariolab/foresight/internal/export"
)

var exportOutPath string

var exportCmd = &cobra.Command{
	Use:   "export <analysis-id>",
	Short: "Export a completed analysis to an xlsx workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("export"); err != nil {
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

		if err := export.SaveWorkbook(scenario, analysis, exportOutPath); err != nil {
			return err
		}

		zap.L().Info("workbook written",
			zap.String("analysis_id", analysis.ID),
			zap.String("path", exportOutPath),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutPath, "out", "report.xlsx", "output xlsx path")
	rootCmd.AddCommand(exportCmd)
}
