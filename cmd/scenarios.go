package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scenariolab/foresight/internal/model"
)

var (
	scenarioTheme    string
	scenarioStrategy string
	scenarioYears    []int
	scenarioChars    int
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Manage planning scenarios",
}

var scenariosCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a scenario for analysis",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("seed"); err != nil {
			return err
		}
		if len(scenarioYears) == 0 {
			return eris.New("at least one --year is required")
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sc := &model.Scenario{
			Theme:           scenarioTheme,
			CurrentStrategy: scenarioStrategy,
			TargetYears:     scenarioYears,
			CharacterCount:  scenarioChars,
		}
		sc.ClampCharacterCount()

		if err := st.CreateScenario(ctx, sc); err != nil {
			return err
		}

		zap.L().Info("scenario created",
			zap.String("id", sc.ID),
			zap.String("theme", sc.Theme),
			zap.Ints("target_years", sc.TargetYears),
		)
		return nil
	},
}

func init() {
	scenariosCreateCmd.Flags().StringVar(&scenarioTheme, "theme", "", "scenario theme (required)")
	scenariosCreateCmd.Flags().StringVar(&scenarioStrategy, "strategy", "", "current strategy (required)")
	scenariosCreateCmd.Flags().IntSliceVar(&scenarioYears, "year", nil, "target year (repeatable)")
	scenariosCreateCmd.Flags().IntVar(&scenarioChars, "chars", 0, "scenario narrative length target")
	_ = scenariosCreateCmd.MarkFlagRequired("theme")
	_ = scenariosCreateCmd.MarkFlagRequired("strategy")
	scenariosCmd.AddCommand(scenariosCreateCmd)
	rootCmd.AddCommand(scenariosCmd)
}
