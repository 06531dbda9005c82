package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scenariolab/foresight/internal/predictor"
)

var expertsCmd = &cobra.Command{
	Use:   "experts",
	Short: "Manage the expert panel",
}

var expertsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the built-in expert panel into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("seed"); err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		panel, err := predictor.BuiltinPanel()
		if err != nil {
			return eris.Wrap(err, "load built-in panel")
		}

		existing, err := st.ListExperts(ctx)
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(existing))
		for _, e := range existing {
			seen[e.Name] = true
		}

		created := 0
		for i := range panel {
			if seen[panel[i].Name] {
				continue
			}
			if err := st.CreateExpert(ctx, &panel[i]); err != nil {
				return err
			}
			created++
		}

		zap.L().Info("expert panel seeded",
			zap.Int("created", created),
			zap.Int("skipped", len(panel)-created),
		)
		return nil
	},
}

func init() {
	expertsCmd.AddCommand(expertsSeedCmd)
	rootCmd.AddCommand(expertsCmd)
}
