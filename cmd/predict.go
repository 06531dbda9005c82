package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var predictCmd = &cobra.Command{
	Use:   "predict <expert-name>",
	Short: "Predict expert metadata for a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("predict"); err != nil {
			return err
		}

		pred := newPredictor(newGenerator()).Predict(cmd.Context(), args[0])

		out, err := json.MarshalIndent(pred, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(predictCmd)
}
