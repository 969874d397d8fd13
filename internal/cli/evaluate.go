package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate SYMBOL",
	Short: "Evaluate the short-opportunity score for one symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol := strings.ToUpper(args[0])
		return getApp().Evaluate(cmd.Context(), symbol)
	},
}
