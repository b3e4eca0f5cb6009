package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var rateCmd = &cobra.Command{
	Use:     "rate <base> <target>",
	Short:   "Look up an exchange rate through the cache",
	Example: "  subtrack rate USD JPY",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := app.Rates.GetRate(cmd.Context(), args[0], args[1], time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "1 %s = %s %s (%s)\n", l.Base, l.Rate.String(), l.Target, l.Origin)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rateCmd)
}
