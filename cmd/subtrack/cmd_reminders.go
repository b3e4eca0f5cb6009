package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reschedule reminders for every active subscription",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := app.Scheduler.RefreshAll(cmd.Context(), time.Now().In(app.Config.Location()))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "subscriptions=%d scheduled=%d skipped=%d failed=%d errors=%d\n",
			report.Subscriptions, report.Scheduled, report.Skipped, report.Failed, report.Errors)
		return nil
	},
}

var nextAsOf string

var nextCmd = &cobra.Command{
	Use:   "next <subscription-id>",
	Short: "Print the next renewal date of a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc := app.Config.Location()
		asOf := time.Now().In(loc)
		if nextAsOf != "" {
			t, err := time.ParseInLocation("2006-01-02", nextAsOf, loc)
			if err != nil {
				return fmt.Errorf("invalid --as-of %q: use YYYY-MM-DD", nextAsOf)
			}
			asOf = t
		}

		next, err := app.Subscriptions.NextRenewal(cmd.Context(), args[0], asOf)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), next.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd, nextCmd)
	nextCmd.Flags().StringVar(&nextAsOf, "as-of", "", "Reference date (YYYY-MM-DD), default now")
}
