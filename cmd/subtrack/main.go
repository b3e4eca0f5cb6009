package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"subtrack/internal/cli"
	"subtrack/internal/log"
)

// app is built once per invocation by the root command's pre-run hook.
var app *cli.App

var rootCmd = &cobra.Command{
	Use:   "subtrack",
	Short: "Subscription tracker with renewal reminders",
	Long: `subtrack keeps a list of recurring subscriptions, computes their next
renewal dates, schedules reminders ahead of each renewal and converts
foreign-currency amounts with cached exchange rates.

Configuration is read from the environment (and a .env file if present).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cli.LoadEnvFile()
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		logger := cli.SetupLogger(cfg, log.ComponentApp)
		app, err = cli.Bootstrap(cmd.Context(), cfg, logger)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app == nil {
			return nil
		}
		return app.Close()
	},
}

func main() {
	ctx, stop := cli.SignalContext(context.Background())
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if app != nil {
			app.Close()
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
