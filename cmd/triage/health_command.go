package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var checkLLM bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the local database and, optionally, the model API",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.openServices(checkLLM)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			if err := svc.store.CheckHealth(cmd.Context()); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			fmt.Fprintln(out, "database: ok")

			stats, err := svc.store.CollectStats(cmd.Context())
			if err == nil {
				fmt.Fprintf(out, "records: %d predictions, %d chat messages\n", stats.Predictions, stats.Messages)
			}

			if checkLLM {
				if err := svc.client.HealthCheck(cmd.Context()); err != nil {
					return fmt.Errorf("model api: %w", err)
				}
				fmt.Fprintln(out, "model api: ok")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkLLM, "llm", false, "Also ping the model API (costs one request)")
	return cmd
}
