package main

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"triage/internal/api"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.openServices(true)
			if err != nil {
				return err
			}
			defer svc.Close()

			// One writer per database.
			lockPath := filepath.Join(svc.cfg.Paths.DataDir, "triage.lock")
			lock := flock.New(lockPath)
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !locked {
				return errors.New("another triage server is already running against this data directory")
			}
			defer func() { _ = lock.Unlock() }()

			if bind == "" {
				bind = svc.cfg.Paths.APIBind
			}
			server, err := api.New(api.Options{
				Bind:         bind,
				Token:        svc.cfg.Paths.APIToken,
				UserID:       svc.session.UserID,
				Assistant:    svc.client,
				Store:        svc.store,
				Catalog:      svc.catalog,
				Metrics:      svc.metrics,
				Logger:       svc.logger,
				PredictModel: svc.cfg.LLM.PredictModel,
			})
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := server.Start(runCtx); err != nil {
				return err
			}
			defer server.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s\n", server.Addr())
			<-runCtx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Bind address (defaults to paths.api_bind)")
	return cmd
}
