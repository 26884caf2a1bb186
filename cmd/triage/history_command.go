package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"triage/internal/services/llm"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.openServices(false)
			if err != nil {
				return err
			}
			defer svc.Close()

			records, err := svc.store.ListPredictions(cmd.Context(), svc.session.UserID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No stored predictions.")
				return nil
			}

			rows := make([][]string, len(records))
			for i, rec := range records {
				var parsed llm.Prediction
				top := ""
				if err := llm.DecodeModelJSON(rec.ResultJSON, &parsed); err == nil && len(parsed.Conditions) > 0 {
					top = parsed.Conditions[0].Name
				}
				rows[i] = []string{
					rec.ID[:8],
					rec.CreatedAt.Local().Format(time.DateTime),
					strings.Join(rec.Symptoms, ", "),
					strconv.Itoa(rec.Age),
					top,
				}
			}
			if stdoutIsTerminal() {
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "When", "Symptoms", "Age", "Top condition"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
			} else {
				fmt.Fprint(out, renderPlain(rows))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of predictions to show (0 = all)")

	cmd.AddCommand(newHistoryShowCommand(ctx))
	cmd.AddCommand(newHistoryClearCommand(ctx))
	cmd.AddCommand(newHistoryRemoveCommand(ctx))
	return cmd
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	var chat bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete stored predictions (or the chat transcript with --chat)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.openServices(false)
			if err != nil {
				return err
			}
			defer svc.Close()

			var cleared int64
			if chat {
				cleared, err = svc.store.ClearTranscript(cmd.Context(), svc.session.UserID)
			} else {
				cleared, err = svc.store.ClearPredictions(cmd.Context(), svc.session.UserID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s)\n", cleared)
			return nil
		},
	}

	cmd.Flags().BoolVar(&chat, "chat", false, "Clear the chat transcript instead of predictions")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one stored prediction in full (prefixes accepted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.openServices(false)
			if err != nil {
				return err
			}
			defer svc.Close()

			id, err := resolvePredictionID(cmd.Context(), svc, args[0])
			if err != nil {
				return err
			}
			rec, err := svc.store.GetPrediction(cmd.Context(), svc.session.UserID, id)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no prediction matches %q", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:       %s\n", rec.ID)
			fmt.Fprintf(out, "When:     %s\n", rec.CreatedAt.Local().Format(time.DateTime))
			fmt.Fprintf(out, "Symptoms: %s\n", strings.Join(rec.Symptoms, ", "))
			fmt.Fprintf(out, "Age:      %d\n", rec.Age)
			if rec.Gender != "" {
				fmt.Fprintf(out, "Gender:   %s\n", rec.Gender)
			}
			fmt.Fprintf(out, "Model:    %s\n", rec.Model)

			var parsed llm.Prediction
			if err := llm.DecodeModelJSON(rec.ResultJSON, &parsed); err != nil {
				fmt.Fprintf(out, "\nStored result could not be decoded: %v\n", err)
				return nil
			}
			fmt.Fprintln(out)
			for _, cond := range parsed.Conditions {
				fmt.Fprintf(out, "  %-10s %s\n", cond.Likelihood, cond.Name)
				if cond.Description != "" {
					fmt.Fprintf(out, "             %s\n", cond.Description)
				}
			}
			if parsed.Advice != "" {
				fmt.Fprintf(out, "\nAdvice: %s\n", parsed.Advice)
			}
			if parsed.Disclaimer != "" {
				fmt.Fprintf(out, "\n%s\n", parsed.Disclaimer)
			}
			return nil
		},
	}
}

func newHistoryRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete one stored prediction by id (prefixes accepted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.openServices(false)
			if err != nil {
				return err
			}
			defer svc.Close()

			id, err := resolvePredictionID(cmd.Context(), svc, args[0])
			if err != nil {
				return err
			}
			if _, err := svc.store.RemovePrediction(cmd.Context(), svc.session.UserID, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
			return nil
		},
	}
}

// resolvePredictionID expands a full or prefix id to exactly one stored
// prediction id.
func resolvePredictionID(ctx context.Context, svc *services, target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", errors.New("prediction id required")
	}
	records, err := svc.store.ListPredictions(ctx, svc.session.UserID, 0)
	if err != nil {
		return "", err
	}
	var matched string
	for _, rec := range records {
		if rec.ID == target {
			return rec.ID, nil
		}
		if strings.HasPrefix(rec.ID, target) {
			if matched != "" {
				return "", fmt.Errorf("prediction id %q is ambiguous", target)
			}
			matched = rec.ID
		}
	}
	if matched == "" {
		return "", fmt.Errorf("no prediction matches %q", target)
	}
	return matched, nil
}
