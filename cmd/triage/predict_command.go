package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"triage/internal/catalog"
	"triage/internal/history"
	"triage/internal/logging"
	"triage/internal/request"
	"triage/internal/services/llm"
)

func newPredictCommand(ctx *commandContext) *cobra.Command {
	var symptoms []string
	var age int
	var gender string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Get a non-diagnostic prediction for a set of symptoms",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.openServices(true)
			if err != nil {
				return err
			}
			defer svc.Close()

			resolved, err := svc.catalog.ResolveAll(symptoms)
			if err != nil {
				return fmt.Errorf("%w (run `triage symptoms` to list valid names)", err)
			}
			symptomIDs := make([]string, len(resolved))
			for i, symptom := range resolved {
				symptomIDs[i] = symptom.ID
			}

			prediction, err := svc.client.Predict(cmd.Context(), llm.PredictionInput{
				Symptoms: symptomIDs,
				Age:      age,
				Gender:   strings.TrimSpace(gender),
			})
			if err != nil {
				svc.metrics.RecordPrediction(false)
				var reqErr *request.Error
				if errors.As(err, &reqErr) {
					return fmt.Errorf("prediction service unavailable after %d attempt(s): %s", reqErr.Attempts, reqErr.LastReason)
				}
				return err
			}
			svc.metrics.RecordPrediction(true)

			record := &history.Prediction{
				UserID:     svc.session.UserID,
				Symptoms:   symptomIDs,
				Age:        age,
				Gender:     strings.TrimSpace(gender),
				ResultJSON: prediction.Raw,
				Model:      svc.cfg.LLM.PredictModel,
			}
			if err := svc.store.SavePrediction(cmd.Context(), record); err != nil {
				svc.logger.Error("save prediction failed", logging.Error(err))
			}

			printPrediction(cmd, resolved, prediction)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&symptoms, "symptom", "s", nil, "Symptom name or id (repeatable)")
	cmd.Flags().IntVar(&age, "age", 0, "Age in years")
	cmd.Flags().StringVar(&gender, "gender", "", "Gender (optional)")
	_ = cmd.MarkFlagRequired("symptom")
	_ = cmd.MarkFlagRequired("age")
	return cmd
}

func printPrediction(cmd *cobra.Command, resolved []catalog.Symptom, prediction llm.Prediction) {
	out := cmd.OutOrStdout()

	names := make([]string, len(resolved))
	for i, symptom := range resolved {
		names[i] = symptom.Name
	}
	fmt.Fprintf(out, "Symptoms: %s\n\n", strings.Join(names, ", "))

	rows := make([][]string, len(prediction.Conditions))
	for i, cond := range prediction.Conditions {
		rows[i] = []string{cond.Name, cond.Likelihood, cond.Description}
	}
	if stdoutIsTerminal() {
		fmt.Fprintln(out, renderTable([]string{"Condition", "Likelihood", "Description"}, rows, nil))
	} else {
		fmt.Fprint(out, renderPlain(rows))
	}

	if prediction.Advice != "" {
		fmt.Fprintf(out, "\nAdvice: %s\n", prediction.Advice)
	}
	fmt.Fprintf(out, "\n%s\n", prediction.Disclaimer)
}
