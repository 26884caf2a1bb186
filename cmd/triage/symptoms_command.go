package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSymptomsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "symptoms",
		Short: "List the symptoms accepted by predict",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.openServices(false)
			if err != nil {
				return err
			}
			defer svc.Close()

			rows := make([][]string, 0, svc.catalog.Len())
			for _, symptom := range svc.catalog.Symptoms() {
				rows = append(rows, []string{symptom.Group, symptom.ID, symptom.Name})
			}

			out := cmd.OutOrStdout()
			if stdoutIsTerminal() {
				fmt.Fprintln(out, renderTable([]string{"Group", "ID", "Name"}, rows, nil))
			} else {
				fmt.Fprint(out, renderPlain(rows))
			}
			return nil
		},
	}
}
