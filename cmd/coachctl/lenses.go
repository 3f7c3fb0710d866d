package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"coach-backend/internal/llm"
)

func newLensesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lenses",
		Short: "List the available coaching lenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range llm.LensNames() {
				l, err := llm.LookupLens(name)
				if err != nil {
					return err
				}
				marker := ""
				if name == llm.DefaultLens {
					marker = " (default)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s%s\n", l.Name, l.Title, marker)
			}
			return nil
		},
	}
}
