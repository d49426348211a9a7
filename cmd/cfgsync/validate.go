package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every settings file for syntax and shape errors",
		Long: `Check every settings file in scope. Each file is listed with its
status; problems are printed below it. The exit status is 1 when any file
has problems.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.openManager(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			problems := 0
			for _, doc := range m.Documents() {
				status := "ok"
				switch {
				case !doc.Exists():
					status = "missing"
				case !doc.Valid():
					status = fmt.Sprintf("%d problem(s)", len(doc.Diagnostics()))
				}
				if doc.Exists() && doc.ReadOnly() {
					status += ", read-only"
				}
				fmt.Fprintf(a.stdout, "%-14s %s: %s\n", doc.Identity(), doc.Path(), status)
				for _, d := range doc.Diagnostics() {
					fmt.Fprintf(a.stdout, "    %s\n", d)
					problems++
				}
			}
			if problems > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}
