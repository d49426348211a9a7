package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/cfgsync/internal/settings/merge"
	"github.com/dshills/cfgsync/internal/settings/value"
)

func newShowCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List effective settings with their source layers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.openManager(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			all := m.Settings()
			if asJSON {
				items := make([]value.Value, len(all))
				for i, s := range all {
					items[i] = settingValue(s)
				}
				return a.writeJSON(a.stdout, value.NewList(items...))
			}
			for _, s := range all {
				fmt.Fprintf(a.stdout, "%s = %s  (%s)\n", s.Key, a.inline(a.stdout, s.Value), provenance(s))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print settings as JSON")
	return cmd
}

func newTreeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show effective settings as a tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.openManager(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			merge.Walk(m.Hierarchy(), func(n *merge.Node, depth int) bool {
				indent := strings.Repeat("  ", depth)
				if n.IsLeaf() {
					fmt.Fprintf(a.stdout, "%s%s: %s  (%s)\n", indent, n.Name, a.inline(a.stdout, n.Setting.Value), n.Setting.Winner())
				} else {
					fmt.Fprintf(a.stdout, "%s%s\n", indent, n.Name)
				}
				return true
			})
			return nil
		},
	}
}

func newGetCommand(a *app) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the effective value of a setting",
		Long: `Print the effective value of a setting. When KEY names a group of
settings, the group is printed as an object.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.openManager(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			key := args[0]
			if s, ok := m.Get(key); ok {
				if err := a.writeJSON(a.stdout, s.Value); err != nil {
					return err
				}
				if verbose {
					for _, c := range s.Contributions {
						fmt.Fprintf(a.stderr, "  %s: %s\n", c.Layer, a.inline(a.stderr, c.Value))
					}
				}
				return nil
			}
			if v, ok := subtree(m.Settings(), key); ok {
				return a.writeJSON(a.stdout, v)
			}
			return fmt.Errorf("setting %q is not defined in any layer", key)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also list every contributing layer")
	return cmd
}
