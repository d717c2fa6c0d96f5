package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/csheth/shiyuan/internal/theme"
)

func newThemeCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "theme",
		Short: "Show or change the color theme",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the built-in themes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := root.openSession(cmd.Context())
				if err != nil {
					return err
				}
				defer sess.Close()

				current := sess.theme.Load(cmd.Context()).Name
				for _, t := range theme.Builtin() {
					marker := " "
					if t.Name == current {
						marker = "*"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, t.Name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the saved theme and its colors",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := root.openSession(cmd.Context())
				if err != nil {
					return err
				}
				defer sess.Close()

				t := sess.theme.Load(cmd.Context())
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, t.Name)
				for _, role := range theme.Roles() {
					fmt.Fprintf(out, "  %-10s %s\n", role, t.Colors.Get(role))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <name>",
			Short: "Save one of the built-in themes",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				chosen, ok := theme.Find(args[0])
				if !ok {
					names := []string{}
					for _, t := range theme.Builtin() {
						names = append(names, t.Name)
					}
					return fmt.Errorf("unknown theme %q (choose from %s)", args[0], strings.Join(names, ", "))
				}
				sess, err := root.openSession(cmd.Context())
				if err != nil {
					return err
				}
				defer sess.Close()

				if err := sess.theme.Choose(cmd.Context(), chosen); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "theme set to %s\n", chosen.Name)
				return nil
			},
		},
	)
	return cmd
}
