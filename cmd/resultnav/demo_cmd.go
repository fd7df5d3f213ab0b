package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/resultnav/internal/scenario"
)

func newDemoCommand(open func(*cobra.Command) (*session, error)) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "demo [name...]",
		Short: "Run bundled scenarios (all when no name is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				for _, name := range scenario.BuiltinNames() {
					sc, err := scenario.Builtin(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%-10s %s\n", name, strings.TrimSpace(sc.Description))
				}
				return nil
			}
			names := args
			if len(names) == 0 {
				names = scenario.BuiltinNames()
			}
			scenarios := make([]scenario.Scenario, 0, len(names))
			for _, name := range names {
				sc, err := scenario.Builtin(name)
				if err != nil {
					return err
				}
				scenarios = append(scenarios, sc)
			}
			s, err := open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			failed := 0
			for _, sc := range scenarios {
				res, runErr := scenario.Run(cmd.Context(), sc, s.config)
				printResult(out, sc.Name, res, runErr)
				if runErr != nil {
					failed++
				}
			}
			return summary(failed, len(scenarios))
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list bundled scenarios and exit")
	return cmd
}
