package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and lint form definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, id := range e.reg.IDs() {
			s, _ := e.reg.Get(id)
			fmt.Fprintf(out, "%-24s %2d fields  files=%-5v source=%s  %s\n",
				s.ID, len(s.Fields), s.HasFiles(), s.Source, s.Endpoint)
		}
		fmt.Fprintf(out, "%d form(s) OK\n", len(e.reg.IDs()))
		return nil
	},
}
