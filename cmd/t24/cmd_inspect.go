package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ddilanchi/t24-streamline/pkg/bld"
	"github.com/ddilanchi/t24-streamline/pkg/nrbf"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Summarize the record structure of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read container: %w", err)
			}

			d := nrbf.NewDecoder(data, bld.TargetField)
			runErr := d.Run()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "root object: %d\n", d.RootID())

			libs := d.Libraries()
			fmt.Fprintf(out, "libraries (%d):\n", len(libs))
			for _, l := range libs {
				fmt.Fprintf(out, "  %6d  %s\n", l.ID, l.Name)
			}

			classes := d.Classes()
			fmt.Fprintf(out, "classes (%d):\n", len(classes))
			for _, c := range classes {
				fmt.Fprintf(out, "  %6d  %s (%d members)\n", c.ID, c.Name, c.Members)
			}

			fmt.Fprintf(out, "objects decoded: %d\n", d.ObjectCount())
			if text, ok := d.Found(); ok {
				fmt.Fprintf(out, "compliance XML: present (%d chars)\n", len(text))
			} else {
				fmt.Fprintln(out, "compliance XML: not captured")
			}
			if runErr != nil {
				fmt.Fprintf(out, "decode stopped early: %v\n", runErr)
			}
			return nil
		},
	}
}
