package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ddilanchi/t24-streamline/pkg/bld"
	"github.com/ddilanchi/t24-streamline/pkg/carve"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <file>",
		Short: "Hunt for a compressed XML payload, skipping the record decode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read container: %w", err)
			}

			xml, ok := carve.Scan(data, bld.XMLAnchors)
			if !ok {
				return fmt.Errorf("no compressed XML payload in %s", args[0])
			}
			fmt.Fprint(cmd.OutOrStdout(), xml)
			return nil
		},
	}
}
