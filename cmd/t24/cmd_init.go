package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ddilanchi/t24-streamline/pkg/batch"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter t24.toml in the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(batch.ConfigName); err == nil {
				return fmt.Errorf("%s already exists", batch.ConfigName)
			} else if !os.IsNotExist(err) {
				return fmt.Errorf("stat config: %w", err)
			}

			if err := batch.WriteConfig(batch.ConfigName, batch.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", batch.ConfigName)
			return nil
		},
	}
}
