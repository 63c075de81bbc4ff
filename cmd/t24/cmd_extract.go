package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ddilanchi/t24-streamline/pkg/batch"
	"github.com/ddilanchi/t24-streamline/pkg/nrbf"
)

func newExtractCmd() *cobra.Command {
	var inputDir string
	var outDir string
	var jobs int

	cmd := &cobra.Command{
		Use:   "extract [file ...]",
		Short: "Extract compliance XML from .bld containers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := batch.ReadConfig(batch.ConfigName)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("input-dir") {
				cfg.InputDir = inputDir
			}
			if cmd.Flags().Changed("out-dir") {
				cfg.OutDir = outDir
			}
			if cmd.Flags().Changed("jobs") {
				cfg.Jobs = jobs
			}

			paths := args
			if len(paths) == 0 {
				paths, err = batch.Enumerate(cfg.InputDir)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if len(paths) == 0 {
				fmt.Fprintf(out, "no .bld files in %s\n", cfg.InputDir)
				return nil
			}

			results, err := batch.Run(cmd.Context(), paths, batch.Options{
				OutDir: cfg.OutDir,
				Jobs:   cfg.Jobs,
			})
			if err != nil {
				return err
			}

			extracted := 0
			for _, res := range results {
				if res.Err != nil {
					fmt.Fprintf(out, "fail %s: %v\n", res.Input, res.Err)
					if errors.Is(res.Err, nrbf.ErrFieldNotFound) {
						fmt.Fprintln(out, "     compliance XML may be null (project not yet run through compliance)")
					}
					continue
				}
				extracted++
				fmt.Fprintf(out, "ok   %s -> %s (%d chars, %s)\n", res.Input, res.Output, res.Chars, res.Source)
			}
			fmt.Fprintf(out, "done: %d extracted, %d failed, output in %s\n", extracted, len(results)-extracted, cfg.OutDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&inputDir, "input-dir", ".", "directory scanned for .bld files when no paths are given")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "extracted_xml", "directory for extracted documents")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 1, "containers processed in parallel")
	return cmd
}
