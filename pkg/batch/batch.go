// Package batch runs the compliance extraction across many containers,
// isolating per-file failures so one damaged project never stops a run.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ddilanchi/t24-streamline/pkg/bld"
)

// Options configure one batch run.
type Options struct {
	OutDir string
	Jobs   int
}

// FileResult is the outcome for a single container. Err is set when the
// file failed; otherwise Output names the written document.
type FileResult struct {
	Input  string
	Output string
	Source bld.Source
	Chars  int
	Err    error
}

// Enumerate lists every .bld container directly inside dir, matching the
// extension case-insensitively. Results come back sorted by name.
func Enumerate(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".bld") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// Run extracts every container in paths, writing recovered documents under
// opts.OutDir. Each path gets exactly one FileResult at its input
// position; a failed file marks its result and the batch keeps going.
func Run(ctx context.Context, paths []string, opts Options) ([]FileResult, error) {
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}

	results := make([]FileResult, len(paths))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = FileResult{Input: p, Err: err}
				return nil
			}
			results[i] = processOne(p, opts.OutDir)
			return nil
		})
	}
	// Workers carry failures in their result slot, never as group errors.
	_ = g.Wait()
	return results, nil
}

func processOne(path, outDir string) FileResult {
	res := FileResult{Input: path}

	r, err := bld.ExtractFile(path)
	if err != nil {
		res.Err = err
		return res
	}

	out := outputPath(outDir, path, r.Source)
	if err := writeFileAtomic(out, []byte(r.XML)); err != nil {
		res.Err = err
		return res
	}
	res.Output = out
	res.Source = r.Source
	res.Chars = len(r.XML)
	return res
}

// outputPath maps an input container to its sibling document name:
// <base>.xml for a record decode, <base>_decompressed.xml when the
// document came out of a compressed block.
func outputPath(outDir, input string, src bld.Source) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if src == bld.SourceCompressed {
		return filepath.Join(outDir, base+"_decompressed.xml")
	}
	return filepath.Join(outDir, base+".xml")
}

// writeFileAtomic writes data to path via a temp file and rename, so an
// interrupted run never leaves a partial document behind.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".t24-out-*")
	if err != nil {
		return fmt.Errorf("write output: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write output: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write output: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write output: rename: %w", err)
	}
	return nil
}
