package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/cwbudde/specmatch/internal/batch"
	"github.com/cwbudde/specmatch/internal/match"
	"github.com/cwbudde/specmatch/internal/opt"
	"github.com/cwbudde/specmatch/internal/spectrum"
	"github.com/cwbudde/specmatch/internal/store"
	"github.com/spf13/cobra"
)

var (
	batchTarget  string
	batchRefs    []string
	batchRefDir  string
	batchMode    string
	batchAlgo    string
	batchIters   int
	batchPop     int
	batchSeed    int64
	batchWorkers int
	batchData    string
	batchTop     int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Fit many reference spectra against one target in parallel",
	Long: `Runs one independent fit session per reference spectrum on a worker
pool and ranks the references by best-fit chi-square.`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchTarget, "target", "", "Target spectrum CSV (required)")
	batchCmd.Flags().StringSliceVar(&batchRefs, "refs", nil, "Reference spectrum CSVs")
	batchCmd.Flags().StringVar(&batchRefDir, "ref-dir", "", "Directory of reference CSVs (*.csv)")
	batchCmd.Flags().StringVar(&batchMode, "mode", "default", "Residual weighting: default, normalized")
	batchCmd.Flags().StringVar(&batchAlgo, "algo", "nelder-mead", "Optimizer: levenberg-marquardt, nelder-mead, mayfly")
	batchCmd.Flags().IntVar(&batchIters, "iters", 200, "Max iterations per session")
	batchCmd.Flags().IntVar(&batchPop, "pop", 30, "Population size (mayfly only)")
	batchCmd.Flags().Int64Var(&batchSeed, "seed", 42, "Random seed (mayfly only)")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Concurrent sessions (0 = all CPUs)")
	batchCmd.Flags().StringVar(&batchData, "data", "", "Result store directory (optional)")
	batchCmd.Flags().IntVar(&batchTop, "top", 10, "Number of best matches to print")

	batchCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	mode, err := match.ParseMode(batchMode)
	if err != nil {
		return err
	}

	paths := append([]string{}, batchRefs...)
	if batchRefDir != "" {
		globbed, err := filepath.Glob(filepath.Join(batchRefDir, "*.csv"))
		if err != nil {
			return fmt.Errorf("failed to scan reference directory: %w", err)
		}
		paths = append(paths, globbed...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no reference spectra given (use --refs or --ref-dir)")
	}

	target, err := spectrum.ReadCSV(batchTarget)
	if err != nil {
		return fmt.Errorf("failed to load target: %w", err)
	}

	refs := make([]*spectrum.Spectrum, 0, len(paths))
	for _, path := range paths {
		ref, err := spectrum.ReadCSV(path)
		if err != nil {
			return fmt.Errorf("failed to load reference %s: %w", path, err)
		}
		refs = append(refs, ref)
	}

	cfg := batch.Config{
		Mode:      mode,
		Algorithm: opt.Algorithm(batchAlgo),
		Opt: opt.Config{
			MaxIters: batchIters,
			PopSize:  batchPop,
			Seed:     batchSeed,
		},
		Workers: batchWorkers,
	}

	if batchData != "" {
		st, err := store.NewFSStore(batchData)
		if err != nil {
			return fmt.Errorf("failed to open result store: %w", err)
		}
		cfg.Store = st
	}

	start := time.Now()
	items, err := batch.Run(cmd.Context(), target, refs, cfg)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	top := batchTop
	if top > len(items) {
		top = len(items)
	}

	fmt.Printf("Best matches for %s (%d references, %s):\n", target.Name, len(refs), elapsed.Round(time.Millisecond))
	for i := 0; i < top; i++ {
		it := items[i]
		if it.Err != nil {
			fmt.Printf("%3d. %s: failed: %v\n", i+1, it.Reference, it.Err)
			continue
		}
		fmt.Printf("%3d. %s: chisq=%.6g vsini=%.3f km/s (converged: %v)\n",
			i+1, it.Reference, it.Chisq, it.Vsini, it.Converged)
	}

	return nil
}
