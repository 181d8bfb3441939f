package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/specmatch/internal/match"
	"github.com/cwbudde/specmatch/internal/opt"
	"github.com/cwbudde/specmatch/internal/spectrum"
	"github.com/cwbudde/specmatch/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	matchTarget string
	matchRef    string
	matchMode   string
	matchAlgo   string
	matchIters  int
	matchPop    int
	matchSeed   int64
	matchData   string
	matchLoad   string
	matchTrace  bool
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Fit a single reference spectrum against a target",
	Long: `Fits the reference to the target by optimizing the rotational
broadening velocity and a least-squares continuum spline, and reports the
best-fit vsini and chi-square.`,
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().StringVar(&matchTarget, "target", "", "Target spectrum CSV (required)")
	matchCmd.Flags().StringVar(&matchRef, "ref", "", "Reference spectrum CSV (required)")
	matchCmd.Flags().StringVar(&matchMode, "mode", "default", "Residual weighting: default, normalized")
	matchCmd.Flags().StringVar(&matchAlgo, "algo", "nelder-mead", "Optimizer: levenberg-marquardt, nelder-mead, mayfly")
	matchCmd.Flags().IntVar(&matchIters, "iters", 200, "Max iterations")
	matchCmd.Flags().IntVar(&matchPop, "pop", 30, "Population size (mayfly only)")
	matchCmd.Flags().Int64Var(&matchSeed, "seed", 42, "Random seed (mayfly only)")
	matchCmd.Flags().StringVar(&matchData, "data", "", "Result store directory (optional)")
	matchCmd.Flags().StringVar(&matchLoad, "load", "", "Reuse parameters from a stored job ID instead of fitting")
	matchCmd.Flags().BoolVar(&matchTrace, "trace", false, "Record an objective-evaluation trace (requires --data)")

	matchCmd.MarkFlagRequired("target")
	matchCmd.MarkFlagRequired("ref")
	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	mode, err := match.ParseMode(matchMode)
	if err != nil {
		return err
	}

	target, err := spectrum.ReadCSV(matchTarget)
	if err != nil {
		return fmt.Errorf("failed to load target: %w", err)
	}
	ref, err := spectrum.ReadCSV(matchRef)
	if err != nil {
		return fmt.Errorf("failed to load reference: %w", err)
	}

	slog.Info("Loaded spectra", "target", target.Name, "reference", ref.Name, "samples", target.N())

	m, err := match.New(target, ref, mode)
	if err != nil {
		return err
	}

	var st store.Store
	if matchData != "" {
		fsStore, err := store.NewFSStore(matchData)
		if err != nil {
			return fmt.Errorf("failed to open result store: %w", err)
		}
		st = fsStore
	}

	jobID := uuid.New().String()

	if matchTrace {
		if matchData == "" {
			return fmt.Errorf("--trace requires --data")
		}
		tw, err := store.NewTraceWriter(matchData, jobID, false)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer tw.Close()
		m.SetEvalHook(func(eval int, chisq float64) {
			if err := tw.Write(store.TraceEntry{Eval: eval, Chisq: chisq, Timestamp: time.Now()}); err != nil {
				slog.Warn("Failed to write trace entry", "error", err)
			}
		})
	}

	start := time.Now()
	var chisq float64

	if matchLoad != "" {
		if st == nil {
			return fmt.Errorf("--load requires --data")
		}
		stored, err := st.LoadResult(matchLoad)
		if err != nil {
			return fmt.Errorf("failed to load stored result: %w", err)
		}
		chisq, err = m.LoadParams(stored.RestoreParams())
		if err != nil {
			return err
		}
	} else {
		optimizer, err := opt.New(opt.Algorithm(matchAlgo), opt.Config{
			MaxIters: matchIters,
			PopSize:  matchPop,
			Seed:     matchSeed,
		})
		if err != nil {
			return err
		}
		chisq, err = m.BestFit(optimizer)
		if err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	if st != nil {
		result, err := store.NewResult(jobID, target.Name, []string{ref.Name}, matchAlgo, matchMode, m)
		if err != nil {
			return err
		}
		if err := st.SaveResult(jobID, result); err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
		slog.Info("Result saved", "job_id", jobID)
	}

	slog.Info("Match complete",
		"elapsed", elapsed,
		"chisq", chisq,
		"vsini", m.Vsini(),
		"converged", m.Converged(),
		"evals", m.Evals(),
	)

	fmt.Printf("%s vs %s: chisq=%.6g vsini=%.3f km/s (converged: %v)\n",
		target.Name, ref.Name, chisq, m.Vsini(), m.Converged())

	return nil
}
