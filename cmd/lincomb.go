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
	lincombTarget string
	lincombRefs   []string
	lincombVsini  []float64
	lincombMode   string
	lincombAlgo   string
	lincombIters  int
	lincombPop    int
	lincombSeed   int64
	lincombData   string
)

var lincombCmd = &cobra.Command{
	Use:   "lincomb",
	Short: "Fit a weighted combination of reference spectra against a target",
	Long: `Fits a linear combination of several references, each pre-broadened by
its own fixed vsini, optimizing only the combination weights (softly
constrained to unit sum).`,
	RunE: runLincomb,
}

func init() {
	lincombCmd.Flags().StringVar(&lincombTarget, "target", "", "Target spectrum CSV (required)")
	lincombCmd.Flags().StringSliceVar(&lincombRefs, "refs", nil, "Reference spectrum CSVs (required)")
	lincombCmd.Flags().Float64SliceVar(&lincombVsini, "vsini", nil, "Fixed vsini per reference, km/s (required)")
	lincombCmd.Flags().StringVar(&lincombMode, "mode", "default", "Residual weighting: default, normalized")
	lincombCmd.Flags().StringVar(&lincombAlgo, "algo", "nelder-mead", "Optimizer: levenberg-marquardt, nelder-mead, mayfly")
	lincombCmd.Flags().IntVar(&lincombIters, "iters", 200, "Max iterations")
	lincombCmd.Flags().IntVar(&lincombPop, "pop", 30, "Population size (mayfly only)")
	lincombCmd.Flags().Int64Var(&lincombSeed, "seed", 42, "Random seed (mayfly only)")
	lincombCmd.Flags().StringVar(&lincombData, "data", "", "Result store directory (optional)")

	lincombCmd.MarkFlagRequired("target")
	lincombCmd.MarkFlagRequired("refs")
	lincombCmd.MarkFlagRequired("vsini")
	rootCmd.AddCommand(lincombCmd)
}

func runLincomb(cmd *cobra.Command, args []string) error {
	mode, err := match.ParseMode(lincombMode)
	if err != nil {
		return err
	}

	target, err := spectrum.ReadCSV(lincombTarget)
	if err != nil {
		return fmt.Errorf("failed to load target: %w", err)
	}

	refs := make([]*spectrum.Spectrum, 0, len(lincombRefs))
	refNames := make([]string, 0, len(lincombRefs))
	for _, path := range lincombRefs {
		ref, err := spectrum.ReadCSV(path)
		if err != nil {
			return fmt.Errorf("failed to load reference %s: %w", path, err)
		}
		refs = append(refs, ref)
		refNames = append(refNames, ref.Name)
	}

	slog.Info("Loaded spectra", "target", target.Name, "references", len(refs), "samples", target.N())

	m, err := match.NewLincomb(target, refs, lincombVsini, mode)
	if err != nil {
		return err
	}

	optimizer, err := opt.New(opt.Algorithm(lincombAlgo), opt.Config{
		MaxIters: lincombIters,
		PopSize:  lincombPop,
		Seed:     lincombSeed,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	chisq, err := m.BestFit(optimizer)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if lincombData != "" {
		st, err := store.NewFSStore(lincombData)
		if err != nil {
			return fmt.Errorf("failed to open result store: %w", err)
		}
		jobID := uuid.New().String()
		result, err := store.NewResult(jobID, target.Name, refNames, lincombAlgo, lincombMode, m)
		if err != nil {
			return err
		}
		if err := st.SaveResult(jobID, result); err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
		slog.Info("Result saved", "job_id", jobID)
	}

	slog.Info("Lincomb fit complete",
		"elapsed", elapsed,
		"chisq", chisq,
		"converged", m.Converged(),
		"evals", m.Evals(),
	)

	fmt.Printf("%s: chisq=%.6g (converged: %v)\n", target.Name, chisq, m.Converged())
	for i, c := range m.Coeffs() {
		fmt.Printf("  %s: coeff=%.4f vsini=%.2f km/s\n", refNames[i], c, lincombVsini[i])
	}

	return nil
}
