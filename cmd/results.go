package main

import (
	"fmt"
	"strings"

	"github.com/cwbudde/specmatch/internal/store"
	"github.com/spf13/cobra"
)

var (
	resultsData   string
	resultsJob    string
	resultsDelete bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List, inspect, or delete stored fit results",
	RunE:  runResults,
}

func init() {
	resultsCmd.Flags().StringVar(&resultsData, "data", "./data", "Result store directory")
	resultsCmd.Flags().StringVar(&resultsJob, "job", "", "Show the full result for one job ID")
	resultsCmd.Flags().BoolVar(&resultsDelete, "delete", false, "Delete the job given by --job")

	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	st, err := store.NewFSStore(resultsData)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}

	if resultsJob != "" {
		if resultsDelete {
			if err := st.DeleteResult(resultsJob); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", resultsJob)
			return nil
		}

		result, err := st.LoadResult(resultsJob)
		if err != nil {
			return err
		}
		fmt.Printf("Job:        %s\n", result.JobID)
		fmt.Printf("Target:     %s\n", result.Target)
		fmt.Printf("References: %s\n", strings.Join(result.References, ", "))
		fmt.Printf("Algorithm:  %s (mode: %s)\n", result.Algorithm, result.Mode)
		fmt.Printf("Chisq:      %.6g (converged: %v, evals: %d)\n", result.Chisq, result.Converged, result.Evals)
		fmt.Printf("Saved:      %s\n", result.Timestamp.Format("2006-01-02 15:04:05"))
		fmt.Println("Parameters:")
		for _, p := range result.Params {
			if p.Vary {
				fmt.Printf("  %-12s = %.6g  [%g, %g]\n", p.Name, p.Value, p.Min, p.Max)
			} else {
				fmt.Printf("  %-12s = %.6g  (fixed)\n", p.Name, p.Value)
			}
		}
		return nil
	}

	infos, err := st.ListResults()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No stored results.")
		return nil
	}

	for _, info := range infos {
		fmt.Printf("%s  %s vs %s  chisq=%.6g  %s  converged=%v\n",
			info.JobID, info.Target, strings.Join(info.References, "+"),
			info.Chisq, info.Algorithm, info.Converged)
	}
	return nil
}
