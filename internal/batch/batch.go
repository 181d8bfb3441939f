// Package batch runs many independent fit sessions, one reference
// spectrum at a time against a single target, on a pool of workers. Each
// session owns its own matcher, optimizer, and model buffer; workers
// share nothing but the read-only target and the results slice slots they
// alone write, so no synchronization is needed beyond collecting final
// results.
package batch

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/specmatch/internal/match"
	"github.com/cwbudde/specmatch/internal/opt"
	"github.com/cwbudde/specmatch/internal/spectrum"
	"github.com/cwbudde/specmatch/internal/store"
	"github.com/google/uuid"
)

// Config holds the shared settings of a batch run.
type Config struct {
	// Mode is the residual weighting used by every session.
	Mode match.Mode

	// Algorithm selects the optimizer built per session.
	Algorithm opt.Algorithm

	// Opt carries the optimizer limits (iterations, population, seed).
	Opt opt.Config

	// Workers is the number of concurrent fit sessions. Zero means
	// GOMAXPROCS.
	Workers int

	// Store, when non-nil, receives every finished result.
	Store store.Store
}

// Item is the outcome of one reference's fit session.
type Item struct {
	JobID     string
	Reference string
	Chisq     float64
	Vsini     float64
	Converged bool
	Evals     int
	Err       error
}

// Run fits every reference against the target and returns the per-
// reference outcomes sorted by ascending chi-square (failed sessions
// last). It stops early if ctx is cancelled; already-finished items are
// still returned along with ctx.Err().
func Run(ctx context.Context, target *spectrum.Spectrum, refs []*spectrum.Spectrum, cfg Config) ([]Item, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(refs) {
		workers = len(refs)
	}

	slog.Info("Starting batch fit",
		"target", target.Name,
		"references", len(refs),
		"workers", workers,
		"algorithm", string(cfg.Algorithm),
		"mode", cfg.Mode.String(),
	)
	start := time.Now()

	items := make([]Item, len(refs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				items[idx] = fitOne(target, refs[idx], cfg)
			}
		}()
	}

	var ctxErr error
feed:
	for i := range refs {
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	// Rank by chi-square; failed or unscored sessions sink to the end.
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Chisq, items[j].Chisq
		switch {
		case items[i].Err == nil && items[j].Err != nil:
			return true
		case items[i].Err != nil && items[j].Err == nil:
			return false
		case math.IsNaN(a):
			return false
		case math.IsNaN(b):
			return true
		default:
			return a < b
		}
	})

	slog.Info("Batch fit complete",
		"target", target.Name,
		"references", len(refs),
		"elapsed", time.Since(start),
	)
	return items, ctxErr
}

// fitOne runs a fully isolated single-reference fit session.
func fitOne(target, ref *spectrum.Spectrum, cfg Config) Item {
	item := Item{
		JobID:     uuid.New().String(),
		Reference: ref.Name,
		Chisq:     math.NaN(),
		Vsini:     math.NaN(),
	}

	m, err := match.New(target, ref, cfg.Mode)
	if err != nil {
		item.Err = err
		slog.Error("Fit session rejected", "reference", ref.Name, "error", err)
		return item
	}

	optimizer, err := opt.New(cfg.Algorithm, cfg.Opt)
	if err != nil {
		item.Err = err
		return item
	}

	chisq, err := m.BestFit(optimizer)
	if err != nil {
		item.Err = err
		slog.Error("Fit session failed", "reference", ref.Name, "error", err)
		return item
	}

	item.Chisq = chisq
	item.Vsini = m.Vsini()
	item.Converged = m.Converged()
	item.Evals = m.Evals()

	if cfg.Store != nil {
		result, err := store.NewResult(item.JobID, target.Name, []string{ref.Name},
			string(cfg.Algorithm), cfg.Mode.String(), m)
		if err == nil {
			err = cfg.Store.SaveResult(item.JobID, result)
		}
		if err != nil {
			slog.Warn("Failed to persist fit result", "job_id", item.JobID, "error", err)
		}
	}

	slog.Debug("Fit session done",
		"job_id", item.JobID,
		"reference", ref.Name,
		"chisq", item.Chisq,
		"vsini", item.Vsini,
		"converged", item.Converged,
	)
	return item
}
