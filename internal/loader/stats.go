package loader

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jsdealy/bmdb/internal/metrics"
)

// Stats summarizes one dataset run.
type Stats struct {
	// Processed counts rows handed to workers.
	Processed int64
	Loaded    int64
	// Ignored rows were dropped by the transform (ErrSkip).
	Ignored int64
	// Missing rows referenced an absent film.
	Missing int64
	// Conflicts are constraint violations absorbed by the loader.
	Conflicts int64
	// Skipped rows were passed over by skip-forward.
	Skipped int64

	// Short and Filtered are reported by the row source.
	Short    int
	Filtered int

	Elapsed time.Duration
}

// String renders the one-line dataset summary.
func (s Stats) String() string {
	return fmt.Sprintf("processed=%d loaded=%d ignored=%d missing=%d conflicts=%d skipped=%d short=%d filtered=%d duration=%s",
		s.Processed, s.Loaded, s.Ignored, s.Missing, s.Conflicts, s.Skipped, s.Short, s.Filtered, s.Elapsed)
}

func (s Stats) emit(dataset string) {
	for outcome, n := range map[string]int64{
		"loaded":    s.Loaded,
		"ignored":   s.Ignored,
		"missing":   s.Missing,
		"conflict":  s.Conflicts,
		"skipped":   s.Skipped,
		"processed": s.Processed,
	} {
		if n > 0 {
			metrics.IncCounter(metrics.RowsTotal, float64(n), metrics.Labels{"dataset": dataset, "outcome": outcome})
		}
	}
}

type counters struct {
	processed atomic.Int64
	loaded    atomic.Int64
	ignored   atomic.Int64
	missing   atomic.Int64
	conflicts atomic.Int64
	skipped   atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Processed: c.processed.Load(),
		Loaded:    c.loaded.Load(),
		Ignored:   c.ignored.Load(),
		Missing:   c.missing.Load(),
		Conflicts: c.conflicts.Load(),
		Skipped:   c.skipped.Load(),
	}
}
