// Package metrics is the backend-neutral metrics facade used by the loaders.
//
// Core code calls the package-level helpers; cmd/bmdb installs a concrete
// backend with SetBackend. The default backend discards everything.
package metrics

import "sync"

// Labels are metric dimensions (e.g. dataset, outcome).
type Labels map[string]string

// Backend receives metric updates. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names emitted by the loaders and the resolver.
const (
	RowsTotal        = "bmdb_rows_total"
	BatchesTotal     = "bmdb_batches_total"
	BatchDuration    = "bmdb_batch_duration_seconds"
	DatasetDuration  = "bmdb_dataset_duration_seconds"
	ResolutionsTotal = "bmdb_resolutions_total"
)

type nop struct{}

func (nop) IncCounter(string, float64, Labels) {}

func (nop) ObserveHistogram(string, float64, Labels) {}

func (nop) Flush() error { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nop{}
)

// SetBackend installs b. A nil b restores the discarding backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nop{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample on the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush pushes buffered metrics on the installed backend.
func Flush() error { return current().Flush() }
