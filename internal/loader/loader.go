// Package loader is the chunked concurrent batch loader.
//
// A Dataset supplies the per-row transform-and-insert func; Run reads the
// source one bounded batch at a time, partitions each batch across a fixed
// worker pool and joins the pool before reading the next batch.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jsdealy/bmdb/internal/metrics"
	"github.com/jsdealy/bmdb/internal/storage"
	"github.com/jsdealy/bmdb/internal/tsv"
)

// Logger is the minimal logging interface used by the loader.
// *log.Logger and *zerolog.Logger satisfy it.
type Logger interface {
	Printf(format string, v ...any)
}

const (
	// DefaultWorkers is the pool size when Loader.Workers is not set.
	DefaultWorkers = 4
	// DefaultBatchSize caps the rows held in memory per batch.
	DefaultBatchSize = 5_000_000
	// DefaultReportInterval is how often (in processed rows) progress is logged.
	DefaultReportInterval = 100_000

	defaultBusyRetries = 3
	defaultBusyBackoff = 100 * time.Millisecond
)

var (
	// ErrSkip marks a row the transform deliberately did not load.
	ErrSkip = errors.New("row skipped")

	// ErrMissing marks a row whose referenced film is absent.
	ErrMissing = errors.New("referenced film missing")
)

// RowFunc transforms one row and writes it through the worker.
//
// Return nil when the row was written, an error wrapping ErrSkip or ErrMissing
// to drop it, or the store's error unchanged so the loader can classify it.
// Any other error is fatal for the run.
type RowFunc func(ctx context.Context, w *Worker, row tsv.Row) error

// Dataset is one input file's loading logic.
type Dataset struct {
	Name string

	// MinFields and Keep configure the row source: shorter rows and rows Keep
	// refuses never reach Apply.
	MinFields int
	Keep      func(fields []string) bool

	// Session is the statement set every worker prepares once per batch.
	Session storage.SessionSpec

	Apply RowFunc

	// Key returns the skip-forward key of a row. Nil disables skip-forward.
	Key func(row tsv.Row) string
}

// Source yields bounded batches. NextBatch returns io.EOF once exhausted.
// *tsv.Reader implements it.
type Source interface {
	NextBatch(max int) ([]tsv.Row, error)
}

// SessionOpener is the part of storage.Store the loader writes through.
type SessionOpener interface {
	NewSession(ctx context.Context, spec storage.SessionSpec) (storage.Session, error)
	Classify(err error) storage.Class
}

// Loader runs datasets against a store.
type Loader struct {
	Store  SessionOpener
	Logger Logger

	Workers        int
	BatchSize      int
	ReportInterval int

	// SkipForward selects when a key conflict engages skip-forward.
	SkipForward SkipMode

	// ConcurrentWrites drops the shared write guard. Leave false when the
	// backend serializes writers (SQLite).
	ConcurrentWrites bool

	// Verbose logs every dropped row.
	Verbose bool

	BusyRetries int
	BusyBackoff time.Duration

	// sleep is a test seam.
	sleep func(time.Duration)
}

func (l *Loader) logger() func(format string, v ...any) {
	if l.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return l.Logger.Printf
}

func (l *Loader) workers() int {
	if l.Workers <= 0 {
		return DefaultWorkers
	}
	return l.Workers
}

func (l *Loader) batchSize() int {
	if l.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return l.BatchSize
}

func (l *Loader) reportInterval() int64 {
	if l.ReportInterval <= 0 {
		return DefaultReportInterval
	}
	return int64(l.ReportInterval)
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

// RunReader loads ds from a tab-delimited stream whose first line is a header.
func (l *Loader) RunReader(ctx context.Context, ds Dataset, r io.Reader) (Stats, error) {
	src := tsv.NewReader(r, tsv.Options{MinFields: ds.MinFields, Keep: ds.Keep})
	st, err := l.Run(ctx, ds, src)
	rs := src.Stats()
	st.Short = rs.Short
	st.Filtered = rs.Filtered
	return st, err
}

// Run loads every batch src yields.
//
// Errors:
//   - Read errors and fatal row errors stop the run. Batches committed before
//     the failure stay committed.
//   - Constraint violations and rows dropped by Apply are counted, never returned.
func (l *Loader) Run(ctx context.Context, ds Dataset, src Source) (Stats, error) {
	if l.Store == nil {
		return Stats{}, fmt.Errorf("loader: Store is required")
	}
	if ds.Apply == nil {
		return Stats{}, fmt.Errorf("loader: dataset %q has no Apply func", ds.Name)
	}

	logf := l.logger()
	start := time.Now()
	run := &runState{
		loader:  l,
		ds:      ds,
		logf:    logf,
		counter: &counters{},
		report:  l.reportInterval(),
	}

	for batchNo := 1; ; batchNo++ {
		rows, err := src.NextBatch(l.batchSize())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return run.counter.snapshot(), fmt.Errorf("%s: read batch %d: %w", ds.Name, batchNo, err)
		}

		batchStart := time.Now()
		err = run.batch(ctx, rows)
		dur := durMS(batchStart)
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.IncCounter(metrics.BatchesTotal, 1, metrics.Labels{"dataset": ds.Name})
		metrics.ObserveHistogram(metrics.BatchDuration, dur.Seconds(), metrics.Labels{"dataset": ds.Name, "status": status})
		logf("stage=batch dataset=%s batch=%d rows=%d status=%s duration=%s", ds.Name, batchNo, len(rows), status, dur)
		if err != nil {
			return run.counter.snapshot(), err
		}
	}

	st := run.counter.snapshot()
	st.Elapsed = durMS(start)
	st.emit(ds.Name)
	metrics.ObserveHistogram(metrics.DatasetDuration, st.Elapsed.Seconds(), metrics.Labels{"dataset": ds.Name, "status": "ok"})
	return st, nil
}

// runState is shared by the workers of one Run.
type runState struct {
	loader *Loader
	ds     Dataset
	logf   func(format string, v ...any)

	// writeMu is the coarse single-writer guard.
	writeMu sync.Mutex

	counter *counters
	report  int64
}

// batch partitions rows and joins one worker per range. Each worker owns its
// range; nothing else reads or writes those rows while the pool runs.
func (s *runState) batch(ctx context.Context, rows []tsv.Row) error {
	ranges := Partition(len(rows), s.loader.workers())

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		if r.Len() == 0 {
			continue
		}
		part := rows[r.Start:r.End]
		g.Go(func() error {
			sess, err := s.loader.Store.NewSession(gctx, s.ds.Session)
			if err != nil {
				return fmt.Errorf("%s: worker %d: open session: %w", s.ds.Name, i, err)
			}
			defer sess.Close()

			w := &Worker{ID: i, sess: sess, run: s}
			return w.process(gctx, part)
		})
	}
	return g.Wait()
}

func (s *runState) verbosef(format string, v ...any) {
	if s.loader.Verbose {
		s.logf(format, v...)
	}
}

func (s *runState) sleep(d time.Duration) {
	if s.loader.sleep != nil {
		s.loader.sleep(d)
		return
	}
	time.Sleep(d)
}

// Worker is one member of a batch's pool. It owns its Session.
type Worker struct {
	ID int

	sess storage.Session
	run  *runState
}

// Exists runs a prepared probe. Probes are reads and take no write guard.
func (w *Worker) Exists(ctx context.Context, probe string, args ...any) (bool, error) {
	return w.sess.Exists(ctx, probe, args...)
}

// Reader returns the worker's session when it serves film reads, and
// fallback otherwise.
func (w *Worker) Reader(fallback storage.FilmReader) storage.FilmReader {
	if r, ok := w.sess.(storage.FilmReader); ok {
		return r
	}
	return fallback
}

// Write runs fn inside one transaction under the run's write guard and commits.
// Any error from fn rolls the transaction back and is returned unchanged.
// Transient lock errors are retried with a backoff scaled by worker ID.
func (w *Worker) Write(ctx context.Context, fn func(tx storage.Tx) error) error {
	l := w.run.loader
	retries := l.BusyRetries
	if retries <= 0 {
		retries = defaultBusyRetries
	}
	backoff := l.BusyBackoff
	if backoff <= 0 {
		backoff = defaultBusyBackoff
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = w.writeOnce(ctx, fn)
		if err == nil || l.Store.Classify(err) != storage.ClassBusy || attempt >= retries {
			return err
		}
		w.run.verbosef("stage=write dataset=%s worker=%d status=busy attempt=%d err=%v", w.run.ds.Name, w.ID, attempt+1, err)
		w.run.sleep(backoff * time.Duration(w.ID+1))
	}
}

func (w *Worker) writeOnce(ctx context.Context, fn func(tx storage.Tx) error) error {
	if !w.run.loader.ConcurrentWrites {
		w.run.writeMu.Lock()
		defer w.run.writeMu.Unlock()
	}

	tx, err := w.sess.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return nil
}

// process applies the dataset func to rows in source order.
func (w *Worker) process(ctx context.Context, rows []tsv.Row) error {
	ds := w.run.ds
	c := w.run.counter
	mode := w.run.loader.SkipForward

	var skipKey string
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		var key string
		if ds.Key != nil {
			key = ds.Key(row)
			if skipKey != "" && key == skipKey {
				c.skipped.Add(1)
				w.progress()
				continue
			}
			skipKey = ""
		}

		err := ds.Apply(ctx, w, row)
		switch {
		case err == nil:
			c.loaded.Add(1)

		case errors.Is(err, ErrSkip):
			c.ignored.Add(1)
			w.run.verbosef("stage=row dataset=%s line=%d status=skipped reason=%v", ds.Name, row.Line, err)

		case errors.Is(err, ErrMissing):
			c.missing.Add(1)
			if mode.engagesOnMissing() && key != "" {
				skipKey = key
			}
			w.run.verbosef("stage=row dataset=%s line=%d status=missing fields=%s", ds.Name, row.Line, strings.Join(row.Fields, "|"))

		case w.run.loader.Store.Classify(err) == storage.ClassConstraint:
			c.conflicts.Add(1)
			if mode.engagesOnConflict() && key != "" {
				skipKey = key
			}
			w.run.verbosef("stage=row dataset=%s line=%d status=conflict err=%v", ds.Name, row.Line, err)

		default:
			return fmt.Errorf("%s line %d: %w", ds.Name, row.Line, err)
		}
		w.progress()
	}
	return nil
}

func (w *Worker) progress() {
	c := w.run.counter
	n := c.processed.Add(1)
	if n%w.run.report == 0 {
		w.run.logf("stage=progress dataset=%s processed=%d loaded=%d conflicts=%d missing=%d skipped=%d",
			w.run.ds.Name, n, c.loaded.Load(), c.conflicts.Load(), c.missing.Load(), c.skipped.Load())
	}
}
