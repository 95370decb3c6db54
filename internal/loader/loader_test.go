package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jsdealy/bmdb/internal/storage"
	"github.com/jsdealy/bmdb/internal/tsv"
)

var (
	errConstraint = errors.New("fake: UNIQUE constraint failed")
	errBusy       = errors.New("fake: database is locked")
)

type fakeStore struct {
	mu sync.Mutex

	sessions int
	closed   int
	inserts  int
	rows     map[string][][]any

	// insertErr, when set, is consulted before every insert.
	insertErr func(table string, args []any) error
	// exists answers probes; nil means "always exists".
	exists func(probe string, args []any) bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string][][]any)}
}

func (f *fakeStore) NewSession(ctx context.Context, spec storage.SessionSpec) (storage.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	return &fakeSession{store: f}, nil
}

func (f *fakeStore) Classify(err error) storage.Class {
	switch {
	case errors.Is(err, errConstraint):
		return storage.ClassConstraint
	case errors.Is(err, errBusy):
		return storage.ClassBusy
	default:
		return storage.ClassOther
	}
}

func (f *fakeStore) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[table])
}

type fakeSession struct {
	store *fakeStore
}

func (s *fakeSession) Exists(ctx context.Context, probe string, args ...any) (bool, error) {
	if s.store.exists == nil {
		return true, nil
	}
	return s.store.exists(probe, args), nil
}

func (s *fakeSession) Begin(ctx context.Context) (storage.Tx, error) {
	return &fakeTx{store: s.store}, nil
}

func (s *fakeSession) Close() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.closed++
	return nil
}

type fakeTx struct {
	store   *fakeStore
	pending map[string][][]any
}

func (t *fakeTx) Insert(ctx context.Context, table string, args ...any) error {
	t.store.mu.Lock()
	t.store.inserts++
	t.store.mu.Unlock()
	if t.store.insertErr != nil {
		if err := t.store.insertErr(table, args); err != nil {
			return err
		}
	}
	if t.pending == nil {
		t.pending = make(map[string][][]any)
	}
	t.pending[table] = append(t.pending[table], args)
	return nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for table, rows := range t.pending {
		t.store.rows[table] = append(t.store.rows[table], rows...)
	}
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.pending = nil
	return nil
}

type sliceSource struct {
	rows []tsv.Row
	err  error
}

func (s *sliceSource) NextBatch(max int) ([]tsv.Row, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.rows) == 0 {
		return nil, io.EOF
	}
	n := max
	if n <= 0 || n > len(s.rows) {
		n = len(s.rows)
	}
	out := s.rows[:n]
	s.rows = s.rows[n:]
	return out, nil
}

func rowsOf(keys ...string) []tsv.Row {
	out := make([]tsv.Row, 0, len(keys))
	for i, k := range keys {
		out = append(out, tsv.Row{Line: i + 2, Fields: []string{k, fmt.Sprintf("v%d", i)}})
	}
	return out
}

func insertFirstField(ctx context.Context, w *Worker, row tsv.Row) error {
	return w.Write(ctx, func(tx storage.Tx) error {
		return tx.Insert(ctx, "T", row.Field(0), row.Field(1))
	})
}

func TestRun_LoadsEveryRowOnceAcrossBatches(t *testing.T) {
	t.Parallel()

	keys := make([]string, 103)
	for i := range keys {
		keys[i] = fmt.Sprintf("tt%d", i)
	}

	var mu sync.Mutex
	visits := map[string]int{}

	store := newFakeStore()
	l := &Loader{Store: store, Workers: 4, BatchSize: 10}
	ds := Dataset{
		Name: "test",
		Apply: func(ctx context.Context, w *Worker, row tsv.Row) error {
			mu.Lock()
			visits[row.Field(0)]++
			mu.Unlock()
			return insertFirstField(ctx, w, row)
		},
	}

	st, err := l.Run(context.Background(), ds, &sliceSource{rows: rowsOf(keys...)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Loaded != 103 || st.Processed != 103 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	for _, k := range keys {
		if visits[k] != 1 {
			t.Fatalf("%s visited %d times", k, visits[k])
		}
	}
	if got := store.count("T"); got != 103 {
		t.Fatalf("expected 103 committed rows, got %d", got)
	}

	// Ten full batches use four workers each; the final three rows all land
	// on the last worker.
	if store.sessions != 41 {
		t.Fatalf("expected 41 sessions, got %d", store.sessions)
	}
	if store.closed != store.sessions {
		t.Fatalf("expected every session closed, opened=%d closed=%d", store.sessions, store.closed)
	}
}

func TestRun_ConstraintViolationIsAbsorbed(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.insertErr = func(table string, args []any) error {
		if args[0] == "dup" {
			return fmt.Errorf("exec: %w", errConstraint)
		}
		return nil
	}
	l := &Loader{Store: store, Workers: 2}

	st, err := l.Run(context.Background(), Dataset{Name: "t", Apply: insertFirstField}, &sliceSource{rows: rowsOf("a", "dup", "b")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Loaded != 2 || st.Conflicts != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if got := store.count("T"); got != 2 {
		t.Fatalf("expected 2 committed rows, got %d", got)
	}
}

func TestRun_FatalRowErrorStopsRun(t *testing.T) {
	t.Parallel()

	bad := errors.New("parse runtime: invalid syntax")
	l := &Loader{Store: newFakeStore(), Workers: 1}
	ds := Dataset{
		Name: "basics",
		Apply: func(ctx context.Context, w *Worker, row tsv.Row) error {
			if row.Field(0) == "b" {
				return bad
			}
			return insertFirstField(ctx, w, row)
		},
	}

	st, err := l.Run(context.Background(), ds, &sliceSource{rows: rowsOf("a", "b", "c")})
	if !errors.Is(err, bad) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if !strings.Contains(err.Error(), "basics line 3") {
		t.Fatalf("error should name dataset and line, got %q", err.Error())
	}
	if st.Loaded != 1 {
		t.Fatalf("expected rows before the failure to stay loaded, got %+v", st)
	}
}

func TestRun_SkipForward(t *testing.T) {
	t.Parallel()

	// tt1 is missing; tt9 is a duplicate edge.
	keys := []string{"tt1", "tt1", "tt1", "tt2", "tt1", "tt9", "tt9", "tt3"}

	tests := []struct {
		name          string
		mode          SkipMode
		wantApply     int
		wantMissing   int64
		wantConflicts int64
		wantSkipped   int64
	}{
		{name: "off", mode: SkipOff, wantApply: 8, wantMissing: 4, wantConflicts: 2, wantSkipped: 0},
		{name: "missing", mode: SkipMissing, wantApply: 6, wantMissing: 2, wantConflicts: 2, wantSkipped: 2},
		{name: "any", mode: SkipAny, wantApply: 5, wantMissing: 2, wantConflicts: 1, wantSkipped: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			store.exists = func(probe string, args []any) bool { return args[0] != "tt1" }
			store.insertErr = func(table string, args []any) error {
				if args[0] == "tt9" {
					return errConstraint
				}
				return nil
			}

			applies := 0
			ds := Dataset{
				Name: "principals",
				Key:  func(row tsv.Row) string { return row.Field(0) },
				Apply: func(ctx context.Context, w *Worker, row tsv.Row) error {
					applies++
					ok, err := w.Exists(ctx, "film", row.Field(0))
					if err != nil {
						return err
					}
					if !ok {
						return ErrMissing
					}
					return insertFirstField(ctx, w, row)
				},
			}

			l := &Loader{Store: store, Workers: 1, SkipForward: tt.mode}
			st, err := l.Run(context.Background(), ds, &sliceSource{rows: rowsOf(keys...)})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if applies != tt.wantApply {
				t.Fatalf("expected %d Apply calls, got %d", tt.wantApply, applies)
			}
			if st.Missing != tt.wantMissing || st.Conflicts != tt.wantConflicts || st.Skipped != tt.wantSkipped {
				t.Fatalf("unexpected stats: %+v", st)
			}
			if st.Loaded != 2 {
				t.Fatalf("expected tt2 and tt3 loaded, got %+v", st)
			}
		})
	}
}

func TestRun_ErrSkipIsCounted(t *testing.T) {
	t.Parallel()

	ds := Dataset{
		Name: "t",
		Apply: func(ctx context.Context, w *Worker, row tsv.Row) error {
			return fmt.Errorf("category %q: %w", "producer", ErrSkip)
		},
	}
	st, err := (&Loader{Store: newFakeStore()}).Run(context.Background(), ds, &sliceSource{rows: rowsOf("a", "b")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Ignored != 2 || st.Loaded != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestWrite_RetriesBusyThenSucceeds(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	var mu sync.Mutex
	failures := 2
	store.insertErr = func(table string, args []any) error {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return errBusy
		}
		return nil
	}

	var slept []time.Duration
	l := &Loader{
		Store:       store,
		Workers:     1,
		BusyBackoff: 10 * time.Millisecond,
		sleep:       func(d time.Duration) { slept = append(slept, d) },
	}

	st, err := l.Run(context.Background(), Dataset{Name: "t", Apply: insertFirstField}, &sliceSource{rows: rowsOf("a")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Loaded != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if len(slept) != 2 || slept[0] != 10*time.Millisecond {
		t.Fatalf("unexpected backoff sleeps: %v", slept)
	}
}

func TestWrite_BusyExhaustedIsFatal(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.insertErr = func(string, []any) error { return errBusy }
	l := &Loader{Store: store, Workers: 1, BusyRetries: 2, sleep: func(time.Duration) {}}

	_, err := l.Run(context.Background(), Dataset{Name: "t", Apply: insertFirstField}, &sliceSource{rows: rowsOf("a")})
	if !errors.Is(err, errBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if store.inserts != 3 {
		t.Fatalf("expected 1 attempt plus 2 retries, got %d inserts", store.inserts)
	}
}

func TestRun_JoinWaitsForStalledWorker(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ds := Dataset{
		Name: "t",
		Apply: func(ctx context.Context, w *Worker, row tsv.Row) error {
			if row.Field(0) == "slow" {
				<-release
			}
			return insertFirstField(ctx, w, row)
		},
	}

	store := newFakeStore()
	l := &Loader{Store: store, Workers: 4}
	done := make(chan error, 1)
	go func() {
		_, err := l.Run(context.Background(), ds, &sliceSource{rows: rowsOf("a", "b", "c", "d", "e", "f", "g", "slow")})
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("Run returned before the stalled worker finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after the worker was released")
	}
	if got := store.count("T"); got != 8 {
		t.Fatalf("expected 8 rows, got %d", got)
	}
}

func TestRun_SourceErrorIsFatal(t *testing.T) {
	t.Parallel()

	boom := errors.New("read: input/output error")
	_, err := (&Loader{Store: newFakeStore()}).Run(context.Background(), Dataset{Name: "t", Apply: insertFirstField}, &sliceSource{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestRunReader_ReportsSourceCounters(t *testing.T) {
	t.Parallel()

	in := "tconst\tlang\n" + "tt1\ten\n" + "tt2\n" + "tt3\tfr\n"
	ds := Dataset{Name: "languages", MinFields: 2, Apply: insertFirstField}

	st, err := (&Loader{Store: newFakeStore()}).RunReader(context.Background(), ds, strings.NewReader(in))
	if err != nil {
		t.Fatalf("RunReader: %v", err)
	}
	if st.Loaded != 2 || st.Short != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestRun_RequiresStoreAndApply(t *testing.T) {
	t.Parallel()

	if _, err := (&Loader{}).Run(context.Background(), Dataset{Apply: insertFirstField}, &sliceSource{}); err == nil {
		t.Fatalf("expected error for missing store")
	}
	if _, err := (&Loader{Store: newFakeStore()}).Run(context.Background(), Dataset{Name: "x"}, &sliceSource{}); err == nil {
		t.Fatalf("expected error for missing Apply")
	}
}

func TestParseSkipMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    SkipMode
		wantErr bool
	}{
		{in: "", want: SkipMissing},
		{in: "missing", want: SkipMissing},
		{in: "OFF", want: SkipOff},
		{in: "any", want: SkipAny},
		{in: "sometimes", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSkipMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseSkipMode(%q) err=%v wantErr=%v", tt.in, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Fatalf("ParseSkipMode(%q)=%v want %v", tt.in, got, tt.want)
		}
	}
}
