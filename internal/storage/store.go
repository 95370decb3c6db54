package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a Store.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string

	// MaxConns caps the backend connection pool. Zero keeps the backend default.
	MaxConns int
}

// Store is the relational store the loaders and the resolver talk to.
//
// Each backend implements these semantics with its own driver. Writes go
// through per-worker Sessions so prepared statements are owned by exactly one
// goroutine; reads used by the resolver and the exporter are on the Store.
type Store interface {
	// Kind returns the registered backend kind ("sqlite", "postgres", "mssql").
	Kind() string

	// Close releases backend resources. Call once.
	Close()

	// EnsureTables creates tables and constraints that do not exist yet.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// NewSession prepares every statement named by spec and returns a Session
	// owning them. The Session is not safe for concurrent use.
	NewSession(ctx context.Context, spec SessionSpec) (Session, error)

	// Classify maps a backend error to a Class.
	Classify(err error) Class

	FilmReader

	// Summaries streams one Summary per rated film (numVotes != 0) ordered by tconst.
	Summaries(ctx context.Context, fn func(Summary) error) error

	// Optimize runs backend maintenance after a bulk load. It may be a no-op.
	Optimize(ctx context.Context) error
}

// FilmReader is the read side the resolver queries.
type FilmReader interface {
	// FindFilm returns the first film whose title or originalTitle matches
	// titlePattern and that has a director whose name matches directorPattern.
	// Patterns use LIKE syntax. found is false when nothing matches.
	FindFilm(ctx context.Context, titlePattern, directorPattern string) (tconst string, found bool, err error)

	// FilmsByDirector returns every film with a director matching directorPattern.
	FilmsByDirector(ctx context.Context, directorPattern string) ([]FilmTitle, error)
}

// Session owns the prepared statements of one load worker.
//
// A Session that holds a connection for its whole life also implements
// FilmReader, so reads issued by the worker run on that connection instead
// of waiting for another one from the pool.
type Session interface {
	// Exists runs the named probe and reports whether at least one row matched.
	// A missing row is a normal false result, not an error.
	Exists(ctx context.Context, probe string, args ...any) (bool, error)

	// Begin starts a write transaction on the session's statements.
	Begin(ctx context.Context) (Tx, error)

	// Close releases the prepared statements.
	Close() error
}

// Tx is one row's write scope.
type Tx interface {
	// Insert executes the prepared insert for table with args in column order.
	Insert(ctx context.Context, table string, args ...any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// InsertSpec names a table and the columns a prepared insert binds.
type InsertSpec struct {
	Table   string
	Columns []string
}

// ProbeSpec describes an existence probe: SELECT 1 FROM Table WHERE Columns = ?.
type ProbeSpec struct {
	Name    string
	Table   string
	Columns []string
}

// SessionSpec is the statement set a worker prepares once.
type SessionSpec struct {
	Inserts []InsertSpec
	Probes  []ProbeSpec
}

// FilmTitle is a resolver candidate.
type FilmTitle struct {
	Tconst        string
	Title         string
	OriginalTitle string
}

// Summary is one line of the flat export.
type Summary struct {
	Tconst        string
	Title         string
	OriginalTitle string
	Year          int64
	Runtime       int64
	Genres        []string
	Rating        float64
	NumVotes      int64
	Language      string
	Directors     []string
	Actors        []string
	Writers       []string
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Kinds lists registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open constructs a Store using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}
