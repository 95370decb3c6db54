package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jsdealy/bmdb/internal/storage"
)

// Kind is the registry key of this backend.
const Kind = "postgres"

// Dialect is the Postgres SQL dialect.
var Dialect = storage.Dialect{
	Name: Kind,
	Bind: func(n int) string { return "$" + strconv.Itoa(n) },
	Types: map[storage.ColumnType]string{
		storage.TypeKey:   "TEXT",
		storage.TypeText:  "TEXT",
		storage.TypeInt:   "INTEGER",
		storage.TypeFloat: "DOUBLE PRECISION",
	},
	Like: "ILIKE",
	Agg:  func(expr string) string { return "string_agg(" + expr + ", chr(31))" },
	First: func(selectList, rest string) string {
		return "SELECT " + selectList + " " + rest + " LIMIT 1"
	},
	WrapCreate: func(_, body string) string {
		return strings.Replace(body, "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
	},
}

/*
Store implements storage.Store for Postgres on a pgx pool.

Each Session pins one pooled connection and prepares named statements on it,
so a worker's probes and inserts always hit statements prepared once.
*/
type Store struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register(Kind, Open)
}

// Open creates the pool and verifies connectivity.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Kind() string { return Kind }

// Close closes the connection pool.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := Dialect.CreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// Classify maps SQLSTATE codes.
func (s *Store) Classify(err error) storage.Class { return Classify(err) }

// Classify maps SQLSTATE codes: 23505 unique_violation, 23503
// foreign_key_violation; 40001, 40P01 and 55P03 are retryable.
func Classify(err error) storage.Class {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return storage.ClassOther
	}
	switch pgErr.Code {
	case "23505", "23503":
		return storage.ClassConstraint
	case "40001", "40P01", "55P03":
		return storage.ClassBusy
	default:
		return storage.ClassOther
	}
}

func (s *Store) NewSession(ctx context.Context, spec storage.SessionSpec) (storage.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: acquire: %w", err)
	}
	sess := &session{
		conn:    conn,
		inserts: make(map[string]string, len(spec.Inserts)),
		probes:  make(map[string]string, len(spec.Probes)),
	}
	for _, in := range spec.Inserts {
		name := "ins_" + strings.ToLower(in.Table)
		if _, err := conn.Conn().Prepare(ctx, name, Dialect.InsertSQL(in.Table, in.Columns)); err != nil {
			conn.Release()
			return nil, fmt.Errorf("prepare insert %s: %w", in.Table, err)
		}
		sess.inserts[in.Table] = name
	}
	for _, p := range spec.Probes {
		name := "probe_" + strings.ToLower(p.Name)
		if _, err := conn.Conn().Prepare(ctx, name, Dialect.ProbeSQL(p.Table, p.Columns)); err != nil {
			conn.Release()
			return nil, fmt.Errorf("prepare probe %s: %w", p.Name, err)
		}
		sess.probes[p.Name] = name
	}
	return sess, nil
}

// querier is what *pgxpool.Pool and *pgxpool.Conn both offer.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) FindFilm(ctx context.Context, titlePattern, directorPattern string) (string, bool, error) {
	return findFilm(ctx, s.pool, titlePattern, directorPattern)
}

func (s *Store) FilmsByDirector(ctx context.Context, directorPattern string) ([]storage.FilmTitle, error) {
	return filmsByDirector(ctx, s.pool, directorPattern)
}

func findFilm(ctx context.Context, q querier, titlePattern, directorPattern string) (string, bool, error) {
	var tconst string
	err := q.QueryRow(ctx, Dialect.FindFilmSQL(), titlePattern, titlePattern, directorPattern).Scan(&tconst)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return tconst, true, nil
}

func filmsByDirector(ctx context.Context, q querier, directorPattern string) ([]storage.FilmTitle, error) {
	rows, err := q.Query(ctx, Dialect.FilmsByDirectorSQL(), directorPattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.FilmTitle
	for rows.Next() {
		var f storage.FilmTitle
		if err := rows.Scan(&f.Tconst, &f.Title, &f.OriginalTitle); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) Summaries(ctx context.Context, fn func(storage.Summary) error) error {
	rows, err := s.pool.Query(ctx, Dialect.SummarySQL())
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sum                        storage.Summary
			year, runtime              *int64
			genres, lang               *string
			directors, actors, writers *string
		)
		if err := rows.Scan(
			&sum.Tconst, &sum.Title, &sum.OriginalTitle,
			&year, &runtime, &genres,
			&sum.Rating, &sum.NumVotes,
			&lang, &directors, &actors, &writers,
		); err != nil {
			return err
		}
		if year != nil {
			sum.Year = *year
		}
		if runtime != nil {
			sum.Runtime = *runtime
		}
		sum.Genres = storage.SplitList(deref(genres))
		sum.Language = deref(lang)
		sum.Directors = storage.SplitList(deref(directors))
		sum.Actors = storage.SplitList(deref(actors))
		sum.Writers = storage.SplitList(deref(writers))
		if err := fn(sum); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Optimize refreshes planner statistics.
func (s *Store) Optimize(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "ANALYZE")
	return err
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

type session struct {
	conn    *pgxpool.Conn
	inserts map[string]string
	probes  map[string]string
}

func (s *session) Exists(ctx context.Context, probe string, args ...any) (bool, error) {
	name, ok := s.probes[probe]
	if !ok {
		return false, fmt.Errorf("unknown probe %q", probe)
	}
	var one int
	err := s.conn.QueryRow(ctx, name, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindFilm runs on the session's pinned connection. Going back to the pool
// would block once every connection is pinned by a worker.
func (s *session) FindFilm(ctx context.Context, titlePattern, directorPattern string) (string, bool, error) {
	return findFilm(ctx, s.conn, titlePattern, directorPattern)
}

func (s *session) FilmsByDirector(ctx context.Context, directorPattern string) ([]storage.FilmTitle, error) {
	return filmsByDirector(ctx, s.conn, directorPattern)
}

func (s *session) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &rowTx{tx: tx, inserts: s.inserts}, nil
}

func (s *session) Close() error {
	s.conn.Release()
	return nil
}

type rowTx struct {
	tx      pgx.Tx
	inserts map[string]string
}

func (t *rowTx) Insert(ctx context.Context, table string, args ...any) error {
	name, ok := t.inserts[table]
	if !ok {
		return fmt.Errorf("no prepared insert for table %q", table)
	}
	_, err := t.tx.Exec(ctx, name, args...)
	return err
}

func (t *rowTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *rowTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

var (
	_ storage.Store      = (*Store)(nil)
	_ storage.FilmReader = (*session)(nil)
)
