package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLStore implements Store on top of database/sql. Backends whose driver
// speaks database/sql embed it and supply a Dialect and a classifier.
type SQLStore struct {
	DB         *sql.DB
	Dialect    Dialect
	Classifier func(error) Class
}

func (s *SQLStore) Kind() string { return s.Dialect.Name }

func (s *SQLStore) Close() { _ = s.DB.Close() }

func (s *SQLStore) Classify(err error) Class {
	if err == nil || s.Classifier == nil {
		return ClassOther
	}
	return s.Classifier(err)
}

// EnsureTables creates every table in order. Referenced tables must come first.
func (s *SQLStore) EnsureTables(ctx context.Context, tables []TableSpec) error {
	for _, t := range tables {
		ddl, err := s.Dialect.CreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := s.DB.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (s *SQLStore) Optimize(ctx context.Context) error { return nil }

// NewSession prepares the spec's statements on the pool. database/sql re-uses a
// prepared statement per underlying connection, including inside transactions.
func (s *SQLStore) NewSession(ctx context.Context, spec SessionSpec) (Session, error) {
	sess := &sqlSession{
		inserts: make(map[string]*sql.Stmt, len(spec.Inserts)),
		probes:  make(map[string]*sql.Stmt, len(spec.Probes)),
		db:      s.DB,
	}
	for _, in := range spec.Inserts {
		st, err := s.DB.PrepareContext(ctx, s.Dialect.InsertSQL(in.Table, in.Columns))
		if err != nil {
			_ = sess.Close()
			return nil, fmt.Errorf("prepare insert %s: %w", in.Table, err)
		}
		sess.inserts[in.Table] = st
	}
	for _, p := range spec.Probes {
		st, err := s.DB.PrepareContext(ctx, s.Dialect.ProbeSQL(p.Table, p.Columns))
		if err != nil {
			_ = sess.Close()
			return nil, fmt.Errorf("prepare probe %s: %w", p.Name, err)
		}
		sess.probes[p.Name] = st
	}
	return sess, nil
}

func (s *SQLStore) FindFilm(ctx context.Context, titlePattern, directorPattern string) (string, bool, error) {
	var tconst string
	err := s.DB.QueryRowContext(ctx, s.Dialect.FindFilmSQL(), titlePattern, titlePattern, directorPattern).Scan(&tconst)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return tconst, true, nil
}

func (s *SQLStore) FilmsByDirector(ctx context.Context, directorPattern string) ([]FilmTitle, error) {
	rows, err := s.DB.QueryContext(ctx, s.Dialect.FilmsByDirectorSQL(), directorPattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FilmTitle
	for rows.Next() {
		var f FilmTitle
		if err := rows.Scan(&f.Tconst, &f.Title, &f.OriginalTitle); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLStore) Summaries(ctx context.Context, fn func(Summary) error) error {
	rows, err := s.DB.QueryContext(ctx, s.Dialect.SummarySQL())
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sum                        Summary
			year, runtime              sql.NullInt64
			genres, lang               sql.NullString
			directors, actors, writers sql.NullString
		)
		if err := rows.Scan(
			&sum.Tconst, &sum.Title, &sum.OriginalTitle,
			&year, &runtime, &genres,
			&sum.Rating, &sum.NumVotes,
			&lang, &directors, &actors, &writers,
		); err != nil {
			return err
		}
		sum.Year = year.Int64
		sum.Runtime = runtime.Int64
		sum.Genres = SplitList(genres.String)
		sum.Language = lang.String
		sum.Directors = SplitList(directors.String)
		sum.Actors = SplitList(actors.String)
		sum.Writers = SplitList(writers.String)
		if err := fn(sum); err != nil {
			return err
		}
	}
	return rows.Err()
}

type sqlSession struct {
	db      *sql.DB
	inserts map[string]*sql.Stmt
	probes  map[string]*sql.Stmt
}

func (s *sqlSession) Exists(ctx context.Context, probe string, args ...any) (bool, error) {
	st, ok := s.probes[probe]
	if !ok {
		return false, fmt.Errorf("unknown probe %q", probe)
	}
	var one int
	err := st.QueryRowContext(ctx, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqlSession) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx, sess: s}, nil
}

func (s *sqlSession) Close() error {
	var first error
	for _, st := range s.inserts {
		if err := st.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, st := range s.probes {
		if err := st.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type sqlTx struct {
	tx   *sql.Tx
	sess *sqlSession
}

func (t *sqlTx) Insert(ctx context.Context, table string, args ...any) error {
	st, ok := t.sess.inserts[table]
	if !ok {
		return fmt.Errorf("no prepared insert for table %q", table)
	}
	_, err := t.tx.StmtContext(ctx, st).ExecContext(ctx, args...)
	return err
}

func (t *sqlTx) Commit(ctx context.Context) error { return t.tx.Commit() }

func (t *sqlTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

var _ Store = (*SQLStore)(nil)
