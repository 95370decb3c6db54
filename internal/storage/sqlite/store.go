// Package sqlite is the embedded backend (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jsdealy/bmdb/internal/storage"
)

// Kind is the registry key of this backend.
const Kind = "sqlite"

// pragmas apply to every pooled connection. Foreign keys are off by default in
// SQLite, and the FK policy of the loaders depends on them.
var pragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(normal)",
	"temp_store(memory)",
	"busy_timeout(10000)",
	"mmap_size(268435456)",
}

// Dialect is the SQLite SQL dialect.
var Dialect = storage.Dialect{
	Name: Kind,
	Bind: func(int) string { return "?" },
	Types: map[storage.ColumnType]string{
		storage.TypeKey:   "TEXT",
		storage.TypeText:  "TEXT",
		storage.TypeInt:   "INTEGER",
		storage.TypeFloat: "REAL",
	},
	Like: "LIKE",
	Agg:  func(expr string) string { return "group_concat(" + expr + ", char(31))" },
	First: func(selectList, rest string) string {
		return "SELECT " + selectList + " " + rest + " LIMIT 1"
	},
	WrapCreate: func(_, body string) string {
		return strings.Replace(body, "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
	},
}

// Store is the SQLite Store.
type Store struct {
	storage.SQLStore
}

func init() {
	storage.Register(Kind, Open)
}

// DSN turns a database path into a modernc DSN carrying the loader pragmas.
// If the DSN already has query parameters, only the pragmas and the _txlock
// setting it does not name itself are appended.
func DSN(path string) string {
	base, query, _ := strings.Cut(path, "?")
	if !strings.HasPrefix(base, "file:") {
		base = "file:" + base
	}

	var params []string
	named := make(map[string]bool)
	if query != "" {
		for _, kv := range strings.Split(query, "&") {
			if kv == "" {
				continue
			}
			params = append(params, kv)
			key, val, _ := strings.Cut(kv, "=")
			if key == "_pragma" {
				name, _, _ := strings.Cut(val, "(")
				named[strings.ToLower(strings.TrimSpace(name))] = true
			} else {
				named[key] = true
			}
		}
	}
	for _, p := range pragmas {
		name, _, _ := strings.Cut(p, "(")
		if !named[name] {
			params = append(params, "_pragma="+p)
		}
	}
	if !named["_txlock"] {
		params = append(params, "_txlock=immediate")
	}
	return base + "?" + strings.Join(params, "&")
}

// Open opens the database and verifies connectivity.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: empty DSN")
	}
	db, err := sql.Open("sqlite", DSN(cfg.DSN))
	if err != nil {
		return nil, err
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 8
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{SQLStore: storage.SQLStore{DB: db, Dialect: Dialect, Classifier: Classify}}, nil
}

// Classify maps SQLite result codes. Extended codes are folded to their
// primary code first.
func Classify(err error) storage.Class {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return storage.ClassOther
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		return storage.ClassConstraint
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return storage.ClassBusy
	default:
		return storage.ClassOther
	}
}

// Optimize refreshes planner statistics after a bulk load.
func (s *Store) Optimize(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("sqlite analyze: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("sqlite optimize: %w", err)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
