// Package mssql is the SQL Server backend (github.com/microsoft/go-mssqldb).
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/jsdealy/bmdb/internal/storage"
)

// Kind is the registry key of this backend.
const Kind = "mssql"

// Dialect is the SQL Server dialect. Free text is NVARCHAR(MAX); text that is
// indexed is bounded because a unique constraint key must fit in 1700 bytes.
var Dialect = storage.Dialect{
	Name: Kind,
	Bind: func(n int) string { return "@p" + strconv.Itoa(n) },
	Types: map[storage.ColumnType]string{
		storage.TypeKey:   "NVARCHAR(32)",
		storage.TypeText:  "NVARCHAR(MAX)",
		storage.TypeInt:   "INT",
		storage.TypeFloat: "FLOAT",
	},
	IndexedTypes: map[storage.ColumnType]string{
		storage.TypeText: "NVARCHAR(450)",
	},
	Like: "LIKE",
	Agg: func(expr string) string {
		return "STRING_AGG(CAST(" + expr + " AS NVARCHAR(MAX)), CHAR(31))"
	},
	First: func(selectList, rest string) string {
		return "SELECT TOP 1 " + selectList + " " + rest
	},
	WrapCreate: func(table, body string) string {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\n%s", table, body)
	},
}

// Store is the SQL Server Store.
type Store struct {
	storage.SQLStore
}

func init() {
	storage.Register(Kind, Open)
}

// Open connects with the "sqlserver" driver registered by go-mssqldb and
// validates connectivity via PingContext.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 16
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{SQLStore: storage.SQLStore{DB: db, Dialect: Dialect, Classifier: Classify}}, nil
}

// Classify maps SQL Server error numbers.
//
//   - 2627, 2601: unique or primary key violation.
//   - 547: foreign key conflict.
//   - 1205 (deadlock victim), 1222 (lock request timeout): retryable.
func Classify(err error) storage.Class {
	var se mssqldb.Error
	if !errors.As(err, &se) {
		return storage.ClassOther
	}
	switch se.SQLErrorNumber() {
	case 2627, 2601, 547:
		return storage.ClassConstraint
	case 1205, 1222:
		return storage.ClassBusy
	default:
		return storage.ClassOther
	}
}

// Optimize refreshes statistics for every table.
func (s *Store) Optimize(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, "EXEC sp_updatestats")
	return err
}

var _ storage.Store = (*Store)(nil)
