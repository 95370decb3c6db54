package mssql

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/jsdealy/bmdb/internal/storage"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want storage.Class
	}{
		{name: "primary key", err: mssqldb.Error{Number: 2627}, want: storage.ClassConstraint},
		{name: "unique index", err: mssqldb.Error{Number: 2601}, want: storage.ClassConstraint},
		{name: "foreign key", err: fmt.Errorf("insert: %w", mssqldb.Error{Number: 547}), want: storage.ClassConstraint},
		{name: "deadlock", err: mssqldb.Error{Number: 1205}, want: storage.ClassBusy},
		{name: "lock timeout", err: mssqldb.Error{Number: 1222}, want: storage.ClassBusy},
		{name: "syntax", err: mssqldb.Error{Number: 102}, want: storage.ClassOther},
		{name: "plain", err: errors.New("login failed"), want: storage.ClassOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify=%s, want %s", got, tt.want)
			}
		})
	}
}

func TestDialect(t *testing.T) {
	t.Parallel()

	if got := Dialect.ProbeSQL(storage.TableFilms, []string{"tconst"}); got != `SELECT TOP 1 1 FROM "Films" WHERE "tconst" = @p1` {
		t.Fatalf("ProbeSQL=%q", got)
	}
	if got := Dialect.InsertSQL(storage.TableYears, []string{"tconst", "year"}); got != `INSERT INTO "Years" ("tconst", "year") VALUES (@p1, @p2)` {
		t.Fatalf("InsertSQL=%q", got)
	}
	ddl, err := Dialect.CreateTableSQL(storage.TableSpec{
		Name:    storage.TableNames,
		Columns: []storage.ColumnSpec{{Name: "nconst", Type: storage.TypeKey, PrimaryKey: true}},
	})
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	if !strings.HasPrefix(ddl, "IF OBJECT_ID(N'Names', N'U') IS NULL\nCREATE TABLE \"Names\"") || !strings.Contains(ddl, "NVARCHAR(32)") {
		t.Fatalf("ddl=%q", ddl)
	}
	if find := Dialect.FindFilmSQL(); !strings.HasPrefix(find, "SELECT TOP 1 f.tconst FROM") {
		t.Fatalf("FindFilmSQL=%q", find)
	}
}

func TestDialect_TextWidths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		table string
		want  string
	}{
		{table: storage.TableFilms, want: `"title" NVARCHAR(MAX) NOT NULL`},
		{table: storage.TableFilms, want: `"originalTitle" NVARCHAR(MAX) NOT NULL`},
		{table: storage.TableGenres, want: `"genre" NVARCHAR(MAX) NOT NULL`},
		// name is part of UNIQUE (nconst, name) and must stay indexable.
		{table: storage.TableNames, want: `"name" NVARCHAR(450) NOT NULL`},
	}
	for _, tt := range tests {
		spec, ok := storage.Lookup(tt.table)
		if !ok {
			t.Fatalf("%s missing from catalog", tt.table)
		}
		ddl, err := Dialect.CreateTableSQL(spec)
		if err != nil {
			t.Fatalf("CreateTableSQL(%s): %v", tt.table, err)
		}
		if !strings.Contains(ddl, tt.want) {
			t.Fatalf("%s ddl missing %q:\n%s", tt.table, tt.want, ddl)
		}
	}
}

// TestIntegration runs against a live server named by BMDB_TEST_MSSQL_DSN.
func TestIntegration(t *testing.T) {
	dsn := os.Getenv("BMDB_TEST_MSSQL_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("BMDB_TEST_MSSQL_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := Open(ctx, storage.Config{Kind: Kind, DSN: dsn})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if err := st.EnsureTables(ctx, storage.Catalog()); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	if err := st.EnsureTables(ctx, storage.Catalog()); err != nil {
		t.Fatalf("second EnsureTables: %v", err)
	}

	sess, err := st.NewSession(ctx, storage.SessionSpec{
		Inserts: []storage.InsertSpec{{Table: storage.TableFilms, Columns: []string{"tconst", "title", "originalTitle"}}},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	tconst := fmt.Sprintf("tt%d", time.Now().UnixNano()%1_000_000_000)
	insert := func() error {
		tx, err := sess.Begin(ctx)
		if err != nil {
			return err
		}
		if err := tx.Insert(ctx, storage.TableFilms, tconst, "Integration", "Integration"); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		return tx.Commit(ctx)
	}
	if err := insert(); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := insert(); st.Classify(err) != storage.ClassConstraint {
		t.Fatalf("duplicate insert classified %s: %v", st.Classify(err), err)
	}
}
