package storage

import (
	"fmt"
	"strings"
)

// Dialect carries the SQL differences between backends. The builders in this
// file are shared; backends only fill in the hooks.
type Dialect struct {
	Name string

	// Bind returns the n-th (1-based) placeholder.
	Bind func(n int) string

	// Types maps logical column types to physical ones.
	Types map[ColumnType]string

	// IndexedTypes overrides Types for columns that are keys, unique,
	// references or part of a unique constraint. Optional.
	IndexedTypes map[ColumnType]string

	// Like is the case-insensitive pattern operator.
	Like string

	// Agg aggregates a text expression into one ListSep-separated value.
	Agg func(expr string) string

	// First turns a select list and the remainder of a query into a query
	// returning at most one row.
	First func(selectList, rest string) string

	// WrapCreate wraps a CREATE TABLE body so it only runs when the table is absent.
	WrapCreate func(table, body string) string
}

// Ident quotes an identifier with ANSI double quotes. All three backends accept
// them (SQL Server with QUOTED_IDENTIFIER ON, the driver default).
func Ident(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func (d Dialect) binds(from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.Bind(from + i)
	}
	return out
}

// CreateTableSQL renders idempotent DDL for t.
func (d Dialect) CreateTableSQL(t TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s has no columns", t.Name)
	}

	constrained := make(map[string]bool)
	for _, con := range t.Constraints {
		for _, c := range con.Columns {
			constrained[c] = true
		}
	}

	parts := make([]string, 0, len(t.Columns)+len(t.Constraints))
	for _, c := range t.Columns {
		indexed := c.PrimaryKey || c.Unique || c.References != "" || constrained[c.Name]
		typ, ok := d.columnType(c.Type, indexed)
		if !ok {
			return "", fmt.Errorf("%s.%s unsupported column type: %s", t.Name, c.Name, c.Type)
		}
		col := fmt.Sprintf("%s %s", Ident(c.Name), typ)
		nullable := false
		if c.Nullable != nil {
			nullable = *c.Nullable
		}
		if !nullable {
			col += " NOT NULL"
		}
		if c.PrimaryKey {
			col += " PRIMARY KEY"
		}
		if c.Unique {
			col += " UNIQUE"
		}
		if c.References != "" {
			ref, err := quoteReference(c.References)
			if err != nil {
				return "", fmt.Errorf("%s.%s: %w", t.Name, c.Name, err)
			}
			col += " REFERENCES " + ref
		}
		parts = append(parts, col)
	}

	for _, con := range t.Constraints {
		if con.Kind != "unique" {
			return "", fmt.Errorf("%s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		cols := make([]string, 0, len(con.Columns))
		for _, c := range con.Columns {
			cols = append(cols, Ident(c))
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	body := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", Ident(t.Name), strings.Join(parts, ",\n  "))
	return d.WrapCreate(t.Name, body), nil
}

func (d Dialect) columnType(t ColumnType, indexed bool) (string, bool) {
	if indexed {
		if typ, ok := d.IndexedTypes[t]; ok {
			return typ, true
		}
	}
	typ, ok := d.Types[t]
	return typ, ok
}

// quoteReference turns "Table(column)" into a quoted reference target.
func quoteReference(ref string) (string, error) {
	open := strings.IndexByte(ref, '(')
	if open <= 0 || !strings.HasSuffix(ref, ")") {
		return "", fmt.Errorf("malformed reference %q", ref)
	}
	table := strings.TrimSpace(ref[:open])
	column := strings.TrimSpace(ref[open+1 : len(ref)-1])
	if column == "" {
		return "", fmt.Errorf("malformed reference %q", ref)
	}
	return fmt.Sprintf("%s(%s)", Ident(table), Ident(column)), nil
}

// InsertSQL renders a single-row parameterized insert.
func (d Dialect) InsertSQL(table string, columns []string) string {
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, Ident(c))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		Ident(table), strings.Join(cols, ", "), strings.Join(d.binds(1, len(columns)), ", "))
}

// ProbeSQL renders an existence probe returning at most one row.
func (d Dialect) ProbeSQL(table string, columns []string) string {
	where := make([]string, 0, len(columns))
	for i, c := range columns {
		where = append(where, fmt.Sprintf("%s = %s", Ident(c), d.Bind(i+1)))
	}
	return d.First("1", fmt.Sprintf("FROM %s WHERE %s", Ident(table), strings.Join(where, " AND ")))
}

// FindFilmSQL binds (titlePattern, titlePattern, directorPattern).
func (d Dialect) FindFilmSQL() string {
	rest := fmt.Sprintf(`FROM %s f
JOIN %s d ON d.tconst = f.tconst
JOIN %s n ON n.nconst = d.nconst
WHERE (f.title %s %s OR f.%s %s %s) AND n.name %s %s
ORDER BY f.tconst`,
		Ident(TableFilms), Ident(TableDirectors), Ident(TableNames),
		d.Like, d.Bind(1), Ident("originalTitle"), d.Like, d.Bind(2),
		d.Like, d.Bind(3))
	return d.First("f.tconst", rest)
}

// FilmsByDirectorSQL binds (directorPattern).
func (d Dialect) FilmsByDirectorSQL() string {
	return fmt.Sprintf(`SELECT DISTINCT f.tconst, f.title, f.%s
FROM %s f
JOIN %s d ON d.tconst = f.tconst
JOIN %s n ON n.nconst = d.nconst
WHERE n.name %s %s
ORDER BY f.tconst`,
		Ident("originalTitle"), Ident(TableFilms), Ident(TableDirectors), Ident(TableNames),
		d.Like, d.Bind(1))
}

// SummarySQL selects the columns of Summary in declaration order. List
// columns come back joined with ListSep.
func (d Dialect) SummarySQL() string {
	credits := func(table string) string {
		return fmt.Sprintf("(SELECT %s FROM %s c JOIN %s n ON n.nconst = c.nconst WHERE c.tconst = f.tconst)",
			d.Agg("n.name"), Ident(table), Ident(TableNames))
	}
	return fmt.Sprintf(`SELECT f.tconst, f.title, f.%s,
  (SELECT MIN(y.year) FROM %s y WHERE y.tconst = f.tconst),
  (SELECT MIN(rt.%s) FROM %s rt WHERE rt.tconst = f.tconst),
  (SELECT %s FROM %s g WHERE g.tconst = f.tconst),
  r.rating, r.%s,
  (SELECT MIN(l.lang) FROM %s l WHERE l.tconst = f.tconst),
  %s,
  %s,
  %s
FROM %s f
JOIN %s r ON r.tconst = f.tconst
WHERE r.%s <> 0
ORDER BY f.tconst`,
		Ident("originalTitle"),
		Ident(TableYears),
		Ident("runtimeInMin"), Ident(TableRuntimes),
		d.Agg("g.genre"), Ident(TableGenres),
		Ident("numVotes"),
		Ident(TableLanguages),
		credits(TableDirectors),
		credits(TableActors),
		credits(TableWriters),
		Ident(TableFilms), Ident(TableRatings), Ident("numVotes"))
}

// ListSep separates items of an aggregated column. Backends render it as
// char(31) so names containing commas survive the round trip.
const ListSep = "\x1f"

// SplitList splits an aggregated column back into its items.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ListSep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
