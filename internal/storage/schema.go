// The TableSpec types live here so loaders and backend packages can import
// them without circular deps.
package storage

// ColumnType is a logical column type; each backend maps it to a physical type.
type ColumnType string

const (
	// TypeKey is a short external identifier such as tconst or nconst.
	TypeKey   ColumnType = "key"
	TypeText  ColumnType = "text"
	TypeInt   ColumnType = "int"
	TypeFloat ColumnType = "float"
)

type TableSpec struct {
	Name        string
	Columns     []ColumnSpec
	Constraints []ConstraintSpec
}

type ColumnSpec struct {
	Name       string
	Type       ColumnType
	PrimaryKey bool
	Unique     bool
	// References is "Table(column)".
	References string
	Nullable   *bool
}

type ConstraintSpec struct {
	Kind    string // "unique"
	Columns []string
}

// Table names.
const (
	TableFilms     = "Films"
	TableYears     = "Years"
	TableRuntimes  = "Runtimes"
	TableGenres    = "Genres"
	TableNames     = "Names"
	TableDirectors = "Directors"
	TableActors    = "Actors"
	TableWriters   = "Writers"
	TableKnownFor  = "KnownFor"
	TableRatings   = "Ratings"
	TableLanguages = "Languages"
	TableCannes    = "Cannes"
)

const (
	filmRef = TableFilms + "(tconst)"
	nameRef = TableNames + "(nconst)"
)

func tconstFK() ColumnSpec {
	return ColumnSpec{Name: "tconst", Type: TypeKey, References: filmRef}
}

func creditTable(name string) TableSpec {
	return TableSpec{
		Name: name,
		Columns: []ColumnSpec{
			tconstFK(),
			{Name: "nconst", Type: TypeKey, References: nameRef},
		},
		Constraints: []ConstraintSpec{{Kind: "unique", Columns: []string{"tconst", "nconst"}}},
	}
}

// Catalog returns the full schema in creation order (referenced tables first).
func Catalog() []TableSpec {
	return []TableSpec{
		{
			Name: TableFilms,
			Columns: []ColumnSpec{
				{Name: "tconst", Type: TypeKey, PrimaryKey: true},
				{Name: "title", Type: TypeText},
				{Name: "originalTitle", Type: TypeText},
			},
		},
		{
			Name:    TableGenres,
			Columns: []ColumnSpec{tconstFK(), {Name: "genre", Type: TypeText}},
		},
		{
			Name:        TableRuntimes,
			Columns:     []ColumnSpec{tconstFK(), {Name: "runtimeInMin", Type: TypeInt}},
			Constraints: []ConstraintSpec{{Kind: "unique", Columns: []string{"tconst", "runtimeInMin"}}},
		},
		{
			Name:        TableYears,
			Columns:     []ColumnSpec{tconstFK(), {Name: "year", Type: TypeInt}},
			Constraints: []ConstraintSpec{{Kind: "unique", Columns: []string{"tconst", "year"}}},
		},
		{
			Name: TableNames,
			Columns: []ColumnSpec{
				{Name: "nconst", Type: TypeKey, PrimaryKey: true},
				{Name: "name", Type: TypeText},
			},
			Constraints: []ConstraintSpec{{Kind: "unique", Columns: []string{"nconst", "name"}}},
		},
		creditTable(TableDirectors),
		creditTable(TableActors),
		creditTable(TableWriters),
		creditTable(TableKnownFor),
		{
			Name: TableRatings,
			Columns: []ColumnSpec{
				{Name: "tconst", Type: TypeKey, Unique: true, References: filmRef},
				{Name: "rating", Type: TypeFloat},
				{Name: "numVotes", Type: TypeInt},
			},
		},
		{
			Name:    TableLanguages,
			Columns: []ColumnSpec{tconstFK(), {Name: "lang", Type: TypeText}},
		},
		{
			Name:    TableCannes,
			Columns: []ColumnSpec{{Name: "tconst", Type: TypeKey, Unique: true, References: filmRef}},
		},
	}
}

// Lookup returns the catalog entry for name.
func Lookup(name string) (TableSpec, bool) {
	for _, t := range Catalog() {
		if t.Name == name {
			return t, true
		}
	}
	return TableSpec{}, false
}
