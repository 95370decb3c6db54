// Package datasets holds the per-file loading logic: which rows are accepted,
// how fields are decoded and which constrained inserts a row turns into.
package datasets

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jsdealy/bmdb/internal/loader"
	"github.com/jsdealy/bmdb/internal/storage"
	"github.com/jsdealy/bmdb/internal/tsv"
)

// ErrMalformed marks a field that could not be decoded. It is fatal.
var ErrMalformed = errors.New("malformed field")

// Dataset names, in load order.
const (
	NameBasics     = "basics"
	NameRatings    = "ratings"
	NameLanguages  = "languages"
	NameNames      = "names"
	NamePrincipals = "principals"
	NameCannes     = "cannes"
)

// Probe names shared by the datasets.
const (
	ProbeFilm     = "film"
	ProbeLanguage = "language"
)

var filmProbe = storage.ProbeSpec{Name: ProbeFilm, Table: storage.TableFilms, Columns: []string{"tconst"}}

// Input pairs a dataset with the file it reads from the data directory.
type Input struct {
	File    string
	Dataset loader.Dataset
}

// Inputs returns the TSV datasets in load order. Films come first so every
// later dataset can reference them; names precede principals for the same
// reason.
func Inputs() []Input {
	return []Input{
		{File: "title.basics.tsv", Dataset: Basics()},
		{File: "title.ratings.tsv", Dataset: Ratings()},
		{File: "lang.tsv", Dataset: Languages()},
		{File: "name.basics.tsv", Dataset: Names()},
		{File: "title.principals.tsv", Dataset: Principals()},
	}
}

// Select filters Inputs by dataset name, keeping load order. An empty only
// selects everything.
func Select(only []string) ([]Input, error) {
	all := Inputs()
	if len(only) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(only))
	for _, n := range only {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			want[n] = true
		}
	}

	var out []Input
	for _, in := range all {
		if want[in.Dataset.Name] {
			out = append(out, in)
			delete(want, in.Dataset.Name)
		}
	}
	if len(want) > 0 {
		var unknown []string
		for n := range want {
			unknown = append(unknown, n)
		}
		return nil, fmt.Errorf("unknown dataset(s) %v", unknown)
	}
	return out, nil
}

func malformed(field, value string, err error) error {
	return fmt.Errorf("%w: %s=%q: %v", ErrMalformed, field, value, err)
}

func parseInt(field, value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, malformed(field, value, err)
	}
	return n, nil
}

func parseFloat(field, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, malformed(field, value, err)
	}
	return f, nil
}

func tconstKey(row tsv.Row) string { return row.Field(0) }
