package datasets

import (
	"context"
	"fmt"
	"strings"

	"github.com/jsdealy/bmdb/internal/loader"
	"github.com/jsdealy/bmdb/internal/storage"
	"github.com/jsdealy/bmdb/internal/tsv"
)

// title.basics.tsv columns.
const (
	basicsTconst = iota
	basicsTitleType
	basicsPrimaryTitle
	basicsOriginalTitle
	basicsIsAdult
	basicsStartYear
	basicsEndYear
	basicsRuntime
	basicsGenres

	basicsFields
)

// KeepBasics accepts non-adult feature films with a year, a runtime and genres.
func KeepBasics(f []string) bool {
	return strings.HasPrefix(f[basicsTitleType], "mo") &&
		f[basicsIsAdult] == "0" &&
		!tsv.IsNull(f[basicsStartYear]) &&
		!tsv.IsNull(f[basicsGenres]) &&
		!tsv.IsNull(f[basicsRuntime])
}

// filmTitles fills a null title from the other one. ok is false when both
// are null.
func filmTitles(primary, original string) (title, orig string, ok bool) {
	switch {
	case tsv.IsNull(primary) && tsv.IsNull(original):
		return "", "", false
	case tsv.IsNull(primary):
		return original, original, true
	case tsv.IsNull(original):
		return primary, primary, true
	default:
		return primary, original, true
	}
}

// Basics loads Films and their Years, Runtimes and Genres in one transaction
// per film.
func Basics() loader.Dataset {
	return loader.Dataset{
		Name:      NameBasics,
		MinFields: basicsFields,
		Keep:      KeepBasics,
		Session: storage.SessionSpec{
			Inserts: []storage.InsertSpec{
				{Table: storage.TableFilms, Columns: []string{"tconst", "title", "originalTitle"}},
				{Table: storage.TableYears, Columns: []string{"tconst", "year"}},
				{Table: storage.TableRuntimes, Columns: []string{"tconst", "runtimeInMin"}},
				{Table: storage.TableGenres, Columns: []string{"tconst", "genre"}},
			},
		},
		Apply: applyBasics,
	}
}

func applyBasics(ctx context.Context, w *loader.Worker, row tsv.Row) error {
	f := row.Fields
	tconst := f[basicsTconst]
	title, orig, ok := filmTitles(f[basicsPrimaryTitle], f[basicsOriginalTitle])
	if !ok {
		return fmt.Errorf("%w: null title", loader.ErrSkip)
	}

	year, err := parseInt("startYear", f[basicsStartYear])
	if err != nil {
		return err
	}
	runtime, err := parseInt("runtimeMinutes", f[basicsRuntime])
	if err != nil {
		return err
	}

	var genres []string
	for _, g := range strings.Split(f[basicsGenres], ",") {
		if g = strings.TrimSpace(g); g != "" && !tsv.IsNull(g) {
			genres = append(genres, g)
		}
	}

	return w.Write(ctx, func(tx storage.Tx) error {
		if err := tx.Insert(ctx, storage.TableFilms, tconst, title, orig); err != nil {
			return err
		}
		if err := tx.Insert(ctx, storage.TableYears, tconst, year); err != nil {
			return err
		}
		if err := tx.Insert(ctx, storage.TableRuntimes, tconst, runtime); err != nil {
			return err
		}
		for _, g := range genres {
			if err := tx.Insert(ctx, storage.TableGenres, tconst, g); err != nil {
				return err
			}
		}
		return nil
	})
}
