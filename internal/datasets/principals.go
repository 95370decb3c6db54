package datasets

import (
	"context"
	"fmt"
	"strings"

	"github.com/jsdealy/bmdb/internal/loader"
	"github.com/jsdealy/bmdb/internal/storage"
	"github.com/jsdealy/bmdb/internal/tsv"
)

// title.principals.tsv columns.
const (
	principalsTconst = iota
	principalsOrdering
	principalsNconst
	principalsCategory
	principalsJob
	principalsCharacters

	principalsFields
)

// CreditTable maps a principals category to its credit table by first letter:
// actor and actress go to Actors, director to Directors, writer to Writers.
func CreditTable(category string) (string, bool) {
	switch {
	case strings.HasPrefix(category, "a"):
		return storage.TableActors, true
	case strings.HasPrefix(category, "d"):
		return storage.TableDirectors, true
	case strings.HasPrefix(category, "w"):
		return storage.TableWriters, true
	default:
		return "", false
	}
}

// Principals loads credit edges. Rows are keyed by tconst for skip-forward.
// A person absent from Names fails the foreign key and counts as a conflict.
func Principals() loader.Dataset {
	cols := []string{"tconst", "nconst"}
	return loader.Dataset{
		Name:      NamePrincipals,
		MinFields: principalsFields,
		Session: storage.SessionSpec{
			Inserts: []storage.InsertSpec{
				{Table: storage.TableActors, Columns: cols},
				{Table: storage.TableDirectors, Columns: cols},
				{Table: storage.TableWriters, Columns: cols},
			},
			Probes: []storage.ProbeSpec{filmProbe},
		},
		Apply: applyPrincipals,
		Key:   tconstKey,
	}
}

func applyPrincipals(ctx context.Context, w *loader.Worker, row tsv.Row) error {
	table, ok := CreditTable(row.Field(principalsCategory))
	if !ok {
		return fmt.Errorf("%w: category %q", loader.ErrSkip, row.Field(principalsCategory))
	}
	tconst, nconst := row.Field(principalsTconst), row.Field(principalsNconst)
	if tsv.IsNull(nconst) {
		return fmt.Errorf("%w: null nconst", loader.ErrSkip)
	}

	found, err := w.Exists(ctx, ProbeFilm, tconst)
	if err != nil {
		return err
	}
	if !found {
		return loader.ErrMissing
	}

	return w.Write(ctx, func(tx storage.Tx) error {
		return tx.Insert(ctx, table, tconst, nconst)
	})
}
