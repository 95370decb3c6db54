package datasets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jsdealy/bmdb/internal/loader"
	"github.com/jsdealy/bmdb/internal/resolver"
	"github.com/jsdealy/bmdb/internal/storage"
	"github.com/jsdealy/bmdb/internal/tsv"
)

// AwardFields is the minimum field count of an award-list row:
// [title, director, countries, languages, gender, coproduction, variousLanguages, note].
const AwardFields = 7

// Cannes resolves award-list rows to films and records each hit once.
// Unresolved rows are ignored; a film listed twice is a conflict.
func Cannes(r *resolver.Resolver) loader.Dataset {
	return loader.Dataset{
		Name:      NameCannes,
		MinFields: AwardFields,
		Session: storage.SessionSpec{
			Inserts: []storage.InsertSpec{
				{Table: storage.TableCannes, Columns: []string{"tconst"}},
			},
		},
		Apply: func(ctx context.Context, w *loader.Worker, row tsv.Row) error {
			m, err := r.ResolveWith(ctx, w.Reader(r.Finder), resolver.Query{Title: row.Field(0), Director: row.Field(1)})
			if errors.Is(err, resolver.ErrNoMatch) {
				return fmt.Errorf("%w: %w", loader.ErrSkip, err)
			}
			if err != nil {
				return err
			}
			return w.Write(ctx, func(tx storage.Tx) error {
				return tx.Insert(ctx, storage.TableCannes, m.Tconst)
			})
		},
	}
}
