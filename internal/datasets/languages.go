package datasets

import (
	"context"
	"fmt"

	"github.com/jsdealy/bmdb/internal/loader"
	"github.com/jsdealy/bmdb/internal/storage"
	"github.com/jsdealy/bmdb/internal/tsv"
)

// Languages loads lang.tsv: [tconst, lang].
//
// Languages has no uniqueness constraint, so an identical pair already in the
// store is skipped before the insert.
func Languages() loader.Dataset {
	return loader.Dataset{
		Name:      NameLanguages,
		MinFields: 2,
		Session: storage.SessionSpec{
			Inserts: []storage.InsertSpec{
				{Table: storage.TableLanguages, Columns: []string{"tconst", "lang"}},
			},
			Probes: []storage.ProbeSpec{
				filmProbe,
				{Name: ProbeLanguage, Table: storage.TableLanguages, Columns: []string{"tconst", "lang"}},
			},
		},
		Apply: applyLanguages,
	}
}

func applyLanguages(ctx context.Context, w *loader.Worker, row tsv.Row) error {
	tconst, lang := row.Field(0), row.Field(1)
	if lang == "" || tsv.IsNull(lang) {
		return fmt.Errorf("%w: no language", loader.ErrSkip)
	}

	ok, err := w.Exists(ctx, ProbeFilm, tconst)
	if err != nil {
		return err
	}
	if !ok {
		return loader.ErrMissing
	}

	dup, err := w.Exists(ctx, ProbeLanguage, tconst, lang)
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("%w: %s already has %q", loader.ErrSkip, tconst, lang)
	}

	return w.Write(ctx, func(tx storage.Tx) error {
		return tx.Insert(ctx, storage.TableLanguages, tconst, lang)
	})
}
