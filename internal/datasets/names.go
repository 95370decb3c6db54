package datasets

import (
	"context"
	"fmt"

	"github.com/jsdealy/bmdb/internal/loader"
	"github.com/jsdealy/bmdb/internal/storage"
	"github.com/jsdealy/bmdb/internal/tsv"
)

// Names loads name.basics.tsv: [nconst, primaryName, ...].
func Names() loader.Dataset {
	return loader.Dataset{
		Name:      NameNames,
		MinFields: 2,
		Session: storage.SessionSpec{
			Inserts: []storage.InsertSpec{
				{Table: storage.TableNames, Columns: []string{"nconst", "name"}},
			},
		},
		Apply: func(ctx context.Context, w *loader.Worker, row tsv.Row) error {
			if tsv.IsNull(row.Field(0)) || tsv.IsNull(row.Field(1)) {
				return fmt.Errorf("%w: null name", loader.ErrSkip)
			}
			return w.Write(ctx, func(tx storage.Tx) error {
				return tx.Insert(ctx, storage.TableNames, row.Field(0), row.Field(1))
			})
		},
	}
}
