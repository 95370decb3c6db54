package datasets

import (
	"context"
	"errors"

	"github.com/jsdealy/bmdb/internal/loader"
	"github.com/jsdealy/bmdb/internal/storage"
	"github.com/jsdealy/bmdb/internal/tsv"
)

// Ratings are on IMDb's ten-point scale.
const (
	minRating = 0
	maxRating = 10
)

// Ratings loads title.ratings.tsv: [tconst, averageRating, numVotes].
// A second rating for the same film violates the unique tconst.
func Ratings() loader.Dataset {
	return loader.Dataset{
		Name:      NameRatings,
		MinFields: 3,
		Session: storage.SessionSpec{
			Inserts: []storage.InsertSpec{
				{Table: storage.TableRatings, Columns: []string{"tconst", "rating", "numVotes"}},
			},
			Probes: []storage.ProbeSpec{filmProbe},
		},
		Apply: applyRatings,
	}
}

func applyRatings(ctx context.Context, w *loader.Worker, row tsv.Row) error {
	tconst := row.Field(0)
	rating, err := parseFloat("averageRating", row.Field(1))
	if err != nil {
		return err
	}
	if rating < minRating || rating > maxRating {
		return malformed("averageRating", row.Field(1), errors.New("out of range"))
	}
	votes, err := parseInt("numVotes", row.Field(2))
	if err != nil {
		return err
	}
	if votes < 0 {
		return malformed("numVotes", row.Field(2), errors.New("negative"))
	}

	ok, err := w.Exists(ctx, ProbeFilm, tconst)
	if err != nil {
		return err
	}
	if !ok {
		return loader.ErrMissing
	}

	return w.Write(ctx, func(tx storage.Tx) error {
		return tx.Insert(ctx, storage.TableRatings, tconst, rating, votes)
	})
}
