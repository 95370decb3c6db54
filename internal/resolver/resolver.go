// Package resolver matches free-text award-list entries (a title and a
// director name) to film keys.
//
// A Resolver tries an ordered list of strategies and stops at the first one
// that finds a film. The default chain is Weak, Strong, Similarity.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/jsdealy/bmdb/internal/metrics"
	"github.com/jsdealy/bmdb/internal/storage"
)

// ErrNoMatch is returned when no strategy finds a film.
var ErrNoMatch = errors.New("no matching film")

// Finder is the read side of the store the strategies query.
// storage.Store implements it.
type Finder = storage.FilmReader

// Query is one award-list entry to resolve.
type Query struct {
	Title    string
	Director string
}

// Strategy is one resolution tier. ok is false when the tier found nothing;
// err is reserved for store failures.
type Strategy interface {
	Name() string
	Match(ctx context.Context, f Finder, q Query) (tconst string, ok bool, err error)
}

// Match is a resolved entry and the tier that resolved it.
type Match struct {
	Tconst string
	Tier   string
}

// Resolver runs Strategies in order against Finder. The zero value has no
// strategies and resolves nothing; use New for the default chain.
type Resolver struct {
	Finder     Finder
	Strategies []Strategy
}

// New returns a Resolver with the default Weak, Strong, Similarity chain.
func New(f Finder) *Resolver {
	return &Resolver{
		Finder:     f,
		Strategies: []Strategy{Weak{}, Strong{}, Similarity{}},
	}
}

// Resolve runs the strategies in order against r.Finder. Later strategies are
// never consulted once one succeeds.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Match, error) {
	return r.ResolveWith(ctx, r.Finder, q)
}

// ResolveWith is Resolve reading through f, typically a load worker's session.
func (r *Resolver) ResolveWith(ctx context.Context, f Finder, q Query) (Match, error) {
	if f == nil {
		return Match{}, fmt.Errorf("resolver: Finder is required")
	}
	for _, s := range r.Strategies {
		tconst, ok, err := s.Match(ctx, f, q)
		if err != nil {
			return Match{}, fmt.Errorf("resolver %s tier: %w", s.Name(), err)
		}
		if ok {
			metrics.IncCounter(metrics.ResolutionsTotal, 1, metrics.Labels{"tier": s.Name()})
			return Match{Tconst: tconst, Tier: s.Name()}, nil
		}
	}
	metrics.IncCounter(metrics.ResolutionsTotal, 1, metrics.Labels{"tier": "none"})
	return Match{}, fmt.Errorf("%w: title=%q director=%q", ErrNoMatch, q.Title, q.Director)
}

// Weak matches the punctuation-tolerant title pattern against title or
// originalTitle, restricted to films with a matching director.
type Weak struct{}

func (Weak) Name() string { return "weak" }

func (Weak) Match(ctx context.Context, f Finder, q Query) (string, bool, error) {
	title := WeakTitlePattern(q.Title)
	director := DirectorPattern(q.Director)
	if title == "" || director == "" {
		return "", false, nil
	}
	return f.FindFilm(ctx, title, director)
}

// Strong anchors on a short alphanumeric run of the title and matches it as a
// substring.
type Strong struct{}

func (Strong) Name() string { return "strong" }

func (Strong) Match(ctx context.Context, f Finder, q Query) (string, bool, error) {
	title, ok := StrongTitlePattern(q.Title)
	director := DirectorPattern(q.Director)
	if !ok || director == "" {
		return "", false, nil
	}
	return f.FindFilm(ctx, title, director)
}

// Similarity scores every film by a matching director and keeps the one with
// the strictly greatest positive score. Equal scores keep the earlier film.
type Similarity struct {
	// Score defaults to TrigramCosine.
	Score func(a, b string) float64
}

func (Similarity) Name() string { return "similarity" }

func (s Similarity) Match(ctx context.Context, f Finder, q Query) (string, bool, error) {
	director := DirectorPattern(q.Director)
	if director == "" {
		return "", false, nil
	}
	films, err := f.FilmsByDirector(ctx, director)
	if err != nil {
		return "", false, err
	}

	score := s.Score
	if score == nil {
		score = TrigramCosine
	}

	var (
		best      string
		bestScore float64
	)
	for _, film := range films {
		v := max(score(q.Title, film.Title), score(q.Title, film.OriginalTitle))
		if v > bestScore {
			best, bestScore = film.Tconst, v
		}
	}
	if best == "" {
		return "", false, nil
	}
	return best, true, nil
}
