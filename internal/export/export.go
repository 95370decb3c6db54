// Package export writes the flat one-line-per-film summary file.
package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jsdealy/bmdb/internal/storage"
)

// NoValue stands in for a film attribute the store does not have.
const NoValue = `N\a`

// Source streams rated film summaries in tconst order. storage.Store
// implements it.
type Source interface {
	Summaries(ctx context.Context, fn func(storage.Summary) error) error
}

// Line renders one summary without the trailing newline:
//
//	tconst  title;originalTitle  year  runtime  genres  rating  numVotes  lang  directors,  actors,  writers,
func Line(s storage.Summary) string {
	lang := s.Language
	if lang == "" {
		lang = NoValue
	}
	genres := strings.Join(s.Genres, ",")
	if genres == "" {
		genres = NoValue
	}

	fields := []string{
		s.Tconst,
		s.Title + ";" + s.OriginalTitle,
		number(s.Year),
		number(s.Runtime),
		genres,
		strconv.FormatFloat(s.Rating, 'f', 1, 64),
		strconv.FormatInt(s.NumVotes, 10),
		lang,
		names(s.Directors),
		names(s.Actors),
		names(s.Writers),
	}
	return strings.Join(fields, "\t")
}

func number(n int64) string {
	if n == 0 {
		return NoValue
	}
	return strconv.FormatInt(n, 10)
}

// names terminates every name with a comma.
func names(list []string) string {
	var b strings.Builder
	for _, n := range list {
		b.WriteString(n)
		b.WriteByte(',')
	}
	return b.String()
}

// Write streams every summary from src to w and returns the line count.
func Write(ctx context.Context, w io.Writer, src Source) (int, error) {
	bw := bufio.NewWriterSize(w, 1<<20)
	n := 0
	err := src.Summaries(ctx, func(s storage.Summary) error {
		if _, err := bw.WriteString(Line(s)); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("export summaries: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("export flush: %w", err)
	}
	return n, nil
}

// WriteFile writes the summary file at path. The file is replaced only once
// the export completes.
func WriteFile(ctx context.Context, path string, src Source) (int, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	n, err := Write(ctx, tmp, src)
	if err != nil {
		_ = tmp.Close()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, fmt.Errorf("rename to %s: %w", path, err)
	}
	return n, nil
}
