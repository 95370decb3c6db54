// Package tsv reads tab-delimited dumps one record at a time.
//
// The dumps this package targets are not RFC 4180: fields are never quoted and
// may contain bare double quotes, so records are split on the delimiter only.
package tsv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Null is the marker the source datasets use for "value not available".
const Null = `\N`

// IsNull reports whether a field holds the Null marker.
func IsNull(s string) bool { return s == Null }

// Row is one accepted record and its 1-based line number in the input.
type Row struct {
	Line   int
	Fields []string
}

// Field returns the i-th field or "" when the row is shorter.
func (r Row) Field(i int) string {
	if i < 0 || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i]
}

// Options configures a Reader.
type Options struct {
	// Comma is the field delimiter. Defaults to '\t'.
	Comma byte

	// NoHeader disables discarding the first line.
	NoHeader bool

	// MinFields rejects records with fewer fields. Rejected records are
	// counted in Stats.Short and never returned.
	MinFields int

	// Keep is an optional predicate applied after the field-count check.
	// Records it refuses are counted in Stats.Filtered.
	Keep func(fields []string) bool
}

// Stats counts what the Reader has seen so far.
type Stats struct {
	Lines    int
	Accepted int
	Short    int
	Filtered int
}

// Reader yields records lazily. It is not restartable and not safe for
// concurrent use.
type Reader struct {
	br   *bufio.Reader
	opt  Options
	line int
	done bool

	headerSkipped bool
	stats         Stats
}

// NewReader wraps r. The underlying reader is read lazily; callers own closing it.
func NewReader(r io.Reader, opt Options) *Reader {
	if opt.Comma == 0 {
		opt.Comma = '\t'
	}
	return &Reader{
		br:            bufio.NewReaderSize(r, 1<<20),
		opt:           opt,
		headerSkipped: opt.NoHeader,
	}
}

// Stats returns a snapshot of the counters.
func (r *Reader) Stats() Stats { return r.stats }

// Next returns the next accepted record.
//
// Errors:
//   - io.EOF once the input is exhausted.
//   - Any other read error is wrapped with the line number; the Reader must
//     not be used afterwards.
func (r *Reader) Next() (Row, error) {
	for {
		raw, err := r.readLine()
		if err != nil {
			return Row{}, err
		}
		if !r.headerSkipped {
			r.headerSkipped = true
			continue
		}
		if raw == "" {
			continue
		}

		fields := strings.Split(raw, string(r.opt.Comma))
		if len(fields) < r.opt.MinFields {
			r.stats.Short++
			continue
		}
		if r.opt.Keep != nil && !r.opt.Keep(fields) {
			r.stats.Filtered++
			continue
		}
		r.stats.Accepted++
		return Row{Line: r.line, Fields: fields}, nil
	}
}

// NextBatch reads up to max accepted records into a freshly allocated slice.
//
// Edge cases:
//   - max <= 0 reads until the input is exhausted.
//   - Returns (nil, io.EOF) only when no record could be read; a final short
//     batch is returned with a nil error and the following call reports io.EOF.
func (r *Reader) NextBatch(max int) ([]Row, error) {
	capHint := max
	if capHint <= 0 || capHint > 1<<16 {
		capHint = 1 << 16
	}
	batch := make([]Row, 0, capHint)
	for max <= 0 || len(batch) < max {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, row)
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (r *Reader) readLine() (string, error) {
	if r.done {
		return "", io.EOF
	}
	s, err := r.br.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("tsv read line %d: %w", r.line+1, err)
		}
		r.done = true
		if s == "" {
			return "", io.EOF
		}
	}
	r.line++
	r.stats.Lines++
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, nil
}
