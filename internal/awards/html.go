package awards

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jsdealy/bmdb/internal/tsv"
)

// DefaultSelector matches the rows of a wikitable-style award list.
const DefaultSelector = "table.wikitable tr"

var (
	// footnote matches reference markers such as "[1]" or "[note 2]".
	footnote = regexp.MustCompile(`\[[^\]]*\]`)
	spaces   = regexp.MustCompile(`\s+`)
)

// cellText is the cleaned visible text of one table cell.
func cellText(sel *goquery.Selection) string {
	v := footnote.ReplaceAllString(sel.Text(), "")
	return strings.TrimSpace(spaces.ReplaceAllString(v, " "))
}

// ReadHTML extracts one row per element matched by selector, one field per
// th/td cell in DOM order.
//
// Heading rows (only th cells) are dropped. Rows with fewer than minFields
// cells are counted as short, the same way the TSV reader counts them.
func ReadHTML(r io.Reader, selector string, minFields int) (*Rows, error) {
	if strings.TrimSpace(selector) == "" {
		selector = DefaultSelector
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	out := &Rows{}
	doc.Find(selector).Each(func(i int, tr *goquery.Selection) {
		cells := tr.Find("th, td")
		if cells.Length() == 0 || cells.Length() == tr.Find("th").Length() {
			return
		}

		fields := make([]string, 0, cells.Length())
		cells.Each(func(_ int, c *goquery.Selection) {
			fields = append(fields, cellText(c))
		})
		if len(fields) < minFields {
			out.short++
			return
		}
		out.rows = append(out.rows, tsv.Row{Line: i + 1, Fields: fields})
	})
	return out, nil
}

// Rows is an in-memory row source.
type Rows struct {
	rows  []tsv.Row
	short int
}

// NewRows wraps already parsed rows.
func NewRows(rows []tsv.Row) *Rows { return &Rows{rows: rows} }

// Len is the number of rows not yet handed out.
func (r *Rows) Len() int { return len(r.rows) }

// Short is the number of rows dropped for having too few cells.
func (r *Rows) Short() int { return r.short }

// NextBatch hands out up to max rows and returns io.EOF once empty.
func (r *Rows) NextBatch(max int) ([]tsv.Row, error) {
	if len(r.rows) == 0 {
		return nil, io.EOF
	}
	n := len(r.rows)
	if max > 0 && max < n {
		n = max
	}
	batch := make([]tsv.Row, n)
	copy(batch, r.rows[:n])
	r.rows = r.rows[n:]
	return batch, nil
}
