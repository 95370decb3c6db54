package awards

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jsdealy/bmdb/internal/loader"
	"github.com/jsdealy/bmdb/internal/storage"
	"github.com/jsdealy/bmdb/internal/tsv"
)

const page = `<html><body>
<table class="wikitable">
  <tr><th>Title</th><th>Director</th><th>Country</th><th>Language</th><th>Gender</th><th>Co-production</th><th>Various</th><th>Note</th></tr>
  <tr><td><i>Mon Oncle</i></td><td>Jacques   Tati</td><td>France</td><td>French</td><td>m</td><td>no</td><td>no</td><td>Jury prize[1]</td></tr>
  <tr><td>La Dolce Vita</td><td>Federico Fellini</td><td>Italy</td><td>Italian</td><td>m</td><td>no</td><td>no</td><td></td></tr>
  <tr><td>Incomplete</td><td>Someone</td></tr>
</table>
<table class="other"><tr><td>a</td><td>b</td><td>c</td><td>d</td><td>e</td><td>f</td><td>g</td></tr></table>
</body></html>`

func TestReadHTML_ExtractsCells(t *testing.T) {
	t.Parallel()

	rows, err := ReadHTML(strings.NewReader(page), "", 7)
	if err != nil {
		t.Fatalf("ReadHTML: %v", err)
	}
	if rows.Len() != 2 || rows.Short() != 1 {
		t.Fatalf("expected 2 rows and 1 short, got %d and %d", rows.Len(), rows.Short())
	}

	batch, err := rows.NextBatch(0)
	if err != nil {
		t.Fatalf("NextBatch: %v", err)
	}
	first := batch[0].Fields
	if first[0] != "Mon Oncle" || first[1] != "Jacques Tati" || first[7] != "Jury prize" {
		t.Fatalf("unexpected cells: %q", first)
	}
	if _, err := rows.NextBatch(0); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestRows_NextBatch(t *testing.T) {
	t.Parallel()

	rows := NewRows([]tsv.Row{{Line: 1}, {Line: 2}, {Line: 3}})
	var sizes []int
	for {
		b, err := rows.NextBatch(2)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("NextBatch: %v", err)
		}
		sizes = append(sizes, len(b))
	}
	if len(sizes) != 2 || sizes[0] != 2 || sizes[1] != 1 {
		t.Fatalf("unexpected batch sizes %v", sizes)
	}
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"cannes.tsv", false},
		{"/data/Cannes.HTML", true},
		{"list.htm", true},
		{"https://en.wikipedia.org/wiki/Palme_d%27Or", true},
		{"cannes", false},
	}
	for _, tt := range tests {
		if got := IsHTML(tt.in); got != tt.want {
			t.Fatalf("IsHTML(%q)=%v want %v", tt.in, got, tt.want)
		}
	}
}

func TestAvailable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "cannes.tsv")
	if Available(path) {
		t.Fatalf("missing file reported available")
	}
	if err := os.WriteFile(path, []byte("h\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !Available(path) || !Available("http://example.invalid/list") || Available("") {
		t.Fatalf("unexpected availability")
	}
}

func TestFetcher_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := NewFetcher(&http.Client{Timeout: 2 * time.Second}, 2*time.Second).Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if msg := err.Error(); !strings.Contains(msg, "http status 403") || !strings.Contains(msg, "nope") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// recorder is a store that accepts every insert.
type recorder struct {
	mu   sync.Mutex
	rows []string
}

func (r *recorder) NewSession(context.Context, storage.SessionSpec) (storage.Session, error) {
	return recorderSession{r}, nil
}

func (r *recorder) Classify(error) storage.Class { return storage.ClassOther }

type recorderSession struct{ r *recorder }

func (s recorderSession) Exists(context.Context, string, ...any) (bool, error) { return true, nil }
func (s recorderSession) Begin(context.Context) (storage.Tx, error)            { return s, nil }
func (s recorderSession) Close() error                                         { return nil }
func (s recorderSession) Commit(context.Context) error                         { return nil }
func (s recorderSession) Rollback(context.Context) error                       { return nil }

func (s recorderSession) Insert(_ context.Context, _ string, args ...any) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.rows = append(s.r.rows, args[0].(string))
	return nil
}

func titleDataset() loader.Dataset {
	return loader.Dataset{
		Name:      "awards",
		MinFields: 7,
		Apply: func(ctx context.Context, w *loader.Worker, row tsv.Row) error {
			return w.Write(ctx, func(tx storage.Tx) error { return tx.Insert(ctx, "T", row.Field(0)) })
		},
	}
}

func TestLoad_Sources(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, page)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	tsvPath := filepath.Join(dir, "cannes.tsv")
	htmlPath := filepath.Join(dir, "cannes.html")
	tsvBody := "title\tdirector\tc\tl\tg\tco\tv\tnote\n" +
		"Mon Oncle\tJacques Tati\tFrance\tFrench\tm\tno\tno\t\n" +
		"short\trow\n"
	if err := os.WriteFile(tsvPath, []byte(tsvBody), 0o644); err != nil {
		t.Fatalf("write tsv: %v", err)
	}
	if err := os.WriteFile(htmlPath, []byte(page), 0o644); err != nil {
		t.Fatalf("write html: %v", err)
	}

	tests := []struct {
		name      string
		location  string
		wantRows  int
		wantShort int
	}{
		{name: "tsv", location: tsvPath, wantRows: 1, wantShort: 1},
		{name: "html file", location: htmlPath, wantRows: 2, wantShort: 1},
		{name: "url", location: srv.URL + "/cannes", wantRows: 2, wantShort: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &recorder{}
			l := &loader.Loader{Store: rec, Workers: 2}
			st, err := Load(context.Background(), l, titleDataset(), tt.location, Options{})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(rec.rows) != tt.wantRows || st.Loaded != int64(tt.wantRows) || st.Short != tt.wantShort {
				t.Fatalf("rows=%v stats=%+v", rec.rows, st)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	l := &loader.Loader{Store: &recorder{}}
	if _, err := Load(context.Background(), l, titleDataset(), filepath.Join(t.TempDir(), "nope.tsv"), Options{}); err == nil {
		t.Fatalf("expected open error")
	}
}
