// Package awards reads the award list the resolver runs over. The list is a
// tab-separated file, a saved HTML page or an http(s) URL of one.
package awards

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jsdealy/bmdb/internal/loader"
)

// Options configures how an award list is read.
type Options struct {
	// Selector matches table rows in HTML input. Defaults to DefaultSelector.
	Selector string
	// Fetcher downloads remote lists. Nil uses NewFetcher(nil, 0).
	Fetcher *Fetcher
}

// IsRemote reports whether location is an http(s) URL.
func IsRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// IsHTML reports whether location is read as HTML rather than TSV.
func IsHTML(location string) bool {
	if IsRemote(location) {
		return true
	}
	switch strings.ToLower(filepath.Ext(location)) {
	case ".html", ".htm":
		return true
	default:
		return false
	}
}

// Available reports whether a local award list exists. Remote lists are
// assumed available.
func Available(location string) bool {
	if strings.TrimSpace(location) == "" {
		return false
	}
	if IsRemote(location) {
		return true
	}
	_, err := os.Stat(location)
	return !errors.Is(err, os.ErrNotExist)
}

// Load runs ds over the award list at location.
func Load(ctx context.Context, l *loader.Loader, ds loader.Dataset, location string, opt Options) (loader.Stats, error) {
	if !IsHTML(location) {
		f, err := os.Open(location)
		if err != nil {
			return loader.Stats{}, fmt.Errorf("open award list: %w", err)
		}
		defer f.Close()
		return l.RunReader(ctx, ds, f)
	}

	var (
		body []byte
		err  error
	)
	if IsRemote(location) {
		fetcher := opt.Fetcher
		if fetcher == nil {
			fetcher = NewFetcher(nil, 0)
		}
		body, err = fetcher.Fetch(ctx, location)
	} else {
		body, err = os.ReadFile(location)
	}
	if err != nil {
		return loader.Stats{}, fmt.Errorf("read award list: %w", err)
	}

	rows, err := ReadHTML(bytes.NewReader(body), opt.Selector, ds.MinFields)
	if err != nil {
		return loader.Stats{}, err
	}
	st, err := l.Run(ctx, ds, rows)
	st.Short = rows.Short()
	return st, err
}
