package raster

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/humanimpact/hii-stats/services/stats/internal/blob"
)

const documentExt = ".json"

// Catalog lists the slices available for a series.
type Catalog interface {
	List(ctx context.Context, seriesID string) ([]Entry, error)
}

// LoadSeries lists a catalog into a Series.
func LoadSeries(ctx context.Context, cat Catalog, seriesID string) (*Series, error) {
	entries, err := cat.List(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	return NewSeries(seriesID, entries)
}

// dateFromName parses names of the form YYYY-MM-DD.json.
func dateFromName(name string) (time.Time, bool) {
	if !strings.HasSuffix(name, documentExt) {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, strings.TrimSuffix(name, documentExt))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// DirCatalog reads grid documents from {Root}/{series}/{date}.json.
type DirCatalog struct {
	Root string
}

// List implements Catalog.
func (c DirCatalog) List(ctx context.Context, seriesID string) ([]Entry, error) {
	dir := filepath.Join(c.Root, seriesID)
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list series %s: %w", seriesID, err)
	}

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		date, ok := dateFromName(f.Name())
		if !ok {
			continue
		}
		p := filepath.Join(dir, f.Name())
		entries = append(entries, NewEntry(date, p, func(ctx context.Context) (*Slice, error) {
			file, err := os.Open(p)
			if err != nil {
				return nil, err
			}
			defer file.Close()
			return Decode(file)
		}))
	}
	return entries, nil
}

// BlobCatalog reads grid documents from {Prefix}/{series}/{date}.json in an
// object store.
type BlobCatalog struct {
	Store  blob.Store
	Prefix string
}

// List implements Catalog.
func (c BlobCatalog) List(ctx context.Context, seriesID string) ([]Entry, error) {
	prefix := path.Join(c.Prefix, seriesID) + "/"
	keys, err := c.Store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list series %s: %w", seriesID, err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		date, ok := dateFromName(path.Base(key))
		if !ok {
			continue
		}
		entries = append(entries, NewEntry(date, key, func(ctx context.Context) (*Slice, error) {
			data, err := c.Store.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			return Decode(bytes.NewReader(data))
		}))
	}
	return entries, nil
}
