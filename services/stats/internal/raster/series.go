package raster

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"time"
)

// DateLayout is the ISO date format of slice dates.
const DateLayout = "2006-01-02"

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AgeDays is the number of whole days from date to asOf.
func AgeDays(date, asOf time.Time) int {
	return int(Day(asOf).Sub(Day(date)).Hours() / 24)
}

// Loader fetches the pixels of one slice.
type Loader func(ctx context.Context) (*Slice, error)

// Entry is a dated, not yet loaded slice of a series.
type Entry struct {
	Date time.Time
	Key  string
	load Loader
}

// NewEntry builds a series entry.
func NewEntry(date time.Time, key string, load Loader) Entry {
	return Entry{Date: Day(date), Key: key, load: load}
}

// Load fetches the slice and checks that its date matches the entry.
func (e Entry) Load(ctx context.Context) (*Slice, error) {
	if e.load == nil {
		return nil, fmt.Errorf("entry %s has no loader", e.Key)
	}
	s, err := e.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load slice %s: %w", e.Key, err)
	}
	if !s.Date.Equal(e.Date) {
		return nil, fmt.Errorf("slice %s is dated %s, catalog says %s", e.Key, s.Date.Format(DateLayout), e.Date.Format(DateLayout))
	}
	return s, nil
}

// Series is a date-ordered raster time series with one slice per date.
type Series struct {
	id      string
	entries []Entry
}

// ErrDuplicateDate is returned when two slices share an acquisition date.
var ErrDuplicateDate = errors.New("duplicate slice date")

// NewSeries sorts entries by date and rejects duplicate dates.
func NewSeries(id string, entries []Entry) (*Series, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Date.Equal(sorted[i-1].Date) {
			return nil, fmt.Errorf("series %s: %w %s", id, ErrDuplicateDate, sorted[i].Date.Format(DateLayout))
		}
	}
	return &Series{id: id, entries: sorted}, nil
}

// ID returns the series identifier.
func (s *Series) ID() string { return s.id }

// Len returns the number of slices.
func (s *Series) Len() int { return len(s.entries) }

// upTo returns how many entries are dated on or before asOf.
func (s *Series) upTo(asOf time.Time) int {
	day := Day(asOf)
	return sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Date.After(day) })
}

// Select returns the most recent entry dated on or before asOf. When
// maxAgeDays is set, an entry older than that many days counts as absent.
func (s *Series) Select(asOf time.Time, maxAgeDays *int) (Entry, bool) {
	n := s.upTo(asOf)
	if n == 0 {
		return Entry{}, false
	}
	e := s.entries[n-1]
	if maxAgeDays != nil && AgeDays(e.Date, asOf) > *maxAgeDays {
		return Entry{}, false
	}
	return e, true
}

// All yields every entry dated on or before asOf, oldest first. The
// sequence can be ranged over any number of times.
func (s *Series) All(asOf time.Time) iter.Seq[Entry] {
	n := s.upTo(asOf)
	return func(yield func(Entry) bool) {
		for _, e := range s.entries[:n] {
			if !yield(e) {
				return
			}
		}
	}
}
