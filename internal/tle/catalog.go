package tle

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Rejection is an entry Parse could not turn into a Record.
type Rejection struct {
	Name string
	Err  error
}

// Catalog maps satellite identifiers to parsed records. Each entry of the
// source text is parsed once; lookups never rescan the text.
// A Catalog is built once and then only read, so it is safe for concurrent
// lookups after construction.
type Catalog struct {
	records  []*Record
	byID     map[int]*Record
	byName   map[string]*Record
	rejected map[string]error

	Rejected []Rejection
}

// NewCatalog builds a catalog from already parsed records.
func NewCatalog(records []*Record) *Catalog {
	c := &Catalog{
		byID:     make(map[int]*Record, len(records)),
		byName:   make(map[string]*Record, len(records)),
		rejected: make(map[string]error),
	}
	for _, r := range records {
		c.Add(r)
	}
	return c
}

// Add inserts rec. When a catalog number repeats, the record with the newer
// epoch wins.
func (c *Catalog) Add(rec *Record) {
	if prev, ok := c.byID[rec.CatalogNumber]; ok {
		if !rec.Epoch.After(prev.Epoch) {
			return
		}
		for i, r := range c.records {
			if r == prev {
				c.records[i] = rec
				break
			}
		}
		if prev.Name != "" {
			delete(c.byName, normalizeName(prev.Name))
		}
	} else {
		c.records = append(c.records, rec)
	}
	c.byID[rec.CatalogNumber] = rec
	if rec.Name != "" {
		key := normalizeName(rec.Name)
		c.byName[key] = rec
		delete(c.rejected, key)
	}
}

func (c *Catalog) reject(name string, err error) {
	c.Rejected = append(c.Rejected, Rejection{Name: name, Err: err})
	if name == "" {
		return
	}
	key := normalizeName(name)
	if _, ok := c.byName[key]; !ok {
		c.rejected[key] = err
	}
}

// Lookup finds a record by name, case-insensitively. A name whose entry was
// rejected during parsing returns that entry's *MalformedRecordError.
func (c *Catalog) Lookup(name string) (*Record, error) {
	key := normalizeName(name)
	if rec, ok := c.byName[key]; ok {
		return rec, nil
	}
	if err, ok := c.rejected[key]; ok {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
}

// ByID finds a record by catalog number.
func (c *Catalog) ByID(id int) (*Record, error) {
	if rec, ok := c.byID[id]; ok {
		return rec, nil
	}
	return nil, fmt.Errorf("catalog number %d: %w", id, ErrNotFound)
}

// Resolve accepts either a catalog number or a satellite name.
func (c *Catalog) Resolve(key string) (*Record, error) {
	if id, err := strconv.Atoi(strings.TrimSpace(key)); err == nil {
		if rec, err := c.ByID(id); err == nil {
			return rec, nil
		}
	}
	return c.Lookup(key)
}

// Records returns all records ordered by catalog number.
func (c *Catalog) Records() []*Record {
	out := make([]*Record, len(c.records))
	copy(out, c.records)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CatalogNumber < out[j].CatalogNumber
	})
	return out
}

// Len returns the number of valid records.
func (c *Catalog) Len() int {
	return len(c.records)
}

// EpochRange returns the oldest and newest epoch in the catalog.
func (c *Catalog) EpochRange() EpochRange {
	var r EpochRange
	for i, rec := range c.records {
		if i == 0 || rec.Epoch.Before(r.Min) {
			r.Min = rec.Epoch
		}
		if i == 0 || rec.Epoch.After(r.Max) {
			r.Max = rec.Epoch
		}
	}
	return r
}

func normalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
