package tle

import (
	"sync/atomic"
	"time"

	"github.com/3dfirelab/satOverpass/internal/metrics"
)

// Store publishes the active dataset. Readers never block and always see a
// complete dataset; Set swaps it and wakes everyone waiting on Changed.
type Store struct {
	state atomic.Pointer[storeState]
}

type storeState struct {
	ds      *Dataset
	changed chan struct{} // closed when this state is replaced
}

// NewStore creates an empty Store.
func NewStore() *Store {
	s := &Store{}
	s.state.Store(&storeState{changed: make(chan struct{})})
	return s
}

// Get returns the active dataset, or nil before the first Set.
func (s *Store) Get() *Dataset {
	return s.state.Load().ds
}

// Changed returns a channel that is closed by the next Set.
func (s *Store) Changed() <-chan struct{} {
	return s.state.Load().changed
}

// Set publishes ds as the active dataset.
func (s *Store) Set(ds *Dataset) {
	prev := s.state.Swap(&storeState{ds: ds, changed: make(chan struct{})})
	close(prev.changed)
	metrics.SetTLEDatasetCount(ds.Catalog.Len())
}

// AgeSeconds is the time since the active dataset was fetched, or -1 when
// the store is empty.
func (s *Store) AgeSeconds() float64 {
	ds := s.Get()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}
