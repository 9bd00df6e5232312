// Package memstore provides an in-memory observation.EventStore.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/odyssey-erp/odyssey-rea/internal/observation"
)

// Store keeps the event log and its per-resource index in memory.
type Store struct {
	mu          sync.RWMutex
	log         []observation.EconomicEvent
	byID        map[string]int
	byResource  map[string][]int
	requestKeys map[string]string
}

// New constructs Store.
func New() *Store {
	return &Store{
		byID:        make(map[string]int),
		byResource:  make(map[string][]int),
		requestKeys: make(map[string]string),
	}
}

// Append records e and indexes it under every resource it references.
func (s *Store) Append(_ context.Context, e observation.EconomicEvent) (string, error) {
	if e.ID == "" {
		return "", fmt.Errorf("memstore: event id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[e.ID]; ok {
		return "", fmt.Errorf("memstore: event %s already appended", e.ID)
	}
	if e.RequestKey != "" {
		if existing, ok := s.requestKeys[e.RequestKey]; ok {
			return "", fmt.Errorf("%w: key %s used by event %s", observation.ErrDuplicateRequest, e.RequestKey, existing)
		}
		s.requestKeys[e.RequestKey] = e.ID
	}
	pos := len(s.log)
	s.log = append(s.log, clone(e))
	s.byID[e.ID] = pos
	for _, id := range e.ResourceIDs() {
		s.byResource[id] = append(s.byResource[id], pos)
	}
	return e.ID, nil
}

// HistoryFor returns every event referencing resourceID in append order.
func (s *Store) HistoryFor(_ context.Context, resourceID string) ([]observation.EconomicEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	positions := s.byResource[resourceID]
	out := make([]observation.EconomicEvent, 0, len(positions))
	for _, pos := range positions {
		out = append(out, clone(s.log[pos]))
	}
	return out, nil
}

// Event returns a single event by id.
func (s *Store) Event(_ context.Context, id string) (observation.EconomicEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.byID[id]
	if !ok {
		return observation.EconomicEvent{}, fmt.Errorf("%w: event %s", observation.ErrNotFound, id)
	}
	return clone(s.log[pos]), nil
}

// Events lists events matching filter in append order.
func (s *Store) Events(_ context.Context, filter observation.EventFilter) ([]observation.EconomicEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []observation.EconomicEvent
	for _, e := range s.log {
		if !filter.Matches(e) {
			continue
		}
		out = append(out, clone(e))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// ResourceIDs lists every referenced resource, sorted.
func (s *Store) ResourceIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byResource))
	for id := range s.byResource {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Len reports the number of appended events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

func clone(e observation.EconomicEvent) observation.EconomicEvent {
	c := e
	c.ResourceClassifiedAs = slices.Clone(e.ResourceClassifiedAs)
	c.InScopeOf = slices.Clone(e.InScopeOf)
	if e.ResourceQuantity != nil {
		q := *e.ResourceQuantity
		c.ResourceQuantity = &q
	}
	if e.EffortQuantity != nil {
		q := *e.EffortQuantity
		c.EffortQuantity = &q
	}
	if e.NewInventoriedResource != nil {
		r := *e.NewInventoriedResource
		r.ClassifiedAs = slices.Clone(e.NewInventoriedResource.ClassifiedAs)
		c.NewInventoriedResource = &r
	}
	return c
}
