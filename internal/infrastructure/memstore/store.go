// Package memstore is an in-process implementation of syncer.Store. It follows
// the same create/update/delete semantics as the Postgres store and backs
// STORE_DRIVER=memory and the handler tests.
package memstore

import (
	"context"
	"log"
	"slices"
	"sync"
	"time"

	"racuni/internal/domain/entity"
	"racuni/internal/domain/syncer"
)

// Store keeps rows per table, keyed by entity id.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[string]*entity.Record
	faults map[entity.Kind]error
	now    func() time.Time
}

// Ensure Store implements syncer.Store
var _ syncer.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		tables: make(map[string]map[string]*entity.Record),
		faults: make(map[entity.Kind]error),
		now:    time.Now,
	}
}

// SetClock replaces the time source used for created_at / updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetFault makes reads of kind fail with err until cleared with a nil err.
func (s *Store) SetFault(kind entity.Kind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, kind)
		return
	}
	s.faults[kind] = err
}

func (s *Store) table(name string) map[string]*entity.Record {
	t, ok := s.tables[name]
	if !ok {
		t = make(map[string]*entity.Record)
		s.tables[name] = t
	}
	return t
}

func (s *Store) Create(ctx context.Context, m syncer.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(m.Descriptor.Table)
	now := s.now().UTC()

	payload := m.Descriptor.Clone(m.Payload)
	entity.ApplyDefaults(payload)

	existing, ok := t[m.EntityID]
	if ok {
		if existing.UserID != m.UserID {
			log.Printf("Ignoring create of %s %s: owned by another user", m.Descriptor.Kind, m.EntityID)
			return nil
		}
		existing.Payload = payload
		existing.IsDeleted = false
		existing.UpdatedAt = now
		return nil
	}

	createdAt := now
	if m.ClientCreatedAt != nil {
		createdAt = m.ClientCreatedAt.UTC()
	}
	t[m.EntityID] = &entity.Record{
		ID:        m.EntityID,
		UserID:    m.UserID,
		Payload:   payload,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	return nil
}

func (s *Store) Update(ctx context.Context, m syncer.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.table(m.Descriptor.Table)[m.EntityID]
	if !ok || existing.UserID != m.UserID {
		return nil
	}
	entity.MergePresent(existing.Payload, m.Payload)
	existing.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) Delete(ctx context.Context, m syncer.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(m.Descriptor.Table)
	existing, ok := t[m.EntityID]
	if !ok || existing.UserID != m.UserID {
		return nil
	}

	if m.Descriptor.Delete == entity.HardDelete {
		delete(t, m.EntityID)
		return nil
	}
	existing.IsDeleted = true
	existing.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) ListLive(ctx context.Context, d entity.Descriptor, userID string) ([]entity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.faults[d.Kind]; err != nil {
		return nil, err
	}

	var out []entity.Record
	for _, rec := range s.tables[d.Table] {
		if rec.UserID != userID || rec.IsDeleted {
			continue
		}
		cp := *rec
		cp.Payload = d.Clone(rec.Payload)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b entity.Record) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out, nil
}

func (s *Store) Stats(ctx context.Context, d entity.Descriptor, userID string) (syncer.KindStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.faults[d.Kind]; err != nil {
		return syncer.KindStats{}, err
	}

	var stats syncer.KindStats
	for _, rec := range s.tables[d.Table] {
		if rec.UserID != userID || rec.IsDeleted {
			continue
		}
		stats.Count++
		if stats.LatestUpdated == nil || rec.UpdatedAt.After(*stats.LatestUpdated) {
			t := rec.UpdatedAt
			stats.LatestUpdated = &t
		}
	}
	return stats, nil
}

// Get returns the stored row regardless of its tombstone, for inspection.
func (s *Store) Get(d entity.Descriptor, id string) (entity.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tables[d.Table][id]
	if !ok {
		return entity.Record{}, false
	}
	cp := *rec
	cp.Payload = d.Clone(rec.Payload)
	return cp, true
}
