package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Client used by tests and local development.
// All operations are guarded by a single mutex, so Update and BatchWrite are
// atomic with respect to each other.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	maxBatch    int
}

var _ Client = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
		maxBatch:    DefaultMaxBatchSize,
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) RunQuery(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Document
	for _, doc := range s.collections[collection] {
		if matchesFilters(doc, q.Filters) {
			results = append(results, cloneDocument(doc))
		}
	}

	if q.OrderBy != "" {
		field := q.OrderBy
		sort.Slice(results, func(i, j int) bool {
			return fieldString(results[i], field) < fieldString(results[j], field)
		})
		if q.StartAfter != "" {
			idx := sort.Search(len(results), func(i int) bool {
				return fieldString(results[i], field) > q.StartAfter
			})
			results = results[idx:]
		}
	}
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data Document, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(collection, id, data, merge)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	updated := cloneDocument(doc)
	if err := applyFields(updated, fields); err != nil {
		return err
	}
	s.collections[collection][id] = updated
	return nil
}

func (s *MemoryStore) BatchWrite(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(writes) > s.maxBatch {
		return fmt.Errorf("%w: %d writes, limit %d", ErrBatchTooLarge, len(writes), s.maxBatch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		s.setLocked(w.Collection, w.ID, w.Data, w.Merge)
	}
	return nil
}

func (s *MemoryStore) MaxBatchSize() int {
	return s.maxBatch
}

func (s *MemoryStore) setLocked(collection, id string, data Document, merge bool) {
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Document)
		s.collections[collection] = coll
	}
	if merge {
		coll[id] = mergeDocument(coll[id], data)
		return
	}
	coll[id] = cloneDocument(data)
}

func matchesFilters(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if doc[f.Field] != f.Value {
			return false
		}
	}
	return true
}

func fieldString(doc Document, field string) string {
	v, ok := doc[field]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
