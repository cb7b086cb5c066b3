package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Op string

const (
	OpCreate   Op = "create"
	OpSet      Op = "set"
	OpGet      Op = "get"
	OpQuery    Op = "query"
	OpGetByIDs Op = "get_by_ids"
	OpUpdate   Op = "update"
	OpDelete   Op = "delete"
)

type memDoc struct {
	data map[string]any
	seq  int64
}

type failureKey struct {
	op   Op
	coll string
}

// MemStore keeps documents in memory as JSON values. Used in development
// mode and in tests, where FailOn simulates remote failures.
type MemStore struct {
	mu       sync.RWMutex
	colls    map[string]map[string]memDoc
	seq      int64
	failures map[failureKey]error
	calls    map[failureKey]int

	newID func() string
	now   func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		colls:    make(map[string]map[string]memDoc),
		failures: make(map[failureKey]error),
		calls:    make(map[failureKey]int),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailOn makes every following op on coll return err. An empty coll
// matches all collections. A nil err clears the failure.
func (s *MemStore) FailOn(op Op, coll string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := failureKey{op: op, coll: coll}
	if err == nil {
		delete(s.failures, key)
		return
	}
	s.failures[key] = err
}

// Calls returns how many times op was invoked on coll.
func (s *MemStore) Calls(op Op, coll string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[failureKey{op: op, coll: coll}]
}

// enter records the call and returns the injected failure, if any.
// Must be called with the lock held.
func (s *MemStore) enter(op Op, coll string) error {
	s.calls[failureKey{op: op, coll: coll}]++
	if err, ok := s.failures[failureKey{op: op, coll: coll}]; ok {
		return err
	}
	if err, ok := s.failures[failureKey{op: op}]; ok {
		return err
	}
	return nil
}

func (s *MemStore) normalize(data map[string]any) (map[string]any, error) {
	resolved := ResolveServerTimestamps(data, s.now().UTC())
	raw, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var normalized map[string]any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return normalized, nil
}

func (s *MemStore) put(coll, id string, data map[string]any) {
	docs, ok := s.colls[coll]
	if !ok {
		docs = make(map[string]memDoc)
		s.colls[coll] = docs
	}
	seq := s.seq
	if existing, ok := docs[id]; ok {
		seq = existing.seq
	} else {
		s.seq++
	}
	docs[id] = memDoc{data: data, seq: seq}
}

func (s *MemStore) Create(_ context.Context, coll string, data map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpCreate, coll); err != nil {
		return "", err
	}

	normalized, err := s.normalize(data)
	if err != nil {
		return "", err
	}
	id := s.newID()
	s.put(coll, id, normalized)
	return id, nil
}

func (s *MemStore) Set(_ context.Context, coll, id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpSet, coll); err != nil {
		return err
	}

	normalized, err := s.normalize(data)
	if err != nil {
		return err
	}
	s.put(coll, id, normalized)
	return nil
}

func (s *MemStore) Get(_ context.Context, coll, id string, dst any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGet, coll); err != nil {
		return err
	}

	doc, ok := s.colls[coll][id]
	if !ok {
		return ErrNotFound
	}
	return memDocument(id, doc).DataTo(dst)
}

func (s *MemStore) Query(_ context.Context, coll string, q Query) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpQuery, coll); err != nil {
		return nil, err
	}

	filters := make([]Filter, 0, len(q.Filters))
	for _, f := range q.Filters {
		v, err := normalizeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		filters = append(filters, Filter{Field: f.Field, Value: v})
	}

	type match struct {
		id  string
		doc memDoc
	}
	var matches []match
	for id, doc := range s.colls[coll] {
		if !matchesAll(doc.data, filters) {
			continue
		}
		if q.OrderBy != nil {
			if _, ok := doc.data[q.OrderBy.Field]; !ok {
				continue
			}
		}
		matches = append(matches, match{id: id, doc: doc})
	}

	slices.SortFunc(matches, func(a, b match) int {
		if q.OrderBy != nil {
			c := compareValues(a.doc.data[q.OrderBy.Field], b.doc.data[q.OrderBy.Field])
			if q.OrderBy.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.doc.seq, b.doc.seq)
	})

	docs := make([]Document, 0, len(matches))
	for _, m := range matches {
		docs = append(docs, memDocument(m.id, m.doc))
	}
	return docs, nil
}

func (s *MemStore) GetByIDs(_ context.Context, coll string, ids []string) ([]Document, error) {
	if len(ids) > MaxBatchIDs {
		return nil, ErrTooManyIDs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGetByIDs, coll); err != nil {
		return nil, err
	}

	var docs []Document
	for _, id := range DedupIDs(ids) {
		doc, ok := s.colls[coll][id]
		if !ok {
			continue
		}
		docs = append(docs, memDocument(id, doc))
	}
	return docs, nil
}

func (s *MemStore) Update(_ context.Context, coll, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdate, coll); err != nil {
		return err
	}

	doc, ok := s.colls[coll][id]
	if !ok {
		return ErrNotFound
	}
	patch, err := s.normalize(fields)
	if err != nil {
		return err
	}

	merged := make(map[string]any, len(doc.data)+len(patch))
	for k, v := range doc.data {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	s.put(coll, id, merged)
	return nil
}

func (s *MemStore) Delete(_ context.Context, coll, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDelete, coll); err != nil {
		return err
	}

	delete(s.colls[coll], id)
	return nil
}

func memDocument(id string, doc memDoc) Document {
	raw, err := json.Marshal(doc.data)
	return NewDocument(id, func(dst any) error {
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dst)
	})
}

func normalizeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

func matchesAll(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok || !reflect.DeepEqual(v, f.Value) {
			return false
		}
	}
	return true
}

// compareValues orders JSON values: numbers numerically, timestamps
// chronologically, other strings lexically.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return cmp.Compare(av, bv)
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			break
		}
		at, aErr := time.Parse(time.RFC3339Nano, av)
		bt, bErr := time.Parse(time.RFC3339Nano, bv)
		if aErr == nil && bErr == nil {
			return at.Compare(bt)
		}
		return cmp.Compare(av, bv)
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
