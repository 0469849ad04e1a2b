// Package memstore is an in-process store.Store. Documents are kept as BSON so
// they round-trip through the same codecs as the MongoDB adapter.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"refill-api-server/internal/apperror"
	"refill-api-server/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	registry *store.Registry
	codec    *bsoncodec.Registry
	docs     map[store.Kind]map[string]bson.Raw
}

var _ store.Store = (*Store)(nil)

func New(registry *store.Registry) *Store {
	return &Store{
		registry: registry,
		codec:    store.BSONRegistry(),
		docs:     make(map[store.Kind]map[string]bson.Raw),
	}
}

func (s *Store) Get(_ context.Context, kind store.Kind, id string, out any) (bool, error) {
	if _, err := s.registry.Resolve(kind); err != nil {
		return false, err
	}
	s.mu.RLock()
	raw, ok := s.docs[kind][id]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := store.Unmarshal(s.codec, raw, out); err != nil {
		return false, apperror.NewPermanent(err)
	}
	return true, nil
}

func (s *Store) Query(_ context.Context, kind store.Kind, q store.Query, out any) error {
	if _, err := s.registry.Resolve(kind); err != nil {
		return err
	}
	sink, err := store.NewSliceSink(out)
	if err != nil {
		return err
	}

	s.mu.RLock()
	matches, err := s.match(kind, q, "")
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	if q.SortField != "" && q.SortField != store.IDField {
		sortByField(matches, q.SortField)
	}
	for _, m := range matches {
		if err := sink.Append(func(v any) error { return store.Unmarshal(s.codec, m.raw, v) }); err != nil {
			return apperror.NewPermanent(err)
		}
	}
	sink.Done()
	return nil
}

func (s *Store) QueryPaged(_ context.Context, kind store.Kind, req store.PageRequest, out any) (string, error) {
	if _, err := s.registry.Resolve(kind); err != nil {
		return "", err
	}
	q := req.Scoped()
	fp := q.Fingerprint(kind)
	after, err := store.DecodeCursor(req.Cursor, fp)
	if err != nil {
		return "", err
	}
	sink, err := store.NewSliceSink(out)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	matches, err := s.match(kind, q, after)
	s.mu.RUnlock()
	if err != nil {
		return "", err
	}

	size := req.Size()
	page := matches
	if len(page) > size {
		page = page[:size]
	}
	for _, m := range page {
		if err := sink.Append(func(v any) error { return store.Unmarshal(s.codec, m.raw, v) }); err != nil {
			return "", apperror.NewPermanent(err)
		}
	}
	sink.Done()

	if len(matches) <= size {
		return "", nil
	}
	return store.EncodeCursor(page[len(page)-1].id, fp)
}

func (s *Store) Create(_ context.Context, kind store.Kind, id string, doc any) error {
	coll, err := s.registry.Resolve(kind)
	if err != nil {
		return err
	}
	raw, err := s.encode(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collection(kind)
	if _, exists := docs[id]; exists {
		return apperror.NewDuplicate(string(kind), store.IDField, id)
	}
	if err := s.checkUnique(kind, coll, id, raw); err != nil {
		return err
	}
	docs[id] = raw
	return nil
}

func (s *Store) Upsert(_ context.Context, kind store.Kind, id string, doc any) error {
	coll, err := s.registry.Resolve(kind)
	if err != nil {
		return err
	}
	raw, err := s.encode(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(kind, coll, id, raw); err != nil {
		return err
	}
	s.collection(kind)[id] = raw
	return nil
}

func (s *Store) Replace(_ context.Context, kind store.Kind, id string, expectedVersion int64, doc any) error {
	coll, err := s.registry.Resolve(kind)
	if err != nil {
		return err
	}
	raw, err := s.encode(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collection(kind)
	current, ok := docs[id]
	if !ok {
		return apperror.NewNotFound(string(kind), id)
	}
	if version(current) != expectedVersion {
		return apperror.NewConflict(string(kind), id)
	}
	if err := s.checkUnique(kind, coll, id, raw); err != nil {
		return err
	}
	docs[id] = raw
	return nil
}

func (s *Store) Delete(_ context.Context, kind store.Kind, id string) error {
	if _, err := s.registry.Resolve(kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collection(kind)
	if _, ok := docs[id]; !ok {
		return apperror.NewNotFound(string(kind), id)
	}
	delete(docs, id)
	return nil
}

// Len reports how many documents of kind are stored.
func (s *Store) Len(kind store.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[kind])
}

func (s *Store) encode(doc any) (bson.Raw, error) {
	raw, err := store.Marshal(s.codec, doc)
	if err != nil {
		return nil, apperror.NewPermanent(fmt.Errorf("encode document: %w", err))
	}
	return bson.Raw(raw), nil
}

// collection must be called with the write lock held.
func (s *Store) collection(kind store.Kind) map[string]bson.Raw {
	docs, ok := s.docs[kind]
	if !ok {
		docs = make(map[string]bson.Raw)
		s.docs[kind] = docs
	}
	return docs
}

func (s *Store) checkUnique(kind store.Kind, coll store.Collection, id string, raw bson.Raw) error {
	for _, field := range coll.UniqueFields {
		val := raw.Lookup(field)
		if val.Type == bsontype.Type(0) {
			continue
		}
		for otherID, other := range s.docs[kind] {
			if otherID == id {
				continue
			}
			if other.Lookup(field).Equal(val) {
				return apperror.NewDuplicate(string(kind), field, val.String())
			}
		}
	}
	return nil
}

type doc struct {
	id  string
	raw bson.Raw
	m   bson.M
}

// match returns the documents satisfying q with an id greater than after,
// ordered by id. Callers hold at least the read lock.
func (s *Store) match(kind store.Kind, q store.Query, after string) ([]doc, error) {
	conds, err := normalizeConditions(s.codec, q.Conditions)
	if err != nil {
		return nil, err
	}

	var out []doc
	for id, raw := range s.docs[kind] {
		if after != "" && id <= after {
			continue
		}
		var m bson.M
		if err := bson.Unmarshal(raw, &m); err != nil {
			return nil, apperror.NewPermanent(err)
		}
		if matchesAll(m, conds) {
			out = append(out, doc{id: id, raw: raw, m: m})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

func sortByField(docs []doc, field string) {
	sort.SliceStable(docs, func(i, j int) bool {
		c, ok := compare(docs[i].m[field], docs[j].m[field])
		return ok && c < 0
	})
}

func version(raw bson.Raw) int64 {
	v := raw.Lookup("version")
	switch v.Type {
	case bsontype.Int32:
		return int64(v.Int32())
	case bsontype.Int64:
		return v.Int64()
	default:
		return 0
	}
}
