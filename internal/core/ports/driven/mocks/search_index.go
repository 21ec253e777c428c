package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

// MockSearchIndex is an in-memory implementation of SearchIndex for testing.
// Indices with a mapping reject unmapped top-level fields and vectors of the wrong length,
// like a strict Elasticsearch mapping.
type MockSearchIndex struct {
	mu       sync.RWMutex
	mappings map[string]*domain.IndexMapping
	docs     map[string]map[string]json.RawMessage
	order    map[string][]string
	health   *domain.ClusterHealth

	// FailFn injects an error for an operation (optional)
	FailFn func(op, index string) error

	// Calls counts calls per operation
	Calls map[string]int
}

// NewMockSearchIndex creates a new MockSearchIndex with a green cluster
func NewMockSearchIndex() *MockSearchIndex {
	return &MockSearchIndex{
		mappings: make(map[string]*domain.IndexMapping),
		docs:     make(map[string]map[string]json.RawMessage),
		order:    make(map[string][]string),
		health:   &domain.ClusterHealth{ClusterName: "mock", Status: domain.ClusterGreen, NumberOfNodes: 1},
		Calls:    make(map[string]int),
	}
}

func (m *MockSearchIndex) enter(op, index string) error {
	m.Calls[op]++
	if m.FailFn != nil {
		return m.FailFn(op, index)
	}
	return nil
}

func (m *MockSearchIndex) IndexExists(ctx context.Context, index string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("exists", index); err != nil {
		return false, err
	}
	_, ok := m.docs[index]
	return ok, nil
}

func (m *MockSearchIndex) CreateIndex(ctx context.Context, index string, mapping *domain.IndexMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("create_index", index); err != nil {
		return err
	}
	if _, ok := m.docs[index]; ok {
		return goerr.Wrap(domain.ErrAlreadyExists, "index already exists", goerr.V(domain.IndexKey, index))
	}
	m.mappings[index] = copyMapping(mapping)
	m.docs[index] = make(map[string]json.RawMessage)
	return nil
}

func (m *MockSearchIndex) GetMapping(ctx context.Context, index string) (*domain.IndexMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("get_mapping", index); err != nil {
		return nil, err
	}
	mapping, ok := m.mappings[index]
	if !ok {
		return nil, goerr.Wrap(domain.ErrNotFound, "index not found", goerr.V(domain.IndexKey, index))
	}
	return copyMapping(mapping), nil
}

func (m *MockSearchIndex) Upsert(ctx context.Context, index, id string, doc any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("upsert", index); err != nil {
		return err
	}
	return m.put(index, id, doc, false)
}

func (m *MockSearchIndex) Create(ctx context.Context, index, id string, doc any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("create", index); err != nil {
		return err
	}
	return m.put(index, id, doc, true)
}

func (m *MockSearchIndex) put(index, id string, doc any, createOnly bool) error {
	docs, ok := m.docs[index]
	if !ok {
		return goerr.Wrap(domain.ErrNotFound, "index not found", goerr.V(domain.IndexKey, index))
	}
	if _, exists := docs[id]; exists && createOnly {
		return goerr.Wrap(domain.ErrAlreadyExists, "document already exists",
			goerr.V(domain.IndexKey, index), goerr.V(domain.DocumentIDKey, id))
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal document")
	}
	if err := m.checkStrict(index, raw); err != nil {
		return err
	}

	if _, exists := docs[id]; !exists {
		m.order[index] = append(m.order[index], id)
	}
	docs[id] = raw
	return nil
}

func (m *MockSearchIndex) checkStrict(index string, raw json.RawMessage) error {
	mapping, ok := m.mappings[index]
	if !ok || mapping == nil || len(mapping.Fields) == 0 {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return goerr.Wrap(domain.ErrInvalidInput, "document is not an object")
	}
	for name, value := range fields {
		fm, ok := mapping.Fields[name]
		if !ok {
			return goerr.Wrap(domain.ErrInvalidInput, "field not mapped",
				goerr.V(domain.IndexKey, index), goerr.V(domain.FieldKey, name))
		}
		if fm.Type == domain.FieldDenseVector {
			vec, _ := value.([]any)
			if len(vec) != fm.Dims {
				return goerr.Wrap(domain.ErrInvalidInput, "vector has wrong dims",
					goerr.V(domain.FieldKey, name), goerr.V(domain.ExpectedDimsKey, fm.Dims), goerr.V(domain.ActualDimsKey, len(vec)))
			}
		}
	}
	return nil
}

func (m *MockSearchIndex) Get(ctx context.Context, index, id string) (*domain.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("get", index); err != nil {
		return nil, err
	}
	docs, ok := m.docs[index]
	if !ok {
		return nil, goerr.Wrap(domain.ErrIndexNotReady, "index does not exist", goerr.V(domain.IndexKey, index))
	}
	raw, ok := docs[id]
	if !ok {
		return nil, nil
	}
	return &domain.Hit{Index: index, ID: id, Score: 1, Source: raw}, nil
}

func (m *MockSearchIndex) Search(ctx context.Context, index string, req *domain.SearchRequest) ([]*domain.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("search", index); err != nil {
		return nil, err
	}
	docs, ok := m.docs[index]
	if !ok {
		return nil, goerr.Wrap(domain.ErrNotFound, "index not found", goerr.V(domain.IndexKey, index))
	}

	type candidate struct {
		hit    *domain.Hit
		fields map[string]any
	}
	var matched []candidate
	for _, id := range m.order[index] {
		raw := docs[id]
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		if !matchTerms(fields, req.Terms) {
			continue
		}
		hit := &domain.Hit{Index: index, ID: id, Score: 1, Source: raw}
		if req.KNN != nil {
			vec := toFloats(fields[req.KNN.Field])
			if len(vec) == 0 {
				continue
			}
			hit.Score = cosine(req.KNN.Vector, vec)
		}
		matched = append(matched, candidate{hit: hit, fields: fields})
	}

	switch {
	case len(req.Sort) > 0:
		sort.SliceStable(matched, func(i, j int) bool {
			for _, s := range req.Sort {
				c := compareValues(matched[i].fields[s.Field], matched[j].fields[s.Field])
				if c == 0 {
					continue
				}
				if s.Order == domain.SortDesc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	case req.KNN != nil:
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].hit.Score > matched[j].hit.Score
		})
	}

	limit := req.Size
	if req.KNN != nil {
		limit = req.KNN.K
	}
	if limit <= 0 {
		limit = domain.DefaultFilterSize
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	hits := make([]*domain.Hit, 0, len(matched))
	for _, c := range matched {
		if len(req.ExcludeFields) > 0 {
			for _, f := range req.ExcludeFields {
				delete(c.fields, f)
			}
			c.hit.Source, _ = json.Marshal(c.fields)
		}
		hits = append(hits, c.hit)
	}
	return hits, nil
}

func (m *MockSearchIndex) Count(ctx context.Context, index string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("count", index); err != nil {
		return 0, err
	}
	docs, ok := m.docs[index]
	if !ok {
		return 0, goerr.Wrap(domain.ErrNotFound, "index not found", goerr.V(domain.IndexKey, index))
	}
	return int64(len(docs)), nil
}

func (m *MockSearchIndex) Refresh(ctx context.Context, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("refresh", index)
}

func (m *MockSearchIndex) ClusterHealth(ctx context.Context) (*domain.ClusterHealth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("cluster_health", ""); err != nil {
		return nil, err
	}
	h := *m.health
	return &h, nil
}

// Helper methods for testing

// SetClusterStatus sets the reported cluster color
func (m *MockSearchIndex) SetClusterStatus(status domain.ClusterStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health.Status = status
}

// SetMapping replaces the live mapping of an index, creating it if needed
func (m *MockSearchIndex) SetMapping(index string, mapping *domain.IndexMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[index] = copyMapping(mapping)
	if _, ok := m.docs[index]; !ok {
		m.docs[index] = make(map[string]json.RawMessage)
	}
}

// CallCount returns the number of calls made to an operation
func (m *MockSearchIndex) CallCount(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Calls[op]
}

// DocumentCount returns the number of documents stored in an index
func (m *MockSearchIndex) DocumentCount(index string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[index])
}

func copyMapping(in *domain.IndexMapping) *domain.IndexMapping {
	out := &domain.IndexMapping{Fields: make(map[string]domain.FieldMapping)}
	if in == nil {
		return out
	}
	for k, v := range in.Fields {
		out.Fields[k] = v
	}
	return out
}

func matchTerms(fields map[string]any, terms []domain.TermFilter) bool {
	for _, t := range terms {
		if !matchValue(fields[t.Field], t.Value) {
			return false
		}
	}
	return true
}

func matchValue(stored, want any) bool {
	if list, ok := stored.([]any); ok {
		for _, v := range list {
			if matchValue(v, want) {
				return true
			}
		}
		return false
	}
	a, err1 := json.Marshal(stored)
	b, err2 := json.Marshal(want)
	return err1 == nil && err2 == nil && string(a) == string(b)
}

func compareValues(a, b any) int {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func toFloats(v any) []float32 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, x := range list {
		f, ok := x.(float64)
		if !ok {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
