package domain

import (
	"encoding/json"
	"time"
)

// DefaultRequestTimeout bounds each network call to the cluster or embedding provider
const DefaultRequestTimeout = 10 * time.Second

// MaxSimilarK bounds k for similarity queries
const MaxSimilarK = 100

// DefaultFilterSize is the number of hits returned by exact-match filters
const DefaultFilterSize = 100

// SortOrder is asc or desc
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortField orders hits by a field value
type SortField struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order"`
}

// TermFilter is an exact-match filter on one field
type TermFilter struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// KNNQuery is a k-nearest-neighbor query over a vector field
type KNNQuery struct {
	Field         string    `json:"field"`
	Vector        []float32 `json:"vector"`
	K             int       `json:"k"`
	NumCandidates int       `json:"num_candidates"`
}

// SearchRequest is the engine-neutral query passed to the SearchIndex port.
// Exactly one of Terms or KNN drives the query; Terms may also pre-filter a KNN query.
type SearchRequest struct {
	Terms         []TermFilter `json:"terms,omitempty"`
	KNN           *KNNQuery    `json:"knn,omitempty"`
	Sort          []SortField  `json:"sort,omitempty"`
	Size          int          `json:"size"`
	ExcludeFields []string     `json:"exclude_fields,omitempty"`
}

// Hit is one search result
type Hit struct {
	Index  string          `json:"index"`
	ID     string          `json:"id"`
	Score  float64         `json:"score"`
	Source json.RawMessage `json:"source"`
}

// Decode unmarshals the hit source into v
func (h *Hit) Decode(v any) error {
	return json.Unmarshal(h.Source, v)
}

// Fields decodes the hit source into a generic map
func (h *Hit) Fields() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(h.Source, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SimilarityResult is the result of a similarity query
type SimilarityResult struct {
	Index string `json:"index"`
	Query string `json:"query"`
	K     int    `json:"k"`
	Hits  []*Hit `json:"hits"`
}
