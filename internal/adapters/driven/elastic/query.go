package elastic

import (
	"encoding/json"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

// searchBody renders a SearchRequest as an Elasticsearch search body.
// Term filters run in filter context so they never affect scoring.
func searchBody(req *domain.SearchRequest) map[string]any {
	body := map[string]any{}

	size := req.Size
	if size <= 0 {
		size = domain.DefaultFilterSize
	}
	body["size"] = size

	filters := make([]any, 0, len(req.Terms))
	for _, t := range req.Terms {
		filters = append(filters, map[string]any{
			"term": map[string]any{
				t.Field: map[string]any{"value": t.Value},
			},
		})
	}

	switch {
	case req.KNN != nil:
		knn := map[string]any{
			"field":          req.KNN.Field,
			"query_vector":   req.KNN.Vector,
			"k":              req.KNN.K,
			"num_candidates": numCandidates(req.KNN),
		}
		if len(filters) > 0 {
			knn["filter"] = map[string]any{"bool": map[string]any{"filter": filters}}
		}
		body["knn"] = knn
		body["size"] = req.KNN.K
	case len(filters) > 0:
		body["query"] = map[string]any{"bool": map[string]any{"filter": filters}}
	default:
		body["query"] = map[string]any{"match_all": map[string]any{}}
	}

	if len(req.Sort) > 0 {
		sorts := make([]any, 0, len(req.Sort))
		for _, s := range req.Sort {
			order := s.Order
			if order == "" {
				order = domain.SortAsc
			}
			sorts = append(sorts, map[string]any{s.Field: map[string]any{"order": string(order)}})
		}
		body["sort"] = sorts
	}

	if len(req.ExcludeFields) > 0 {
		body["_source"] = map[string]any{"excludes": req.ExcludeFields}
	}

	return body
}

func numCandidates(q *domain.KNNQuery) int {
	if q.NumCandidates > 0 {
		return q.NumCandidates
	}
	n := q.K * 10
	if n < 100 {
		n = 100
	}
	return n
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Index  string          `json:"_index"`
			ID     string          `json:"_id"`
			Score  *float64        `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}
