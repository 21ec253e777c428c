package elastic

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

// createIndexBody renders a flattened mapping as an index creation request.
// Dotted names become nested object properties.
func createIndexBody(mapping *domain.IndexMapping) map[string]any {
	properties := make(map[string]any)

	names := mapping.FieldNames()
	for _, name := range names {
		field := mapping.Fields[name]
		parent, leaf := properties, name
		for {
			i := strings.IndexByte(leaf, '.')
			if i < 0 {
				break
			}
			head := leaf[:i]
			obj, ok := parent[head].(map[string]any)
			if !ok {
				obj = map[string]any{"type": string(domain.FieldObject)}
				parent[head] = obj
			}
			sub, ok := obj["properties"].(map[string]any)
			if !ok {
				sub = make(map[string]any)
				obj["properties"] = sub
			}
			parent, leaf = sub, leaf[i+1:]
		}
		if existing, ok := parent[leaf].(map[string]any); ok {
			// Object already materialized by a dotted child; keep its properties
			for k, v := range fieldBody(field) {
				existing[k] = v
			}
			continue
		}
		parent[leaf] = fieldBody(field)
	}

	return map[string]any{
		"mappings": map[string]any{
			"dynamic":    "strict",
			"properties": properties,
		},
	}
}

func fieldBody(f domain.FieldMapping) map[string]any {
	body := map[string]any{"type": string(f.Type)}
	if f.Dims > 0 {
		body["dims"] = f.Dims
	}
	if f.Similarity != "" {
		body["similarity"] = f.Similarity
	}
	if f.Indexed != nil {
		body["index"] = *f.Indexed
	}
	if f.Enabled != nil {
		body["enabled"] = *f.Enabled
	}
	return body
}

type liveField struct {
	Type       string                     `json:"type"`
	Dims       int                        `json:"dims"`
	Similarity string                     `json:"similarity"`
	Index      *bool                      `json:"index"`
	Enabled    *bool                      `json:"enabled"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// flattenProperties walks a live mapping into dotted field paths.
// A field with properties and no type is an object.
func flattenProperties(prefix string, properties map[string]json.RawMessage, out map[string]domain.FieldMapping) error {
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var f liveField
		if err := json.Unmarshal(properties[name], &f); err != nil {
			return fmt.Errorf("field %s%s: %w", prefix, name, err)
		}
		path := prefix + name

		ft := domain.FieldType(f.Type)
		if ft == "" {
			ft = domain.FieldObject
		}
		out[path] = domain.FieldMapping{
			Type:       ft,
			Dims:       f.Dims,
			Similarity: f.Similarity,
			Indexed:    f.Index,
			Enabled:    f.Enabled,
		}

		if len(f.Properties) > 0 {
			if err := flattenProperties(path+".", f.Properties, out); err != nil {
				return err
			}
		}
	}
	return nil
}
