package domain

import (
	"sort"
)

// Fixed index names
const (
	IndexPatients       = "patients"
	IndexAppointments   = "appointments"
	IndexMedicalRecords = "medical_records"
	IndexMedicalCases   = "medical_cases"
	IndexAgentLogs      = "agent_logs"
)

// IndexNames lists the indices in bootstrap and report order
var IndexNames = []string{
	IndexPatients,
	IndexAppointments,
	IndexMedicalRecords,
	IndexMedicalCases,
	IndexAgentLogs,
}

// DefaultVectorDims is the embedding length of the observed schema
const DefaultVectorDims = 384

// FieldType is a search engine field type
type FieldType string

const (
	FieldKeyword     FieldType = "keyword"
	FieldText        FieldType = "text"
	FieldDate        FieldType = "date"
	FieldInteger     FieldType = "integer"
	FieldLong        FieldType = "long"
	FieldBoolean     FieldType = "boolean"
	FieldObject      FieldType = "object"
	FieldDenseVector FieldType = "dense_vector"
)

// IsExactMatch returns true if term filters on this type match whole values only
func (t FieldType) IsExactMatch() bool {
	switch t {
	case FieldKeyword, FieldBoolean, FieldInteger, FieldLong, FieldDate:
		return true
	}
	return false
}

// FieldMapping describes one field of an index mapping
type FieldMapping struct {
	Type       FieldType `json:"type"`
	Dims       int       `json:"dims,omitempty"`
	Similarity string    `json:"similarity,omitempty"`
	Indexed    *bool     `json:"index,omitempty"`
	Enabled    *bool     `json:"enabled,omitempty"`
}

// IndexMapping is the flattened field mapping of an index.
// Nested object properties are keyed by dotted path.
type IndexMapping struct {
	Fields map[string]FieldMapping `json:"fields"`
}

// FieldNames returns the mapped field names sorted
func (m *IndexMapping) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IndexSchema is the declared shape of one index
type IndexSchema struct {
	Name   string
	Fields map[string]FieldMapping

	// KeyField is the field holding the domain key (patient_id, case_id, ...)
	KeyField string

	// VectorField is empty for indices without embeddings
	VectorField string
	VectorDims  int

	// EnumFields maps fields to their allowed values
	EnumFields map[string][]string

	// Versioned indices are append-only; document ids are <key>@v<version>
	Versioned bool

	// ExpectData marks indices that should hold documents in a ready deployment
	ExpectData bool
}

// HasVector returns true if the index declares a vector field
func (s *IndexSchema) HasVector() bool {
	return s.VectorField != "" && s.VectorDims > 0
}

// Mapping renders the expected mapping
func (s *IndexSchema) Mapping() *IndexMapping {
	fields := make(map[string]FieldMapping, len(s.Fields))
	for name, f := range s.Fields {
		fields[name] = f
	}
	return &IndexMapping{Fields: fields}
}

// AllowedValues returns the enumeration of a field, or nil if not enumerated
func (s *IndexSchema) AllowedValues(field string) []string {
	if s.EnumFields == nil {
		return nil
	}
	return s.EnumFields[field]
}

// Registry maps index names to their schema. Read-only after construction.
type Registry struct {
	schemas map[string]*IndexSchema
	dims    int
}

// NewRegistry creates a registry from schemas
func NewRegistry(dims int, schemas ...*IndexSchema) *Registry {
	r := &Registry{schemas: make(map[string]*IndexSchema, len(schemas)), dims: dims}
	for _, s := range schemas {
		r.schemas[s.Name] = s
	}
	return r
}

// Get returns the schema of an index
func (r *Registry) Get(name string) (*IndexSchema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// Names returns registered index names, fixed indices first in contract order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	seen := make(map[string]bool, len(r.schemas))
	for _, name := range IndexNames {
		if _, ok := r.schemas[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}
	var extra []string
	for name := range r.schemas {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// VectorDims returns the configured embedding length
func (r *Registry) VectorDims() int {
	return r.dims
}

func vectorField(dims int) FieldMapping {
	indexed := true
	return FieldMapping{Type: FieldDenseVector, Dims: dims, Similarity: "cosine", Indexed: &indexed}
}

// storedObject is kept in _source but not indexed, so free-form payloads never grow the mapping
func storedObject() FieldMapping {
	enabled := false
	return FieldMapping{Type: FieldObject, Enabled: &enabled}
}

func enumValues[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// DefaultRegistry declares the five clinical indices with the given vector length
func DefaultRegistry(dims int) *Registry {
	if dims <= 0 {
		dims = DefaultVectorDims
	}

	departments := enumValues(Departments)
	severities := enumValues(Severities)

	patients := &IndexSchema{
		Name:     IndexPatients,
		KeyField: "patient_id",
		Fields: map[string]FieldMapping{
			"patient_id":      {Type: FieldKeyword},
			"name":            {Type: FieldText},
			"symptoms":        {Type: FieldText},
			"symptoms_vector": vectorField(dims),
			"age":             {Type: FieldInteger},
			"gender":          {Type: FieldKeyword},
			"date_of_birth":   {Type: FieldDate},
			"phone":           {Type: FieldKeyword},
			"email":           {Type: FieldKeyword},
			"address":         {Type: FieldText},
			"blood_type":      {Type: FieldKeyword},
			"status":          {Type: FieldKeyword},
			"demographics":    storedObject(),
			"created_at":      {Type: FieldDate},
			"updated_at":      {Type: FieldDate},
		},
		VectorField: "symptoms_vector",
		VectorDims:  dims,
		EnumFields: map[string][]string{
			"status": {string(PatientActive), string(PatientInactive)},
		},
		ExpectData: true,
	}

	appointments := &IndexSchema{
		Name:     IndexAppointments,
		KeyField: "appointment_id",
		Fields: map[string]FieldMapping{
			"appointment_id":   {Type: FieldKeyword},
			"patient_id":       {Type: FieldKeyword},
			"doctor_name":      {Type: FieldKeyword},
			"department":       {Type: FieldKeyword},
			"scheduled_at":     {Type: FieldDate},
			"duration_minutes": {Type: FieldInteger},
			"status":           {Type: FieldKeyword},
			"reason":           {Type: FieldText},
			"notes":            {Type: FieldText},
			"updated_at":       {Type: FieldDate},
		},
		EnumFields: map[string][]string{
			"department": departments,
			"status":     enumValues(AppointmentStatuses),
		},
		ExpectData: true,
	}

	records := &IndexSchema{
		Name:     IndexMedicalRecords,
		KeyField: "record_id",
		Fields: map[string]FieldMapping{
			"record_id":   {Type: FieldKeyword},
			"version":     {Type: FieldInteger},
			"patient_id":  {Type: FieldKeyword},
			"doctor_name": {Type: FieldKeyword},
			"department":  {Type: FieldKeyword},
			"severity":    {Type: FieldKeyword},
			"diagnosis":   {Type: FieldText},
			"treatment":   {Type: FieldText},
			"notes":       {Type: FieldText},
			"recorded_at": {Type: FieldDate},
		},
		EnumFields: map[string][]string{
			"department": departments,
			"severity":   severities,
		},
		Versioned:  true,
		ExpectData: true,
	}

	cases := &IndexSchema{
		Name:     IndexMedicalCases,
		KeyField: "case_id",
		Fields: map[string]FieldMapping{
			"case_id":         {Type: FieldKeyword},
			"version":         {Type: FieldInteger},
			"patient_id":      {Type: FieldKeyword},
			"department":      {Type: FieldKeyword},
			"severity":        {Type: FieldKeyword},
			"diagnosis":       {Type: FieldText},
			"symptoms":        {Type: FieldText},
			"symptoms_vector": vectorField(dims),
			"treatment":       {Type: FieldText},
			"outcome":         {Type: FieldText},
			"created_at":      {Type: FieldDate},
		},
		VectorField: "symptoms_vector",
		VectorDims:  dims,
		EnumFields: map[string][]string{
			"department": departments,
			"severity":   severities,
		},
		Versioned:  true,
		ExpectData: true,
	}

	agentLogs := &IndexSchema{
		Name:     IndexAgentLogs,
		KeyField: "log_id",
		Fields: map[string]FieldMapping{
			"log_id":      {Type: FieldKeyword},
			"agent_id":    {Type: FieldKeyword},
			"action":      {Type: FieldKeyword},
			"patient_id":  {Type: FieldKeyword},
			"input":       storedObject(),
			"output":      storedObject(),
			"duration_ms": {Type: FieldLong},
			"timestamp":   {Type: FieldDate},
		},
		ExpectData: false,
	}

	return NewRegistry(dims, patients, appointments, records, cases, agentLogs)
}
