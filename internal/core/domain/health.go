package domain

import (
	"time"
)

// ClusterStatus is the search cluster health color
type ClusterStatus string

const (
	ClusterGreen  ClusterStatus = "green"
	ClusterYellow ClusterStatus = "yellow"
	ClusterRed    ClusterStatus = "red"
)

// ClusterHealth is the subset of cluster health used by readiness checks
type ClusterHealth struct {
	ClusterName      string        `json:"cluster_name"`
	Status           ClusterStatus `json:"status"`
	NumberOfNodes    int           `json:"number_of_nodes"`
	ActiveShards     int           `json:"active_shards"`
	UnassignedShards int           `json:"unassigned_shards"`
}

// CheckStatus is the outcome of one readiness check
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// CheckResult is one row of a readiness report
type CheckResult struct {
	Name     string         `json:"name"`
	Status   CheckStatus    `json:"status"`
	Message  string         `json:"message"`
	Error    string         `json:"error,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Duration time.Duration  `json:"duration" swaggertype:"integer"`

	err error
}

// NewCheckResult creates a passing result
func NewCheckResult(name, message string) *CheckResult {
	return &CheckResult{Name: name, Status: CheckPass, Message: message}
}

// Warn downgrades the result to a warning
func (r *CheckResult) Warn(message string) *CheckResult {
	if r.Status != CheckFail {
		r.Status = CheckWarn
	}
	r.Message = message
	return r
}

// Fail marks the result failed with the cause
func (r *CheckResult) Fail(message string, err error) *CheckResult {
	r.Status = CheckFail
	r.Message = message
	r.err = err
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// WithDetail attaches a detail value
func (r *CheckResult) WithDetail(key string, value any) *CheckResult {
	if r.Details == nil {
		r.Details = make(map[string]any)
	}
	r.Details[key] = value
	return r
}

// Err returns the failure cause, nil unless failed
func (r *CheckResult) Err() error {
	return r.err
}

// Passed returns true unless the check failed. Warnings pass.
func (r *CheckResult) Passed() bool {
	return r.Status != CheckFail
}

// Report is the accumulated result of a readiness run
type Report struct {
	Checks     []*CheckResult `json:"checks"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Add appends results
func (r *Report) Add(results ...*CheckResult) {
	r.Checks = append(r.Checks, results...)
}

// Passed returns true if no check failed
func (r *Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed() {
			return false
		}
	}
	return true
}

// Count returns the number of checks with the given status
func (r *Report) Count(status CheckStatus) int {
	n := 0
	for _, c := range r.Checks {
		if c.Status == status {
			n++
		}
	}
	return n
}

// Failures returns the failed checks
func (r *Report) Failures() []*CheckResult {
	var failed []*CheckResult
	for _, c := range r.Checks {
		if c.Status == CheckFail {
			failed = append(failed, c)
		}
	}
	return failed
}

// Find returns the check with the given name
func (r *Report) Find(name string) (*CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// IndexCheckName names the readiness check of an index
func IndexCheckName(index string) string {
	return "index:" + index
}

// Readiness check names
const (
	CheckNameEnvironment = "environment"
	CheckNameCluster     = "cluster"
	CheckNameEmbedding   = "embedding"
)
