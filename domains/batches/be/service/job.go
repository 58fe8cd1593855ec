package service

import (
	"time"

	"github.com/google/uuid"

	tenants "github.com/steeplehq/tenant-provisioner/domains/tenants/be/service"
)

// Status is the lifecycle of a batch job. Terminal statuses are a pure
// function of the per-item results once every item has resolved.
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusInProgress         Status = "IN_PROGRESS"
	StatusCompleted          Status = "COMPLETED"
	StatusPartiallyCompleted Status = "PARTIALLY_COMPLETED"
	StatusFailed             Status = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartiallyCompleted, StatusFailed:
		return true
	}
	return false
}

// ItemResult is the outcome of one provisioning request, keyed by its
// position in the submitted batch.
type ItemResult struct {
	Index     int
	Name      string
	Domain    string
	Success   bool
	Tenant    *tenants.Tenant
	Error     string
	ErrorKind string
	Elapsed   time.Duration
}

// Job is the mutable per-batch tracking record, owned by the Store. Results
// entries stay nil until the corresponding item resolves.
type Job struct {
	ID              uuid.UUID
	Status          Status
	Requests        []tenants.CreateRequest
	Concurrency     int
	ContinueOnError bool
	Results         []*ItemResult
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// Snapshot is an immutable copy of a Job handed to callers.
type Snapshot struct {
	ID              uuid.UUID
	Status          Status
	Total           int
	Succeeded       int
	Failed          int
	Pending         int
	ContinueOnError bool
	Concurrency     int
	Results         []ItemResult
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Elapsed         time.Duration
}

func (j *Job) snapshot() Snapshot {
	snap := Snapshot{
		ID:              j.ID,
		Status:          j.Status,
		Total:           len(j.Requests),
		ContinueOnError: j.ContinueOnError,
		Concurrency:     j.Concurrency,
		CreatedAt:       j.CreatedAt,
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		snap.StartedAt = &t
		if j.CompletedAt != nil {
			c := *j.CompletedAt
			snap.CompletedAt = &c
			snap.Elapsed = c.Sub(t)
		} else {
			snap.Elapsed = time.Since(t)
		}
	}
	for _, res := range j.Results {
		if res == nil {
			snap.Pending++
			continue
		}
		copied := *res
		if res.Tenant != nil {
			t := *res.Tenant
			copied.Tenant = &t
		}
		snap.Results = append(snap.Results, copied)
		if res.Success {
			snap.Succeeded++
		} else {
			snap.Failed++
		}
	}
	return snap
}

// deriveStatus computes the terminal status from fully resolved results.
func deriveStatus(results []*ItemResult) Status {
	succeeded, failed := 0, 0
	for _, res := range results {
		if res != nil && res.Success {
			succeeded++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return StatusCompleted
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusPartiallyCompleted
	}
}
