package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a scrape job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobType selects which listing table a job writes to
type JobType string

const (
	JobTypeAuction JobType = "auction"
	JobTypeUsedCar JobType = "used_car"
)

// ScrapeJob tracks one multi-platform search execution. Progress is
// monotonically non-decreasing and capped at 95 until finalization;
// CompletedAt is stamped exactly once, on the first terminal transition.
type ScrapeJob struct {
	ID                 uuid.UUID  `json:"jobId" db:"id"`
	Status             JobStatus  `json:"status" db:"status"`
	Progress           int        `json:"progress" db:"progress"`
	TotalResults       int        `json:"totalResults" db:"total_results"`
	PlatformsRequested string     `json:"platformsRequested" db:"platforms_requested"` // comma-separated source keys
	SearchParams       string     `json:"searchParams" db:"search_params"`             // serialized SearchCriteria
	JobType            JobType    `json:"jobType" db:"job_type"`
	ErrorMessage       *string    `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt          time.Time  `json:"createdAt" db:"created_at"`
	CompletedAt        *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}

// IsTerminal reports whether the job reached a final state
func (j *ScrapeJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
