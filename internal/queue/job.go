package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/graphmill/graphmill/pkg/common"
	"github.com/graphmill/graphmill/pkg/gate"
)

// JobStatus is the lifecycle state of a queued extraction job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Job tracks one content item through the queue. Fields are owned by the
// queue and must only be read through its accessors.
type Job struct {
	ID          string              `json:"id"`
	SessionID   string              `json:"session_id"`
	ContentID   string              `json:"content_id"`
	Status      JobStatus           `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Error       string              `json:"error,omitempty"`
	input       common.ContentInput `json:"-"`
}

// ErrBudgetExceeded is returned by Submit when today's spend has reached the
// daily cost limit. No job is created.
var ErrBudgetExceeded = errors.New("daily cost limit reached")

// IneligibleError is returned by Submit when the content fails an
// eligibility rule other than the budget. No job is created.
type IneligibleError struct {
	Reason gate.Reason
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("content not eligible for processing: %s", e.Reason)
}
