package queue

import "time"

// SessionProgress summarizes queue state for one scraping session.
// EstimatedTimeRemainingMs extrapolates from the running average job
// duration; with no finished jobs yet it stays zero.
type SessionProgress struct {
	SessionID                string `json:"session_id"`
	TotalJobs                int    `json:"total_jobs"`
	PendingJobs              int    `json:"pending_jobs"`
	CompletedJobs            int    `json:"completed_jobs"`
	FailedJobs               int    `json:"failed_jobs"`
	CancelledJobs            int    `json:"cancelled_jobs"`
	CurrentContentID         string `json:"current_content_id,omitempty"`
	EstimatedTimeRemainingMs int64  `json:"estimated_time_remaining_ms"`
}

// Progress returns the current progress of a session's jobs.
func (q *Queue) Progress(sessionID string) SessionProgress {
	q.mu.Lock()
	defer q.mu.Unlock()

	progress := SessionProgress{SessionID: sessionID}
	inflight := 0
	for _, job := range q.jobs {
		if job.SessionID != sessionID {
			continue
		}
		progress.TotalJobs++
		switch job.Status {
		case JobPending:
			progress.PendingJobs++
		case JobProcessing:
			inflight++
			progress.CurrentContentID = job.ContentID
		case JobCompleted:
			progress.CompletedJobs++
		case JobFailed:
			progress.FailedJobs++
		case JobCancelled:
			progress.CancelledJobs++
		}
	}

	if q.completedCount > 0 {
		average := q.completedDuration / time.Duration(q.completedCount)
		remaining := time.Duration(progress.PendingJobs+inflight) * average
		progress.EstimatedTimeRemainingMs = remaining.Milliseconds()
	}

	return progress
}
