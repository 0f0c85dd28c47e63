package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the queue lifecycle state of a persisted job.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
	JobDead    JobStatus = "dead"
)

// JobType keys the worker's handler dispatch table.
type JobType string

const (
	JobTypeProcessPDFCase             JobType = "process_pdf_case"
	JobTypePostRoom2Widget            JobType = "post_room2_widget"
	JobTypePostRoom3Request           JobType = "post_room3_request"
	JobTypePostRoom1FinalDenialTriage JobType = "post_room1_final_denial_triage"
	JobTypePostRoom1FinalAppt         JobType = "post_room1_final_appt"
	JobTypePostRoom1FinalApptDenied   JobType = "post_room1_final_appt_denied"
	JobTypePostRoom1FinalFailure      JobType = "post_room1_final_failure"
	JobTypeExecuteCleanup             JobType = "execute_cleanup"
)

// DefaultMaxAttempts is applied when enqueue is called without an override.
const DefaultMaxAttempts = 5

// Job is a persisted work item. Claiming flips queued rows to running under
// row-level locking; per-case correctness is enforced by the case state
// machine, not by the queue.
type Job struct {
	JobID       int64           `json:"job_id"`
	CaseID      *string         `json:"case_id,omitempty"`
	JobType     JobType         `json:"job_type"`
	Status      JobStatus       `json:"status"`
	RunAfter    time.Time       `json:"run_after"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   *string         `json:"last_error,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ClaimedBy   *string         `json:"claimed_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ProcessPDFPayload is the payload of a process_pdf_case job.
type ProcessPDFPayload struct {
	PDFMXCURL string `json:"pdf_mxc_url"`
}

// FailurePayload is the payload of a post_room1_final_failure job, copied
// from the dead job's last error at dead-letter time.
type FailurePayload struct {
	Cause   string `json:"cause"`
	Details string `json:"details"`
}
