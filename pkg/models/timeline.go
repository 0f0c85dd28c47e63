package models

import (
	"encoding/json"
	"time"
)

// Timeline sources. The monitoring timeline unions four activity tables.
const (
	TimelineSourcePDF    = "pdf"
	TimelineSourceLLM    = "llm"
	TimelineSourceMatrix = "matrix"
	TimelineSourceAudit  = "audit"
)

// TimelineEntry is one row of a case's chronological activity, assembled
// from report transcripts, LLM interactions, matrix transcripts, and audit
// events.
type TimelineEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	Source      string          `json:"source"`
	Channel     string          `json:"channel,omitempty"`
	Actor       string          `json:"actor,omitempty"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ContentText string          `json:"content_text,omitempty"`
}

// CaseDetail is the monitoring detail response for one case.
type CaseDetail struct {
	CaseID   string          `json:"case_id"`
	Status   Status          `json:"status"`
	Timeline []TimelineEntry `json:"timeline"`
}

// CaseFilters are the monitoring list query options.
type CaseFilters struct {
	Status   *Status    `json:"status,omitempty"`
	FromDate *time.Time `json:"from_date,omitempty"`
	ToDate   *time.Time `json:"to_date,omitempty"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// CaseListItem is one row of the monitoring case list.
type CaseListItem struct {
	CaseID             string    `json:"case_id"`
	Status             Status    `json:"status"`
	AgencyRecordNumber *string   `json:"agency_record_number,omitempty"`
	OriginSenderUserID string    `json:"origin_sender_user_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CaseList is a paginated monitoring case list.
type CaseList struct {
	Cases      []CaseListItem `json:"cases"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}

// QueueStats is the monitoring queue introspection response.
type QueueStats struct {
	CountsByStatus map[JobStatus]int `json:"counts_by_status"`
	DeadJobs       []*Job            `json:"dead_jobs"`
}
