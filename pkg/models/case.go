// Package models defines the persisted records, enums, and shared DTOs used
// across the repository, service, queue, poller, and API layers.
package models

import "time"

// Status is the case lifecycle state. Transitions are applied via
// compare-and-swap updates that name the expected source status.
type Status string

const (
	StatusNew                 Status = "NEW"
	StatusR1AckProcessing     Status = "R1_ACK_PROCESSING"
	StatusExtracting          Status = "EXTRACTING"
	StatusLLMStruct           Status = "LLM_STRUCT"
	StatusLLMSuggest          Status = "LLM_SUGGEST"
	StatusR2PostWidget        Status = "R2_POST_WIDGET"
	StatusWaitDoctor          Status = "WAIT_DOCTOR"
	StatusDoctorAccepted      Status = "DOCTOR_ACCEPTED"
	StatusDoctorDenied        Status = "DOCTOR_DENIED"
	StatusR3PostRequest       Status = "R3_POST_REQUEST"
	StatusWaitAppt            Status = "WAIT_APPT"
	StatusApptConfirmed       Status = "APPT_CONFIRMED"
	StatusApptDenied          Status = "APPT_DENIED"
	StatusFailed              Status = "FAILED"
	StatusWaitR1CleanupThumbs Status = "WAIT_R1_CLEANUP_THUMBS"
	StatusCleanupRunning      Status = "CLEANUP_RUNNING"
	StatusCleaned             Status = "CLEANED"
)

// Doctor decision values.
const (
	DecisionAccept = "accept"
	DecisionDeny   = "deny"
)

// Doctor support flags. Deny implies SupportNone.
const (
	SupportNone           = "none"
	SupportAnesthesist    = "anesthesist"
	SupportAnesthesistICU = "anesthesist_icu"
)

// Appointment statuses reported by the Room-3 scheduler.
const (
	AppointmentConfirmed = "confirmed"
	AppointmentDenied    = "denied"
)

// Case is the aggregate root: one row per triage request, from Room-1 intake
// through cleanup. The origin event id is globally unique, which makes intake
// idempotent against duplicate chat deliveries.
type Case struct {
	CaseID             string `json:"case_id"`
	Status             Status `json:"status"`
	OriginRoomID       string `json:"origin_room_id"`
	OriginEventID      string `json:"origin_event_id"`
	OriginSenderUserID string `json:"origin_sender_user_id"`

	AgencyRecordNumber  *string `json:"agency_record_number,omitempty"`
	ExtractedText       *string `json:"extracted_text,omitempty"`
	StructuredDataJSON  *string `json:"structured_data_json,omitempty"`
	SummaryText         *string `json:"summary_text,omitempty"`
	SuggestedActionJSON *string `json:"suggested_action_json,omitempty"`
	ContradictionsJSON  *string `json:"contradictions_json,omitempty"`

	DoctorUserID      *string    `json:"doctor_user_id,omitempty"`
	DoctorDecision    *string    `json:"doctor_decision,omitempty"`
	DoctorSupportFlag *string    `json:"doctor_support_flag,omitempty"`
	DoctorReason      *string    `json:"doctor_reason,omitempty"`
	DoctorDecidedAt   *time.Time `json:"doctor_decided_at,omitempty"`

	SchedulerUserID         *string    `json:"scheduler_user_id,omitempty"`
	AppointmentStatus       *string    `json:"appointment_status,omitempty"`
	AppointmentDatetime     *time.Time `json:"appointment_datetime,omitempty"`
	AppointmentLocation     *string    `json:"appointment_location,omitempty"`
	AppointmentInstructions *string    `json:"appointment_instructions,omitempty"`
	AppointmentReason       *string    `json:"appointment_reason,omitempty"`
	AppointmentDecidedAt    *time.Time `json:"appointment_decided_at,omitempty"`

	Room1FinalReplyEventID *string `json:"room1_final_reply_event_id,omitempty"`

	CleanupTriggeredByUserID *string    `json:"cleanup_triggered_by_user_id,omitempty"`
	CleanupTriggeredAt       *time.Time `json:"cleanup_triggered_at,omitempty"`
	CleanupCompletedAt       *time.Time `json:"cleanup_completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DoctorDecision is the normalized decision input shared by the webhook, the
// widget submit, and the Room-2 chat reply path.
type DoctorDecision struct {
	CaseID        string     `json:"case_id"`
	DoctorUserID  string     `json:"doctor_user_id"`
	Decision      string     `json:"decision"`
	SupportFlag   string     `json:"support_flag"`
	Reason        string     `json:"reason,omitempty"`
	WidgetEventID string     `json:"widget_event_id,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
}

// SchedulerDecision is the normalized Room-3 reply after parsing.
type SchedulerDecision struct {
	CaseID              string     `json:"case_id"`
	SchedulerUserID     string     `json:"scheduler_user_id"`
	AppointmentStatus   string     `json:"appointment_status"`
	AppointmentDatetime *time.Time `json:"appointment_datetime,omitempty"`
	Location            string     `json:"location,omitempty"`
	Instructions        string     `json:"instructions,omitempty"`
	Reason              string     `json:"reason,omitempty"`
	ReplyEventID        string     `json:"reply_event_id"`
}

// Outcome reports how a state-machine service resolved a request. State
// conflicts are outcomes, not errors: errors are reserved for I/O failures.
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeWrongState      Outcome = "wrong_state"
	OutcomeDuplicateOrRace Outcome = "duplicate_or_race"
)

// PriorDenial describes the most recent denial of another case sharing the
// same agency record number.
type PriorDenial struct {
	CaseID   string    `json:"case_id"`
	DeniedAt time.Time `json:"denied_at"`
	Source   string    `json:"source"` // "doctor" or "scheduler"
	Reason   string    `json:"reason"`
}

// PriorCaseContext is the 7-day denial-history window posted with the Room-2
// widget so the doctor sees repeat requests.
type PriorCaseContext struct {
	MostRecent  *PriorDenial `json:"most_recent,omitempty"`
	DenialCount int          `json:"denial_count"`
}
