package models

import (
	"encoding/json"
	"time"
)

// ActorType classifies who caused an audit event.
type ActorType string

const (
	ActorSystem ActorType = "system"
	ActorBot    ActorType = "bot"
	ActorHuman  ActorType = "human"
)

// Audit event types. case_events rows are append-only; these names are part
// of the monitoring and test surface.
const (
	EventCaseCreated              = "CASE_CREATED"
	EventBotProcessingReplyPosted = "BOT_PROCESSING_REPLY_POSTED"
	EventCaseStatusChanged        = "CASE_STATUS_CHANGED"
	EventPDFExtracted             = "PDF_EXTRACTED"
	EventLLM1StructuredSummaryOK  = "LLM1_STRUCTURED_SUMMARY_OK"
	EventLLM2SuggestionOK         = "LLM2_SUGGESTION_OK"
	EventLLMContradictionDetected = "LLM_CONTRADICTION_DETECTED"

	EventRoom2WidgetMessagePosted           = "ROOM2_WIDGET_MESSAGE_POSTED"
	EventRoom2WidgetSubmitted               = "ROOM2_WIDGET_SUBMITTED"
	EventRoom2DecisionIgnoredWrongState     = "ROOM2_DECISION_IGNORED_WRONG_STATE"
	EventRoom2DecisionDuplicateOrRace       = "ROOM2_DECISION_DUPLICATE_OR_RACE_IGNORED"
	EventRoom2DecisionAckPosted             = "ROOM2_DECISION_ACK_POSTED"
	EventRoom2ReplyRejected                 = "ROOM2_REPLY_REJECTED"
	EventRoom2AckPositiveReceived           = "ROOM2_ACK_POSITIVE_RECEIVED"
	EventRoom3RequestPosted                 = "ROOM3_REQUEST_POSTED"
	EventRoom3AckPosted                     = "ROOM3_ACK_POSTED"
	EventRoom3TemplateParseFailed           = "ROOM3_TEMPLATE_PARSE_FAILED"
	EventRoom3TemplateInvalidCaseLine       = "ROOM3_TEMPLATE_INVALID_CASE_LINE"
	EventRoom3ReformatPromptPosted          = "ROOM3_REFORMAT_PROMPT_POSTED"
	EventRoom3ReplyIgnoredWrongState        = "ROOM3_REPLY_IGNORED_WRONG_STATE"
	EventRoom3AppointmentConfirmed          = "ROOM3_APPOINTMENT_CONFIRMED"
	EventRoom3AppointmentDenied             = "ROOM3_APPOINTMENT_DENIED"
	EventRoom3AckThumbsUpReceived           = "ROOM3_ACK_THUMBS_UP_RECEIVED"
	EventRoom1FinalReplyPosted              = "ROOM1_FINAL_REPLY_POSTED"
	EventRoom1FinalReplySkippedExists       = "ROOM1_FINAL_REPLY_POST_SKIPPED_ALREADY_EXISTS"
	EventRoom1ThumbsUpTriggeredCleanup      = "ROOM1_FINAL_THUMBS_UP_TRIGGERED_CLEANUP"
	EventRoom1ThumbsUpIgnoredAlreadyToggled = "ROOM1_FINAL_THUMBS_UP_IGNORED_ALREADY_TRIGGERED"
	EventReactionIgnoredWrongState          = "REACTION_IGNORED_WRONG_STATE"
	EventCleanupCompleted                   = "CLEANUP_COMPLETED"

	EventJobEnqueuedNextStep         = "JOB_ENQUEUED_NEXT_STEP"
	EventJobRetryScheduled           = "JOB_RETRY_SCHEDULED"
	EventJobMaxRetriesExceeded       = "JOB_MAX_RETRIES_EXCEEDED"
	EventCaseFailedMaxRetries        = "CASE_FAILED_MAX_RETRIES"
	EventJobEnqueuedPostRoom1Failure = "JOB_ENQUEUED_POST_ROOM1_FAILURE"
)

// CaseEvent is one append-only audit row. Rows are never updated or deleted.
type CaseEvent struct {
	EventID       int64           `json:"event_id"`
	CaseID        string          `json:"case_id"`
	ActorType     ActorType       `json:"actor_type"`
	ActorUserID   *string         `json:"actor_user_id,omitempty"`
	RoomID        *string         `json:"room_id,omitempty"`
	MatrixEventID *string         `json:"matrix_event_id,omitempty"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
