package models

import "time"

// MessageKind classifies a chat message the bot posted or consumed. The
// (room_id, event_id) pair is globally unique, which is what makes intake and
// reply routing idempotent, and the per-case kind list doubles as the
// redaction list during cleanup.
type MessageKind string

const (
	KindRoom1Origin           MessageKind = "room1_origin"
	KindBotProcessing         MessageKind = "bot_processing"
	KindRoom2CaseRoot         MessageKind = "room2_case_root"
	KindRoom2CaseInstructions MessageKind = "room2_case_instructions"
	KindRoom2CaseSummary      MessageKind = "room2_case_summary"
	KindRoom2CaseTemplate     MessageKind = "room2_case_template"
	KindRoom2DecisionAck      MessageKind = "room2_decision_ack"
	KindRoom2DoctorReply      MessageKind = "room2_doctor_reply"
	KindRoom3Request          MessageKind = "room3_request"
	KindBotAck                MessageKind = "bot_ack"
	KindRoom3Reply            MessageKind = "room3_reply"
	KindBotReformatRoom3      MessageKind = "bot_reformat_prompt_room3"
	KindRoom1Final            MessageKind = "room1_final"
)

// CaseMessage maps a chat event back to its case and role.
type CaseMessage struct {
	ID        int64       `json:"id"`
	CaseID    string      `json:"case_id"`
	RoomID    string      `json:"room_id"`
	EventID   string      `json:"event_id"`
	Kind      MessageKind `json:"kind"`
	CreatedAt time.Time   `json:"created_at"`
}
