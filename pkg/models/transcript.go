package models

import "time"

// ReportTranscript holds the cleaned PDF text captured during extraction.
type ReportTranscript struct {
	ID         int64     `json:"id"`
	CaseID     string    `json:"case_id"`
	Content    string    `json:"content"`
	CapturedAt time.Time `json:"captured_at"`
}

// LLM stage labels recorded on interaction transcripts.
const (
	LLMStageStruct  = "llm1"
	LLMStageSuggest = "llm2"
)

// LLMInteraction records one LLM stage call, pinned to the exact prompt
// template versions that produced it. Changing an active template later does
// not alter past audit rows.
type LLMInteraction struct {
	ID                  int64     `json:"id"`
	CaseID              string    `json:"case_id"`
	Stage               string    `json:"stage"`
	SystemPrompt        string    `json:"system_prompt"`
	UserPrompt          string    `json:"user_prompt"`
	RawResponse         string    `json:"raw_response"`
	SystemPromptName    string    `json:"system_prompt_name"`
	SystemPromptVersion int       `json:"system_prompt_version"`
	UserPromptName      string    `json:"user_prompt_name"`
	UserPromptVersion   int       `json:"user_prompt_version"`
	ModelName           string    `json:"model_name"`
	CapturedAt          time.Time `json:"captured_at"`
}

// MatrixMessageTranscript records text the bot posted or consumed, for the
// monitoring timeline.
type MatrixMessageTranscript struct {
	ID             int64     `json:"id"`
	CaseID         string    `json:"case_id"`
	RoomID         string    `json:"room_id"`
	EventID        string    `json:"event_id"`
	SenderUserID   string    `json:"sender_user_id"`
	MessageType    string    `json:"message_type"`
	ReplyToEventID *string   `json:"reply_to_event_id,omitempty"`
	Body           string    `json:"body"`
	CapturedAt     time.Time `json:"captured_at"`
}
