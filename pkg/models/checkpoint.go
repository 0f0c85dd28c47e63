package models

import "time"

// CheckpointStage names the three points where a human confirmation is
// expected on a posted message.
type CheckpointStage string

const (
	StageRoom2Ack   CheckpointStage = "ROOM2_ACK"
	StageRoom3Ack   CheckpointStage = "ROOM3_ACK"
	StageRoom1Final CheckpointStage = "ROOM1_FINAL"
)

// CheckpointOutcome tracks whether the expected positive reaction arrived.
type CheckpointOutcome string

const (
	CheckpointPending          CheckpointOutcome = "PENDING"
	CheckpointPositiveReceived CheckpointOutcome = "POSITIVE_RECEIVED"
)

// ReactionCheckpoint is one expected confirmation per (case, stage, target
// event). Reactor identity is recorded when the outcome flips to positive.
type ReactionCheckpoint struct {
	ID            int64             `json:"id"`
	CaseID        string            `json:"case_id"`
	Stage         CheckpointStage   `json:"stage"`
	TargetEventID string            `json:"target_event_id"`
	Outcome       CheckpointOutcome `json:"outcome"`
	ReactorUserID *string           `json:"reactor_user_id,omitempty"`
	ReactedAt     *time.Time        `json:"reacted_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
