package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/opentriagem/triagem/pkg/models"
)

// TranscriptRepo persists the three append-only transcript tables that feed
// the monitoring timeline.
type TranscriptRepo struct {
	db *sql.DB
}

func NewTranscriptRepo(db *sql.DB) *TranscriptRepo {
	return &TranscriptRepo{db: db}
}

// AppendReport records the cleaned PDF text captured at extraction time.
func (r *TranscriptRepo) AppendReport(ctx context.Context, caseID, content string) error {
	const q = `INSERT INTO case_report_transcripts (case_id, content) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, q, caseID, content); err != nil {
		return fmt.Errorf("append report transcript for case %s: %w", caseID, err)
	}
	return nil
}

// AppendLLMInteraction records one LLM stage call with the exact prompt
// versions that produced it.
func (r *TranscriptRepo) AppendLLMInteraction(ctx context.Context, in *models.LLMInteraction) error {
	const q = `INSERT INTO case_llm_interactions (case_id, stage, system_prompt, user_prompt,
			raw_response, system_prompt_name, system_prompt_version,
			user_prompt_name, user_prompt_version, model_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, captured_at`
	err := r.db.QueryRowContext(ctx, q,
		in.CaseID, in.Stage, in.SystemPrompt, in.UserPrompt, in.RawResponse,
		in.SystemPromptName, in.SystemPromptVersion, in.UserPromptName, in.UserPromptVersion,
		in.ModelName,
	).Scan(&in.ID, &in.CapturedAt)
	if err != nil {
		return fmt.Errorf("append %s interaction for case %s: %w", in.Stage, in.CaseID, err)
	}
	return nil
}

// AppendMatrixMessage records the text of a chat message the engine posted or
// consumed.
func (r *TranscriptRepo) AppendMatrixMessage(ctx context.Context, t *models.MatrixMessageTranscript) error {
	const q = `INSERT INTO case_matrix_message_transcripts
			(case_id, room_id, event_id, sender_user_id, message_type, reply_to_event_id, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, captured_at`
	err := r.db.QueryRowContext(ctx, q,
		t.CaseID, t.RoomID, t.EventID, t.SenderUserID, t.MessageType, t.ReplyToEventID, t.Body,
	).Scan(&t.ID, &t.CapturedAt)
	if err != nil {
		return fmt.Errorf("append matrix transcript %s/%s: %w", t.RoomID, t.EventID, err)
	}
	return nil
}

// CountLLMInteractions returns the number of recorded stage calls for a case.
func (r *TranscriptRepo) CountLLMInteractions(ctx context.Context, caseID, stage string) (int, error) {
	const q = `SELECT COUNT(*) FROM case_llm_interactions WHERE case_id = $1 AND stage = $2`
	var n int
	if err := r.db.QueryRowContext(ctx, q, caseID, stage).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s interactions for case %s: %w", stage, caseID, err)
	}
	return n, nil
}
