package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/opentriagem/triagem/pkg/models"
)

// ActivityRepo assembles the monitoring timeline by unioning the four
// per-case activity sources: report transcripts, LLM interactions, matrix
// message transcripts, and audit events.
type ActivityRepo struct {
	db *sql.DB
}

func NewActivityRepo(db *sql.DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// Timeline returns the case's activity sorted ascending by timestamp. Ties
// keep source-internal insertion order via the id tiebreak.
func (r *ActivityRepo) Timeline(ctx context.Context, caseID string) ([]models.TimelineEntry, error) {
	const q = `
		SELECT captured_at AS ts, 'pdf' AS source, '' AS channel, '' AS actor,
			'REPORT_TEXT_CAPTURED' AS event_type, NULL::jsonb AS payload, content AS content_text, id
		FROM case_report_transcripts WHERE case_id = $1
	UNION ALL
		SELECT captured_at, 'llm', stage, model_name,
			'LLM_INTERACTION', NULL::jsonb, raw_response, id
		FROM case_llm_interactions WHERE case_id = $1
	UNION ALL
		SELECT captured_at, 'matrix', room_id, sender_user_id,
			message_type, NULL::jsonb, body, id
		FROM case_matrix_message_transcripts WHERE case_id = $1
	UNION ALL
		SELECT created_at, 'audit', COALESCE(room_id, ''), COALESCE(actor_user_id, actor_type::text),
			event_type, payload, '', event_id
		FROM case_events WHERE case_id = $1
	ORDER BY ts, id`
	rows, err := r.db.QueryContext(ctx, q, caseID)
	if err != nil {
		return nil, fmt.Errorf("query timeline for case %s: %w", caseID, err)
	}
	defer rows.Close()

	var out []models.TimelineEntry
	for rows.Next() {
		var e models.TimelineEntry
		var payload []byte
		var id int64
		err := rows.Scan(&e.Timestamp, &e.Source, &e.Channel, &e.Actor,
			&e.EventType, &payload, &e.ContentText, &id)
		if err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
