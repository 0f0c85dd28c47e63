package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/opentriagem/triagem/pkg/models"
)

const eventColumns = `event_id, case_id, actor_type, actor_user_id, room_id, matrix_event_id,
	event_type, payload, created_at`

// EventRepo is the append-only audit trail.
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

// Append records one audit event. Payload may be nil.
func (r *EventRepo) Append(ctx context.Context, ev *models.CaseEvent) error {
	payload := ev.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	const q = `INSERT INTO case_events (case_id, actor_type, actor_user_id, room_id, matrix_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING event_id, created_at`
	err := r.db.QueryRowContext(ctx, q,
		ev.CaseID, ev.ActorType, ev.ActorUserID, ev.RoomID, ev.MatrixEventID, ev.EventType, []byte(payload),
	).Scan(&ev.EventID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event %s for case %s: %w", ev.EventType, ev.CaseID, err)
	}
	return nil
}

// ListByCase returns the case's audit trail in insertion order.
func (r *EventRepo) ListByCase(ctx context.Context, caseID string) ([]*models.CaseEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM case_events WHERE case_id = $1 ORDER BY event_id`
	rows, err := r.db.QueryContext(ctx, q, caseID)
	if err != nil {
		return nil, fmt.Errorf("list events for case %s: %w", caseID, err)
	}
	defer rows.Close()

	var out []*models.CaseEvent
	for rows.Next() {
		var ev models.CaseEvent
		var payload []byte
		err := rows.Scan(&ev.EventID, &ev.CaseID, &ev.ActorType, &ev.ActorUserID, &ev.RoomID,
			&ev.MatrixEventID, &ev.EventType, &payload, &ev.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Payload = json.RawMessage(payload)
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// HasEvent reports whether the case already carries an event of this type.
func (r *EventRepo) HasEvent(ctx context.Context, caseID, eventType string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM case_events WHERE case_id = $1 AND event_type = $2
	)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, caseID, eventType).Scan(&exists); err != nil {
		return false, fmt.Errorf("check event %s for case %s: %w", eventType, caseID, err)
	}
	return exists, nil
}
