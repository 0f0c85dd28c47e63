package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opentriagem/triagem/pkg/models"
)

// ErrMessageExists is returned when a (room_id, event_id) pair was already
// recorded. Callers use it as their processed-marker for idempotency.
var ErrMessageExists = errors.New("message already recorded")

// MessageRepo tracks every Matrix event the engine owns per case. The unique
// (room_id, event_id) pair doubles as the processed ledger and, at cleanup
// time, the redaction list.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Record inserts one tracked message. A duplicate (room_id, event_id)
// surfaces as ErrMessageExists.
func (r *MessageRepo) Record(ctx context.Context, caseID, roomID, eventID string, kind models.MessageKind) (*models.CaseMessage, error) {
	const q = `INSERT INTO case_messages (case_id, room_id, event_id, kind)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	m := &models.CaseMessage{CaseID: caseID, RoomID: roomID, EventID: eventID, Kind: kind}
	err := r.db.QueryRowContext(ctx, q, caseID, roomID, eventID, kind).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrMessageExists
		}
		return nil, fmt.Errorf("record message %s/%s: %w", roomID, eventID, err)
	}
	return m, nil
}

// Exists reports whether the (room_id, event_id) pair was already recorded.
func (r *MessageRepo) Exists(ctx context.Context, roomID, eventID string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM case_messages WHERE room_id = $1 AND event_id = $2
	)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, roomID, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check message %s/%s: %w", roomID, eventID, err)
	}
	return exists, nil
}

// Find resolves a tracked message by its Matrix coordinates.
func (r *MessageRepo) Find(ctx context.Context, roomID, eventID string) (*models.CaseMessage, error) {
	const q = `SELECT id, case_id, room_id, event_id, kind, created_at
		FROM case_messages WHERE room_id = $1 AND event_id = $2`
	var m models.CaseMessage
	err := r.db.QueryRowContext(ctx, q, roomID, eventID).Scan(
		&m.ID, &m.CaseID, &m.RoomID, &m.EventID, &m.Kind, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find message %s/%s: %w", roomID, eventID, err)
	}
	return &m, nil
}

// FindByCaseAndKind returns the case's messages of one kind, oldest first.
func (r *MessageRepo) FindByCaseAndKind(ctx context.Context, caseID string, kind models.MessageKind) ([]*models.CaseMessage, error) {
	const q = `SELECT id, case_id, room_id, event_id, kind, created_at
		FROM case_messages WHERE case_id = $1 AND kind = $2 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, caseID, kind)
	if err != nil {
		return nil, fmt.Errorf("find %s messages for case %s: %w", kind, caseID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ListByCase returns every tracked message of a case, oldest first. Cleanup
// walks this list to redact the bot's own events.
func (r *MessageRepo) ListByCase(ctx context.Context, caseID string) ([]*models.CaseMessage, error) {
	const q = `SELECT id, case_id, room_id, event_id, kind, created_at
		FROM case_messages WHERE case_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, caseID)
	if err != nil {
		return nil, fmt.Errorf("list messages for case %s: %w", caseID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]*models.CaseMessage, error) {
	var out []*models.CaseMessage
	for rows.Next() {
		var m models.CaseMessage
		if err := rows.Scan(&m.ID, &m.CaseID, &m.RoomID, &m.EventID, &m.Kind, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
