package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opentriagem/triagem/pkg/models"
)

// CheckpointRepo persists the expected-confirmation rows for posted messages.
type CheckpointRepo struct {
	db *sql.DB
}

func NewCheckpointRepo(db *sql.DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

// Insert creates a PENDING checkpoint for the target event. Re-inserting the
// same (case, stage, target) is a no-op, which keeps redelivered posts safe.
func (r *CheckpointRepo) Insert(ctx context.Context, caseID string, stage models.CheckpointStage, targetEventID string) error {
	const q = `INSERT INTO case_reaction_checkpoints (case_id, stage, target_event_id, outcome)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (case_id, stage, target_event_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, q, caseID, stage, targetEventID, models.CheckpointPending)
	if err != nil {
		return fmt.Errorf("insert %s checkpoint for case %s: %w", stage, caseID, err)
	}
	return nil
}

// MarkPositive flips a PENDING checkpoint to POSITIVE_RECEIVED and records
// who reacted. A checkpoint that already received its reaction keeps the
// first reactor; redeliveries observe applied=false.
func (r *CheckpointRepo) MarkPositive(ctx context.Context, caseID string, stage models.CheckpointStage, targetEventID, reactorUserID string, at time.Time) (bool, error) {
	const q = `UPDATE case_reaction_checkpoints
		SET outcome = $5, reactor_user_id = $6, reacted_at = $7
		WHERE case_id = $1 AND stage = $2 AND target_event_id = $3 AND outcome = $4`
	res, err := r.db.ExecContext(ctx, q, caseID, stage, targetEventID,
		models.CheckpointPending, models.CheckpointPositiveReceived, reactorUserID, at)
	if err != nil {
		return false, fmt.Errorf("mark %s checkpoint positive for case %s: %w", stage, caseID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Find loads one checkpoint by its natural key.
func (r *CheckpointRepo) Find(ctx context.Context, caseID string, stage models.CheckpointStage, targetEventID string) (*models.ReactionCheckpoint, error) {
	const q = `SELECT id, case_id, stage, target_event_id, outcome, reactor_user_id, reacted_at, created_at
		FROM case_reaction_checkpoints
		WHERE case_id = $1 AND stage = $2 AND target_event_id = $3`
	var cp models.ReactionCheckpoint
	err := r.db.QueryRowContext(ctx, q, caseID, stage, targetEventID).Scan(
		&cp.ID, &cp.CaseID, &cp.Stage, &cp.TargetEventID, &cp.Outcome,
		&cp.ReactorUserID, &cp.ReactedAt, &cp.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find %s checkpoint for case %s: %w", stage, caseID, err)
	}
	return &cp, nil
}

// ListByCase returns a case's checkpoints in insertion order.
func (r *CheckpointRepo) ListByCase(ctx context.Context, caseID string) ([]*models.ReactionCheckpoint, error) {
	const q = `SELECT id, case_id, stage, target_event_id, outcome, reactor_user_id, reacted_at, created_at
		FROM case_reaction_checkpoints WHERE case_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, caseID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for case %s: %w", caseID, err)
	}
	defer rows.Close()

	var out []*models.ReactionCheckpoint
	for rows.Next() {
		var cp models.ReactionCheckpoint
		err := rows.Scan(&cp.ID, &cp.CaseID, &cp.Stage, &cp.TargetEventID, &cp.Outcome,
			&cp.ReactorUserID, &cp.ReactedAt, &cp.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, &cp)
	}
	return out, rows.Err()
}
