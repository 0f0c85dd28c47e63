package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opentriagem/triagem/pkg/models"
)

// ErrDuplicateOrigin is returned when the origin event already created a
// case. Intake treats it as a silent no-op (duplicate chat delivery).
var ErrDuplicateOrigin = errors.New("origin event already has a case")

const caseColumns = `case_id, status, origin_room_id, origin_event_id, origin_sender_user_id,
	agency_record_number, extracted_text, structured_data_json, summary_text,
	suggested_action_json, contradictions_json,
	doctor_user_id, doctor_decision, doctor_support_flag, doctor_reason, doctor_decided_at,
	scheduler_user_id, appointment_status, appointment_datetime, appointment_location,
	appointment_instructions, appointment_reason, appointment_decided_at,
	room1_final_reply_event_id,
	cleanup_triggered_by_user_id, cleanup_triggered_at, cleanup_completed_at,
	created_at, updated_at`

// CaseRepo persists the case aggregate and its CAS transitions.
type CaseRepo struct {
	db *sql.DB
}

func NewCaseRepo(db *sql.DB) *CaseRepo {
	return &CaseRepo{db: db}
}

func scanCase(row interface{ Scan(...any) error }) (*models.Case, error) {
	var c models.Case
	err := row.Scan(
		&c.CaseID, &c.Status, &c.OriginRoomID, &c.OriginEventID, &c.OriginSenderUserID,
		&c.AgencyRecordNumber, &c.ExtractedText, &c.StructuredDataJSON, &c.SummaryText,
		&c.SuggestedActionJSON, &c.ContradictionsJSON,
		&c.DoctorUserID, &c.DoctorDecision, &c.DoctorSupportFlag, &c.DoctorReason, &c.DoctorDecidedAt,
		&c.SchedulerUserID, &c.AppointmentStatus, &c.AppointmentDatetime, &c.AppointmentLocation,
		&c.AppointmentInstructions, &c.AppointmentReason, &c.AppointmentDecidedAt,
		&c.Room1FinalReplyEventID,
		&c.CleanupTriggeredByUserID, &c.CleanupTriggeredAt, &c.CleanupCompletedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new case at R1_ACK_PROCESSING. A unique violation on the
// origin event id is reported as ErrDuplicateOrigin.
func (r *CaseRepo) Create(ctx context.Context, caseID, roomID, eventID, senderUserID string) (*models.Case, error) {
	q := `INSERT INTO cases (case_id, status, origin_room_id, origin_event_id, origin_sender_user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + caseColumns
	c, err := scanCase(r.db.QueryRowContext(ctx, q,
		caseID, models.StatusR1AckProcessing, roomID, eventID, senderUserID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateOrigin
		}
		return nil, fmt.Errorf("create case: %w", err)
	}
	return c, nil
}

// Get loads one case by id.
func (r *CaseRepo) Get(ctx context.Context, caseID string) (*models.Case, error) {
	q := `SELECT ` + caseColumns + ` FROM cases WHERE case_id = $1`
	c, err := scanCase(r.db.QueryRowContext(ctx, q, caseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get case %s: %w", caseID, err)
	}
	return c, nil
}

// GetByFinalReplyEventID resolves the case whose Room-1 final reply carries
// the given event id. Used by the reaction router.
func (r *CaseRepo) GetByFinalReplyEventID(ctx context.Context, eventID string) (*models.Case, error) {
	q := `SELECT ` + caseColumns + ` FROM cases WHERE room1_final_reply_event_id = $1`
	c, err := scanCase(r.db.QueryRowContext(ctx, q, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get case by final reply %s: %w", eventID, err)
	}
	return c, nil
}

// TransitionStatus applies the generic CAS: status moves from -> to iff the
// row is currently in from. Reports whether the update applied.
func (r *CaseRepo) TransitionStatus(ctx context.Context, caseID string, from, to models.Status) (bool, error) {
	const q = `UPDATE cases SET status = $3, updated_at = now()
		WHERE case_id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, q, caseID, from, to)
	if err != nil {
		return false, fmt.Errorf("transition case %s %s->%s: %w", caseID, from, to, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// SaveExtraction persists the cleaned text and record number and advances
// EXTRACTING -> LLM_STRUCT in one statement.
func (r *CaseRepo) SaveExtraction(ctx context.Context, caseID, extractedText, recordNumber string) (bool, error) {
	const q = `UPDATE cases SET extracted_text = $2, agency_record_number = $3,
			status = $4, updated_at = now()
		WHERE case_id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, q, caseID, extractedText, recordNumber,
		models.StatusLLMStruct, models.StatusExtracting)
	if err != nil {
		return false, fmt.Errorf("save extraction for case %s: %w", caseID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// SaveStructuredResult persists the LLM1 output while the case sits in
// LLM_STRUCT.
func (r *CaseRepo) SaveStructuredResult(ctx context.Context, caseID, structuredJSON, summary string) (bool, error) {
	const q = `UPDATE cases SET structured_data_json = $2, summary_text = $3, updated_at = now()
		WHERE case_id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, q, caseID, structuredJSON, summary, models.StatusLLMStruct)
	if err != nil {
		return false, fmt.Errorf("save structured result for case %s: %w", caseID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// SaveSuggestedAction persists the reconciled LLM2 output while the case
// sits in LLM_SUGGEST.
func (r *CaseRepo) SaveSuggestedAction(ctx context.Context, caseID, suggestedJSON, contradictionsJSON string) (bool, error) {
	const q = `UPDATE cases SET suggested_action_json = $2, contradictions_json = $3, updated_at = now()
		WHERE case_id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, q, caseID, suggestedJSON, contradictionsJSON, models.StatusLLMSuggest)
	if err != nil {
		return false, fmt.Errorf("save suggested action for case %s: %w", caseID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ApplyDoctorDecision records the doctor's verdict iff the case is still in
// WAIT_DOCTOR and undecided. The target status is DOCTOR_ACCEPTED or
// DOCTOR_DENIED according to the decision.
func (r *CaseRepo) ApplyDoctorDecision(ctx context.Context, dec models.DoctorDecision, decidedAt time.Time) (bool, error) {
	target := models.StatusDoctorAccepted
	if dec.Decision == models.DecisionDeny {
		target = models.StatusDoctorDenied
	}
	const q = `UPDATE cases SET status = $2, doctor_user_id = $3, doctor_decision = $4,
			doctor_support_flag = $5, doctor_reason = $6, doctor_decided_at = $7, updated_at = now()
		WHERE case_id = $1 AND status = $8 AND doctor_decided_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, dec.CaseID, target, dec.DoctorUserID, dec.Decision,
		dec.SupportFlag, dec.Reason, decidedAt, models.StatusWaitDoctor)
	if err != nil {
		return false, fmt.Errorf("apply doctor decision for case %s: %w", dec.CaseID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ApplySchedulerDecision records the Room-3 verdict iff the case is still in
// WAIT_APPT and undecided.
func (r *CaseRepo) ApplySchedulerDecision(ctx context.Context, dec models.SchedulerDecision, decidedAt time.Time) (bool, error) {
	target := models.StatusApptConfirmed
	if dec.AppointmentStatus == models.AppointmentDenied {
		target = models.StatusApptDenied
	}
	const q = `UPDATE cases SET status = $2, scheduler_user_id = $3, appointment_status = $4,
			appointment_datetime = $5, appointment_location = $6, appointment_instructions = $7,
			appointment_reason = $8, appointment_decided_at = $9, updated_at = now()
		WHERE case_id = $1 AND status = $10 AND appointment_decided_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, dec.CaseID, target, dec.SchedulerUserID, dec.AppointmentStatus,
		dec.AppointmentDatetime, dec.Location, dec.Instructions, dec.Reason, decidedAt,
		models.StatusWaitAppt)
	if err != nil {
		return false, fmt.Errorf("apply scheduler decision for case %s: %w", dec.CaseID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkFinalReplyPosted stores the Room-1 final reply event id exactly once.
// The second concurrent poster observes applied=false.
func (r *CaseRepo) MarkFinalReplyPosted(ctx context.Context, caseID, eventID string) (bool, error) {
	const q = `UPDATE cases SET room1_final_reply_event_id = $2, status = $3, updated_at = now()
		WHERE case_id = $1 AND room1_final_reply_event_id IS NULL`
	res, err := r.db.ExecContext(ctx, q, caseID, eventID, models.StatusWaitR1CleanupThumbs)
	if err != nil {
		return false, fmt.Errorf("mark final reply for case %s: %w", caseID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ClaimCleanup lets exactly one reactor trigger cleanup. Losers observe
// applied=false and are audited as ignored.
func (r *CaseRepo) ClaimCleanup(ctx context.Context, caseID, userID string, at time.Time) (bool, error) {
	const q = `UPDATE cases SET cleanup_triggered_at = $2, cleanup_triggered_by_user_id = $3,
			status = $4, updated_at = now()
		WHERE case_id = $1 AND status = $5 AND cleanup_triggered_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, caseID, at, userID,
		models.StatusCleanupRunning, models.StatusWaitR1CleanupThumbs)
	if err != nil {
		return false, fmt.Errorf("claim cleanup for case %s: %w", caseID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkCleanupCompleted finishes the cleanup: CLEANUP_RUNNING -> CLEANED.
func (r *CaseRepo) MarkCleanupCompleted(ctx context.Context, caseID string, at time.Time) (bool, error) {
	const q = `UPDATE cases SET cleanup_completed_at = $2, status = $3, updated_at = now()
		WHERE case_id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, q, caseID, at, models.StatusCleaned, models.StatusCleanupRunning)
	if err != nil {
		return false, fmt.Errorf("mark cleanup completed for case %s: %w", caseID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkFailed forces the case to FAILED from any non-terminal status. Used by
// the dead-letter finalizer.
func (r *CaseRepo) MarkFailed(ctx context.Context, caseID string) (bool, error) {
	const q = `UPDATE cases SET status = $2, updated_at = now()
		WHERE case_id = $1 AND status NOT IN ($3, $4)`
	res, err := r.db.ExecContext(ctx, q, caseID, models.StatusFailed,
		models.StatusFailed, models.StatusCleaned)
	if err != nil {
		return false, fmt.Errorf("mark case %s failed: %w", caseID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ListNonCleaned returns all cases that have not reached CLEANED, for the
// startup recovery scan.
func (r *CaseRepo) ListNonCleaned(ctx context.Context) ([]*models.Case, error) {
	q := `SELECT ` + caseColumns + ` FROM cases WHERE status != $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, models.StatusCleaned)
	if err != nil {
		return nil, fmt.Errorf("list non-cleaned cases: %w", err)
	}
	defer rows.Close()

	var out []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// List returns a monitoring page of cases matching the filters, newest first.
func (r *CaseRepo) List(ctx context.Context, f models.CaseFilters) ([]*models.Case, int, error) {
	where := []string{"1=1"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Status != nil {
		where = append(where, "status = "+arg(*f.Status))
	}
	if f.FromDate != nil {
		where = append(where, "created_at >= "+arg(*f.FromDate))
	}
	if f.ToDate != nil {
		where = append(where, "created_at < "+arg(*f.ToDate))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cases: %w", err)
	}

	q := `SELECT ` + caseColumns + ` FROM cases WHERE ` + cond +
		` ORDER BY created_at DESC LIMIT ` + arg(f.PageSize) + ` OFFSET ` + arg((f.Page-1)*f.PageSize)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var out []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// FindPriorDenials returns the denial events of other cases sharing the same
// agency record number, newest first, restricted to denials at or after
// since. A doctor deny and a scheduler deny are both denial events.
func (r *CaseRepo) FindPriorDenials(ctx context.Context, caseID, recordNumber string, since time.Time) ([]models.PriorDenial, error) {
	const q = `SELECT case_id,
			CASE WHEN doctor_decision = 'deny' THEN 'doctor' ELSE 'scheduler' END AS source,
			CASE WHEN doctor_decision = 'deny' THEN doctor_decided_at ELSE appointment_decided_at END AS denied_at,
			CASE WHEN doctor_decision = 'deny' THEN COALESCE(doctor_reason, '') ELSE COALESCE(appointment_reason, '') END AS reason
		FROM cases
		WHERE agency_record_number = $1 AND case_id != $2
			AND ((doctor_decision = 'deny' AND doctor_decided_at >= $3)
				OR (appointment_status = 'denied' AND appointment_decided_at >= $3))
		ORDER BY denied_at DESC`
	rows, err := r.db.QueryContext(ctx, q, recordNumber, caseID, since)
	if err != nil {
		return nil, fmt.Errorf("find prior denials for record %s: %w", recordNumber, err)
	}
	defer rows.Close()

	var out []models.PriorDenial
	for rows.Next() {
		var d models.PriorDenial
		if err := rows.Scan(&d.CaseID, &d.Source, &d.DeniedAt, &d.Reason); err != nil {
			return nil, fmt.Errorf("scan prior denial: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
