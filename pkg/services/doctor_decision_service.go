package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opentriagem/triagem/pkg/config"
	"github.com/opentriagem/triagem/pkg/matrix"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// DoctorDecisionService applies the doctor's verdict regardless of which
// surface delivered it: webhook, widget submit, or Room-2 chat reply. The CAS
// on WAIT_DOCTOR plus the decided_at guard makes the first decision win and
// every later one a recorded no-op.
type DoctorDecisionService struct {
	repos  *repo.Repos
	chat   matrix.ChatClient
	rooms  config.RoomsConfig
	logger *slog.Logger
}

func NewDoctorDecisionService(repos *repo.Repos, chat matrix.ChatClient, rooms config.RoomsConfig, logger *slog.Logger) *DoctorDecisionService {
	return &DoctorDecisionService{repos: repos, chat: chat, rooms: rooms, logger: logger.With("component", "doctor_decision")}
}

// Validate checks the decision against the domain invariants. A deny must
// carry no support flag.
func (s *DoctorDecisionService) Validate(dec models.DoctorDecision) error {
	if dec.Decision != models.DecisionAccept && dec.Decision != models.DecisionDeny {
		return fmt.Errorf("%w: decision must be accept or deny", ErrDecisionInvariant)
	}
	switch dec.SupportFlag {
	case models.SupportNone, models.SupportAnesthesist, models.SupportAnesthesistICU:
	default:
		return fmt.Errorf("%w: unknown support flag %q", ErrDecisionInvariant, dec.SupportFlag)
	}
	if dec.Decision == models.DecisionDeny && dec.SupportFlag != models.SupportNone {
		return fmt.Errorf("%w: a denial cannot request support", ErrDecisionInvariant)
	}
	if dec.DoctorUserID == "" {
		return fmt.Errorf("%w: doctor user id is required", ErrDecisionInvariant)
	}
	return nil
}

// Apply validates, applies the CAS, enqueues the next pipeline step, and
// optionally posts the decision acknowledgement in Room 2. Posting failures
// after a successful CAS are logged, never reverted.
func (s *DoctorDecisionService) Apply(ctx context.Context, dec models.DoctorDecision, postAck bool) (models.Outcome, error) {
	if err := s.Validate(dec); err != nil {
		return "", err
	}

	c, err := s.repos.Cases.Get(ctx, dec.CaseID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return models.OutcomeNotFound, nil
		}
		return "", err
	}
	log := s.logger.With("case_id", c.CaseID, "doctor", dec.DoctorUserID)

	if c.Status != models.StatusWaitDoctor {
		err := humanAudit(c.CaseID, dec.DoctorUserID, models.EventRoom2DecisionIgnoredWrongState).
			withPayload(map[string]string{"status": string(c.Status), "decision": dec.Decision}).
			append(ctx, s.repos.Events)
		if err != nil {
			return "", err
		}
		return models.OutcomeWrongState, nil
	}

	decidedAt := time.Now()
	if dec.SubmittedAt != nil {
		decidedAt = *dec.SubmittedAt
	}
	applied, err := s.repos.Cases.ApplyDoctorDecision(ctx, dec, decidedAt)
	if err != nil {
		return "", err
	}
	if !applied {
		err := humanAudit(c.CaseID, dec.DoctorUserID, models.EventRoom2DecisionDuplicateOrRace).
			withPayload(map[string]string{"decision": dec.Decision}).
			append(ctx, s.repos.Events)
		if err != nil {
			return "", err
		}
		return models.OutcomeDuplicateOrRace, nil
	}

	target := models.StatusDoctorAccepted
	next := models.JobTypePostRoom3Request
	if dec.Decision == models.DecisionDeny {
		target = models.StatusDoctorDenied
		next = models.JobTypePostRoom1FinalDenialTriage
	}
	err = humanAudit(c.CaseID, dec.DoctorUserID, models.EventRoom2WidgetSubmitted).
		withPayload(map[string]string{
			"decision":     dec.Decision,
			"support_flag": dec.SupportFlag,
			"reason":       truncateRunes(dec.Reason, 500),
			"to":           string(target),
		}).
		append(ctx, s.repos.Events)
	if err != nil {
		return "", err
	}

	if _, err := s.repos.Jobs.Enqueue(ctx, &c.CaseID, next, nil, time.Now()); err != nil {
		return "", err
	}
	err = systemAudit(c.CaseID, models.EventJobEnqueuedNextStep).
		withPayload(map[string]string{"job_type": string(next)}).
		append(ctx, s.repos.Events)
	if err != nil {
		return "", err
	}
	log.Info("doctor decision applied", "decision", dec.Decision, "next_job", next)

	if postAck {
		s.postDecisionAck(ctx, c, dec)
	}
	return models.OutcomeApplied, nil
}

// postDecisionAck posts the confirmation in Room 2 and registers the ROOM2_ACK
// checkpoint. Runs after the CAS committed; failures here only log.
func (s *DoctorDecisionService) postDecisionAck(ctx context.Context, c *models.Case, dec models.DoctorDecision) {
	log := s.logger.With("case_id", c.CaseID)
	body := room2DecisionAckBody(dec)

	var eventID string
	var err error
	if dec.WidgetEventID != "" {
		eventID, err = s.chat.ReplyText(ctx, s.rooms.Room2ID, dec.WidgetEventID, body, "")
	} else {
		eventID, err = s.chat.SendText(ctx, s.rooms.Room2ID, body, "")
	}
	if err != nil {
		log.Error("decision ack post failed", "error", err)
		return
	}
	if err := s.recordAck(ctx, c.CaseID, eventID, dec.WidgetEventID, body); err != nil {
		log.Error("decision ack bookkeeping failed", "error", err)
	}
}

// recordAck writes the message row, transcript, audit, and checkpoint for one
// posted decision acknowledgement.
func (s *DoctorDecisionService) recordAck(ctx context.Context, caseID, eventID, inReplyTo, body string) error {
	if _, err := s.repos.Messages.Record(ctx, caseID, s.rooms.Room2ID, eventID, models.KindRoom2DecisionAck); err != nil && !errors.Is(err, repo.ErrMessageExists) {
		return err
	}
	transcript := &models.MatrixMessageTranscript{
		CaseID: caseID, RoomID: s.rooms.Room2ID, EventID: eventID,
		SenderUserID: "bot", MessageType: string(models.KindRoom2DecisionAck), Body: body,
	}
	if inReplyTo != "" {
		transcript.ReplyToEventID = &inReplyTo
	}
	if err := s.repos.Transcripts.AppendMatrixMessage(ctx, transcript); err != nil {
		return err
	}
	err := botAudit(caseID, models.EventRoom2DecisionAckPosted).
		withRoom(s.rooms.Room2ID, eventID).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}
	return s.repos.Checkpoints.Insert(ctx, caseID, models.StageRoom2Ack, eventID)
}
