package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opentriagem/triagem/pkg/config"
	"github.com/opentriagem/triagem/pkg/matrix"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// Room3RequestService posts the appointment request to the scheduler room
// after a doctor acceptance. The recorded room3_request message is the
// idempotency anchor for redelivered jobs.
type Room3RequestService struct {
	repos  *repo.Repos
	chat   matrix.ChatClient
	rooms  config.RoomsConfig
	logger *slog.Logger
}

func NewRoom3RequestService(repos *repo.Repos, chat matrix.ChatClient, rooms config.RoomsConfig, logger *slog.Logger) *Room3RequestService {
	return &Room3RequestService{repos: repos, chat: chat, rooms: rooms, logger: logger.With("component", "room3_request")}
}

// Handle processes one claimed post_room3_request job.
func (s *Room3RequestService) Handle(ctx context.Context, job *models.Job) error {
	if job.CaseID == nil {
		return fmt.Errorf("post_room3_request job %d has no case", job.JobID)
	}
	c, err := s.repos.Cases.Get(ctx, *job.CaseID)
	if err != nil {
		return err
	}
	log := s.logger.With("case_id", c.CaseID, "job_id", job.JobID)

	existing, err := s.repos.Messages.FindByCaseAndKind(ctx, c.CaseID, models.KindRoom3Request)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		if _, err := s.repos.Cases.TransitionStatus(ctx, c.CaseID, models.StatusR3PostRequest, models.StatusWaitAppt); err != nil {
			return err
		}
		log.Info("room3 request already posted, transition ensured")
		return nil
	}

	if c.Status != models.StatusDoctorAccepted && c.Status != models.StatusR3PostRequest {
		return Retriable("wrong_state",
			fmt.Sprintf("case is %s, not DOCTOR_ACCEPTED", c.Status), nil)
	}

	if c.Status == models.StatusDoctorAccepted {
		applied, err := s.repos.Cases.TransitionStatus(ctx, c.CaseID, models.StatusDoctorAccepted, models.StatusR3PostRequest)
		if err != nil {
			return err
		}
		if applied {
			if err := s.auditStatus(ctx, c.CaseID, models.StatusDoctorAccepted, models.StatusR3PostRequest); err != nil {
				return err
			}
		}
	}

	requestID, err := s.chat.SendText(ctx, s.rooms.Room3ID, room3RequestBody(c), "")
	if err != nil {
		return Retriable("room3_post_failed", "could not post the appointment request", err)
	}
	if err := s.record(ctx, c.CaseID, requestID, "", models.KindRoom3Request, room3RequestBody(c), models.EventRoom3RequestPosted); err != nil {
		return err
	}

	ackID, err := s.chat.ReplyText(ctx, s.rooms.Room3ID, requestID, room3AckBody(c), "")
	if err != nil {
		return Retriable("room3_post_failed", "could not post the request acknowledgement", err)
	}
	if err := s.record(ctx, c.CaseID, ackID, requestID, models.KindBotAck, room3AckBody(c), models.EventRoom3AckPosted); err != nil {
		return err
	}
	if err := s.repos.Checkpoints.Insert(ctx, c.CaseID, models.StageRoom3Ack, ackID); err != nil {
		return err
	}

	applied, err := s.repos.Cases.TransitionStatus(ctx, c.CaseID, models.StatusR3PostRequest, models.StatusWaitAppt)
	if err != nil {
		return err
	}
	if applied {
		if err := s.auditStatus(ctx, c.CaseID, models.StatusR3PostRequest, models.StatusWaitAppt); err != nil {
			return err
		}
	}
	log.Info("room3 request posted, case waiting for scheduler")
	return nil
}

func (s *Room3RequestService) record(ctx context.Context, caseID, eventID, inReplyTo string,
	kind models.MessageKind, body, eventType string) error {
	if _, err := s.repos.Messages.Record(ctx, caseID, s.rooms.Room3ID, eventID, kind); err != nil && !errors.Is(err, repo.ErrMessageExists) {
		return err
	}
	transcript := &models.MatrixMessageTranscript{
		CaseID: caseID, RoomID: s.rooms.Room3ID, EventID: eventID,
		SenderUserID: "bot", MessageType: string(kind), Body: body,
	}
	if inReplyTo != "" {
		transcript.ReplyToEventID = &inReplyTo
	}
	if err := s.repos.Transcripts.AppendMatrixMessage(ctx, transcript); err != nil {
		return err
	}
	return botAudit(caseID, eventType).
		withRoom(s.rooms.Room3ID, eventID).
		append(ctx, s.repos.Events)
}

func (s *Room3RequestService) auditStatus(ctx context.Context, caseID string, from, to models.Status) error {
	return systemAudit(caseID, models.EventCaseStatusChanged).
		withPayload(map[string]string{"from": string(from), "to": string(to)}).
		append(ctx, s.repos.Events)
}
