package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opentriagem/triagem/pkg/matrix"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// FinalReplyService posts the terminal Room-1 reply for all four outcomes:
// triage denial, confirmed appointment, denied appointment, and pipeline
// failure. The room1_final_reply_event_id column is the exactly-once anchor;
// concurrent posters race on MarkFinalReplyPosted and the loser records
// nothing.
type FinalReplyService struct {
	repos  *repo.Repos
	chat   matrix.ChatClient
	logger *slog.Logger
}

func NewFinalReplyService(repos *repo.Repos, chat matrix.ChatClient, logger *slog.Logger) *FinalReplyService {
	return &FinalReplyService{repos: repos, chat: chat, logger: logger.With("component", "final_reply")}
}

// Handle processes one claimed post_room1_final_* job.
func (s *FinalReplyService) Handle(ctx context.Context, job *models.Job) error {
	if job.CaseID == nil {
		return fmt.Errorf("%s job %d has no case", job.JobType, job.JobID)
	}
	c, err := s.repos.Cases.Get(ctx, *job.CaseID)
	if err != nil {
		return err
	}
	log := s.logger.With("case_id", c.CaseID, "job_id", job.JobID, "job_type", job.JobType)

	if c.Room1FinalReplyEventID != nil {
		log.Info("final reply already posted, skipped")
		return s.auditSkip(ctx, c.CaseID, string(job.JobType))
	}

	required, body, err := s.compose(c, job)
	if err != nil {
		return err
	}
	if c.Status != required {
		return Retriable("wrong_state",
			fmt.Sprintf("case is %s, not %s", c.Status, required), nil)
	}

	eventID, err := s.chat.ReplyText(ctx, c.OriginRoomID, c.OriginEventID, body, "")
	if err != nil {
		return Retriable("room1_post_failed", "could not post the final reply", err)
	}

	applied, err := s.repos.Cases.MarkFinalReplyPosted(ctx, c.CaseID, eventID)
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent poster won; our event stays untracked and is not part
		// of the cleanup list.
		log.Warn("lost the final reply race", "event_id", eventID)
		return s.auditSkip(ctx, c.CaseID, string(job.JobType))
	}

	if _, err := s.repos.Messages.Record(ctx, c.CaseID, c.OriginRoomID, eventID, models.KindRoom1Final); err != nil && !errors.Is(err, repo.ErrMessageExists) {
		return err
	}
	if err := s.repos.Transcripts.AppendMatrixMessage(ctx, &models.MatrixMessageTranscript{
		CaseID: c.CaseID, RoomID: c.OriginRoomID, EventID: eventID,
		SenderUserID: "bot", MessageType: string(models.KindRoom1Final),
		ReplyToEventID: &c.OriginEventID, Body: body,
	}); err != nil {
		return err
	}
	err = botAudit(c.CaseID, models.EventRoom1FinalReplyPosted).
		withRoom(c.OriginRoomID, eventID).
		withPayload(map[string]string{"job_type": string(job.JobType)}).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}
	err = systemAudit(c.CaseID, models.EventCaseStatusChanged).
		withPayload(map[string]string{"from": string(required), "to": string(models.StatusWaitR1CleanupThumbs)}).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}
	if err := s.repos.Checkpoints.Insert(ctx, c.CaseID, models.StageRoom1Final, eventID); err != nil {
		return err
	}
	log.Info("final reply posted", "event_id", eventID)
	return nil
}

// compose resolves the required source status and the reply body per job type.
func (s *FinalReplyService) compose(c *models.Case, job *models.Job) (models.Status, string, error) {
	switch job.JobType {
	case models.JobTypePostRoom1FinalDenialTriage:
		return models.StatusDoctorDenied, room1FinalDenialBody(c), nil
	case models.JobTypePostRoom1FinalAppt:
		return models.StatusApptConfirmed, room1FinalApptBody(c), nil
	case models.JobTypePostRoom1FinalApptDenied:
		return models.StatusApptDenied, room1FinalApptDeniedBody(c), nil
	case models.JobTypePostRoom1FinalFailure:
		var payload models.FailurePayload
		if len(job.Payload) > 0 {
			if err := json.Unmarshal(job.Payload, &payload); err != nil {
				return "", "", fmt.Errorf("decode failure payload of job %d: %w", job.JobID, err)
			}
		}
		return models.StatusFailed, room1FinalFailureBody(c, payload.Cause, payload.Details), nil
	default:
		return "", "", fmt.Errorf("job type %s is not a final reply", job.JobType)
	}
}

func (s *FinalReplyService) auditSkip(ctx context.Context, caseID, jobType string) error {
	return systemAudit(caseID, models.EventRoom1FinalReplySkippedExists).
		withPayload(map[string]string{"job_type": jobType}).
		append(ctx, s.repos.Events)
}
