package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opentriagem/triagem/pkg/matrix"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// IntakeService turns a Room-1 PDF drop into a new case. The unique origin
// event id makes duplicate chat deliveries a silent no-op.
type IntakeService struct {
	repos  *repo.Repos
	chat   matrix.ChatClient
	logger *slog.Logger
}

func NewIntakeService(repos *repo.Repos, chat matrix.ChatClient, logger *slog.Logger) *IntakeService {
	return &IntakeService{repos: repos, chat: chat, logger: logger.With("component", "intake")}
}

// HandlePDFEvent creates the case, posts the processing acknowledgement, and
// enqueues the extraction job.
func (s *IntakeService) HandlePDFEvent(ctx context.Context, roomID, eventID, senderUserID, mxcURL string) error {
	caseID := uuid.NewString()
	c, err := s.repos.Cases.Create(ctx, caseID, roomID, eventID, senderUserID)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateOrigin) {
			s.logger.Debug("duplicate origin event, intake skipped", "event_id", eventID)
			return nil
		}
		return err
	}
	log := s.logger.With("case_id", c.CaseID)
	log.Info("case created", "origin_event_id", eventID, "sender", senderUserID)

	replyID, err := s.chat.ReplyText(ctx, roomID, eventID, processingReplyBody, "")
	if err != nil {
		return fmt.Errorf("post processing reply: %w", err)
	}

	if _, err := s.repos.Messages.Record(ctx, c.CaseID, roomID, eventID, models.KindRoom1Origin); err != nil && !errors.Is(err, repo.ErrMessageExists) {
		return err
	}
	if _, err := s.repos.Messages.Record(ctx, c.CaseID, roomID, replyID, models.KindBotProcessing); err != nil && !errors.Is(err, repo.ErrMessageExists) {
		return err
	}
	if err := s.repos.Transcripts.AppendMatrixMessage(ctx, &models.MatrixMessageTranscript{
		CaseID: c.CaseID, RoomID: roomID, EventID: replyID,
		SenderUserID: "bot", MessageType: string(models.KindBotProcessing),
		ReplyToEventID: &eventID, Body: processingReplyBody,
	}); err != nil {
		return err
	}

	err = humanAudit(c.CaseID, senderUserID, models.EventCaseCreated).
		withRoom(roomID, eventID).
		withPayload(map[string]string{"pdf_mxc_url": mxcURL}).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}
	err = botAudit(c.CaseID, models.EventBotProcessingReplyPosted).
		withRoom(roomID, replyID).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}

	payload := mustJSON(models.ProcessPDFPayload{PDFMXCURL: mxcURL})
	if _, err := s.repos.Jobs.Enqueue(ctx, &c.CaseID, models.JobTypeProcessPDFCase, payload, time.Now()); err != nil {
		return err
	}
	return nil
}
