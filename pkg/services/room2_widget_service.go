package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opentriagem/triagem/pkg/config"
	"github.com/opentriagem/triagem/pkg/llm"
	"github.com/opentriagem/triagem/pkg/matrix"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// Room2WidgetService posts the four-message decision widget to the doctor
// room: case root, cleaned-text attachment, summary, and the reply template.
// The root message is the idempotency anchor; once it is recorded, a
// redelivered job only completes the transition to WAIT_DOCTOR.
type Room2WidgetService struct {
	repos  *repo.Repos
	chat   matrix.ChatClient
	prior  *PriorCaseService
	rooms  config.RoomsConfig
	logger *slog.Logger
}

func NewRoom2WidgetService(repos *repo.Repos, chat matrix.ChatClient, prior *PriorCaseService,
	rooms config.RoomsConfig, logger *slog.Logger) *Room2WidgetService {
	return &Room2WidgetService{
		repos:  repos,
		chat:   chat,
		prior:  prior,
		rooms:  rooms,
		logger: logger.With("component", "room2_widget"),
	}
}

// Handle processes one claimed post_room2_widget job.
func (s *Room2WidgetService) Handle(ctx context.Context, job *models.Job) error {
	if job.CaseID == nil {
		return fmt.Errorf("post_room2_widget job %d has no case", job.JobID)
	}
	c, err := s.repos.Cases.Get(ctx, *job.CaseID)
	if err != nil {
		return err
	}
	log := s.logger.With("case_id", c.CaseID, "job_id", job.JobID)

	roots, err := s.repos.Messages.FindByCaseAndKind(ctx, c.CaseID, models.KindRoom2CaseRoot)
	if err != nil {
		return err
	}
	if len(roots) > 0 {
		// Widget already posted; only the final transition may be pending.
		if _, err := s.repos.Cases.TransitionStatus(ctx, c.CaseID, models.StatusR2PostWidget, models.StatusWaitDoctor); err != nil {
			return err
		}
		log.Info("widget already posted, transition ensured")
		return nil
	}

	if c.Status != models.StatusLLMSuggest && c.Status != models.StatusR2PostWidget {
		log.Info("stale post_room2_widget delivery ignored", "status", c.Status)
		return nil
	}
	if c.ExtractedText == nil || c.AgencyRecordNumber == nil || c.SummaryText == nil || c.SuggestedActionJSON == nil {
		return Retriable("widget_post_failed", "case is missing pipeline artifacts", nil)
	}

	if c.Status == models.StatusLLMSuggest {
		applied, err := s.repos.Cases.TransitionStatus(ctx, c.CaseID, models.StatusLLMSuggest, models.StatusR2PostWidget)
		if err != nil {
			return err
		}
		if applied {
			if err := s.auditStatus(ctx, c.CaseID, models.StatusLLMSuggest, models.StatusR2PostWidget); err != nil {
				return err
			}
		}
	}

	var suggestion llm.Suggestion
	if err := json.Unmarshal([]byte(*c.SuggestedActionJSON), &suggestion); err != nil {
		return fmt.Errorf("decode suggested action of case %s: %w", c.CaseID, err)
	}
	prior, err := s.prior.Context(ctx, c)
	if err != nil {
		return err
	}

	rootID, err := s.post(ctx, c, models.KindRoom2CaseRoot, "", room2RootBody(c, prior))
	if err != nil {
		return err
	}
	if _, err := s.postFile(ctx, c, rootID); err != nil {
		return err
	}
	if _, err := s.post(ctx, c, models.KindRoom2CaseSummary, rootID, room2SummaryBody(c, &suggestion)); err != nil {
		return err
	}
	if _, err := s.post(ctx, c, models.KindRoom2CaseTemplate, rootID, room2TemplateBody(c)); err != nil {
		return err
	}

	applied, err := s.repos.Cases.TransitionStatus(ctx, c.CaseID, models.StatusR2PostWidget, models.StatusWaitDoctor)
	if err != nil {
		return err
	}
	if applied {
		if err := s.auditStatus(ctx, c.CaseID, models.StatusR2PostWidget, models.StatusWaitDoctor); err != nil {
			return err
		}
	}
	log.Info("widget posted, case waiting for doctor")
	return nil
}

func (s *Room2WidgetService) post(ctx context.Context, c *models.Case, kind models.MessageKind, inReplyTo, body string) (string, error) {
	var eventID string
	var err error
	if inReplyTo == "" {
		eventID, err = s.chat.SendText(ctx, s.rooms.Room2ID, body, "")
	} else {
		eventID, err = s.chat.ReplyText(ctx, s.rooms.Room2ID, inReplyTo, body, "")
	}
	if err != nil {
		return "", Retriable("widget_post_failed", fmt.Sprintf("could not post %s", kind), err)
	}
	return eventID, s.record(ctx, c, kind, eventID, inReplyTo, body)
}

func (s *Room2WidgetService) postFile(ctx context.Context, c *models.Case, rootID string) (string, error) {
	filename := attachmentFilename(c)
	eventID, err := s.chat.ReplyFileText(ctx, s.rooms.Room2ID, rootID, filename, *c.ExtractedText)
	if err != nil {
		return "", Retriable("widget_post_failed", "could not post the cleaned-text attachment", err)
	}
	return eventID, s.record(ctx, c, models.KindRoom2CaseInstructions, eventID, rootID, filename)
}

func (s *Room2WidgetService) record(ctx context.Context, c *models.Case, kind models.MessageKind, eventID, inReplyTo, body string) error {
	if _, err := s.repos.Messages.Record(ctx, c.CaseID, s.rooms.Room2ID, eventID, kind); err != nil && !errors.Is(err, repo.ErrMessageExists) {
		return err
	}
	transcript := &models.MatrixMessageTranscript{
		CaseID: c.CaseID, RoomID: s.rooms.Room2ID, EventID: eventID,
		SenderUserID: "bot", MessageType: string(kind), Body: body,
	}
	if inReplyTo != "" {
		transcript.ReplyToEventID = &inReplyTo
	}
	if err := s.repos.Transcripts.AppendMatrixMessage(ctx, transcript); err != nil {
		return err
	}
	return botAudit(c.CaseID, models.EventRoom2WidgetMessagePosted).
		withRoom(s.rooms.Room2ID, eventID).
		withPayload(map[string]string{"kind": string(kind)}).
		append(ctx, s.repos.Events)
}

func (s *Room2WidgetService) auditStatus(ctx context.Context, caseID string, from, to models.Status) error {
	return systemAudit(caseID, models.EventCaseStatusChanged).
		withPayload(map[string]string{"from": string(from), "to": string(to)}).
		append(ctx, s.repos.Events)
}
