package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opentriagem/triagem/pkg/config"
	"github.com/opentriagem/triagem/pkg/matrix"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// Room3ReplyService handles scheduler replies in the appointment room. A
// reply must target the request message (or a reformat prompt); malformed
// forms get a reformat prompt back, valid forms apply the scheduler decision
// and enqueue the matching Room-1 final reply.
type Room3ReplyService struct {
	repos  *repo.Repos
	chat   matrix.ChatClient
	rooms  config.RoomsConfig
	logger *slog.Logger
}

func NewRoom3ReplyService(repos *repo.Repos, chat matrix.ChatClient, rooms config.RoomsConfig, logger *slog.Logger) *Room3ReplyService {
	return &Room3ReplyService{repos: repos, chat: chat, rooms: rooms, logger: logger.With("component", "room3_reply")}
}

// HandleReply processes one text reply posted in Room 3. Replies that do not
// target the request or a reformat prompt are ignored silently.
func (s *Room3ReplyService) HandleReply(ctx context.Context, ev matrix.TimelineEvent) error {
	if ev.InReplyToID == "" {
		return nil
	}
	parent, err := s.repos.Messages.Find(ctx, s.rooms.Room3ID, ev.InReplyToID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	if parent.Kind != models.KindRoom3Request && parent.Kind != models.KindBotReformatRoom3 {
		return nil
	}
	caseID := parent.CaseID
	log := s.logger.With("case_id", caseID, "sender", ev.Sender)

	if _, err := s.repos.Messages.Record(ctx, caseID, s.rooms.Room3ID, ev.EventID, models.KindRoom3Reply); err != nil {
		if errors.Is(err, repo.ErrMessageExists) {
			return nil
		}
		return err
	}
	if err := s.repos.Transcripts.AppendMatrixMessage(ctx, &models.MatrixMessageTranscript{
		CaseID: caseID, RoomID: s.rooms.Room3ID, EventID: ev.EventID,
		SenderUserID: ev.Sender, MessageType: string(models.KindRoom3Reply),
		ReplyToEventID: &ev.InReplyToID, Body: ev.Body,
	}); err != nil {
		return err
	}

	c, err := s.repos.Cases.Get(ctx, caseID)
	if err != nil {
		return err
	}
	if c.Status != models.StatusWaitAppt {
		return humanAudit(caseID, ev.Sender, models.EventRoom3ReplyIgnoredWrongState).
			withRoom(s.rooms.Room3ID, ev.EventID).
			withPayload(map[string]string{"status": string(c.Status)}).
			append(ctx, s.repos.Events)
	}

	form, err := ParseRoom3Reply(ev.Body)
	if err != nil {
		var pe *Room3ParseError
		if errors.As(err, &pe) {
			return s.rejectForm(ctx, c, ev, pe.Reason, pe.IsCaseLineError())
		}
		return err
	}
	if form.CaseID != caseID {
		return s.rejectForm(ctx, c, ev, Room3InvalidCase, true)
	}

	applied, err := s.repos.Cases.ApplySchedulerDecision(ctx, models.SchedulerDecision{
		CaseID:              caseID,
		SchedulerUserID:     ev.Sender,
		AppointmentStatus:   form.AppointmentStatus,
		AppointmentDatetime: form.Datetime,
		Location:            form.Location,
		Instructions:        form.Instructions,
		Reason:              form.Reason,
		ReplyEventID:        ev.EventID,
	}, time.Now())
	if err != nil {
		return err
	}
	if !applied {
		log.Info("scheduler decision lost the race, ignored")
		return nil
	}

	eventType := models.EventRoom3AppointmentConfirmed
	next := models.JobTypePostRoom1FinalAppt
	if form.AppointmentStatus == models.AppointmentDenied {
		eventType = models.EventRoom3AppointmentDenied
		next = models.JobTypePostRoom1FinalApptDenied
	}
	err = humanAudit(caseID, ev.Sender, eventType).
		withRoom(s.rooms.Room3ID, ev.EventID).
		withPayload(map[string]string{
			"appointment_status": form.AppointmentStatus,
			"reason":             truncateRunes(form.Reason, 500),
		}).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}

	if _, err := s.repos.Jobs.Enqueue(ctx, &caseID, next, nil, time.Now()); err != nil {
		return err
	}
	err = systemAudit(caseID, models.EventJobEnqueuedNextStep).
		withPayload(map[string]string{"job_type": string(next)}).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}
	log.Info("scheduler decision applied", "appointment_status", form.AppointmentStatus, "next_job", next)
	return nil
}

// rejectForm audits the parse failure and posts the reformat prompt, which
// itself becomes a valid reply target.
func (s *Room3ReplyService) rejectForm(ctx context.Context, c *models.Case, ev matrix.TimelineEvent, reason string, caseLine bool) error {
	err := humanAudit(c.CaseID, ev.Sender, models.EventRoom3TemplateParseFailed).
		withRoom(s.rooms.Room3ID, ev.EventID).
		withPayload(map[string]string{"reason": reason}).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}
	if caseLine {
		err := humanAudit(c.CaseID, ev.Sender, models.EventRoom3TemplateInvalidCaseLine).
			withRoom(s.rooms.Room3ID, ev.EventID).
			append(ctx, s.repos.Events)
		if err != nil {
			return err
		}
	}

	body := room3ReformatBody(c, reason)
	promptID, err := s.chat.ReplyText(ctx, s.rooms.Room3ID, ev.EventID, body, "")
	if err != nil {
		s.logger.Error("reformat prompt post failed", "case_id", c.CaseID, "error", err)
		return nil
	}
	if _, err := s.repos.Messages.Record(ctx, c.CaseID, s.rooms.Room3ID, promptID, models.KindBotReformatRoom3); err != nil && !errors.Is(err, repo.ErrMessageExists) {
		return err
	}
	if err := s.repos.Transcripts.AppendMatrixMessage(ctx, &models.MatrixMessageTranscript{
		CaseID: c.CaseID, RoomID: s.rooms.Room3ID, EventID: promptID,
		SenderUserID: "bot", MessageType: string(models.KindBotReformatRoom3),
		ReplyToEventID: &ev.EventID, Body: body,
	}); err != nil {
		return err
	}
	return botAudit(c.CaseID, models.EventRoom3ReformatPromptPosted).
		withRoom(s.rooms.Room3ID, promptID).
		append(ctx, s.repos.Events)
}
