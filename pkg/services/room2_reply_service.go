package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/opentriagem/triagem/pkg/config"
	"github.com/opentriagem/triagem/pkg/matrix"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// widgetParentKinds are the Room-2 widget messages a doctor reply may target.
var widgetParentKinds = map[models.MessageKind]bool{
	models.KindRoom2CaseRoot:         true,
	models.KindRoom2CaseInstructions: true,
	models.KindRoom2CaseSummary:      true,
	models.KindRoom2CaseTemplate:     true,
}

// Room2ReplyService handles doctor replies in the decision room: it resolves
// the case from the reply target, parses the plaintext form, checks room
// membership, and applies the decision. Every outcome, success or rejection,
// is answered with a resultado reply to the doctor's message.
type Room2ReplyService struct {
	repos      *repo.Repos
	chat       matrix.ChatClient
	membership matrix.MembershipChecker
	decisions  *DoctorDecisionService
	rooms      config.RoomsConfig
	logger     *slog.Logger
}

func NewRoom2ReplyService(repos *repo.Repos, chat matrix.ChatClient, membership matrix.MembershipChecker,
	decisions *DoctorDecisionService, rooms config.RoomsConfig, logger *slog.Logger) *Room2ReplyService {
	return &Room2ReplyService{
		repos:      repos,
		chat:       chat,
		membership: membership,
		decisions:  decisions,
		rooms:      rooms,
		logger:     logger.With("component", "room2_reply"),
	}
}

// HandleReply processes one text reply posted in Room 2. Replies that do not
// target a widget message are ignored silently.
func (s *Room2ReplyService) HandleReply(ctx context.Context, ev matrix.TimelineEvent) error {
	if ev.InReplyToID == "" {
		return nil
	}
	parent, err := s.repos.Messages.Find(ctx, s.rooms.Room2ID, ev.InReplyToID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	if !widgetParentKinds[parent.Kind] {
		return nil
	}
	caseID := parent.CaseID
	log := s.logger.With("case_id", caseID, "sender", ev.Sender)

	// Processed-marker: a redelivered reply event is a no-op.
	if _, err := s.repos.Messages.Record(ctx, caseID, s.rooms.Room2ID, ev.EventID, models.KindRoom2DoctorReply); err != nil {
		if errors.Is(err, repo.ErrMessageExists) {
			return nil
		}
		return err
	}
	if err := s.repos.Transcripts.AppendMatrixMessage(ctx, &models.MatrixMessageTranscript{
		CaseID: caseID, RoomID: s.rooms.Room2ID, EventID: ev.EventID,
		SenderUserID: ev.Sender, MessageType: string(models.KindRoom2DoctorReply),
		ReplyToEventID: &ev.InReplyToID, Body: ev.Body,
	}); err != nil {
		return err
	}

	joined, err := s.membership.IsUserJoined(ctx, s.rooms.Room2ID, ev.Sender)
	if err != nil {
		return err
	}
	if !joined {
		return s.reject(ctx, caseID, ev, RejectAuthorizationFailed)
	}

	form, err := ParseRoom2Reply(ev.Body)
	if err != nil {
		var pe *Room2ParseError
		if errors.As(err, &pe) {
			return s.reject(ctx, caseID, ev, pe.Reason)
		}
		return err
	}
	if form.CaseID != caseID {
		return s.reject(ctx, caseID, ev, RejectInvalidCase)
	}

	outcome, err := s.decisions.Apply(ctx, models.DoctorDecision{
		CaseID:        caseID,
		DoctorUserID:  ev.Sender,
		Decision:      form.Decision,
		SupportFlag:   form.SupportFlag,
		Reason:        form.Reason,
		WidgetEventID: ev.InReplyToID,
	}, false)
	if err != nil {
		if errors.Is(err, ErrDecisionInvariant) {
			return s.reject(ctx, caseID, ev, RejectInvalidTemplate)
		}
		return err
	}

	switch outcome {
	case models.OutcomeApplied:
		log.Info("chat decision applied", "decision", form.Decision)
		return s.ack(ctx, caseID, ev, room2ResultSuccessBody())
	case models.OutcomeWrongState:
		return s.ack(ctx, caseID, ev, room2ResultErrorBody("case not in WAIT_DOCTOR"))
	case models.OutcomeDuplicateOrRace:
		return s.ack(ctx, caseID, ev, room2ResultErrorBody("decision already recorded"))
	default:
		return s.ack(ctx, caseID, ev, room2ResultErrorBody("case not found"))
	}
}

// reject audits the rejection and posts the erro ack.
func (s *Room2ReplyService) reject(ctx context.Context, caseID string, ev matrix.TimelineEvent, reason string) error {
	err := humanAudit(caseID, ev.Sender, models.EventRoom2ReplyRejected).
		withRoom(s.rooms.Room2ID, ev.EventID).
		withPayload(map[string]string{"reason": reason}).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}
	return s.ack(ctx, caseID, ev, room2ResultErrorBody(reason))
}

// ack replies to the doctor's message and records the ack like any other
// decision acknowledgement, checkpoint included.
func (s *Room2ReplyService) ack(ctx context.Context, caseID string, ev matrix.TimelineEvent, body string) error {
	eventID, err := s.chat.ReplyText(ctx, s.rooms.Room2ID, ev.EventID, body, "")
	if err != nil {
		s.logger.Error("room2 result ack post failed", "case_id", caseID, "error", err)
		return nil
	}
	return s.decisions.recordAck(ctx, caseID, eventID, ev.EventID, body)
}
