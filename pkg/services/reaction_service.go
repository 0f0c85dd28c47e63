package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opentriagem/triagem/pkg/matrix"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// ReactionService routes positive reactions to their checkpoints. Only the
// Room-1 final reply reaction drives the state machine (it triggers cleanup);
// Room-2 and Room-3 ack reactions are recorded confirmations and nothing
// else.
type ReactionService struct {
	repos  *repo.Repos
	logger *slog.Logger
}

func NewReactionService(repos *repo.Repos, logger *slog.Logger) *ReactionService {
	return &ReactionService{repos: repos, logger: logger.With("component", "reactions")}
}

// HandleReaction processes one reaction event from any monitored room.
// Non-positive keys and reactions on untracked events are ignored silently.
func (s *ReactionService) HandleReaction(ctx context.Context, roomID string, ev matrix.TimelineEvent) error {
	if !matrix.IsPositiveReaction(ev.ReactionKey) {
		return nil
	}

	// Room-1 final replies are resolved by the dedicated column so the lookup
	// works even after cleanup redacted the tracked messages.
	c, err := s.repos.Cases.GetByFinalReplyEventID(ctx, ev.RelatesToEventID)
	if err == nil {
		return s.handleRoom1Final(ctx, c, ev)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	msg, err := s.repos.Messages.Find(ctx, roomID, ev.RelatesToEventID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	switch msg.Kind {
	case models.KindRoom2DecisionAck:
		return s.confirm(ctx, msg, ev, models.StageRoom2Ack, models.EventRoom2AckPositiveReceived)
	case models.KindBotAck:
		return s.confirm(ctx, msg, ev, models.StageRoom3Ack, models.EventRoom3AckThumbsUpReceived)
	default:
		return nil
	}
}

// handleRoom1Final is the cleanup trigger: exactly one reactor wins the
// ClaimCleanup CAS and enqueues the execute_cleanup job.
func (s *ReactionService) handleRoom1Final(ctx context.Context, c *models.Case, ev matrix.TimelineEvent) error {
	log := s.logger.With("case_id", c.CaseID, "reactor", ev.Sender)

	if _, err := s.repos.Checkpoints.MarkPositive(ctx, c.CaseID, models.StageRoom1Final,
		ev.RelatesToEventID, ev.Sender, time.Now()); err != nil {
		return err
	}

	switch c.Status {
	case models.StatusWaitR1CleanupThumbs:
	case models.StatusCleanupRunning, models.StatusCleaned:
		return humanAudit(c.CaseID, ev.Sender, models.EventRoom1ThumbsUpIgnoredAlreadyToggled).
			withRoom(c.OriginRoomID, ev.EventID).
			append(ctx, s.repos.Events)
	default:
		return humanAudit(c.CaseID, ev.Sender, models.EventReactionIgnoredWrongState).
			withRoom(c.OriginRoomID, ev.EventID).
			withPayload(map[string]string{"status": string(c.Status)}).
			append(ctx, s.repos.Events)
	}

	applied, err := s.repos.Cases.ClaimCleanup(ctx, c.CaseID, ev.Sender, time.Now())
	if err != nil {
		return err
	}
	if !applied {
		return humanAudit(c.CaseID, ev.Sender, models.EventRoom1ThumbsUpIgnoredAlreadyToggled).
			withRoom(c.OriginRoomID, ev.EventID).
			append(ctx, s.repos.Events)
	}

	err = humanAudit(c.CaseID, ev.Sender, models.EventRoom1ThumbsUpTriggeredCleanup).
		withRoom(c.OriginRoomID, ev.EventID).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}
	err = systemAudit(c.CaseID, models.EventCaseStatusChanged).
		withPayload(map[string]string{
			"from": string(models.StatusWaitR1CleanupThumbs),
			"to":   string(models.StatusCleanupRunning),
		}).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}
	if _, err := s.repos.Jobs.Enqueue(ctx, &c.CaseID, models.JobTypeExecuteCleanup, nil, time.Now()); err != nil {
		return err
	}
	log.Info("cleanup triggered")
	return nil
}

// confirm flips the ack checkpoint and audits who confirmed. First reactor
// wins; later positive reactions are silent.
func (s *ReactionService) confirm(ctx context.Context, msg *models.CaseMessage, ev matrix.TimelineEvent,
	stage models.CheckpointStage, eventType string) error {
	applied, err := s.repos.Checkpoints.MarkPositive(ctx, msg.CaseID, stage,
		msg.EventID, ev.Sender, time.Now())
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	return humanAudit(msg.CaseID, ev.Sender, eventType).
		withRoom(msg.RoomID, ev.EventID).
		append(ctx, s.repos.Events)
}
