package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opentriagem/triagem/pkg/matrix"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// CleanupService redacts every tracked chat message of a case and closes it.
// The database keeps the full audit trail and transcripts; only the chat
// surface is wiped.
type CleanupService struct {
	repos  *repo.Repos
	chat   matrix.ChatClient
	logger *slog.Logger
}

func NewCleanupService(repos *repo.Repos, chat matrix.ChatClient, logger *slog.Logger) *CleanupService {
	return &CleanupService{repos: repos, chat: chat, logger: logger.With("component", "cleanup")}
}

// Handle processes one claimed execute_cleanup job. Redaction is idempotent
// on the homeserver side, so a retried job re-redacting earlier events is
// harmless.
func (s *CleanupService) Handle(ctx context.Context, job *models.Job) error {
	if job.CaseID == nil {
		return fmt.Errorf("execute_cleanup job %d has no case", job.JobID)
	}
	c, err := s.repos.Cases.Get(ctx, *job.CaseID)
	if err != nil {
		return err
	}
	log := s.logger.With("case_id", c.CaseID, "job_id", job.JobID)

	switch c.Status {
	case models.StatusCleanupRunning:
	case models.StatusCleaned:
		log.Info("case already cleaned, skipped")
		return nil
	default:
		return Retriable("wrong_state",
			fmt.Sprintf("case is %s, not CLEANUP_RUNNING", c.Status), nil)
	}

	messages, err := s.repos.Messages.ListByCase(ctx, c.CaseID)
	if err != nil {
		return err
	}
	for _, m := range messages {
		if err := s.chat.RedactEvent(ctx, m.RoomID, m.EventID); err != nil {
			return Retriable("cleanup_redaction_failed",
				fmt.Sprintf("could not redact %s in %s", m.EventID, m.RoomID), err)
		}
	}

	applied, err := s.repos.Cases.MarkCleanupCompleted(ctx, c.CaseID, time.Now())
	if err != nil {
		return err
	}
	if !applied {
		log.Info("cleanup completion raced, skipped")
		return nil
	}
	err = systemAudit(c.CaseID, models.EventCleanupCompleted).
		withPayload(map[string]int{"redacted_messages": len(messages)}).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}
	return systemAudit(c.CaseID, models.EventCaseStatusChanged).
		withPayload(map[string]string{
			"from": string(models.StatusCleanupRunning),
			"to":   string(models.StatusCleaned),
		}).
		append(ctx, s.repos.Events)
}
