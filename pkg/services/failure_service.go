package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// JobFailureService finalizes a case whose job exhausted its retries: the
// case is forced to FAILED and a post_room1_final_failure job carries the
// cause to the requester. A dead failure-poster itself is the loop stop: the
// case stays FAILED with no further jobs.
type JobFailureService struct {
	repos  *repo.Repos
	logger *slog.Logger
}

func NewJobFailureService(repos *repo.Repos, logger *slog.Logger) *JobFailureService {
	return &JobFailureService{repos: repos, logger: logger.With("component", "job_failure")}
}

// HandleMaxRetries runs after a job was marked dead.
func (s *JobFailureService) HandleMaxRetries(ctx context.Context, job *models.Job, cause, details string) error {
	if job.CaseID == nil {
		s.logger.Warn("dead job has no case", "job_id", job.JobID, "job_type", job.JobType)
		return nil
	}
	caseID := *job.CaseID
	log := s.logger.With("case_id", caseID, "job_id", job.JobID, "job_type", job.JobType)

	if job.JobType == models.JobTypePostRoom1FinalFailure {
		log.Error("failure reply job dead-lettered, case needs manual attention")
		return nil
	}

	if _, err := s.repos.Cases.MarkFailed(ctx, caseID); err != nil {
		return err
	}
	payload := models.FailurePayload{Cause: cause, Details: truncateRunes(details, 500)}
	err := systemAudit(caseID, models.EventCaseFailedMaxRetries).
		withPayload(map[string]string{
			"job_type": string(job.JobType),
			"cause":    payload.Cause,
			"details":  payload.Details,
		}).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}

	if _, err := s.repos.Jobs.Enqueue(ctx, &caseID, models.JobTypePostRoom1FinalFailure,
		mustJSON(payload), time.Now()); err != nil {
		return err
	}
	err = systemAudit(caseID, models.EventJobEnqueuedPostRoom1Failure).
		withPayload(map[string]string{"cause": payload.Cause}).
		append(ctx, s.repos.Events)
	if err != nil {
		return err
	}
	log.Error("case failed after max retries", "cause", cause)
	return nil
}
