package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// recoveryJobs maps a decided-but-unfinished status to the job that moves it
// forward. Statuses waiting on a human or already mid-pipeline (an active job
// exists after ResetRunning) need no recovery job.
var recoveryJobs = map[models.Status]models.JobType{
	models.StatusDoctorAccepted: models.JobTypePostRoom3Request,
	models.StatusDoctorDenied:   models.JobTypePostRoom1FinalDenialTriage,
	models.StatusApptConfirmed:  models.JobTypePostRoom1FinalAppt,
	models.StatusApptDenied:     models.JobTypePostRoom1FinalApptDenied,
	models.StatusFailed:         models.JobTypePostRoom1FinalFailure,
	models.StatusCleanupRunning: models.JobTypeExecuteCleanup,
}

// RecoveryService re-enqueues the next step for cases stranded by a crash.
// Runs once at startup, after the queue reset flipped running jobs back to
// queued.
type RecoveryService struct {
	repos  *repo.Repos
	logger *slog.Logger
}

func NewRecoveryService(repos *repo.Repos, logger *slog.Logger) *RecoveryService {
	return &RecoveryService{repos: repos, logger: logger.With("component", "recovery")}
}

// Recover scans all non-cleaned cases and returns how many jobs it enqueued.
func (s *RecoveryService) Recover(ctx context.Context) (int, error) {
	cases, err := s.repos.Cases.ListNonCleaned(ctx)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, c := range cases {
		jobType, ok := recoveryJobs[c.Status]
		if !ok {
			continue
		}
		if c.Status == models.StatusFailed && c.Room1FinalReplyEventID != nil {
			continue // failure already reported
		}
		active, err := s.repos.Jobs.HasActiveJob(ctx, c.CaseID, jobType)
		if err != nil {
			return enqueued, err
		}
		if active {
			continue
		}

		var payload []byte
		if jobType == models.JobTypePostRoom1FinalFailure {
			payload = mustJSON(models.FailurePayload{
				Cause:   "job_failed",
				Details: "recovered at startup",
			})
		}
		if _, err := s.repos.Jobs.Enqueue(ctx, &c.CaseID, jobType, payload, time.Now()); err != nil {
			return enqueued, err
		}
		s.logger.Info("recovery job enqueued", "case_id", c.CaseID, "status", c.Status, "job_type", jobType)
		enqueued++
	}
	return enqueued, nil
}
