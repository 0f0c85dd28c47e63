package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opentriagem/triagem/pkg/backoff"
	"github.com/opentriagem/triagem/pkg/config"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
	"github.com/opentriagem/triagem/pkg/services"
)

// Worker is one polling goroutine: claim a batch of due jobs, run each to
// completion, sleep when the queue is empty.
type Worker struct {
	id       string
	repos    *repo.Repos
	registry *Registry
	failures *services.JobFailureService
	policy   backoff.Policy
	cfg      config.WorkerConfig
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorker(id string, repos *repo.Repos, registry *Registry, failures *services.JobFailureService,
	cfg config.WorkerConfig, logger *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		repos:    repos,
		registry: registry,
		failures: failures,
		policy:   backoff.QueuePolicy(),
		cfg:      cfg,
		logger:   logger.With("worker_id", id),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the current batch to finish.
// Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			w.logger.Info("worker shutting down")
			return
		case <-ctx.Done():
			w.logger.Info("context cancelled, worker shutting down")
			return
		default:
			n, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Error("claim iteration failed", "error", err)
				w.sleep(time.Second)
				continue
			}
			if n == 0 {
				w.sleep(w.cfg.PollInterval)
			}
		}
	}
}

// RunOnce claims one batch of due jobs and processes it. Returns how many
// jobs were claimed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.repos.Jobs.ClaimDue(ctx, w.id, w.cfg.ClaimLimit)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		w.process(ctx, job)
	}
	return len(jobs), nil
}

// process runs one claimed job through its handler and settles the outcome.
func (w *Worker) process(ctx context.Context, job *models.Job) {
	log := w.logger.With("job_id", job.JobID, "job_type", job.JobType, "attempt", job.Attempts+1)

	handler, ok := w.registry.Resolve(job.JobType)
	var err error
	if !ok {
		err = fmt.Errorf("Unknown job type: %s", job.JobType)
	} else {
		err = handler(ctx, job)
	}

	if err == nil {
		if mErr := w.repos.Jobs.MarkDone(ctx, job.JobID); mErr != nil {
			log.Error("mark done failed", "error", mErr)
		}
		return
	}
	log.Warn("job attempt failed", "error", err)

	nextAttempt := job.Attempts + 1
	if nextAttempt < job.MaxAttempts {
		w.scheduleRetry(ctx, job, nextAttempt, err, log)
		return
	}
	w.deadLetter(ctx, job, err, log)
}

func (w *Worker) scheduleRetry(ctx context.Context, job *models.Job, attempt int, cause error, log *slog.Logger) {
	delay := w.policy.Delay(attempt)
	updated, err := w.repos.Jobs.ScheduleRetry(ctx, job.JobID, cause.Error(), time.Now().Add(delay))
	if err != nil {
		log.Error("schedule retry failed", "error", err)
		return
	}
	log.Info("retry scheduled", "delay", delay, "attempts", updated.Attempts)

	if job.CaseID != nil {
		w.audit(ctx, *job.CaseID, models.EventJobRetryScheduled, map[string]any{
			"job_id":   job.JobID,
			"job_type": job.JobType,
			"attempt":  updated.Attempts,
			"delay":    delay.String(),
			"error":    cause.Error(),
		}, log)
	}
}

func (w *Worker) deadLetter(ctx context.Context, job *models.Job, cause error, log *slog.Logger) {
	dead, err := w.repos.Jobs.MarkDead(ctx, job.JobID, cause.Error())
	if err != nil {
		log.Error("mark dead failed", "error", err)
		return
	}
	log.Error("job dead-lettered", "attempts", dead.Attempts)

	if job.CaseID != nil {
		w.audit(ctx, *job.CaseID, models.EventJobMaxRetriesExceeded, map[string]any{
			"job_id":   job.JobID,
			"job_type": job.JobType,
			"attempts": dead.Attempts,
			"error":    cause.Error(),
		}, log)
	}

	causeLabel, details := services.FailureLabels(cause)
	if err := w.failures.HandleMaxRetries(ctx, dead, causeLabel, details); err != nil {
		log.Error("failure finalizer failed", "error", err)
	}
}

func (w *Worker) audit(ctx context.Context, caseID, eventType string, payload map[string]any, log *slog.Logger) {
	ev := &models.CaseEvent{
		CaseID:    caseID,
		ActorType: models.ActorSystem,
		EventType: eventType,
	}
	if raw, err := json.Marshal(payload); err == nil {
		ev.Payload = raw
	}
	if err := w.repos.Events.Append(ctx, ev); err != nil {
		log.Error("queue audit append failed", "error", err)
	}
}

// sleep waits for d or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}
