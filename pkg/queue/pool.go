package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opentriagem/triagem/pkg/config"
	"github.com/opentriagem/triagem/pkg/repo"
	"github.com/opentriagem/triagem/pkg/services"
)

// Pool manages the worker goroutines of one process.
type Pool struct {
	podID   string
	workers []*Worker
	logger  *slog.Logger
	started bool
}

func NewPool(podID string, repos *repo.Repos, registry *Registry, failures *services.JobFailureService,
	cfg config.WorkerConfig, logger *slog.Logger) *Pool {
	p := &Pool{podID: podID, logger: logger.With("pod_id", podID)}
	for i := 0; i < cfg.Count; i++ {
		id := fmt.Sprintf("%s-worker-%d", podID, i)
		p.workers = append(p.workers, NewWorker(id, repos, registry, failures, cfg, logger))
	}
	return p
}

// Start spawns all workers. Safe to call once; later calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		p.logger.Warn("worker pool already started, ignoring duplicate start")
		return
	}
	p.started = true
	p.logger.Info("starting worker pool", "worker_count", len(p.workers))
	for _, w := range p.workers {
		w.Start(ctx)
	}
}

// Stop signals all workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.logger.Info("stopping worker pool")
	for _, w := range p.workers {
		w.Stop()
	}
	p.logger.Info("worker pool stopped")
}
