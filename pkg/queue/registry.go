// Package queue runs the durable job worker pool: claim due jobs under row
// locking, dispatch to the registered handler, and apply the retry or
// dead-letter policy on failure.
package queue

import (
	"context"
	"fmt"

	"github.com/opentriagem/triagem/pkg/models"
)

// Handler processes one claimed job. A nil return marks the job done; any
// error schedules a retry until the attempt budget runs out.
type Handler func(ctx context.Context, job *models.Job) error

// Registry maps job types to their handlers.
type Registry struct {
	handlers map[models.JobType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.JobType]Handler)}
}

// Register binds a handler to a job type. Re-binding a type panics: the
// dispatch table is assembled once at startup.
func (r *Registry) Register(jobType models.JobType, h Handler) {
	if _, exists := r.handlers[jobType]; exists {
		panic(fmt.Sprintf("handler for %s already registered", jobType))
	}
	r.handlers[jobType] = h
}

// Resolve returns the handler for a job type.
func (r *Registry) Resolve(jobType models.JobType) (Handler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}
