package cron

import "context"

// Job is one scheduled sweep. Run must be idempotent: the service only
// guarantees at-least-once execution per period.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the worker's jobs in registration order. Order matters:
// window expiry runs before auto-drop so a vacancy swept this cycle bids
// against a settled board.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry from the provided jobs, skipping nils.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register appends a job. Nil jobs are ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
