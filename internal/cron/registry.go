package cron

import (
	"context"
	"fmt"
	"strings"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
)

// Job is one sweep the worker runs per cycle. The jobs endpoints and
// billingctl address it by Name.
type Job interface {
	Name() string
	Run(ctx context.Context) (billing.SweepSummary, error)
}

// Registry keeps jobs in cycle order and indexes them by name.
type Registry struct {
	order  []Job
	byName map[string]Job
}

// NewRegistry panics on an empty or repeated job name; both are wiring bugs.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{byName: make(map[string]Job, len(jobs))}
	for _, job := range jobs {
		if err := r.add(job); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) add(job Job) error {
	if job == nil {
		return nil
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("cron: job %T has no name", job)
	}
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("cron: job %q registered twice", name)
	}
	r.byName[name] = job
	r.order = append(r.order, job)
	return nil
}

// Jobs returns a copy in cycle order.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.order...)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.order))
	for _, job := range r.order {
		names = append(names, job.Name())
	}
	return names
}

func (r *Registry) Lookup(name string) (Job, bool) {
	job, ok := r.byName[name]
	return job, ok
}
