package cron

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Job is a unit of scheduled work. Name keys metrics and log lines, so it must be stable.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a plain function into a Job.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (j JobFunc) Name() string { return j.JobName }

func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

var errBlankJobName = errors.New("cron job name required")

// Registry is the ordered job list of one worker.
type Registry struct {
	jobs []Job
}

// NewRegistry registers jobs in order; nil entries and duplicates are dropped.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		_ = r.Register(job)
	}
	return r
}

// Register appends job. Nil is ignored; a blank or taken name is an error.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := job.Name()
	if strings.TrimSpace(name) == "" {
		return errBlankJobName
	}
	if slices.Contains(r.Names(), name) {
		return fmt.Errorf("cron job %q already registered", name)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy in registration order.
func (r *Registry) Jobs() []Job { return slices.Clone(r.jobs) }

func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}
