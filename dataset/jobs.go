package dataset

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// JobState is the lifecycle state of a background job.
type JobState uint8

const (
	// JobPending means the job is queued behind a worker slot.
	JobPending JobState = iota
	// JobRunning means the job is executing.
	JobRunning
	// JobDone means the job finished successfully.
	JobDone
	// JobFailed means the job finished with an error.
	JobFailed
)

// String returns the state name.
func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobDone:
		return "done"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// JobStatus is a point-in-time view of one job.
type JobStatus struct {
	ID        string
	Kind      string
	State     JobState
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
}

type job struct {
	id        string
	kind      string
	state     JobState
	err       error
	startedAt time.Time
	endedAt   time.Time
	done      chan struct{}
}

// Jobs tracks background work (index builds, maintenance) so callers can
// poll or block on completion.
type Jobs struct {
	mu   sync.Mutex
	jobs map[string]*job
}

// NewJobs creates an empty job registry.
func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*job)}
}

// Spawn registers a job and runs fn on a new goroutine. The returned id is
// immediately pollable.
func (r *Jobs) Spawn(kind string, fn func() error) string {
	j := &job{
		id:        uuid.NewString(),
		kind:      kind,
		state:     JobPending,
		startedAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
	r.mu.Lock()
	r.jobs[j.id] = j
	r.mu.Unlock()

	go func() {
		r.setState(j, JobRunning, nil)
		err := fn()
		if err != nil {
			r.setState(j, JobFailed, err)
		} else {
			r.setState(j, JobDone, nil)
		}
		close(j.done)
	}()
	return j.id
}

func (r *Jobs) setState(j *job, s JobState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j.state = s
	j.err = err
	if s == JobDone || s == JobFailed {
		j.endedAt = time.Now().UTC()
	}
}

// Status returns the current status of a job.
func (r *Jobs) Status(id string) (JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return JobStatus{}, ErrJobNotFound
	}
	return JobStatus{
		ID:        j.id,
		Kind:      j.kind,
		State:     j.state,
		Err:       j.err,
		StartedAt: j.startedAt,
		EndedAt:   j.endedAt,
	}, nil
}

// Wait blocks until the job completes or the context is canceled, then
// returns its final status.
func (r *Jobs) Wait(ctx context.Context, id string) (JobStatus, error) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return JobStatus{}, ErrJobNotFound
	}
	select {
	case <-j.done:
		return r.Status(id)
	case <-ctx.Done():
		return JobStatus{}, ctx.Err()
	}
}
