package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/veridex/veridex/internal/model"
)

// ErrNoJobs means the job queue is empty.
var ErrNoJobs = errors.New("pipeline: no queued jobs")

// JobService is the engine's view of the external job system. The engine
// fetches work, streams status, and reports the final artifact; job
// lifecycle state is owned on the other side of this interface.
type JobService interface {
	FetchJob(ctx context.Context) (*model.Job, error)
	ReportStatus(ctx context.Context, jobID string, ev model.ProgressEvent) error
	ReportResult(ctx context.Context, jobID string, report *model.Report) error
}

// LocalJobService is an in-process job service backing the CLI: jobs are
// queued, run, and observed within one process.
type LocalJobService struct {
	mu      sync.Mutex
	queue   []*model.Job
	events  map[string][]model.ProgressEvent
	results map[string]*model.Report
}

func NewLocalJobService() *LocalJobService {
	return &LocalJobService{
		events:  make(map[string][]model.ProgressEvent),
		results: make(map[string]*model.Report),
	}
}

// Enqueue adds a job to the queue.
func (s *LocalJobService) Enqueue(job *model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, job)
}

// FetchJob pops the oldest queued job, or ErrNoJobs.
func (s *LocalJobService) FetchJob(_ context.Context) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, ErrNoJobs
	}
	job := s.queue[0]
	s.queue = s.queue[1:]
	return job, nil
}

// ReportStatus appends one event to the job's log.
func (s *LocalJobService) ReportStatus(_ context.Context, jobID string, ev model.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[jobID] = append(s.events[jobID], ev)
	return nil
}

// ReportResult stores the final report.
func (s *LocalJobService) ReportResult(_ context.Context, jobID string, report *model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[jobID] = report
	return nil
}

// Events returns a copy of the job's event log in emission order.
func (s *LocalJobService) Events(jobID string) []model.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ProgressEvent, len(s.events[jobID]))
	copy(out, s.events[jobID])
	return out
}

// Result returns the stored report, if the job finished.
func (s *LocalJobService) Result(jobID string) (*model.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[jobID]
	return r, ok
}
