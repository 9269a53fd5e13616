package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/worker"
)

// VerificationResult is one batch entry's outcome.
type VerificationResult struct {
	Job    *model.Job
	Report *model.Report
	Err    error
}

func (r *VerificationResult) GetError() error { return r.Err }

// verificationJob adapts one job to the worker pool.
type verificationJob struct {
	p   *Pipeline
	job *model.Job
}

func (j *verificationJob) Execute(ctx context.Context) worker.Result {
	report, err := j.p.Run(ctx, j.job, NewEmitter(nil))
	return &VerificationResult{Job: j.job, Report: report, Err: err}
}

// BatchProcessor runs many verification jobs over a fixed worker set.
type BatchProcessor struct {
	pipeline *Pipeline
	workers  int
}

func NewBatchProcessor(p *Pipeline, workers int) *BatchProcessor {
	if workers <= 0 {
		workers = 1
	}
	return &BatchProcessor{pipeline: p, workers: workers}
}

// ProcessFile reads inputs from a file, one per line, and verifies them
// in parallel. Lines starting with http:// or https:// become URL jobs;
// everything else is treated as a claim. Blank lines and # comments are
// skipped.
func (b *BatchProcessor) ProcessFile(ctx context.Context, path string) ([]*VerificationResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var jobs []*model.Job
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		jobs = append(jobs, &model.Job{
			ID:         uuid.NewString(),
			InputType:  inputTypeOf(line),
			InputValue: line,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}

	return b.Process(ctx, jobs), nil
}

// Process verifies the jobs in parallel and returns one result per job.
func (b *BatchProcessor) Process(ctx context.Context, jobs []*model.Job) []*VerificationResult {
	pool := worker.NewPool(b.workers)
	pool.Start()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			pool.Shutdown()
		case <-done:
		}
	}()

	poolJobs := make([]worker.Job, 0, len(jobs))
	for _, job := range jobs {
		poolJobs = append(poolJobs, &verificationJob{p: b.pipeline, job: job})
	}
	raw := pool.Run(poolJobs)
	close(done)

	results := make([]*VerificationResult, 0, len(raw))
	for _, r := range raw {
		results = append(results, r.(*VerificationResult))
	}
	return results
}

func inputTypeOf(line string) model.InputType {
	if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
		return model.InputURL
	}
	return model.InputClaim
}
