// Package worker runs palette extraction over many images in parallel.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/huewheel/internal/pipeline"
)

// Extractor is the interface for single image extraction.
// This matches the signature of pipeline.Extractor.ExtractFile.
type Extractor interface {
	ExtractFile(ctx context.Context, path string, force bool) (*pipeline.Output, error)
}

// Task is one image to extract.
type Task struct {
	Path  string
	Force bool
}

// Result is the outcome of a task.
type Result struct {
	Task    Task
	Output  *pipeline.Output
	Err     error
	Elapsed time.Duration
}

// ProgressFunc receives each result as its task finishes. Calls are
// serialized, so implementations need no locking of their own.
type ProgressFunc func(r Result)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Extractor  Extractor
	OnProgress ProgressFunc
}

// Pool runs extraction tasks on a fixed number of goroutines.
type Pool struct {
	extractor  Extractor
	onProgress ProgressFunc
	workers    int
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		extractor:  cfg.Extractor,
		onProgress: cfg.OnProgress,
	}
}

type indexed struct {
	task Task
	idx  int
}

// Run executes all tasks and returns one result per task, in task order.
// It blocks until every task finished or was cancelled; tasks not started
// before ctx is done report ctx.Err().
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan indexed)
	results := make([]Result, len(tasks))

	var mu sync.Mutex
	report := func(i int, r Result) {
		results[i] = r
		if p.onProgress == nil {
			return
		}
		mu.Lock()
		p.onProgress(r)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range taskCh {
				report(it.idx, p.extract(ctx, it.task))
			}
		}()
	}

	next := 0
feed:
	for ; next < len(tasks); next++ {
		select {
		case taskCh <- indexed{task: tasks[next], idx: next}:
		case <-ctx.Done():
			break feed
		}
	}
	close(taskCh)
	wg.Wait()

	for i := next; i < len(tasks); i++ {
		report(i, Result{Task: tasks[i], Err: ctx.Err()})
	}
	return results
}

func (p *Pool) extract(ctx context.Context, task Task) Result {
	if err := ctx.Err(); err != nil {
		return Result{Task: task, Err: err}
	}

	start := time.Now()
	out, err := p.extractor.ExtractFile(ctx, task.Path, task.Force)
	return Result{
		Task:    task,
		Output:  out,
		Err:     err,
		Elapsed: time.Since(start),
	}
}
