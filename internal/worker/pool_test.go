package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/huewheel/internal/pipeline"
)

// mockExtractor simulates palette extraction for testing
type mockExtractor struct {
	delay     time.Duration
	failPaths map[string]bool // paths that should fail
	callCount atomic.Int32
}

func (m *mockExtractor) ExtractFile(ctx context.Context, path string, force bool) (*pipeline.Output, error) {
	m.callCount.Add(1)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(m.delay):
	}

	if m.failPaths != nil && m.failPaths[path] {
		return nil, errors.New("simulated failure")
	}

	return &pipeline.Output{Source: path, Cached: !force}, nil
}

func pathTasks(n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{Path: fmt.Sprintf("img-%02d.png", i)}
	}
	return tasks
}

func TestPool_BasicExecution(t *testing.T) {
	ex := &mockExtractor{delay: 10 * time.Millisecond}

	pool := New(Config{
		Workers:   2,
		Extractor: ex,
	})

	tasks := pathTasks(3)
	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Fatalf("Expected %d results, got %d", len(tasks), len(results))
	}

	for i, r := range results {
		if r.Err != nil {
			t.Errorf("Unexpected error for %s: %v", r.Task.Path, r.Err)
		}
		if r.Task.Path != tasks[i].Path {
			t.Errorf("Result %d belongs to %s, want %s", i, r.Task.Path, tasks[i].Path)
		}
		if r.Output == nil || r.Output.Source != tasks[i].Path {
			t.Errorf("Expected output for %s, got %+v", tasks[i].Path, r.Output)
		}
	}

	if ex.callCount.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d extractor calls, got %d", len(tasks), ex.callCount.Load())
	}
}

func TestPool_Parallelism(t *testing.T) {
	ex := &mockExtractor{delay: 50 * time.Millisecond}

	pool := New(Config{
		Workers:   4,
		Extractor: ex,
	})

	tasks := pathTasks(8)

	start := time.Now()
	results := pool.Run(context.Background(), tasks)
	elapsed := time.Since(start)

	// With 4 workers and 8 tasks at 50ms each, should take ~100ms (2 batches)
	maxExpected := 300 * time.Millisecond
	if elapsed > maxExpected {
		t.Errorf("Expected parallel execution in ~100ms, took %v", elapsed)
	}

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	failPath := "img-01.png"
	ex := &mockExtractor{
		delay:     10 * time.Millisecond,
		failPaths: map[string]bool{failPath: true},
	}

	pool := New(Config{
		Workers:   2,
		Extractor: ex,
	})

	results := pool.Run(context.Background(), pathTasks(3))

	var successCount, failCount int
	for _, r := range results {
		if r.Err != nil {
			failCount++
			if r.Task.Path != failPath {
				t.Errorf("Unexpected failure for %s", r.Task.Path)
			}
		} else {
			successCount++
		}
	}

	if successCount != 2 {
		t.Errorf("Expected 2 successes, got %d", successCount)
	}
	if failCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failCount)
	}
}

func TestPool_Cancellation(t *testing.T) {
	ex := &mockExtractor{delay: 100 * time.Millisecond}

	pool := New(Config{
		Workers:   2,
		Extractor: ex,
	})

	tasks := pathTasks(10)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := pool.Run(ctx, tasks)
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Errorf("Expected early cancellation, took %v", elapsed)
	}
	if len(results) != len(tasks) {
		t.Fatalf("Expected a result per task, got %d", len(results))
	}

	var cancelledCount int
	for i, r := range results {
		if r.Task.Path != tasks[i].Path {
			t.Errorf("Result %d belongs to %s", i, r.Task.Path)
		}
		if errors.Is(r.Err, context.Canceled) {
			cancelledCount++
		}
	}
	if cancelledCount == 0 {
		t.Error("Expected cancelled results")
	}
	if ex.callCount.Load() >= int32(len(tasks)) {
		t.Errorf("Expected some tasks to never start, got %d calls", ex.callCount.Load())
	}
}

func TestPool_ProgressCallback(t *testing.T) {
	ex := &mockExtractor{delay: 10 * time.Millisecond}

	seen := map[string]int{}
	pool := New(Config{
		Workers:   2,
		Extractor: ex,
		OnProgress: func(r Result) {
			seen[r.Task.Path]++
			if r.Output == nil || r.Output.Source != r.Task.Path {
				t.Errorf("progress for %s carried output %+v", r.Task.Path, r.Output)
			}
		},
	})

	tasks := pathTasks(3)
	pool.Run(context.Background(), tasks)

	if len(seen) != len(tasks) {
		t.Errorf("Expected progress for %d tasks, got %d", len(tasks), len(seen))
	}
	for _, task := range tasks {
		if seen[task.Path] != 1 {
			t.Errorf("Expected one progress call for %s, got %d", task.Path, seen[task.Path])
		}
	}
}

func TestPool_EmptyTasks(t *testing.T) {
	ex := &mockExtractor{}

	pool := New(Config{
		Workers:   2,
		Extractor: ex,
	})

	results := pool.Run(context.Background(), nil)

	if len(results) != 0 {
		t.Errorf("Expected 0 results for empty tasks, got %d", len(results))
	}
	if ex.callCount.Load() != 0 {
		t.Errorf("Expected 0 extractor calls for empty tasks, got %d", ex.callCount.Load())
	}
}

func TestPool_ForcePassedThrough(t *testing.T) {
	ex := &mockExtractor{}

	pool := New(Config{Extractor: ex})

	results := pool.Run(context.Background(), []Task{{Path: "a.png", Force: true}, {Path: "b.png"}})

	if results[0].Output.Cached {
		t.Error("Expected forced task to bypass the archive")
	}
	if !results[1].Output.Cached {
		t.Error("Expected unforced task to use the archive")
	}
}
