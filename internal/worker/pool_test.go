// internal/worker/pool_test.go
// Tests for worker pool implementation
//
// LEARN: Testing concurrent code requires:
// 1. Race detector: go test -race
// 2. Timeouts: Prevent tests from hanging forever
// 3. Deterministic assertions: Avoid timing-dependent tests

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// === Configuration Tests ===

func TestDefaultConfig(t *testing.T) {
	if cfg := DefaultConfig(); cfg.Workers <= 0 {
		t.Errorf("Workers = %d, want > 0", cfg.Workers)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	pool := New(context.Background(), Config{Workers: -1})
	defer pool.Shutdown()

	if pool.WorkerCount() <= 0 {
		t.Errorf("WorkerCount() = %d, want > 0", pool.WorkerCount())
	}
}

// === Basic Functionality Tests ===

func TestPool_ResultsOrderedByID(t *testing.T) {
	pool := New(context.Background(), Config{Workers: 4})

	numJobs := 10
	for i := 0; i < numJobs; i++ {
		id := pool.Submit(func(ctx context.Context) (any, error) {
			time.Sleep(time.Duration(numJobs-i) * time.Millisecond)
			return i * 2, nil
		})
		if id != i {
			t.Fatalf("Submit returned id %d, want %d", id, i)
		}
	}

	results := pool.Shutdown()
	if len(results) != numJobs {
		t.Fatalf("got %d results, want %d", len(results), numJobs)
	}
	for i, r := range results {
		if r.JobID != i {
			t.Errorf("results[%d].JobID = %d", i, r.JobID)
		}
		if r.Err != nil {
			t.Errorf("job %d error: %v", i, r.Err)
		}
		if r.Value != i*2 {
			t.Errorf("job %d: got %v, want %d", i, r.Value, i*2)
		}
	}
}

func TestPool_ErrorsDoNotCancelOthers(t *testing.T) {
	pool := New(context.Background(), DefaultConfig())

	expectedErr := errors.New("job failed")
	pool.SubmitWithID(func(ctx context.Context) (any, error) {
		return nil, expectedErr
	}, 1)
	pool.SubmitWithID(func(ctx context.Context) (any, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", ctx.Err()
	}, 2)

	results := pool.Shutdown()
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !errors.Is(results[0].Err, expectedErr) {
		t.Errorf("error = %v, want %v", results[0].Err, expectedErr)
	}
	if results[1].Err != nil || results[1].Value != "ok" {
		t.Errorf("second job = %+v, want ok", results[1])
	}
}

func TestPool_PanicBecomesError(t *testing.T) {
	pool := New(context.Background(), DefaultConfig())
	pool.Submit(func(ctx context.Context) (any, error) {
		panic("boom")
	})

	results := pool.Shutdown()
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("results = %+v, want one error", results)
	}
}

// === Concurrency Tests ===

func TestPool_BoundedParallelism(t *testing.T) {
	pool := New(context.Background(), Config{Workers: 3})

	var running, maxRunning int32
	for i := 0; i < 12; i++ {
		pool.Submit(func(ctx context.Context) (any, error) {
			current := atomic.AddInt32(&running, 1)
			defer atomic.AddInt32(&running, -1)

			for {
				max := atomic.LoadInt32(&maxRunning)
				if current <= max || atomic.CompareAndSwapInt32(&maxRunning, max, current) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			return nil, nil
		})
	}
	pool.Shutdown()

	if maxRunning > 3 {
		t.Errorf("maxRunning = %d, limit is 3", maxRunning)
	}
	if maxRunning < 2 {
		t.Errorf("maxRunning = %d, expected parallel execution", maxRunning)
	}
}

// === Shutdown Tests ===

func TestPool_ShutdownNowCancels(t *testing.T) {
	pool := New(context.Background(), DefaultConfig())

	started := make(chan struct{})
	pool.Submit(func(ctx context.Context) (any, error) {
		close(started)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Minute):
			return "completed", nil
		}
	})
	<-started

	done := make(chan []Result)
	go func() { done <- pool.ShutdownNow() }()

	select {
	case results := <-done:
		if len(results) != 1 || !errors.Is(results[0].Err, context.Canceled) {
			t.Errorf("results = %+v, want one context.Canceled", results)
		}
	case <-time.After(time.Second):
		t.Fatal("ShutdownNow took too long")
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := New(context.Background(), DefaultConfig())
	pool.Shutdown()

	id := pool.Submit(func(ctx context.Context) (any, error) {
		return nil, nil
	})
	if id != -1 {
		t.Errorf("Submit after shutdown returned %d, want -1", id)
	}
}

func TestPool_ParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := New(ctx, Config{Workers: 1})
	cancel()

	if id := pool.Submit(func(context.Context) (any, error) { return nil, nil }); id != -1 {
		t.Errorf("Submit under cancelled parent returned %d, want -1", id)
	}
	pool.Shutdown()
}

// === Benchmark Tests ===

func BenchmarkPool_Submit(b *testing.B) {
	pool := New(context.Background(), Config{Workers: 4})
	defer pool.Shutdown()

	job := func(ctx context.Context) (any, error) {
		return 42, nil
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.Submit(job)
	}
}
