// cmd/xprocsem/stress.go
// Concurrent attach/signal/wait/detach cycles against one semaphore

package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khaaliswooden-max/xproc/internal/config"
	"github.com/khaaliswooden-max/xproc/internal/procenv"
	"github.com/khaaliswooden-max/xproc/internal/worker"
	"github.com/khaaliswooden-max/xproc/pkg/ipcsync"
)

// runStress hammers the ref count protocol from many goroutines. Each
// cycle is a full attach through a cloned handle, so the counts it
// exercises are the shared ones, not a local shortcut.
func runStress(ctx context.Context, cfg *config.Config, env *procenv.Env) error {
	log := env.Logger.Named("stress")

	sem, err := ipcsync.Create("stress", 0, ipcsync.WithEnv(env))
	if err != nil {
		return err
	}
	defer sem.Close()

	start := time.Now()
	pool := worker.New(ctx, worker.Config{Workers: cfg.Stress.Workers})
	log.Info("stress started", zap.Int("workers", pool.WorkerCount()), zap.Int("rounds", cfg.Stress.Rounds))
	for i := 0; i < cfg.Stress.Rounds; i++ {
		if pool.Submit(cycle(sem, env, cfg.Demo.Timeout)) < 0 {
			break
		}
	}

	// Interrupted: cycles that have not attached yet bail out on the
	// cancelled context.
	var results []worker.Result
	if ctx.Err() != nil {
		log.Warn("stress interrupted", zap.Error(ctx.Err()))
		results = pool.ShutdownNow()
	} else {
		results = pool.Shutdown()
	}

	var (
		failed   int
		peakRefs int32
		slowest  time.Duration
	)
	for _, r := range results {
		if r.Err != nil {
			failed++
			log.Warn("cycle failed", zap.Int("job", r.JobID), zap.Error(r.Err))
			continue
		}
		if refs, ok := r.Value.(int32); ok && refs > peakRefs {
			peakRefs = refs
		}
		slowest = max(slowest, r.Elapsed)
	}

	res := env.Resources()
	fmt.Printf("workers=%d cycles=%d failed=%d peak_refs=%d slowest=%s total=%s handles=%d mappings=%d\n",
		pool.WorkerCount(), len(results), failed, peakRefs, slowest, time.Since(start).Round(time.Millisecond),
		res.Handles, res.Mappings)

	if refs := sem.RefCount(); refs != 1 {
		return fmt.Errorf("ref count is %d after all cycles, want 1", refs)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d cycles failed", failed, len(results))
	}
	return nil
}

func cycle(sem *ipcsync.Semaphore, env *procenv.Env, timeout time.Duration) worker.Job {
	return func(ctx context.Context) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h, err := sem.CloneHandle()
		if err != nil {
			return nil, err
		}
		s, err := ipcsync.Attach(h, ipcsync.WithName("stress"), ipcsync.WithEnv(env))
		if err != nil {
			return nil, err
		}
		defer s.Close()

		refs := s.RefCount()
		s.Signal()
		if !s.WaitTimeout(timeout) {
			return nil, fmt.Errorf("no token within %s", timeout)
		}
		return refs, nil
	}
}
