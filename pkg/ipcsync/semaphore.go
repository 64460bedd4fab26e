// pkg/ipcsync/semaphore.go
// Counting semaphore shared between processes
//
// LEARN: The semaphore lives inside a small shared memory block together
// with a reference count. Any process holding a handle to the block can
// Attach; the last one to Close destroys the OS semaphore, and the next one
// to Attach after that brings it back with its original initial value.
//
//	// process A
//	sem, _ := ipcsync.Create("jobs", 0)
//	h, _ := sem.CloneHandle()  // send h to B (handoff.Send, ExtraFiles)
//	sem.Signal()
//
//	// process B
//	sem, _ := ipcsync.Attach(h)
//	sem.Wait()
//
// Key concepts:
// 1. Create and Attach either fully succeed or leave nothing behind
// 2. Close is the detach: exactly once per wrapper
// 3. Using a closed wrapper is a programmer error and panics

package ipcsync

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khaaliswooden-max/xproc/internal/metrics"
	"github.com/khaaliswooden-max/xproc/internal/procenv"
	"github.com/khaaliswooden-max/xproc/pkg/errors"
	"github.com/khaaliswooden-max/xproc/pkg/shm"
	"github.com/khaaliswooden-max/xproc/pkg/systems"
	"github.com/khaaliswooden-max/xproc/pkg/types"
)

var errOverflow = errors.New("semaphore value overflow")

// OS primitive hooks. Tests replace these to count calls and inject
// failures.
var (
	initSemaphore    = platformInit
	openSemaphore    = platformOpen
	destroySemaphore = platformDestroy
)

// Option configures Create and Attach.
type Option func(*options)

type options struct {
	env  *procenv.Env
	name string
}

// WithEnv attributes the semaphore to env instead of procenv.Current().
func WithEnv(env *procenv.Env) Option {
	return func(o *options) { o.env = env }
}

// WithName labels an attached semaphore in logs and the journal.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.env = procenv.Or(o.env)
	return o
}

// Semaphore is one process's view of a shared semaphore.
//
// Wait, WaitTimeout, TryWait, and Signal may be called concurrently.
// Close must not race with them.
type Semaphore struct {
	mu     sync.Mutex
	closed atomic.Bool

	region *shm.Region
	data   *semaphoreData
	refs   RefCount
	local  localSem

	initial uint32
	name    string
	env     *procenv.Env
	log     *zap.Logger
}

// === Create / Attach ===

// Create allocates a new shared block and initializes the semaphore in it
// with initialValue. The caller holds the only reference. An empty name is
// replaced by a generated one.
func Create(name string, initialValue uint32, opts ...Option) (*Semaphore, error) {
	o := buildOptions(opts)
	if name == "" {
		name = "sem-" + uuid.NewString()
	}
	log := o.env.Logger.With(zap.String("semaphore", name))

	fail := func(err error) (*Semaphore, error) {
		log.Warn("semaphore create failed", zap.Error(err))
		o.env.Record(types.ActionSemCreate, types.ObjectSemaphore, name, 0, blockSize, errors.ErrorCode(err))
		return nil, err
	}

	region := shm.NewRegion(shm.WithEnv(o.env))
	if err := region.Create(blockSize); err != nil {
		return fail(err)
	}
	if err := region.Map(0, 0); err != nil {
		region.Close()
		return fail(err)
	}

	data, err := systems.At[semaphoreData](region.Bytes(), 0)
	if err != nil {
		region.Close()
		return fail(errors.Wrap("semaphore create", errors.ErrLayoutMismatch, err))
	}

	local, err := initSemaphore(&data.sem, initialValue)
	if err != nil {
		region.Close()
		return fail(errors.Wrap("semaphore create", errors.ErrInit, err))
	}
	data.initialValue = initialValue
	data.layout = blockFingerprint
	atomic.StoreUint32(&data.status, statusLive)
	atomic.StoreInt32(&data.refCount, 1)

	s := &Semaphore{
		region:  region,
		data:    data,
		refs:    NewRefCount(&data.refCount),
		local:   local,
		initial: initialValue,
		name:    name,
		env:     o.env,
		log:     log,
	}

	o.env.Metrics.Semaphore(metrics.EventCreated)
	o.env.Record(types.ActionSemCreate, types.ObjectSemaphore, name, 1, blockSize, "")
	log.Debug("semaphore created", zap.Uint32("initial", initialValue))
	return s, nil
}

// Attach maps the block named by h and joins the semaphore in it. Attach
// takes ownership of h: it is owned by the returned semaphore on success
// and closed on failure.
//
// LEARN: If the count seen before our increment was 0, every previous user
// has detached and the OS semaphore was destroyed. We are the first user of
// a new epoch, so we initialize it again with the stored initial value. If
// that fails, our increment is undone so the block looks untouched.
// Attachers that arrive while we are initializing see a non-zero count and
// wait on the block status until the epoch is live.
func Attach(h *shm.Handle, opts ...Option) (*Semaphore, error) {
	o := buildOptions(opts)
	name := o.name
	if name == "" {
		name = "attached"
	}
	log := o.env.Logger.With(zap.String("semaphore", name))

	fail := func(err error) (*Semaphore, error) {
		log.Warn("semaphore attach failed", zap.Error(err))
		o.env.Record(types.ActionSemAttach, types.ObjectSemaphore, name, 0, blockSize, errors.ErrorCode(err))
		return nil, err
	}

	if !h.IsValid() {
		return fail(errors.Wrap("semaphore attach", errors.ErrInvalidHandle, nil))
	}

	region := shm.NewRegion(shm.WithEnv(o.env))
	if err := region.SetHandle(h, shm.ReadWrite); err != nil {
		region.Close()
		return fail(err)
	}
	if err := region.Map(blockSize, 0); err != nil {
		region.Close()
		return fail(err)
	}

	data, err := systems.At[semaphoreData](region.Bytes(), 0)
	if err != nil {
		region.Close()
		return fail(errors.Wrap("semaphore attach", errors.ErrLayoutMismatch, err))
	}
	if data.layout != blockFingerprint {
		region.Close()
		return fail(errors.Wrap(
			fmt.Sprintf("semaphore attach: fingerprint %#x, want %#x", data.layout, blockFingerprint),
			errors.ErrLayoutMismatch, nil))
	}

	refs := NewRefCount(&data.refCount)
	prev := refs.Acquire()

	var local localSem
	switch {
	case prev < 0:
		refs.Release()
		region.Close()
		return fail(errors.Wrap(fmt.Sprintf("semaphore attach: ref count %d", prev), errors.ErrInit, nil))

	case prev == 0:
		atomic.StoreUint32(&data.status, statusInitializing)
		local, err = initSemaphore(&data.sem, data.initialValue)
		if err != nil {
			// Joiners waiting on this epoch give up once they see failed.
			atomic.StoreUint32(&data.status, statusFailed)
			if refs.Release() == 0 {
				drain(data)
			}
			o.env.Metrics.Semaphore(metrics.EventRolledBack)
			o.env.Record(types.ActionSemRollback, types.ObjectSemaphore, name, refs.Load(), blockSize, errors.CodeInit)
			region.Close()
			return fail(errors.Wrap("semaphore resurrect", errors.ErrInit, err))
		}
		atomic.StoreUint32(&data.status, statusLive)
		o.env.Metrics.Semaphore(metrics.EventResurrected)
		o.env.Record(types.ActionSemResurrect, types.ObjectSemaphore, name, 1, blockSize, "")
		log.Debug("semaphore resurrected", zap.Uint32("initial", data.initialValue))

	default:
		err = awaitLive(&data.status)
		if err == nil {
			local, err = openSemaphore(&data.sem)
		}
		if err != nil {
			if refs.Release() == 0 {
				drain(data)
			}
			o.env.Metrics.Semaphore(metrics.EventRolledBack)
			region.Close()
			return fail(errors.Wrap("semaphore attach", errors.ErrInit, err))
		}
	}

	s := &Semaphore{
		region:  region,
		data:    data,
		refs:    refs,
		local:   local,
		initial: data.initialValue,
		name:    name,
		env:     o.env,
		log:     log,
	}

	o.env.Metrics.Semaphore(metrics.EventAttached)
	o.env.Record(types.ActionSemAttach, types.ObjectSemaphore, name, prev+1, blockSize, "")
	log.Debug("semaphore attached", zap.Int32("refs", prev+1))
	return s, nil
}

// === Operations ===

// assertLive panics if the wrapper was closed or the shared count says no
// one is attached. Both mean the caller is using a detached semaphore.
func (s *Semaphore) assertLive(op string) {
	if s.closed.Load() {
		panic(fmt.Sprintf("ipcsync: %s on closed semaphore %q", op, s.name))
	}
	if n := s.refs.Load(); n <= 0 {
		panic(fmt.Sprintf("ipcsync: %s on semaphore %q with ref count %d", op, s.name, n))
	}
}

// Wait blocks until the semaphore can be decremented. It returns false
// only if the OS wait fails.
func (s *Semaphore) Wait() bool {
	return s.wait(time.Time{})
}

// WaitTimeout is Wait with a deadline of now+d. It returns false on
// timeout.
func (s *Semaphore) WaitTimeout(d time.Duration) bool {
	return s.wait(time.Now().Add(d))
}

func (s *Semaphore) wait(deadline time.Time) bool {
	s.assertLive("wait")

	start := time.Now()
	ok, err := platformWait(&s.data.sem, s.local, deadline)
	if err != nil {
		s.log.Warn("semaphore wait failed", zap.Error(err))
	}
	s.env.Metrics.Wait(time.Since(start), ok)
	return ok
}

// TryWait decrements the semaphore if it is positive and reports whether
// it did. It never blocks.
func (s *Semaphore) TryWait() bool {
	s.assertLive("trywait")
	return platformTryWait(&s.data.sem, s.local)
}

// Signal increments the semaphore, waking one waiter.
func (s *Semaphore) Signal() {
	s.assertLive("signal")

	if err := platformPost(&s.data.sem, s.local); err != nil {
		if errors.Is(err, errOverflow) {
			overflow(s.log, s.name)
			return
		}
		s.log.Error("semaphore post failed", zap.Error(err))
		return
	}
	s.env.Metrics.Signal()
}

// CloneHandle returns a new handle to the shared block, for another process
// to Attach with. The ref count is unchanged until that Attach happens.
func (s *Semaphore) CloneHandle() (*shm.Handle, error) {
	if s.closed.Load() {
		return nil, errors.Wrap("semaphore clone", errors.ErrClosed, nil)
	}
	return s.region.CloneHandle()
}

// RefCount returns the current shared count. Observation only.
func (s *Semaphore) RefCount() int32 {
	if s.closed.Load() {
		return 0
	}
	return s.refs.Load()
}

// InitialValue is the count the semaphore is (re)initialized with.
func (s *Semaphore) InitialValue() uint32 {
	return s.initial
}

func (s *Semaphore) Name() string {
	return s.name
}

// Close detaches from the semaphore. If this was the last attachment the
// OS semaphore is destroyed. Safe to call more than once; only the first
// call detaches.
func (s *Semaphore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil
	}
	s.closed.Store(true)

	next := s.refs.Release()
	s.env.Metrics.Semaphore(metrics.EventDetached)
	s.env.Record(types.ActionSemDetach, types.ObjectSemaphore, s.name, next, blockSize, "")

	switch {
	case next == 0:
		if drain(s.data) {
			s.env.Metrics.Semaphore(metrics.EventDestroyed)
			s.env.Record(types.ActionSemDestroy, types.ObjectSemaphore, s.name, 0, blockSize, "")
			s.log.Debug("semaphore destroyed")
		}
	case next < 0:
		s.log.Error("semaphore ref count went negative", zap.Int32("refs", next))
	default:
		s.log.Debug("semaphore detached", zap.Int32("refs", next))
	}

	platformCloseLocal(s.local)
	return s.region.Close()
}
