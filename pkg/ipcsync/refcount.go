// pkg/ipcsync/refcount.go
// Reference counts that live in shared memory
//
// LEARN: When several processes share an object, none of them is "the
// owner". Each one that attaches adds one to a counter stored next to the
// object; each one that detaches subtracts one. Whoever takes the count to
// zero tears the object down, and whoever takes it from zero back to one
// builds it up again.
//
// The whole protocol rests on one rule: the value returned by the atomic
// add is the only truth. A separate load followed by a decision is a race,
// because another process can change the count in between.

package ipcsync

import (
	"sync/atomic"
)

// RefCount operates on an int32 that lives in shared memory.
type RefCount struct {
	p *int32
}

// NewRefCount wraps p. p must be 4-byte aligned and stay mapped for as
// long as the RefCount is used.
func NewRefCount(p *int32) RefCount {
	return RefCount{p: p}
}

// Acquire adds one and returns the value seen before the add. A result of
// 0 means the caller is the first user of a new epoch and must initialize.
func (r RefCount) Acquire() int32 {
	return atomic.AddInt32(r.p, 1) - 1
}

// Release subtracts one and returns the new value. A result of 0 means the
// caller was the last user and must destroy.
func (r RefCount) Release() int32 {
	return atomic.AddInt32(r.p, -1)
}

// Load is for observation only (metrics, tests). Never branch on it.
func (r RefCount) Load() int32 {
	return atomic.LoadInt32(r.p)
}
