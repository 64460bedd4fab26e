package ipcsync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefCount_AcquireRelease(t *testing.T) {
	var word int32
	rc := NewRefCount(&word)

	assert.Equal(t, int32(0), rc.Acquire(), "first acquire sees zero")
	assert.Equal(t, int32(1), rc.Acquire())
	assert.Equal(t, int32(2), rc.Load())
	assert.Equal(t, int32(1), rc.Release())
	assert.Equal(t, int32(0), rc.Release(), "last release sees zero")
}

// Exactly one of many concurrent acquirers sees the zero, and exactly one
// of the matching releasers does.
func TestRefCount_SingleWinner(t *testing.T) {
	var word int32
	rc := NewRefCount(&word)

	const n = 64
	var (
		wg            sync.WaitGroup
		mu            sync.Mutex
		firsts, lasts int
	)

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if rc.Acquire() == 0 {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(n), rc.Load())

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if rc.Release() == 0 {
				mu.Lock()
				lasts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, firsts)
	assert.Equal(t, 1, lasts)
	assert.Equal(t, int32(0), rc.Load())
}
