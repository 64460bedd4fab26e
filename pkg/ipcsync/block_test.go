package ipcsync

import (
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockLayout(t *testing.T) {
	l := BlockLayout()

	assert.Equal(t, uintptr(blockSize), l.Size)
	require.Len(t, l.Fields, 5)
	assert.Equal(t, "sem", l.Fields[0].Name)
	assert.Equal(t, "refCount", l.Fields[1].Name)
	assert.Equal(t, unsafe.Offsetof(semaphoreData{}.refCount), l.Fields[1].Offset)
	assert.Zero(t, l.Fields[1].Offset%4, "ref count must be word aligned for atomics")
	assert.Equal(t, "status", l.Fields[3].Name)
	assert.Zero(t, l.Fields[3].Offset%4, "status must be word aligned for atomics")
	assert.Equal(t, blockFingerprint, l.Fingerprint())
	assert.NotZero(t, blockFingerprint)
}

func TestAwaitLive(t *testing.T) {
	orig := resurrectWait
	resurrectWait = 20 * time.Millisecond
	t.Cleanup(func() { resurrectWait = orig })

	tests := []struct {
		name   string
		status uint32
		want   error
	}{
		{"live", statusLive, nil},
		{"failed", statusFailed, errResurrectFailed},
		{"stalled", statusInitializing, errResurrectStalled},
		{"never started", statusDrained, errResurrectStalled},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status := tc.status
			assert.Equal(t, tc.want, awaitLive(&status))
		})
	}
}

func TestAwaitLive_SeesLateTransition(t *testing.T) {
	var status uint32 = statusInitializing
	go func() {
		time.Sleep(10 * time.Millisecond)
		atomic.StoreUint32(&status, statusLive)
	}()

	assert.NoError(t, awaitLive(&status))
}
