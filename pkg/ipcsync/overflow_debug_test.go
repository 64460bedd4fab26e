//go:build (linux || windows) && xproc_debug

package ipcsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_OverflowPanics(t *testing.T) {
	sem, err := Create("full", SemValueMax, WithEnv(newTestEnv(t)))
	require.NoError(t, err)
	defer sem.Close()

	assert.Panics(t, func() { sem.Signal() })
}
