package procenv

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaaliswooden-max/xproc/pkg/types"
)

func TestCurrent_FallbackBeforeStart(t *testing.T) {
	env := Current()
	require.NotNil(t, env)
	assert.NotNil(t, env.Logger)
	assert.Nil(t, env.Metrics)
	assert.Nil(t, env.Audit)
}

func TestStartShutdown(t *testing.T) {
	var journal bytes.Buffer
	env, err := Start(Config{AuditOutput: &journal})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Shutdown() })

	assert.Same(t, env, Current())

	_, err = Start(Config{})
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	env.Record(types.ActionCreate, types.ObjectRegion, "", 0, 64, "")
	assert.Contains(t, journal.String(), `"action":"create"`)

	require.NoError(t, Shutdown())
	assert.NotSame(t, env, Current())
	assert.NoError(t, Shutdown(), "second shutdown is a no-op")
}

func TestOr(t *testing.T) {
	env, err := New(Config{})
	require.NoError(t, err)

	assert.Same(t, env, Or(env))
	assert.Same(t, Current(), Or(nil))
}

func TestResourceAccounting(t *testing.T) {
	reg := prometheus.NewRegistry()
	env, err := New(Config{Registerer: reg})
	require.NoError(t, err)

	env.HandleOpened()
	env.HandleOpened()
	env.MappingAdded()
	env.HandleClosed()

	assert.Equal(t, Resources{Handles: 1, Mappings: 1}, env.Resources())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.Metrics.HandlesOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.Metrics.MappingsActive))

	env.MappingRemoved()
	env.HandleClosed()
	assert.Equal(t, Resources{}, env.Resources())
}

func TestNew_AuditFileError(t *testing.T) {
	_, err := New(Config{AuditFile: t.TempDir() + "/missing/dir/journal"})
	assert.Error(t, err)
}
