package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaaliswooden-max/xproc/internal/procenv"
	"github.com/khaaliswooden-max/xproc/pkg/errors"
)

func TestRegion_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	r := NewRegion(WithEnv(env))

	require.NoError(t, r.Create(4096))
	assert.True(t, r.HasHandle())
	assert.Equal(t, 4096, r.Size())
	assert.Equal(t, ReadWrite, r.Rights())
	assert.Nil(t, r.Bytes(), "not mapped yet")

	require.NoError(t, r.Map(0, 0))
	require.Len(t, r.Bytes(), 4096)
	assert.NotNil(t, r.Pointer())
	r.Bytes()[0] = 7

	require.NoError(t, r.Unmap())
	assert.Nil(t, r.Bytes())
	assert.True(t, r.HasHandle(), "unmap keeps the handle")

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, procenv.Resources{}, env.Resources())
}

func TestRegion_StateErrors(t *testing.T) {
	env := newTestEnv(t)
	r := NewRegion(WithEnv(env))
	defer r.Close()

	assert.ErrorIs(t, r.Map(0, 0), errors.ErrNoHandle)
	assert.ErrorIs(t, r.Unmap(), errors.ErrNotMapped)
	_, err := r.CloneHandle()
	assert.ErrorIs(t, err, errors.ErrNoHandle)
	assert.Nil(t, r.TakeHandle())

	require.NoError(t, r.Create(64))
	assert.ErrorIs(t, r.Create(64), errors.ErrHandleInUse)
	assert.Equal(t, int64(1), env.Resources().Handles, "second create allocates nothing")

	require.NoError(t, r.Map(0, 0))
	assert.ErrorIs(t, r.Map(0, 0), errors.ErrAlreadyMapped)
}

func TestRegion_TakeHandleKeepsMapping(t *testing.T) {
	env := newTestEnv(t)
	r := NewRegion(WithEnv(env))
	require.NoError(t, r.Create(64))
	require.NoError(t, r.Map(0, 0))
	copy(r.Bytes(), "still here")

	h := r.TakeHandle()
	require.NotNil(t, h)
	assert.False(t, r.HasHandle())
	assert.Equal(t, "still here", string(r.Bytes()[:10]))

	other := NewRegion(WithEnv(env))
	require.NoError(t, other.SetHandle(h, ReadOnly))
	require.NoError(t, other.Map(0, 0))
	assert.Equal(t, ReadOnly, other.Rights())
	assert.Equal(t, "still here", string(other.Bytes()[:10]))

	require.NoError(t, other.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, procenv.Resources{}, env.Resources())
}

func TestRegion_SetHandleClosesPrevious(t *testing.T) {
	env := newTestEnv(t)
	r := NewRegion(WithEnv(env))
	require.NoError(t, r.Create(64))

	h, err := Create(128, WithEnv(env))
	require.NoError(t, err)
	require.NoError(t, r.SetHandle(h, ReadWrite))

	assert.Equal(t, int64(1), env.Resources().Handles)
	assert.Equal(t, 128, r.Size())
	require.NoError(t, r.Close())
	assert.False(t, h.IsValid())
}

func TestRegion_CloneHandle(t *testing.T) {
	env := newTestEnv(t)
	r := NewRegion(WithEnv(env))
	require.NoError(t, r.Create(64))
	require.NoError(t, r.Map(0, 0))
	r.Bytes()[3] = 9

	c, err := r.CloneHandle()
	require.NoError(t, err)
	require.NoError(t, r.Close())

	m, err := Map(c, 0, ReadOnly)
	require.NoError(t, err)
	assert.Equal(t, byte(9), m.Bytes()[3])
	require.NoError(t, m.Unmap())
	require.NoError(t, c.Close())
	assert.Equal(t, procenv.Resources{}, env.Resources())
}
