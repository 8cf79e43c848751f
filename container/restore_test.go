package container

import (
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paivaric/porto/pkg/kv"
	"github.com/paivaric/porto/pkg/porterror"
)

// restart builds a fresh holder over the same store and kernel state,
// the way a daemon restart does
func (w *testWorld) restart(t *testing.T) *Holder {
	t.Helper()
	holder, err := NewHolder(w.env, w.store)
	require.NoError(t, err)
	holder.RestoreAll()
	return holder
}

func TestRestoreRunningPid(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.holder.Create("f"))
	c := w.holder.Get("f")
	require.NoError(t, c.SetProperty("command", "/bin/sleep 300"))
	// the supervisor's own pid survives the simulated crash
	require.NoError(t, c.spec.SetInternal(internalRootPid, strconv.Itoa(os.Getpid())))

	h := w.restart(t)
	c = h.Get("f")
	require.NotNil(t, c)
	assert.Equal(t, Running, c.GetState())

	pid, err := c.GetData("root_pid")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), pid)

	// the lost Start acknowledgement may be repeated exactly once
	assert.True(t, c.maybeReturnedOk)
	require.NoError(t, c.Start())
	assert.False(t, c.maybeReturnedOk)
	assert.Equal(t, porterror.InvalidState, porterror.GetKind(c.Start()))
	assert.Equal(t, Running, c.GetState())
}

func TestRestoreDeadPid(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.holder.Create("f"))
	c := w.holder.Get("f")
	require.NoError(t, c.SetProperty("command", "/bin/sleep 300"))
	// a pid no process can have
	require.NoError(t, c.spec.SetInternal(internalRootPid, strconv.Itoa(1<<30)))

	h := w.restart(t)
	c = h.Get("f")
	require.NotNil(t, c)
	assert.Equal(t, Stopped, c.GetState())
	assert.Empty(t, c.spec.GetInternal(internalRootPid))

	rec, err := w.store.Load("f")
	require.NoError(t, err)
	assert.NotContains(t, rec, internalRootPid)
}

func TestRestoreWithoutPid(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.holder.Create("f"))
	require.NoError(t, w.holder.Get("f").SetProperty("command", "/bin/sleep 300"))

	h := w.restart(t)
	c := h.Get("f")
	require.NotNil(t, c)
	assert.Equal(t, Stopped, c.GetState())

	// properties survived the restart
	v, err := c.GetProperty("command")
	require.NoError(t, err)
	assert.Equal(t, "/bin/sleep 300", v)
}

func TestRestoreDropsInvalidRecords(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.store.Save("bad name", kv.Record{"command": "x"}))

	h := w.restart(t)
	assert.Nil(t, h.Get("bad name"))
	_, err := w.store.Load("bad name")
	assert.Error(t, err)
}

func TestRestorePreservesSpec(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.holder.Create("f"))
	c := w.holder.Get("f")
	require.NoError(t, c.SetProperty("command", "/bin/cat"))
	require.NoError(t, c.SetProperty("memory_limit", "4194304"))
	require.NoError(t, c.SetProperty("env", "FOO=1;BAR=2"))

	h := w.restart(t)
	c = h.Get("f")
	for prop, want := range map[string]string{
		"command":      "/bin/cat",
		"memory_limit": "4194304",
		"env":          "FOO=1;BAR=2",
	} {
		v, err := c.GetProperty(prop)
		require.NoError(t, err)
		assert.Equal(t, want, v, prop)
	}
}
