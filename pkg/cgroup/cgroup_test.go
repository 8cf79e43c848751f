package cgroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paivaric/porto/pkg/porterror"
)

// newTestRegistry builds a registry over a plain directory tree shaped
// like a v1 cgroup mount
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	base := t.TempDir()
	for _, name := range []string{Freezer, CPUAcct, Memory} {
		require.NoError(t, os.Mkdir(filepath.Join(base, name), 0755))
	}
	r, err := NewRegistry(base)
	require.NoError(t, err)
	return r
}

func TestNewRegistry_MissingController(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, Freezer), 0755))

	_, err := NewRegistry(base)
	require.Error(t, err)
	assert.Equal(t, porterror.InvalidValue, porterror.GetKind(err))
}

func TestCgroup_Paths(t *testing.T) {
	r := newTestRegistry(t)

	root := r.Freezer().PortoCgroup()
	assert.Equal(t, "porto", root.Relpath())

	leaf := root.GetChild("abc")
	assert.Equal(t, "porto/abc", leaf.Relpath())
	assert.Equal(t, filepath.Join(r.base, "freezer", "porto", "abc"), leaf.Path())
}

func TestCgroup_CreateDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	cg := r.Freezer().RootCgroup().GetChild("a")

	require.NoError(t, cg.Create())
	require.Error(t, cg.Create())
	require.NoError(t, cg.CreateRestore())
	require.NoError(t, cg.Remove())
	// removing a missing cgroup is not an error
	require.NoError(t, cg.Remove())
}

func TestCgroup_AttachAndTasks(t *testing.T) {
	r := newTestRegistry(t)
	cg := r.Freezer().RootCgroup().GetChild("a")
	require.NoError(t, cg.Create())

	require.NoError(t, cg.Attach(42))
	pids, err := cg.GetTasks()
	require.NoError(t, err)
	assert.Equal(t, []int{42}, pids)

	// empty procs means empty cgroup even when the knob is absent
	empty, err := cg.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestCgroup_Knobs(t *testing.T) {
	r := newTestRegistry(t)
	cg := r.Memory().RootCgroup().GetChild("a")
	require.NoError(t, cg.Create())

	assert.False(t, cg.HasKnob(MemoryLimitKnob))
	require.NoError(t, cg.SetKnobValue(MemoryLimitKnob, "4194304", false))
	assert.True(t, cg.HasKnob(MemoryLimitKnob))

	v, err := cg.GetKnobValue(MemoryLimitKnob)
	require.NoError(t, err)
	assert.Equal(t, "4194304", v)

	n, err := cg.ReadUint(MemoryLimitKnob)
	require.NoError(t, err)
	assert.Equal(t, uint64(4194304), n)
}

func TestSubsystem_FreezeUnfreeze(t *testing.T) {
	r := newTestRegistry(t)
	cg := r.Freezer().PortoCgroup()
	require.NoError(t, cg.Create())

	require.NoError(t, r.Freezer().Freeze(cg))
	state, err := r.Freezer().FreezerState(cg)
	require.NoError(t, err)
	assert.Equal(t, "FROZEN", state)

	require.NoError(t, r.Freezer().Unfreeze(cg))
	state, err = r.Freezer().FreezerState(cg)
	require.NoError(t, err)
	assert.Equal(t, "THAWED", state)

	// freezing through a non-freezer controller is rejected
	require.Error(t, r.Memory().Freeze(cg))
}

func TestSubsystem_Usage(t *testing.T) {
	r := newTestRegistry(t)
	cg := r.CPUAcct().RootCgroup().GetChild("a")
	require.NoError(t, cg.Create())
	require.NoError(t, cg.SetKnobValue("cpuacct.usage", "12345\n", false))

	v, err := r.CPUAcct().Usage(cg)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), v)

	_, err = r.Freezer().Usage(cg)
	require.Error(t, err)
}

func TestParsePids(t *testing.T) {
	pids := parsePids([]byte("1\n2\n2\n30\n\n"))
	assert.Equal(t, []int{1, 2, 2, 30}, pids)
	assert.Empty(t, parsePids(nil))
}
