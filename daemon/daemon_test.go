package daemon

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paivaric/porto/config"
	"github.com/paivaric/porto/pkg/cgroup"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	base := t.TempDir()
	for _, name := range []string{cgroup.Freezer, cgroup.CPUAcct, cgroup.Memory} {
		require.NoError(t, os.Mkdir(filepath.Join(base, name), 0755))
	}
	require.NoError(t, os.WriteFile(
		filepath.Join(base, cgroup.Memory, "memory.use_hierarchy"), []byte("1"), 0644))

	cfg := &config.Config{
		SocketPath:       filepath.Join(t.TempDir(), "portod.sock"),
		DBPath:           filepath.Join(t.TempDir(), "porto.db"),
		LogDir:           t.TempDir(),
		CgroupBase:       base,
		RotateCap:        1 << 20,
		StopDrainTimeout: config.Duration(10 * time.Millisecond),
		HeartbeatPeriod:  config.Duration(time.Second),
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	d, err := New(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { d.store.Close() })
	return d
}

func TestDispatchLifecycle(t *testing.T) {
	d := newTestDaemon(t)

	assert.Equal(t, "ok ROOT", d.dispatch("list"))
	assert.Equal(t, "ok", d.dispatch("create a"))
	assert.Equal(t, "ok ROOT a", d.dispatch("list"))

	assert.Equal(t, "ok", d.dispatch("set a command /bin/sleep 60"))
	assert.Equal(t, "ok /bin/sleep 60", d.dispatch("get a command"))

	assert.Equal(t, "ok stopped", d.dispatch("data a state"))
	assert.Equal(t, "ok", d.dispatch("destroy a"))
	assert.Equal(t, "ok ROOT", d.dispatch("list"))
}

func TestDispatchErrors(t *testing.T) {
	d := newTestDaemon(t)

	reply := d.dispatch("start nope")
	assert.Contains(t, reply, "err InvalidValue")

	require.Equal(t, "ok", d.dispatch("create e"))
	for _, op := range []string{"pause e", "resume e", "stop e"} {
		assert.Contains(t, d.dispatch(op), "err InvalidState", op)
	}
	assert.Contains(t, d.dispatch("data e exit_status"), "err InvalidState")
	assert.Equal(t, "ok stopped", d.dispatch("data e state"))

	assert.Contains(t, d.dispatch("get e bogus"), "err InvalidProperty")
	assert.Contains(t, d.dispatch("data e bogus"), "err InvalidValue")
	assert.Contains(t, d.dispatch("bogus e"), "err InvalidValue")
	assert.Contains(t, d.dispatch("create e"), "err InvalidValue")

	// failed operations are counted
	assert.Greater(t, counterValue(t, d.stat.Errors), 0.0)
}

func TestDispatchRootGates(t *testing.T) {
	d := newTestDaemon(t)

	assert.Equal(t, "ok running", d.dispatch("data ROOT state"))
	assert.Contains(t, d.dispatch("stop ROOT"), "err InvalidValue")
	assert.Contains(t, d.dispatch("set ROOT command x"), "err InvalidValue")
	assert.Contains(t, d.dispatch("data ROOT stdout"), "err InvalidData")
}

func TestDispatchUsage(t *testing.T) {
	d := newTestDaemon(t)

	assert.Contains(t, d.dispatch("create"), "err InvalidValue")
	assert.Contains(t, d.dispatch("get x"), "err InvalidValue")
	assert.Contains(t, d.dispatch("set x y"), "err InvalidValue")
}
