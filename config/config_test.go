package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultWhenNoFile(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), c)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "portod.yml")
	require.NoError(t, os.WriteFile(p, []byte(
		"socket_path: /tmp/test.sock\nheartbeat_period: 1s\n"), 0644))

	c, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "/tmp/test.sock", c.SocketPath)
	require.Equal(t, time.Second, c.HeartbeatPeriod.Std())
	// untouched fields keep defaults
	require.Equal(t, Default().DBPath, c.DBPath)
	require.Equal(t, Default().RotateCap, c.RotateCap)
}

func TestLoadRejectsBadValues(t *testing.T) {
	p := filepath.Join(t.TempDir(), "portod.yml")
	require.NoError(t, os.WriteFile(p, []byte("rotate_cap: -1\n"), 0644))

	_, err := Load(p)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}
