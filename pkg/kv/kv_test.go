package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "porto.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoad(t *testing.T) {
	s := openTestStore(t)

	rec := Record{"command": "/bin/sleep 60", "_root_pid": "1234"}
	require.NoError(t, s.Save("a", rec))

	got, err := s.Load("a")
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestLoadMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Load("nope")
	require.Error(t, err)
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save("a", Record{"command": "old"}))
	require.NoError(t, s.Save("a", Record{"command": "new"}))

	got, err := s.Load("a")
	require.NoError(t, err)
	require.Equal(t, "new", got["command"])
}

func TestLoadAll(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save("a", Record{"command": "x"}))
	require.NoError(t, s.Save("b", Record{"command": "y"}))

	all, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "x", all["a"]["command"])
	require.Equal(t, "y", all["b"]["command"])
}

func TestRemove(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save("a", Record{"command": "x"}))
	require.NoError(t, s.Remove("a"))
	_, err := s.Load("a")
	require.Error(t, err)

	// removing a missing name is a no-op
	require.NoError(t, s.Remove("a"))
}

func TestIsInternal(t *testing.T) {
	require.True(t, IsInternal("_root_pid"))
	require.False(t, IsInternal("command"))
	require.False(t, IsInternal(""))
}
