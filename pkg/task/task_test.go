package task

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paivaric/porto/pkg/porterror"
)

func TestStartRejectsEmptyCommand(t *testing.T) {
	tk := New(Config{Command: "   "})
	err := tk.Start()
	require.Error(t, err)
	require.Equal(t, porterror.InvalidValue, porterror.GetKind(err))
}

func TestExitStatusDelivery(t *testing.T) {
	tk := New(Config{Command: "/bin/true"})
	_, ok := tk.ExitStatus()
	require.False(t, ok)

	tk.pid = 12345
	tk.DeliverExitStatus(syscall.WaitStatus(3 << 8))
	ws, ok := tk.ExitStatus()
	require.True(t, ok)
	require.Equal(t, 3, ws.ExitStatus())
	require.False(t, tk.IsRunning())
}

func TestStartErrnoDefault(t *testing.T) {
	tk := New(Config{Command: "/bin/true"})
	require.Equal(t, -1, tk.StartErrno())
}

func TestRestore(t *testing.T) {
	tk := New(Config{Command: "/bin/true"})

	// own pid is certainly alive
	require.NoError(t, tk.Restore(os.Getpid()))
	require.Equal(t, os.Getpid(), tk.Pid())
	require.True(t, tk.IsRunning())

	require.Error(t, New(Config{}).Restore(0))
	// pid well above kernel pid_max default
	require.Error(t, New(Config{}).Restore(1<<30))
}

func TestReadTail(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "stdout.log")

	tk := New(Config{StdoutPath: p, StderrPath: filepath.Join(dir, "stderr.log")})
	require.Equal(t, "", tk.GetStdout())

	require.NoError(t, os.WriteFile(p, []byte("hello\n"), 0644))
	require.Equal(t, "hello\n", tk.GetStdout())
	require.Equal(t, "", tk.GetStderr())
}

func TestReadTailBounded(t *testing.T) {
	p := filepath.Join(t.TempDir(), "stdout.log")
	big := strings.Repeat("x", logTailLimit*2)
	require.NoError(t, os.WriteFile(p, []byte(big), 0644))

	tk := New(Config{StdoutPath: p})
	require.Len(t, tk.GetStdout(), logTailLimit)
}

func TestRotateUnderCap(t *testing.T) {
	p := filepath.Join(t.TempDir(), "stdout.log")
	require.NoError(t, os.WriteFile(p, []byte("small"), 0644))

	tk := New(Config{StdoutPath: p, StderrPath: p + ".err", RotateCap: 1024})
	n, err := tk.Rotate()
	require.NoError(t, err)
	require.Zero(t, n)

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, "small", string(b))
}

func TestRotateOverCap(t *testing.T) {
	p := filepath.Join(t.TempDir(), "stdout.log")
	require.NoError(t, os.WriteFile(p, []byte(strings.Repeat("y", 4096)), 0644))

	tk := New(Config{StdoutPath: p, StderrPath: p + ".err", RotateCap: 1024})
	n, err := tk.Rotate()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// either the older half is a hole (apparent size unchanged) or the
	// file was truncated to zero; in both cases the size did not grow
	st, err := os.Stat(p)
	require.NoError(t, err)
	require.LessOrEqual(t, st.Size(), int64(4096))
}

func TestRotateMissingFile(t *testing.T) {
	dir := t.TempDir()
	tk := New(Config{
		StdoutPath: filepath.Join(dir, "none.log"),
		StderrPath: filepath.Join(dir, "none.err"),
		RotateCap:  1024,
	})
	n, err := tk.Rotate()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestProcessAlive(t *testing.T) {
	require.True(t, processAlive(os.Getpid()))
	require.False(t, processAlive(1<<30))
}
