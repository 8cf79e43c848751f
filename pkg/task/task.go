// Package task supervises one container root process: it launches the
// process through forkexec, places it into the container's cgroup leaves
// before exec, owns the stdout / stderr files and receives the reaped
// exit status from the daemon.
package task

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/paivaric/porto/pkg/cgroup"
	"github.com/paivaric/porto/pkg/forkexec"
	"github.com/paivaric/porto/pkg/porterror"
	"github.com/paivaric/porto/pkg/rlimit"
)

// Config is the immutable launch configuration of a Task
type Config struct {
	Command  string
	Env      []string
	Cwd      string
	Root     string
	Hostname string

	// resolved credentials, nil to keep the daemon's identity
	Credential *syscall.Credential

	RLimits []rlimit.RLimit

	// leaves the child joins before execve
	Cgroups []*cgroup.Cgroup

	// daemon-owned log files, truncated on each Start
	StdoutPath string
	StderrPath string

	// log files above this size are rotated
	RotateCap int64
}

// Task is one supervised container root process
type Task struct {
	cfg Config

	pid        int
	exited     bool
	waitStatus syscall.WaitStatus

	// errno reported by the child of the last failed launch, -1 if the
	// last Start did not fail
	startErrno int
}

// New constructs a Task; nothing is forked until Start
func New(cfg Config) *Task {
	return &Task{cfg: cfg, startErrno: -1}
}

// Pid returns the pid of the root process, 0 if not started
func (t *Task) Pid() int {
	return t.pid
}

// Start forks the root process. It returns after the child has reported
// success or failure through the close-on-exec pipe; the child pid is
// written into every cgroup leaf before the child may exec.
func (t *Task) Start() error {
	args := strings.Fields(t.cfg.Command)
	if len(args) == 0 {
		return porterror.New(porterror.InvalidValue, "command is empty")
	}

	t.startErrno = -1

	files, closeFiles, err := t.prepareStdio()
	if err != nil {
		return err
	}
	defer closeFiles()

	r := &forkexec.Runner{
		Args:       args,
		Env:        t.cfg.Env,
		Files:      files,
		WorkDir:    t.cfg.Cwd,
		Root:       t.cfg.Root,
		HostName:   t.cfg.Hostname,
		UnshareUTS: t.cfg.Hostname != "",
		RLimits:    t.cfg.RLimits,
		Credential: t.cfg.Credential,
		SyncFunc:   t.attachCgroups,
	}

	pid, err := r.Start()
	if err != nil {
		if ce, ok := err.(forkexec.ChildError); ok {
			t.startErrno = int(ce.Err)
		}
		return porterror.Newf(porterror.Unknown, "start task: %v", err)
	}
	t.pid = pid
	t.exited = false
	return nil
}

func (t *Task) attachCgroups(pid int) error {
	for _, cg := range t.cfg.Cgroups {
		if err := cg.Attach(pid); err != nil {
			return err
		}
	}
	return nil
}

// Restore rebinds the Task to a pid discovered in persistence. It fails
// when the process is gone or already a zombie; the caller then treats
// the container as crashed.
func (t *Task) Restore(pid int) error {
	if pid <= 0 {
		return porterror.Newf(porterror.InvalidValue, "restore pid %d", pid)
	}
	if !processAlive(pid) {
		return porterror.Newf(porterror.InvalidState, "pid %d is gone", pid)
	}
	t.pid = pid
	t.exited = false
	return nil
}

// DeliverExitStatus records the reaped wait status and transitions the
// Task from running to exited
func (t *Task) DeliverExitStatus(status syscall.WaitStatus) {
	t.waitStatus = status
	t.exited = true
}

// IsRunning reports whether the root process has not been reaped and
// still exists in the kernel. An exited child stays a zombie until its
// status is delivered and counts as running until then.
func (t *Task) IsRunning() bool {
	if t.pid <= 0 || t.exited {
		return false
	}
	_, err := os.Stat("/proc/" + strconv.Itoa(t.pid))
	return err == nil
}

// ExitStatus returns the raw wait status; ok is false until the exit has
// been delivered
func (t *Task) ExitStatus() (syscall.WaitStatus, bool) {
	return t.waitStatus, t.exited
}

// StartErrno returns the errno the child reported on the last failed
// launch, -1 when the last Start did not fail
func (t *Task) StartErrno() int {
	return t.startErrno
}

// processAlive reports whether pid exists and is not a zombie waiting
// to be reaped by some other parent
func processAlive(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	// state is the first field after the parenthesized comm
	s := string(b)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return false
	}
	return s[i+2] != 'Z'
}
