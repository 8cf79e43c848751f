package forkexec

import (
	"syscall"

	"github.com/paivaric/porto/pkg/rlimit"
)

// Runner is the configuration of a container root process including the
// exec path, argv, credentials and resource limits
type Runner struct {
	// argv and env for execve syscall for the child process
	Args []string
	Env  []string

	// file descriptor map for the new process, from 0 to len - 1
	Files []uintptr

	// work path set by chdir(dir) (current working directory for child);
	// resolved inside Root when Root is set
	WorkDir string

	// Root is an optional new root applied by chroot before chdir
	Root string

	// HostName to be set after unshare UTS, no-op unless UnshareUTS
	HostName string

	// UnshareUTS creates a new UTS namespace for the child
	UnshareUTS bool

	// POSIX resource limits applied by prlimit64
	RLimits []rlimit.RLimit

	// Credential holds user and group identities to be assumed by the
	// child process
	Credential *syscall.Credential

	// Parent and child synchronize through the report pipe. SyncFunc is
	// invoked with the child pid after the child finished its setup and
	// before execve; the parent places the pid into the cgroup leaves
	// here. If SyncFunc returns an error the child is killed and the
	// error is reported.
	SyncFunc func(pid int) error
}
