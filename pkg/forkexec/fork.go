package forkexec

import (
	"syscall"
	"unsafe" // required for go:linkname.

	"golang.org/x/sys/unix"
)

// Start forks the container root process and waits for it to report
// through the side channel. The returned pid belongs to a child that has
// joined its cgroup leaves and executed the command: Start returns once
// the close-on-exec pipe closes without a failure report.
func (r *Runner) Start() (int, error) {
	argv0, argv, env, err := prepareExec(r.Args, r.Env)
	if err != nil {
		return 0, err
	}

	// prepare work dir
	workdir, err := syscallStringFromString(r.WorkDir)
	if err != nil {
		return 0, err
	}

	// prepare chroot target
	root, err := syscallStringFromString(r.Root)
	if err != nil {
		return 0, err
	}

	// prepare hostname
	hostname, err := syscallStringFromString(r.HostName)
	if err != nil {
		return 0, err
	}

	// socketpair p is used by the child to report setup failures and to
	// sync with parent before the final execve
	// p[0] is used by parent and p[1] is used by child
	p, err := syscall.Socketpair(syscall.AF_LOCAL, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}

	// fork in child
	pid, err1 := forkAndExecInChild(r, argv0, argv, env, workdir, root, hostname, p)

	// restore all signals
	afterFork()
	syscall.ForkLock.Unlock()

	return r.syncWithChild(p, int(pid), err1)
}

func (r *Runner) syncWithChild(p [2]int, pid int, err1 syscall.Errno) (int, error) {
	var (
		childErr ChildError
		r1       uintptr
		err      error
	)

	// sync with child
	unix.Close(p[1])

	// clone syscall failed
	if err1 != 0 {
		unix.Close(p[0])
		return 0, syscall.Errno(err1)
	}

	// child reports once its setup is done
	r1, _, err1 = syscall.RawSyscall(syscall.SYS_READ, uintptr(p[0]), uintptr(unsafe.Pointer(&childErr)), uintptr(unsafe.Sizeof(childErr)))
	// the setup report is a zero errno; a failure is a full ChildError
	if (r1 != unsafe.Sizeof(syscall.Errno(0)) && r1 != unsafe.Sizeof(childErr)) || err1 != 0 || childErr.Err != 0 {
		err = handlePipeError(r1, childErr)
		goto fail
	}

	// place the child into its cgroup leaves before it can exec
	if r.SyncFunc != nil {
		if err = r.SyncFunc(pid); err != nil {
			goto fail
		}
	}

	// ack child (zero error)
	childErr = ChildError{}
	syscall.RawSyscall(syscall.SYS_WRITE, uintptr(p[0]), uintptr(unsafe.Pointer(&childErr)), uintptr(unsafe.Sizeof(childErr)))

	// if read anything, the child failed after sync; the pipe is
	// close_on_exec so a successful exec closes it without data
	r1, _, err1 = syscall.RawSyscall(syscall.SYS_READ, uintptr(p[0]), uintptr(unsafe.Pointer(&childErr)), uintptr(unsafe.Sizeof(childErr)))
	unix.Close(p[0])
	if r1 != 0 || err1 != 0 {
		err = handlePipeError(r1, childErr)
		goto failAfterClose
	}
	return pid, nil

fail:
	unix.Close(p[0])

failAfterClose:
	handleChildFailed(pid)
	return 0, err
}

// check pipe error
func handlePipeError(r1 uintptr, childErr ChildError) error {
	if r1 == unsafe.Sizeof(childErr) {
		return childErr
	}
	return syscall.EPIPE
}

func handleChildFailed(pid int) {
	var wstatus syscall.WaitStatus
	// make sure not blocked
	syscall.Kill(pid, syscall.SIGKILL)
	// child failed; wait for it to exit, to make sure the zombies don't accumulate
	_, err := syscall.Wait4(pid, &wstatus, 0, nil)
	for err == syscall.EINTR {
		_, err = syscall.Wait4(pid, &wstatus, 0, nil)
	}
}
