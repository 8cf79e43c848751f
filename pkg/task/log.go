package task

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/paivaric/porto/pkg/porterror"
)

const logPerm = 0644

// how much of a log file GetStdout / GetStderr return at most
const logTailLimit = 64 << 10

// prepareStdio opens /dev/null for stdin and the truncated log files for
// stdout and stderr, returning the fd map for the child
func (t *Task) prepareStdio() ([]uintptr, func(), error) {
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	null, err := os.Open(os.DevNull)
	if err != nil {
		return nil, nil, porterror.FromSyscall("open", os.DevNull, err)
	}
	opened = append(opened, null)

	files := []uintptr{null.Fd()}
	for _, p := range []string{t.cfg.StdoutPath, t.cfg.StderrPath} {
		f, err := t.createLogFile(p)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opened = append(opened, f)
		files = append(files, f.Fd())
	}
	return files, closeAll, nil
}

// createLogFile truncates the daemon-owned log file and hands it to the
// container's user so the task can keep writing after setuid
func (t *Task) createLogFile(p string) (*os.File, error) {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, logPerm)
	if err != nil {
		return nil, porterror.FromSyscall("open", p, err)
	}
	if cred := t.cfg.Credential; cred != nil {
		if err := f.Chown(int(cred.Uid), int(cred.Gid)); err != nil {
			f.Close()
			return nil, porterror.FromSyscall("chown", p, err)
		}
	}
	return f, nil
}

// GetStdout returns the tail of the stdout file; missing files read as
// empty
func (t *Task) GetStdout() string {
	return readTail(t.cfg.StdoutPath)
}

// GetStderr returns the tail of the stderr file; missing files read as
// empty
func (t *Task) GetStderr() string {
	return readTail(t.cfg.StderrPath)
}

func readTail(p string) string {
	f, err := os.Open(p)
	if err != nil {
		return ""
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return ""
	}
	if st.Size() > logTailLimit {
		if _, err := f.Seek(-logTailLimit, io.SeekEnd); err != nil {
			return ""
		}
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return string(b)
}

// Rotate checks both log files against the configured cap and returns
// how many were rotated. An oversized file has its older half punched
// out in place so the task's open file offset stays valid; when the
// filesystem cannot punch holes the file is truncated to zero instead.
func (t *Task) Rotate() (int, error) {
	rotated := 0
	for _, p := range []string{t.cfg.StdoutPath, t.cfg.StderrPath} {
		ok, err := rotateFile(p, t.cfg.RotateCap)
		if err != nil {
			return rotated, err
		}
		if ok {
			rotated++
		}
	}
	return rotated, nil
}

func rotateFile(p string, cap int64) (bool, error) {
	if cap <= 0 {
		return false, nil
	}
	st, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, porterror.FromSyscall("stat", p, err)
	}
	if st.Size() <= cap {
		return false, nil
	}

	f, err := os.OpenFile(p, os.O_WRONLY, logPerm)
	if err != nil {
		return false, porterror.FromSyscall("open", p, err)
	}
	defer f.Close()

	err = unix.Fallocate(int(f.Fd()),
		unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, 0, st.Size()/2)
	if err != nil {
		if err := f.Truncate(0); err != nil {
			return false, porterror.FromSyscall("truncate", p, err)
		}
	}
	return true, nil
}
