package porterror

import (
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "InvalidState", InvalidState.String())
	assert.Equal(t, "Unknown", Kind(99).String())
}

func TestFromSyscallMapping(t *testing.T) {
	for errno, kind := range map[syscall.Errno]Kind{
		syscall.ENOSPC: NoSpace,
		syscall.EBUSY:  Busy,
		syscall.EACCES: Permission,
		syscall.EPERM:  Permission,
		syscall.ENOENT: Unknown,
	} {
		err := FromSyscall("mkdir", "/sys/fs/cgroup/freezer/porto/a", errno)
		assert.Equal(t, kind, GetKind(err), errno.Error())
		assert.Equal(t, errno, err.Errno)
	}
}

func TestGetKindUnwraps(t *testing.T) {
	err := New(InvalidState, "cannot pause while stopped")
	wrapped := errors.Wrap(err, "container a")
	assert.Equal(t, InvalidState, GetKind(wrapped))

	assert.Equal(t, Unknown, GetKind(errors.New("plain")))
	assert.Equal(t, Unknown, GetKind(nil))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "InvalidValue: bad name", New(InvalidValue, "bad name").Error())
	withErrno := FromSyscall("rmdir", "/x", syscall.EBUSY)
	assert.Contains(t, withErrno.Error(), "Busy")
	assert.Contains(t, withErrno.Error(), "rmdir /x")
}
