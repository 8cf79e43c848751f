// Package cgroup provides the handles to single cgroup v1 directories and
// the registry of mounted controller hierarchies (freezer, cpuacct,
// memory). All knob I/O retries EINTR since cgroupfs is a slow device.
package cgroup

import (
	"os"
	"path"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/paivaric/porto/pkg/porterror"
)

// Cgroup denotes exactly one directory in one controller's hierarchy
type Cgroup struct {
	subsys  *Subsystem
	relpath string // relative to the controller mount, "" for the mount itself
}

// Subsystem returns the owning controller
func (c *Cgroup) Subsystem() *Subsystem {
	return c.subsys
}

// Relpath returns the path relative to the controller mount
func (c *Cgroup) Relpath() string {
	return c.relpath
}

// Path returns the absolute directory path
func (c *Cgroup) Path() string {
	return path.Join(c.subsys.root, c.relpath)
}

func (c *Cgroup) String() string {
	return c.subsys.name + ":/" + c.relpath
}

// GetChild returns the handle of a direct child cgroup
func (c *Cgroup) GetChild(name string) *Cgroup {
	return &Cgroup{subsys: c.subsys, relpath: path.Join(c.relpath, name)}
}

// Create creates the cgroup directory. Duplicate create is an error; the
// container layer guarantees a single create per epoch.
func (c *Cgroup) Create() error {
	if err := os.Mkdir(c.Path(), dirPerm); err != nil {
		return porterror.FromSyscall("mkdir", c.Path(), err)
	}
	return nil
}

// CreateRestore creates the cgroup directory but tolerates a directory
// left over by a previous daemon instance (restore-mode create)
func (c *Cgroup) CreateRestore() error {
	err := os.Mkdir(c.Path(), dirPerm)
	if err != nil && !os.IsExist(err) {
		return porterror.FromSyscall("mkdir", c.Path(), err)
	}
	return nil
}

// Remove removes the cgroup directory. The kernel refuses while member
// tasks remain, which surfaces as Busy.
func (c *Cgroup) Remove() error {
	if err := os.Remove(c.Path()); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return porterror.FromSyscall("rmdir", c.Path(), err)
	}
	return nil
}

// Exists probes the cgroup directory
func (c *Cgroup) Exists() bool {
	st, err := os.Stat(c.Path())
	return err == nil && st.IsDir()
}

// GetTasks reads the tasks file and returns pids in file order
func (c *Cgroup) GetTasks() ([]int, error) {
	return c.readPids(cgroupTasks)
}

// GetProcesses reads cgroup.procs and returns pids in file order
func (c *Cgroup) GetProcesses() ([]int, error) {
	return c.readPids(cgroupProcs)
}

func (c *Cgroup) readPids(knob string) ([]int, error) {
	b, err := readFile(path.Join(c.Path(), knob))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, porterror.FromSyscall("read", path.Join(c.Path(), knob), err)
	}
	return parsePids(b), nil
}

// IsEmpty returns true iff cgroup.procs is empty
func (c *Cgroup) IsEmpty() (bool, error) {
	pids, err := c.GetProcesses()
	if err != nil {
		return false, err
	}
	return len(pids) == 0, nil
}

// Attach places pid into the cgroup by writing it to the tasks file
func (c *Cgroup) Attach(pid int) error {
	p := path.Join(c.Path(), cgroupTasks)
	if err := appendFile(p, []byte(strconv.Itoa(pid)), filePerm); err != nil {
		if os.IsNotExist(err) {
			// plain directory without a prepared tasks file
			return writeFileWrap(p, []byte(strconv.Itoa(pid)))
		}
		return porterror.FromSyscall("write", p, err)
	}
	return nil
}

// Kill sends sig to each pid in cgroup.procs at the moment of the call.
// Pids that vanish between enumeration and send are silently ignored.
func (c *Cgroup) Kill(sig syscall.Signal) error {
	pids, err := c.GetProcesses()
	if err != nil {
		return err
	}
	for _, pid := range pids {
		if err := unix.Kill(pid, sig); err != nil && err != unix.ESRCH {
			return porterror.FromSyscall("kill", strconv.Itoa(pid), err)
		}
	}
	return nil
}

// HasKnob probes knob file existence
func (c *Cgroup) HasKnob(knob string) bool {
	_, err := os.Stat(path.Join(c.Path(), knob))
	return err == nil
}

// SetKnobValue writes value to the knob file. When append is false the
// file is opened with truncation semantics.
func (c *Cgroup) SetKnobValue(knob, value string, append bool) error {
	p := path.Join(c.Path(), knob)
	var err error
	if append {
		err = appendFile(p, []byte(value), filePerm)
	} else {
		err = writeFile(p, []byte(value), filePerm)
	}
	if err != nil {
		return porterror.FromSyscall("write", p, err)
	}
	return nil
}

// GetKnobValue reads the knob file with trailing whitespace trimmed
func (c *Cgroup) GetKnobValue(knob string) (string, error) {
	p := path.Join(c.Path(), knob)
	b, err := readFile(p)
	if err != nil {
		return "", porterror.FromSyscall("read", p, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// ReadUint reads a numeric knob
func (c *Cgroup) ReadUint(knob string) (uint64, error) {
	s, err := c.GetKnobValue(knob)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, porterror.Newf(porterror.Unknown, "parse %s %q: %v", knob, s, err)
	}
	return v, nil
}

func writeFileWrap(p string, content []byte) error {
	if err := writeFile(p, content, filePerm); err != nil {
		return porterror.FromSyscall("write", p, err)
	}
	return nil
}
