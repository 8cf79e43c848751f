// Package container implements the supervisor core: the container state
// machine, its cgroup leaves, property and data surfaces, the registry of
// all containers and the restart-safe restore protocol. All operations
// are driven by the single daemon dispatcher; nothing here locks.
package container

import (
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paivaric/porto/pkg/cgroup"
	"github.com/paivaric/porto/pkg/porterror"
	"github.com/paivaric/porto/pkg/task"
)

// RootName is the reserved name of the pseudo-container that owns the
// host itself
const RootName = "ROOT"

// Acker lets a racing Stop drop an exit status the reaper collected for
// a pid the container no longer cares about
type Acker interface {
	AckExitStatus(pid int)
}

// Env is the shared wiring handed to every container by the daemon
type Env struct {
	Subsystems *cgroup.Registry
	Acker      Acker
	Log        *logrus.Logger

	LogDir           string
	RotateCap        int64
	StopDrainTimeout time.Duration

	// optional hook fired once per rotated log file
	OnRotate func()
}

// Container is the central aggregate: a named unit of isolated execution
// with its own cgroup leaves and optional root process
type Container struct {
	name  string
	env   *Env
	spec  *Spec
	state State

	task   *task.Task
	leaves map[string]*cgroup.Cgroup

	// errno of the last failed launch, -1 when the last Start succeeded
	startErrno int

	// set by restore when a previous Start may have been acknowledged to
	// a client before the daemon crashed; the next Start consumes it
	maybeReturnedOk bool
}

func newContainer(name string, env *Env, spec *Spec) *Container {
	return &Container{
		name:       name,
		env:        env,
		spec:       spec,
		state:      Stopped,
		leaves:     make(map[string]*cgroup.Cgroup),
		startErrno: -1,
	}
}

// Name returns the container name
func (c *Container) Name() string {
	return c.name
}

// GetState returns the current lifecycle state
func (c *Container) GetState() State {
	return c.state
}

// IsRoot reports whether this is the host pseudo-container
func (c *Container) IsRoot() bool {
	return c.name == RootName
}

// GetProperty reads a user-visible property
func (c *Container) GetProperty(prop string) (string, error) {
	if c.IsRoot() {
		return "", porterror.New(porterror.InvalidValue, "no properties on ROOT")
	}
	return c.spec.Get(prop)
}

// SetProperty validates and persists a property. Static properties only
// change while the container is stopped; dynamic memory knobs are pushed
// into the live cgroup when the container runs.
func (c *Container) SetProperty(prop, value string) error {
	if c.IsRoot() {
		return porterror.New(porterror.InvalidValue, "no properties on ROOT")
	}
	if _, err := c.spec.Get(prop); err != nil {
		return err
	}
	if !c.spec.IsDynamic(prop) && c.state != Stopped {
		return porterror.Newf(porterror.InvalidValue,
			"%s: property %s is static, container is %s", c.name, prop, c.state)
	}
	if err := c.spec.Set(prop, value); err != nil {
		return err
	}
	if c.spec.IsDynamic(prop) && (c.state == Running || c.state == Paused) {
		return c.applyDynamic(prop, value)
	}
	return nil
}

func (c *Container) applyDynamic(prop, value string) error {
	leaf := c.leaves[cgroup.Memory]
	if leaf == nil || value == "" {
		return nil
	}
	switch prop {
	case propMemoryLimit:
		return leaf.SetKnobValue(cgroup.MemoryLimitKnob, value, false)
	case propMemoryGuarantee:
		if leaf.HasKnob(cgroup.MemoryLowLimitKnob) {
			return leaf.SetKnobValue(cgroup.MemoryLowLimitKnob, value, false)
		}
	}
	return nil
}

// Start drives Stopped -> Running: create the cgroup leaves, install the
// memory knobs, fork the root process and persist its pid
func (c *Container) Start() error {
	if c.IsRoot() {
		return c.startRoot()
	}
	if c.maybeReturnedOk {
		// a previous Start was already acknowledged before a daemon
		// crash; this one consumes the acknowledgement
		c.maybeReturnedOk = false
		return nil
	}
	if err := c.checkState("start", Stopped); err != nil {
		return err
	}
	command, err := c.spec.Get(propCommand)
	if err != nil {
		return err
	}
	if command == "" {
		return porterror.Newf(porterror.InvalidValue, "%s: command is empty", c.name)
	}

	if err := c.prepareCgroups(false); err != nil {
		return err
	}

	t, err := c.buildTask()
	if err != nil {
		c.unwindCgroups()
		return err
	}
	if err := t.Start(); err != nil {
		c.startErrno = t.StartErrno()
		c.unwindCgroups()
		return err
	}

	c.task = t
	c.startErrno = -1
	if err := c.spec.SetInternal(internalRootPid, strconv.Itoa(t.Pid())); err != nil {
		c.env.Log.WithField("container", c.name).Errorf("persist root pid: %v", err)
	}
	c.state = Running
	c.env.Log.WithFields(logrus.Fields{
		"container": c.name,
		"pid":       t.Pid(),
	}).Info("started")
	return nil
}

// startRoot creates the supervisor-owned subtree under every controller;
// ROOT has no task and is Running from then on
func (c *Container) startRoot() error {
	for _, sub := range c.env.Subsystems.All() {
		leaf := sub.PortoCgroup()
		if err := leaf.CreateRestore(); err != nil {
			return err
		}
		c.leaves[sub.Name()] = leaf
	}
	c.state = Running
	return nil
}

// Stop drives Running or Dead -> Stopped: kill everything in the freezer
// leaf, drop the stale exit status, remove the leaves
func (c *Container) Stop() error {
	if c.IsRoot() {
		return porterror.New(porterror.InvalidValue, "cannot stop ROOT")
	}
	if err := c.checkState("stop", Running, Dead); err != nil {
		return err
	}

	if c.state == Running {
		if err := c.killAll(); err != nil {
			return err
		}
	}

	if c.task != nil && c.task.Pid() > 0 && c.env.Acker != nil {
		c.env.Acker.AckExitStatus(c.task.Pid())
	}

	c.removeLeaves()
	c.task = nil
	if err := c.spec.ClearInternal(internalRootPid); err != nil {
		c.env.Log.WithField("container", c.name).Errorf("clear root pid: %v", err)
	}
	c.state = Stopped
	c.env.Log.WithField("container", c.name).Info("stopped")
	return nil
}

// Pause freezes every task in the container
func (c *Container) Pause() error {
	if c.IsRoot() {
		return porterror.New(porterror.InvalidValue, "cannot pause ROOT")
	}
	if err := c.checkState("pause", Running); err != nil {
		return err
	}
	leaf := c.leaves[cgroup.Freezer]
	if err := c.env.Subsystems.Freezer().Freeze(leaf); err != nil {
		return err
	}
	c.state = Paused
	return nil
}

// Resume thaws a paused container
func (c *Container) Resume() error {
	if c.IsRoot() {
		return porterror.New(porterror.InvalidValue, "cannot resume ROOT")
	}
	if err := c.checkState("resume", Paused); err != nil {
		return err
	}
	leaf := c.leaves[cgroup.Freezer]
	if err := c.env.Subsystems.Freezer().Unfreeze(leaf); err != nil {
		return err
	}
	c.state = Running
	return nil
}

// DeliverExitStatus offers a reaped (pid, status) to this container and
// reports whether it was claimed. A container only becomes Dead out of
// Running, so a status racing Stop is left to the ack map.
func (c *Container) DeliverExitStatus(pid int, status syscall.WaitStatus) bool {
	if c.task == nil || c.task.Pid() != pid {
		return false
	}
	if c.state != Running {
		return false
	}
	c.task.DeliverExitStatus(status)
	c.state = Dead
	c.env.Log.WithFields(logrus.Fields{
		"container": c.name,
		"pid":       pid,
		"status":    int(status),
	}).Info("exited")
	return true
}

// Reconcile downgrades a stale Running state when the root process is
// gone without a delivered exit (a restored pid that died while the
// daemon was down). Runs once per dispatcher entry.
func (c *Container) Reconcile() {
	if c.IsRoot() || c.state != Running {
		return
	}
	if c.task != nil && c.task.IsRunning() {
		return
	}
	if _, exited := c.exitStatus(); exited {
		return
	}
	c.env.Log.WithField("container", c.name).Warn("root process is gone, forcing stop")
	if err := c.killAll(); err != nil {
		c.env.Log.WithField("container", c.name).Errorf("reconcile kill: %v", err)
	}
	c.removeLeaves()
	c.task = nil
	c.spec.ClearInternal(internalRootPid)
	c.state = Stopped
}

func (c *Container) exitStatus() (syscall.WaitStatus, bool) {
	if c.task == nil {
		return 0, false
	}
	return c.task.ExitStatus()
}

// Heartbeat runs the periodic pass: reconciliation plus log rotation
func (c *Container) Heartbeat() {
	c.Reconcile()
	if c.task != nil && (c.state == Running || c.state == Paused || c.state == Dead) {
		n, err := c.task.Rotate()
		if err != nil {
			c.env.Log.WithField("container", c.name).Errorf("rotate: %v", err)
		}
		if c.env.OnRotate != nil {
			for i := 0; i < n; i++ {
				c.env.OnRotate()
			}
		}
	}
}

// Cleanup forces the container to Stopped on destroy and daemon
// shutdown. A paused container is resumed first so no frozen processes
// outlive the supervisor.
func (c *Container) Cleanup() error {
	switch c.state {
	case Paused:
		if err := c.Resume(); err != nil {
			return err
		}
		return c.Stop()
	case Running, Dead:
		return c.Stop()
	default:
		return nil
	}
}
