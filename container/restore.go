package container

import (
	"strconv"

	"github.com/paivaric/porto/pkg/cgroup"
)

// Restore reconciles this container's persisted record with the live
// kernel state after a daemon restart. Persistence is authoritative for
// membership only; the kernel decides what is actually alive.
func (c *Container) Restore() error {
	pid, err := strconv.Atoi(c.spec.GetInternal(internalRootPid))
	if err == nil && pid > 0 {
		return c.restorePid(pid)
	}
	return c.restoreWithoutPid()
}

// restorePid rebinds the container to the persisted root pid when the
// process survived the restart; a dead pid means the container crashed
// while the daemon was down and is cleaned up to Stopped.
func (c *Container) restorePid(pid int) error {
	if err := c.prepareCgroups(true); err != nil {
		return err
	}
	t, err := c.buildTask()
	if err == nil {
		if err := t.Restore(pid); err == nil {
			c.task = t
			c.state = Running
			// a Start acknowledgement may have been lost in the crash;
			// let the client repeat it once
			c.maybeReturnedOk = true
			c.env.Log.WithField("container", c.name).
				WithField("pid", pid).Info("restored running")
			return nil
		}
	}

	c.env.Log.WithField("container", c.name).
		WithField("pid", pid).Warn("persisted root pid is gone")
	return c.cleanupToStopped(true)
}

// restoreWithoutPid handles the torn-write window between fork and
// persist: live processes under the freezer leaf with no recorded pid
// mean a Start half-happened, so everything is killed and the Start is
// re-issued. With no live processes the cleanup is purely defensive.
func (c *Container) restoreWithoutPid() error {
	if err := c.prepareCgroups(true); err != nil {
		return err
	}
	procs, err := c.leaves[cgroup.Freezer].GetProcesses()
	if err != nil {
		return err
	}
	restart := len(procs) > 0
	if restart {
		c.env.Log.WithField("container", c.name).
			Warn("orphan processes with no persisted pid, restarting")
	}
	if err := c.cleanupToStopped(true); err != nil {
		return err
	}
	if restart {
		return c.Start()
	}
	return nil
}

// cleanupToStopped kills whatever lives in the leaves, removes them and
// resets the container to Stopped
func (c *Container) cleanupToStopped(kill bool) error {
	if kill {
		if err := c.killAll(); err != nil {
			return err
		}
	}
	c.removeLeaves()
	c.task = nil
	if err := c.spec.ClearInternal(internalRootPid); err != nil {
		return err
	}
	c.state = Stopped
	return nil
}
