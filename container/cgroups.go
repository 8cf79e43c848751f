package container

import (
	"syscall"
	"time"

	"github.com/paivaric/porto/pkg/cgroup"
	"github.com/paivaric/porto/pkg/porterror"
)

// leaf creation order; removal happens in reverse
var leafOrder = []string{cgroup.Freezer, cgroup.CPUAcct, cgroup.Memory}

// leaf returns the handle of this container's leaf in one subsystem
func (c *Container) leaf(sub *cgroup.Subsystem) *cgroup.Cgroup {
	if c.IsRoot() {
		return sub.PortoCgroup()
	}
	return sub.PortoCgroup().GetChild(c.name)
}

// prepareCgroups materializes the per-container leaves across all
// subsystems and installs the memory knobs. Any failure unwinds the
// leaves created so far; the original error wins.
func (c *Container) prepareCgroups(restore bool) error {
	for _, name := range leafOrder {
		sub := c.env.Subsystems.Get(name)
		leaf := c.leaf(sub)
		var err error
		if restore {
			err = leaf.CreateRestore()
		} else {
			err = leaf.Create()
		}
		if err != nil {
			c.unwindCgroups()
			return err
		}
		c.leaves[name] = leaf
	}
	if err := c.applyMemoryKnobs(); err != nil {
		c.unwindCgroups()
		return err
	}
	return nil
}

func (c *Container) applyMemoryKnobs() error {
	mem := c.env.Subsystems.Memory()
	leaf := c.leaves[cgroup.Memory]
	if err := mem.UseHierarchy(leaf); err != nil {
		return err
	}
	guarantee, _ := c.spec.Get(propMemoryGuarantee)
	if guarantee != "" && leaf.HasKnob(cgroup.MemoryLowLimitKnob) {
		if err := leaf.SetKnobValue(cgroup.MemoryLowLimitKnob, guarantee, false); err != nil {
			return err
		}
	}
	limit, _ := c.spec.Get(propMemoryLimit)
	if limit != "" {
		if err := leaf.SetKnobValue(cgroup.MemoryLimitKnob, limit, false); err != nil {
			return err
		}
	}
	return nil
}

// unwindCgroups discards all recorded leaves in reverse creation order.
// Best effort: failures are logged, the original error has already been
// returned to the caller.
func (c *Container) unwindCgroups() {
	for i := len(leafOrder) - 1; i >= 0; i-- {
		leaf := c.leaves[leafOrder[i]]
		if leaf == nil {
			continue
		}
		if err := leaf.Remove(); err != nil {
			c.env.Log.WithField("container", c.name).Errorf("unwind %s: %v", leaf, err)
		}
		delete(c.leaves, leafOrder[i])
	}
}

// removeLeaves drops the leaf directories in reverse creation order.
// Removal failures are logged and do not abort: the next Start surfaces
// a leftover directory as its own error. Emptiness of the leaves is not
// checked here; only Stop of a Running container has verified it first.
func (c *Container) removeLeaves() {
	if c.IsRoot() {
		return
	}
	for i := len(leafOrder) - 1; i >= 0; i-- {
		leaf := c.leaves[leafOrder[i]]
		if leaf == nil {
			continue
		}
		if err := leaf.Remove(); err != nil {
			c.env.Log.WithField("container", c.name).Errorf("remove %s: %v", leaf, err)
		}
		delete(c.leaves, leafOrder[i])
	}
}

// killAll empties the freezer leaf: SIGTERM with a bounded drain, then a
// freeze to stop fork races, SIGKILL, thaw, and a final emptiness check
func (c *Container) killAll() error {
	freezer := c.env.Subsystems.Freezer()
	leaf := c.leaves[cgroup.Freezer]
	if leaf == nil || !leaf.Exists() {
		return nil
	}
	// nothing can fork into an already empty leaf
	if empty, err := leaf.IsEmpty(); err == nil && empty {
		return nil
	}

	if err := leaf.Kill(syscall.SIGTERM); err != nil {
		return err
	}
	c.drainLeaf(leaf)

	// freeze so nothing forks between enumeration and SIGKILL
	if err := freezer.Freeze(leaf); err != nil {
		c.env.Log.WithField("container", c.name).Warnf("freeze before kill: %v", err)
	}
	if err := leaf.Kill(syscall.SIGKILL); err != nil {
		return err
	}
	if err := freezer.Unfreeze(leaf); err != nil {
		return err
	}

	c.drainLeaf(leaf)
	empty, err := leaf.IsEmpty()
	if err != nil {
		return err
	}
	if !empty {
		return porterror.Newf(porterror.Busy, "%s: tasks survived SIGKILL", c.name)
	}
	return nil
}

// drainLeaf polls cgroup.procs with millisecond granularity until the
// leaf empties or the configured bound expires
func (c *Container) drainLeaf(leaf *cgroup.Cgroup) {
	const tick = time.Millisecond
	for elapsed := time.Duration(0); elapsed < c.env.StopDrainTimeout; elapsed += tick {
		empty, err := leaf.IsEmpty()
		if err != nil || empty {
			return
		}
		time.Sleep(tick)
	}
}
