package container

import (
	"strconv"

	"github.com/paivaric/porto/pkg/cgroup"
	"github.com/paivaric/porto/pkg/porterror"
)

// data keys readable through GetData
const (
	dataState       = "state"
	dataExitStatus  = "exit_status"
	dataStartErrno  = "start_errno"
	dataRootPid     = "root_pid"
	dataStdout      = "stdout"
	dataStderr      = "stderr"
	dataCPUUsage    = "cpu_usage"
	dataMemoryUsage = "memory_usage"
)

type dataDef struct {
	// states in which the key may be read; empty allows every state
	states []State
	// readable on the ROOT pseudo-container
	rootValid bool
	read      func(c *Container) (string, error)
}

var dataItems = map[string]dataDef{
	dataState: {
		rootValid: true,
		read: func(c *Container) (string, error) {
			return c.state.String(), nil
		},
	},
	dataExitStatus: {
		states: []State{Dead},
		read: func(c *Container) (string, error) {
			ws, ok := c.exitStatus()
			if !ok {
				return "", porterror.Newf(porterror.InvalidState, "%s: no exit status", c.name)
			}
			return strconv.Itoa(int(ws)), nil
		},
	},
	dataStartErrno: {
		states: []State{Stopped},
		read: func(c *Container) (string, error) {
			return strconv.Itoa(c.startErrno), nil
		},
	},
	dataRootPid: {
		states: []State{Running, Paused},
		read: func(c *Container) (string, error) {
			return strconv.Itoa(c.task.Pid()), nil
		},
	},
	dataStdout: {
		states: []State{Running, Paused, Dead},
		read: func(c *Container) (string, error) {
			return c.task.GetStdout(), nil
		},
	},
	dataStderr: {
		states: []State{Running, Paused, Dead},
		read: func(c *Container) (string, error) {
			return c.task.GetStderr(), nil
		},
	},
	dataCPUUsage: {
		states:    []State{Running, Paused, Dead},
		rootValid: true,
		read: func(c *Container) (string, error) {
			return c.readUsage(cgroup.CPUAcct)
		},
	},
	dataMemoryUsage: {
		states:    []State{Running, Paused, Dead},
		rootValid: true,
		read: func(c *Container) (string, error) {
			return c.readUsage(cgroup.Memory)
		},
	},
}

func (c *Container) readUsage(subsystem string) (string, error) {
	leaf := c.leaves[subsystem]
	if leaf == nil {
		return "", porterror.Newf(porterror.InvalidState, "%s: no %s leaf", c.name, subsystem)
	}
	v, err := c.env.Subsystems.Get(subsystem).Usage(leaf)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(v, 10), nil
}

// GetData reads one typed data item. The current state is reconciled
// first so a vanished root process cannot satisfy a Running gate.
func (c *Container) GetData(name string) (string, error) {
	def, ok := dataItems[name]
	if !ok {
		return "", porterror.Newf(porterror.InvalidValue, "unknown data %q", name)
	}
	if c.IsRoot() && !def.rootValid {
		return "", porterror.Newf(porterror.InvalidData, "data %s is not valid on ROOT", name)
	}

	c.Reconcile()

	if len(def.states) > 0 {
		if err := c.checkState("read "+name, def.states...); err != nil {
			return "", err
		}
	}
	return def.read(c)
}
