package cgroup

import (
	"os"
	"path"
	"time"

	"github.com/paivaric/porto/pkg/porterror"
)

const (
	// bound for the freezer state spin, 1ms granularity
	freezeTimeout = time.Second
	freezeTick    = time.Millisecond
)

// Subsystem is one mounted cgroup v1 controller hierarchy
type Subsystem struct {
	name string
	root string // controller mountpoint
}

// Name returns the controller name
func (s *Subsystem) Name() string {
	return s.name
}

// RootCgroup returns the handle of the controller mount itself
func (s *Subsystem) RootCgroup() *Cgroup {
	return &Cgroup{subsys: s}
}

// PortoCgroup returns the handle of the supervisor-owned subtree root
func (s *Subsystem) PortoCgroup() *Cgroup {
	return s.RootCgroup().GetChild(PortoRoot)
}

// Usage reads the controller usage counter: ns of CPU for cpuacct, bytes
// for memory
func (s *Subsystem) Usage(cg *Cgroup) (uint64, error) {
	switch s.name {
	case CPUAcct:
		return cg.ReadUint(cpuacctUsage)
	case Memory:
		return cg.ReadUint(memoryUsage)
	default:
		return 0, porterror.Newf(porterror.InvalidValue, "no usage knob for %s", s.name)
	}
}

// Freeze writes FROZEN and spins until freezer.state reads FROZEN. On
// timeout the caller proceeds to the next step; Busy is returned so it
// can log the incomplete transition.
func (s *Subsystem) Freeze(cg *Cgroup) error {
	return s.setFreezerState(cg, frozen)
}

// Unfreeze writes THAWED and spins until observed
func (s *Subsystem) Unfreeze(cg *Cgroup) error {
	return s.setFreezerState(cg, thawed)
}

// FreezerState reads the current freezer state
func (s *Subsystem) FreezerState(cg *Cgroup) (string, error) {
	if s.name != Freezer {
		return "", porterror.Newf(porterror.InvalidValue, "no freezer state for %s", s.name)
	}
	return cg.GetKnobValue(freezerState)
}

func (s *Subsystem) setFreezerState(cg *Cgroup, state string) error {
	if s.name != Freezer {
		return porterror.Newf(porterror.InvalidValue, "cannot freeze %s", s.name)
	}
	if err := cg.SetKnobValue(freezerState, state, false); err != nil {
		return err
	}
	for elapsed := time.Duration(0); elapsed < freezeTimeout; elapsed += freezeTick {
		v, err := cg.GetKnobValue(freezerState)
		if err != nil {
			return err
		}
		if v == state {
			return nil
		}
		time.Sleep(freezeTick)
	}
	return porterror.Newf(porterror.Busy, "freezer %s did not reach %s", cg.Relpath(), state)
}

// UseHierarchy enables memory.use_hierarchy for the leaf if the root of
// the hierarchy has not enabled it already
func (s *Subsystem) UseHierarchy(cg *Cgroup) error {
	if s.name != Memory {
		return porterror.Newf(porterror.InvalidValue, "no use_hierarchy for %s", s.name)
	}
	if v, err := s.RootCgroup().GetKnobValue(memoryHierarchy); err == nil && v == "1" {
		return nil
	}
	return cg.SetKnobValue(memoryHierarchy, "1", false)
}

// MemoryLimitKnob and related knob names consumed by the container layer
const (
	MemoryLimitKnob    = memoryLimit
	MemoryLowLimitKnob = memoryLowLimit
)

// Registry holds the mounted controllers the supervisor cares about
type Registry struct {
	base       string
	subsystems map[string]*Subsystem
}

// NewRegistry probes base for the freezer, cpuacct and memory controller
// mounts. A missing mount is an error: the supervisor requires all three.
func NewRegistry(base string) (*Registry, error) {
	if base == "" {
		base = DefaultBasePath
	}
	r := &Registry{
		base:       base,
		subsystems: make(map[string]*Subsystem),
	}
	for _, name := range []string{Freezer, CPUAcct, Memory} {
		root := path.Join(base, name)
		if st, err := os.Stat(root); err != nil || !st.IsDir() {
			return nil, porterror.Newf(porterror.InvalidValue, "controller %s not mounted at %s", name, root)
		}
		r.subsystems[name] = &Subsystem{name: name, root: root}
	}
	return r, nil
}

// Get returns the named controller or nil
func (r *Registry) Get(name string) *Subsystem {
	return r.subsystems[name]
}

// Freezer returns the freezer controller
func (r *Registry) Freezer() *Subsystem {
	return r.subsystems[Freezer]
}

// CPUAcct returns the cpuacct controller
func (r *Registry) CPUAcct() *Subsystem {
	return r.subsystems[CPUAcct]
}

// Memory returns the memory controller
func (r *Registry) Memory() *Subsystem {
	return r.subsystems[Memory]
}

// All returns every registered controller
func (r *Registry) All() []*Subsystem {
	return []*Subsystem{r.Freezer(), r.CPUAcct(), r.Memory()}
}
