package container

import (
	"regexp"
	"sort"
	"syscall"

	"github.com/paivaric/porto/pkg/kv"
	"github.com/paivaric/porto/pkg/porterror"
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,128}$`)

// ValidName reports whether name is usable for a new container; the
// reserved ROOT name is not
func ValidName(name string) bool {
	return name != RootName && nameRe.MatchString(name)
}

// Holder owns the name -> container mapping, including the implicit ROOT
// pseudo-container, and fans reaped exit statuses and heartbeats out to
// its members
type Holder struct {
	env        *Env
	store      *kv.Store
	containers map[string]*Container
}

// NewHolder builds the registry and brings up the ROOT container, which
// creates the supervisor-owned subtree under every controller
func NewHolder(env *Env, store *kv.Store) (*Holder, error) {
	h := &Holder{
		env:        env,
		store:      store,
		containers: make(map[string]*Container),
	}
	root := newContainer(RootName, env, LoadSpec(RootName, nil, nil))
	if err := root.Start(); err != nil {
		return nil, err
	}
	h.containers[RootName] = root
	return h, nil
}

// Create registers a new container in Stopped and persists its record
func (h *Holder) Create(name string) error {
	if !ValidName(name) {
		return porterror.Newf(porterror.InvalidValue, "invalid container name %q", name)
	}
	if _, ok := h.containers[name]; ok {
		return porterror.Newf(porterror.InvalidValue, "container %q already exists", name)
	}
	c := newContainer(name, h.env, NewSpec(name, h.store))
	if err := c.spec.Sync(); err != nil {
		return err
	}
	h.containers[name] = c
	return nil
}

// Get looks a container up by name, nil on absence
func (h *Holder) Get(name string) *Container {
	return h.containers[name]
}

// Destroy stops the container if needed and removes it from the registry
// and from persistence. Destroying ROOT is a no-op.
func (h *Holder) Destroy(name string) error {
	if name == RootName {
		return nil
	}
	c, ok := h.containers[name]
	if !ok {
		return porterror.Newf(porterror.InvalidValue, "container %q does not exist", name)
	}
	if err := c.Cleanup(); err != nil {
		return err
	}
	delete(h.containers, name)
	return h.store.Remove(name)
}

// List returns the registered names in sorted order
func (h *Holder) List() []string {
	names := make([]string, 0, len(h.containers))
	for name := range h.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeliverExitStatus forwards a reaped (pid, status) until one container
// claims it. Iteration goes over a snapshot so a concurrent Destroy only
// skips the removed container.
func (h *Holder) DeliverExitStatus(pid int, status syscall.WaitStatus) bool {
	for _, name := range h.List() {
		c, ok := h.containers[name]
		if !ok {
			continue
		}
		if c.DeliverExitStatus(pid, status) {
			return true
		}
	}
	return false
}

// Heartbeat fans the periodic pass out to every container
func (h *Holder) Heartbeat() {
	for _, name := range h.List() {
		if c, ok := h.containers[name]; ok {
			c.Heartbeat()
		}
	}
}

// RestoreAll reinstantiates every persisted container and reconciles it
// with the kernel. A failed restore keeps the container registered in
// Stopped so the operator can inspect and retry.
func (h *Holder) RestoreAll() int {
	recs, err := h.store.LoadAll()
	if err != nil {
		h.env.Log.Errorf("restore: %v", err)
		return 0
	}
	restored := 0
	for _, name := range sortedKeys(recs) {
		if !ValidName(name) {
			h.env.Log.Warnf("restore: dropping record with invalid name %q", name)
			h.store.Remove(name)
			continue
		}
		c := newContainer(name, h.env, LoadSpec(name, h.store, recs[name]))
		h.containers[name] = c
		if err := c.Restore(); err != nil {
			h.env.Log.WithField("container", name).Errorf("restore: %v", err)
			continue
		}
		restored++
	}
	return restored
}

// StopAll drives every container to Stopped for an orderly shutdown
func (h *Holder) StopAll() {
	for _, name := range h.List() {
		if name == RootName {
			continue
		}
		if c, ok := h.containers[name]; ok {
			if err := c.Cleanup(); err != nil {
				h.env.Log.WithField("container", name).Errorf("shutdown stop: %v", err)
			}
		}
	}
}

func sortedKeys(m map[string]kv.Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
