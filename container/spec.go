package container

import (
	"regexp"
	"strconv"

	"github.com/paivaric/porto/pkg/kv"
	"github.com/paivaric/porto/pkg/porterror"
	"github.com/paivaric/porto/pkg/rlimit"
)

// property names settable through the RPC surface
const (
	propCommand         = "command"
	propCwd             = "cwd"
	propRoot            = "root"
	propUser            = "user"
	propGroup           = "group"
	propEnv             = "env"
	propMemoryLimit     = "memory_limit"
	propMemoryGuarantee = "memory_guarantee"
	propUlimit          = "ulimit"
	propHostname        = "hostname"
)

// internal slots, never settable through the RPC surface
const (
	internalRootPid = "_root_pid"
)

type propertyDef struct {
	// dynamic properties may change while the container runs; static
	// ones only while it is stopped
	dynamic  bool
	validate func(value string) error
}

var properties = map[string]propertyDef{
	propCommand:         {},
	propCwd:             {},
	propRoot:            {},
	propUser:            {},
	propGroup:           {},
	propEnv:             {},
	propUlimit:          {validate: validateUlimit},
	propHostname:        {validate: validateHostname},
	propMemoryLimit:     {dynamic: true, validate: validateBytes},
	propMemoryGuarantee: {dynamic: true, validate: validateBytes},
}

func validateBytes(value string) error {
	if value == "" {
		return nil
	}
	if _, err := strconv.ParseUint(value, 10, 64); err != nil {
		return porterror.Newf(porterror.InvalidValue, "invalid byte value %q", value)
	}
	return nil
}

func validateUlimit(value string) error {
	_, err := rlimit.Parse(value)
	return err
}

var hostnameRe = regexp.MustCompile(`^[A-Za-z0-9._-]{0,64}$`)

func validateHostname(value string) error {
	if !hostnameRe.MatchString(value) {
		return porterror.Newf(porterror.InvalidValue, "invalid hostname %q", value)
	}
	return nil
}

// Spec is the container property store backed by one persistence record.
// Every mutation is written through to the store by the call that makes
// it, so a crashed daemon never resurrects stale properties. A failed
// write is returned to the caller; the in-memory value keeps the change.
type Spec struct {
	name  string
	store *kv.Store
	data  kv.Record
}

// NewSpec creates an empty property store for a fresh container
func NewSpec(name string, store *kv.Store) *Spec {
	return &Spec{name: name, store: store, data: kv.Record{}}
}

// LoadSpec rebuilds the property store from a persisted record
func LoadSpec(name string, store *kv.Store, rec kv.Record) *Spec {
	if rec == nil {
		rec = kv.Record{}
	}
	return &Spec{name: name, store: store, data: rec}
}

// Get returns the property value, "" when unset. Unknown names fail with
// InvalidProperty.
func (s *Spec) Get(prop string) (string, error) {
	if _, ok := properties[prop]; !ok {
		return "", porterror.Newf(porterror.InvalidProperty, "unknown property %q", prop)
	}
	return s.data[prop], nil
}

// Set validates and persists a property value. Unknown names fail with
// InvalidProperty; internal slots are rejected here.
func (s *Spec) Set(prop, value string) error {
	def, ok := properties[prop]
	if !ok {
		return porterror.Newf(porterror.InvalidProperty, "unknown property %q", prop)
	}
	if def.validate != nil {
		if err := def.validate(value); err != nil {
			return err
		}
	}
	s.data[prop] = value
	return s.save()
}

// IsDynamic reports whether prop may change while the container runs
func (s *Spec) IsDynamic(prop string) bool {
	return properties[prop].dynamic
}

// GetInternal returns an internal slot, "" when unset
func (s *Spec) GetInternal(key string) string {
	return s.data[key]
}

// SetInternal persists an internal slot
func (s *Spec) SetInternal(key, value string) error {
	s.data[key] = value
	return s.save()
}

// ClearInternal removes an internal slot
func (s *Spec) ClearInternal(key string) error {
	delete(s.data, key)
	return s.save()
}

// Sync writes the current record out even when nothing changed; Create
// uses it to persist membership of a fresh container
func (s *Spec) Sync() error {
	return s.save()
}

func (s *Spec) save() error {
	if s.store == nil {
		return nil
	}
	return s.store.Save(s.name, s.data)
}
