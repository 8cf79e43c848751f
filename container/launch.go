package container

import (
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/paivaric/porto/pkg/cgroup"
	"github.com/paivaric/porto/pkg/porterror"
	"github.com/paivaric/porto/pkg/rlimit"
	"github.com/paivaric/porto/pkg/task"
)

// buildTask translates the Spec into a launch configuration
func (c *Container) buildTask() (*task.Task, error) {
	get := func(prop string) string {
		v, _ := c.spec.Get(prop)
		return v
	}

	cred, err := resolveCredential(get(propUser), get(propGroup))
	if err != nil {
		return nil, err
	}

	limits, err := rlimit.Parse(get(propUlimit))
	if err != nil {
		return nil, err
	}

	cgroups := make([]*cgroup.Cgroup, 0, len(leafOrder))
	for _, name := range leafOrder {
		cgroups = append(cgroups, c.leaves[name])
	}

	return task.New(task.Config{
		Command:    get(propCommand),
		Env:        buildEnv(get(propEnv)),
		Cwd:        get(propCwd),
		Root:       get(propRoot),
		Hostname:   get(propHostname),
		Credential: cred,
		RLimits:    limits,
		Cgroups:    cgroups,
		StdoutPath: c.StdoutPath(),
		StderrPath: c.StderrPath(),
		RotateCap:  c.env.RotateCap,
	}), nil
}

// StdoutPath returns the daemon-owned stdout file of this container
func (c *Container) StdoutPath() string {
	return filepath.Join(c.env.LogDir, c.name+".stdout")
}

// StderrPath returns the daemon-owned stderr file of this container
func (c *Container) StderrPath() string {
	return filepath.Join(c.env.LogDir, c.name+".stderr")
}

// buildEnv layers the semicolon separated env property over the fixed
// base environment
func buildEnv(env string) []string {
	out := []string{
		"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		"container=porto",
	}
	for _, e := range strings.Split(env, ";") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// resolveCredential maps the user / group properties onto kernel ids.
// Both empty keeps the daemon's identity; a set group overrides the
// user's primary group.
func resolveCredential(userName, groupName string) (*syscall.Credential, error) {
	if userName == "" && groupName == "" {
		return nil, nil
	}

	cred := &syscall.Credential{}
	if userName != "" {
		u, err := user.Lookup(userName)
		if err != nil {
			return nil, porterror.Newf(porterror.InvalidValue, "user %q: %v", userName, err)
		}
		uid, _ := strconv.Atoi(u.Uid)
		gid, _ := strconv.Atoi(u.Gid)
		cred.Uid = uint32(uid)
		cred.Gid = uint32(gid)
	}
	if groupName != "" {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return nil, porterror.Newf(porterror.InvalidValue, "group %q: %v", groupName, err)
		}
		gid, _ := strconv.Atoi(g.Gid)
		cred.Gid = uint32(gid)
	}
	cred.Groups = []uint32{cred.Gid}
	return cred, nil
}
