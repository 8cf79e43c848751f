// Package rlimit provides data structure for resource limits applied to
// container tasks by the prlimit64 syscall on linux.
package rlimit

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"github.com/paivaric/porto/pkg/porterror"
)

// RLimit is the resource limit defined by Linux setrlimit
type RLimit struct {
	// Res is the resource type (e.g. syscall.RLIMIT_CPU)
	Res int
	// Rlim is the limit applied to that resource
	Rlim syscall.Rlimit
}

var resByName = map[string]int{
	"as":      syscall.RLIMIT_AS,
	"core":    syscall.RLIMIT_CORE,
	"cpu":     syscall.RLIMIT_CPU,
	"data":    syscall.RLIMIT_DATA,
	"fsize":   syscall.RLIMIT_FSIZE,
	"memlock": 8, // RLIMIT_MEMLOCK
	"nofile":  syscall.RLIMIT_NOFILE,
	"nproc":   6, // RLIMIT_NPROC
	"stack":   syscall.RLIMIT_STACK,
}

var nameByRes = func() map[int]string {
	m := make(map[int]string, len(resByName))
	for k, v := range resByName {
		m[v] = k
	}
	return m
}()

// Parse converts an ulimit property value into prlimit64 entries. The
// format is a semicolon separated list of "name soft [hard]" items, e.g.
// "nofile 1024 2048; core 0". The word "unlimited" maps to RLIM_INFINITY.
func Parse(value string) ([]RLimit, error) {
	var ret []RLimit
	for _, item := range strings.Split(value, ";") {
		fields := strings.Fields(item)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 && len(fields) != 3 {
			return nil, porterror.Newf(porterror.InvalidValue, "invalid ulimit %q", strings.TrimSpace(item))
		}
		res, ok := resByName[fields[0]]
		if !ok {
			return nil, porterror.Newf(porterror.InvalidValue, "invalid ulimit resource %q", fields[0])
		}
		soft, err := parseLimit(fields[1])
		if err != nil {
			return nil, err
		}
		hard := soft
		if len(fields) == 3 {
			if hard, err = parseLimit(fields[2]); err != nil {
				return nil, err
			}
		}
		if hard != unlimited && (soft == unlimited || soft > hard) {
			return nil, porterror.Newf(porterror.InvalidValue, "ulimit %s soft above hard", fields[0])
		}
		ret = append(ret, RLimit{
			Res:  res,
			Rlim: syscall.Rlimit{Cur: soft, Max: hard},
		})
	}
	return ret, nil
}

const unlimited = ^uint64(0) // RLIM_INFINITY

func parseLimit(s string) (uint64, error) {
	if s == "unlimited" {
		return unlimited, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, porterror.Newf(porterror.InvalidValue, "invalid ulimit value %q", s)
	}
	return v, nil
}

func (r RLimit) String() string {
	name := nameByRes[r.Res]
	if name == "" {
		name = strconv.Itoa(r.Res)
	}
	return fmt.Sprintf("%s[%s:%s]", name, limitString(r.Rlim.Cur), limitString(r.Rlim.Max))
}

func limitString(v uint64) string {
	if v == unlimited {
		return "unlimited"
	}
	return strconv.FormatUint(v, 10)
}
