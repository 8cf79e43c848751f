package cgroup

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// readFile reads cgroup file and handles potential EINTR error while read
// to the slow device (cgroup)
func readFile(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	for err != nil && errors.Is(err, syscall.EINTR) {
		data, err = os.ReadFile(p)
	}
	return data, err
}

// writeFile writes cgroup file and handles potential EINTR error while
// writes to the slow device (cgroup)
func writeFile(p string, content []byte, perm fs.FileMode) error {
	err := os.WriteFile(p, content, perm)
	for err != nil && errors.Is(err, syscall.EINTR) {
		err = os.WriteFile(p, content, perm)
	}
	return err
}

// appendFile opens p for append and writes content. Knob files that
// accumulate (tasks, cgroup.procs) take one value per write.
func appendFile(p string, content []byte, perm fs.FileMode) error {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_APPEND, perm)
	for err != nil && errors.Is(err, syscall.EINTR) {
		f, err = os.OpenFile(p, os.O_WRONLY|os.O_APPEND, perm)
	}
	if err != nil {
		return err
	}
	_, err = f.Write(content)
	for err != nil && errors.Is(err, syscall.EINTR) {
		_, err = f.Write(content)
	}
	if err1 := f.Close(); err == nil {
		err = err1
	}
	return err
}

// parsePids parses the content of a tasks / cgroup.procs file. Pids are
// returned in file order without deduplication.
func parsePids(content []byte) []int {
	lines := strings.Split(string(content), "\n")
	pids := make([]int, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		pid, err := strconv.Atoi(l)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}
