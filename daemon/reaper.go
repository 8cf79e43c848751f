package daemon

import (
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// how long an unclaimed exit status stays available for AckExitStatus
const ackTimeout = time.Second

// Exit is one reaped (pid, status) pair
type Exit struct {
	Pid    int
	Status syscall.WaitStatus
}

type pendingExit struct {
	status syscall.WaitStatus
	since  time.Time
}

// Reaper collects exited children with non-blocking wait and keeps the
// short-lived map of statuses no container has claimed yet, so a Stop
// racing SIGCHLD can still drop the stale result
type Reaper struct {
	log     *logrus.Logger
	pending map[int]pendingExit
}

// NewReaper builds an empty reaper
func NewReaper(log *logrus.Logger) *Reaper {
	return &Reaper{
		log:     log,
		pending: make(map[int]pendingExit),
	}
}

// Reap drains every currently waitable child without blocking
func (r *Reaper) Reap() []Exit {
	var exits []Exit
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if err == syscall.EINTR {
			continue
		}
		if err != nil || pid <= 0 {
			return exits
		}
		// stops and continues are not exits
		if !status.Exited() && !status.Signaled() {
			continue
		}
		exits = append(exits, Exit{Pid: pid, Status: status})
	}
}

// Stash records an exit no container claimed
func (r *Reaper) Stash(e Exit) {
	r.log.WithFields(logrus.Fields{
		"pid":    e.Pid,
		"status": int(e.Status),
	}).Debug("exit status unclaimed")
	r.pending[e.Pid] = pendingExit{status: e.Status, since: time.Now()}
}

// AckExitStatus drops a pending status for pid; called by a container's
// Stop so the stale exit of a killed task is not delivered later
func (r *Reaper) AckExitStatus(pid int) {
	delete(r.pending, pid)
}

// Pending reports whether an unclaimed status for pid is still held
func (r *Reaper) Pending(pid int) bool {
	_, ok := r.pending[pid]
	return ok
}

// Expire discards pending entries older than the ack bound
func (r *Reaper) Expire() {
	cutoff := time.Now().Add(-ackTimeout)
	for pid, p := range r.pending {
		if p.since.Before(cutoff) {
			delete(r.pending, pid)
		}
	}
}
