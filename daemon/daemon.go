// Package daemon runs the portod supervisor: a single-threaded
// dispatcher that serializes every container operation and reacts to
// three event sources: RPC requests from the unix socket, SIGCHLD
// notifications feeding the reaper, and the heartbeat tick driving log
// rotation and state reconciliation.
package daemon

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paivaric/porto/config"
	"github.com/paivaric/porto/container"
	"github.com/paivaric/porto/pkg/cgroup"
	"github.com/paivaric/porto/pkg/kv"
)

// Daemon wires the supervisor together and owns the dispatcher loop
type Daemon struct {
	cfg    *config.Config
	log    *logrus.Logger
	store  *kv.Store
	holder *container.Holder
	reaper *Reaper
	stat   *Stat

	requests chan request
	sigchld  chan os.Signal
	shutdown chan os.Signal
}

// request is one container operation marshalled onto the dispatcher;
// reply receives exactly one response
type request struct {
	line  string
	reply chan string
}

// New builds the daemon: open persistence, probe the cgroup mounts,
// bring up the registry and restore the persisted world
func New(cfg *config.Config, log *logrus.Logger) (*Daemon, error) {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, err
	}

	store, err := kv.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	subsystems, err := cgroup.NewRegistry(cfg.CgroupBase)
	if err != nil {
		store.Close()
		return nil, err
	}

	stat := NewStat()
	reaper := NewReaper(log)
	env := &container.Env{
		Subsystems:       subsystems,
		Acker:            reaper,
		Log:              log,
		LogDir:           cfg.LogDir,
		RotateCap:        cfg.RotateCap,
		StopDrainTimeout: cfg.StopDrainTimeout.Std(),
		OnRotate:         stat.LogsRotated.Inc,
	}

	holder, err := container.NewHolder(env, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	restored := holder.RestoreAll()
	stat.Restores.Add(float64(restored))
	log.WithField("containers", restored).Info("restore complete")

	return &Daemon{
		cfg:      cfg,
		log:      log,
		store:    store,
		holder:   holder,
		reaper:   reaper,
		stat:     stat,
		requests: make(chan request),
		sigchld:  make(chan os.Signal, 1),
		shutdown: make(chan os.Signal, 1),
	}, nil
}

// Run serves RPC and dispatches events until SIGTERM or SIGINT, then
// stops every container, flushes persistence and returns
func (d *Daemon) Run() error {
	// the runtime delivers SIGCHLD on a buffered channel, the Go shape
	// of the self-pipe trick: the handler only queues a wakeup and the
	// dispatcher drains waitpid
	signal.Notify(d.sigchld, syscall.SIGCHLD)
	signal.Notify(d.shutdown, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(d.sigchld)
	defer signal.Stop(d.shutdown)

	srv, err := d.serveRPC()
	if err != nil {
		return err
	}
	defer srv.Close()

	stopMetrics, err := d.serveMetrics()
	if err != nil {
		return err
	}
	defer stopMetrics()

	heartbeat := time.NewTicker(d.cfg.HeartbeatPeriod.Std())
	defer heartbeat.Stop()

	d.log.WithField("socket", d.cfg.SocketPath).Info("portod is up")

	for {
		select {
		case req := <-d.requests:
			req.reply <- d.dispatch(req.line)
		case <-d.sigchld:
			d.reapChildren()
		case <-heartbeat.C:
			d.holder.Heartbeat()
			d.reaper.Expire()
		case sig := <-d.shutdown:
			d.log.WithField("signal", sig).Info("shutting down")
			d.holder.StopAll()
			return d.store.Close()
		}
	}
}

// reapChildren drains every pending exit and routes each to the holder;
// unclaimed statuses wait in the reaper's ack map for a racing Stop
func (d *Daemon) reapChildren() {
	for _, e := range d.reaper.Reap() {
		if !d.holder.DeliverExitStatus(e.Pid, e.Status) {
			d.reaper.Stash(e)
			d.stat.QueuedStatuses.Inc()
		}
	}
}
