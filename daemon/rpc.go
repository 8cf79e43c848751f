package daemon

import (
	"bufio"
	"net"
	"os"
	"strings"

	"github.com/paivaric/porto/pkg/porterror"
)

/*
Line protocol on the unix socket, one request per line:

- create <name> / destroy <name>
- start <name> / stop <name> / pause <name> / resume <name>
- get <name> <property>
- set <name> <property> <value...>
- data <name> <key>
- list

Replies are a single line: "ok", "ok <value>" or "err <Kind> <detail>".
Connection handlers only parse and forward; every operation runs on the
dispatcher.
*/

// serveRPC listens on the configured unix socket and feeds request lines
// to the dispatcher
func (d *Daemon) serveRPC() (net.Listener, error) {
	os.Remove(d.cfg.SocketPath)
	l, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return nil, err
	}
	go d.acceptLoop(l)
	return l, nil
}

func (d *Daemon) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go d.handleConn(conn)
	}
}

func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		req := request{line: line, reply: make(chan string, 1)}
		d.requests <- req
		if _, err := conn.Write([]byte(<-req.reply + "\n")); err != nil {
			return
		}
	}
}

// dispatch executes one request line on the dispatcher thread
func (d *Daemon) dispatch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "err InvalidValue empty request"
	}
	op := fields[0]
	args := fields[1:]

	value, err := d.execute(op, args)
	if err != nil {
		d.stat.Errors.Inc()
		return "err " + porterror.GetKind(err).String() + " " + err.Error()
	}
	if value != "" {
		return "ok " + value
	}
	return "ok"
}

func (d *Daemon) execute(op string, args []string) (string, error) {
	switch op {
	case "list":
		return strings.Join(d.holder.List(), " "), nil
	case "create":
		if len(args) != 1 {
			return "", porterror.New(porterror.InvalidValue, "usage: create <name>")
		}
		return "", d.holder.Create(args[0])
	case "destroy":
		if len(args) != 1 {
			return "", porterror.New(porterror.InvalidValue, "usage: destroy <name>")
		}
		return "", d.holder.Destroy(args[0])
	}

	// everything else addresses an existing container
	if len(args) < 1 {
		return "", porterror.Newf(porterror.InvalidValue, "usage: %s <name> ...", op)
	}
	c := d.holder.Get(args[0])
	if c == nil {
		return "", porterror.Newf(porterror.InvalidValue, "container %q does not exist", args[0])
	}
	c.Reconcile()

	switch op {
	case "start":
		err := c.Start()
		if err == nil {
			d.stat.Spawned.Inc()
		}
		return "", err
	case "stop":
		return "", c.Stop()
	case "pause":
		return "", c.Pause()
	case "resume":
		return "", c.Resume()
	case "get":
		if len(args) != 2 {
			return "", porterror.New(porterror.InvalidValue, "usage: get <name> <property>")
		}
		return c.GetProperty(args[1])
	case "set":
		if len(args) < 3 {
			return "", porterror.New(porterror.InvalidValue, "usage: set <name> <property> <value>")
		}
		return "", c.SetProperty(args[1], strings.Join(args[2:], " "))
	case "data":
		if len(args) != 2 {
			return "", porterror.New(porterror.InvalidValue, "usage: data <name> <key>")
		}
		return c.GetData(args[1])
	default:
		return "", porterror.Newf(porterror.InvalidValue, "unknown command %q", op)
	}
}
