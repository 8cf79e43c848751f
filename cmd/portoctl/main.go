// Command portoctl talks the portod line protocol over the unix socket.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paivaric/porto/config"
)

func main() {
	var socketPath string

	root := &cobra.Command{
		Use:   "portoctl",
		Short: "porto container supervisor client",
	}
	root.PersistentFlags().StringVarP(&socketPath, "socket", "s",
		config.Default().SocketPath, "portod socket path")

	send := func(words ...string) error {
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			return err
		}
		defer conn.Close()
		if _, err := fmt.Fprintln(conn, strings.Join(words, " ")); err != nil {
			return err
		}
		reply, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			return err
		}
		reply = strings.TrimRight(reply, "\n")
		if strings.HasPrefix(reply, "err ") {
			return fmt.Errorf("%s", strings.TrimPrefix(reply, "err "))
		}
		if v := strings.TrimPrefix(reply, "ok"); v != "" {
			fmt.Println(strings.TrimPrefix(v, " "))
		}
		return nil
	}

	simple := func(use, short string, nargs int) *cobra.Command {
		verb := strings.Fields(use)[0]
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(nargs),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(append([]string{verb}, args...)...)
			},
		}
	}

	root.AddCommand(
		simple("create <name>", "create a container", 1),
		simple("destroy <name>", "destroy a container", 1),
		simple("start <name>", "start a container", 1),
		simple("stop <name>", "stop a container", 1),
		simple("pause <name>", "pause a container", 1),
		simple("resume <name>", "resume a container", 1),
		simple("get <name> <property>", "read a container property", 2),
		simple("data <name> <key>", "read a container data item", 2),
		simple("list", "list containers", 0),
		&cobra.Command{
			Use:   "set <name> <property> <value>",
			Short: "set a container property",
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(append([]string{"set"}, args...)...)
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "portoctl:", err)
		os.Exit(1)
	}
}
