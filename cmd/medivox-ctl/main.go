package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	cli "github.com/spf13/pflag"

	"medivox/internal/ipc"
	"medivox/internal/nlu"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	hospital := cli.String("hospital", "", "Hospital to rate (feedback only)")
	timeout := cli.DurationP("timeout", "t", 90*time.Second, "How long to wait for the daemon")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: medivox-ctl [flags] start|stop|toggle|cancel|status|feedback like|dislike\n")
		cli.PrintDefaults()
	}
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}

	msg := ipc.ControlMessage{Cmd: args[0], Hospital: *hospital}
	if len(args) > 1 {
		msg.Arg = args[1]
	}

	reply, err := ipc.SendCommand(*socket, msg, *timeout)
	if err != nil {
		fmt.Println("medivox-daemon not running:", err)
		os.Exit(1)
	}

	if reply.State != "" {
		fmt.Printf("[%s] ", reply.State)
	}
	fmt.Println(reply.Message)
	if reply.Target != "" {
		printTarget(reply.Target)
	}
	for i, h := range reply.Hospitals {
		fmt.Printf("%2d. %s\n", i+1, h)
	}
	if !reply.OK {
		if reply.Error != "" {
			fmt.Fprintln(os.Stderr, "error:", reply.Error)
		}
		os.Exit(1)
	}
}

func printTarget(raw string) {
	t, err := nlu.ParseTarget(raw)
	if err != nil {
		fmt.Println("→", raw)
		return
	}
	fmt.Println("→", t.Route)
	keys := make([]string, 0, len(t.Params))
	for k := range t.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("   %s: %s\n", k, t.Params[k])
	}
}
