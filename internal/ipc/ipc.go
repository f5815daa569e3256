package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"time"
)

const DefaultSocketPath = "/tmp/medivox.sock"

// Commands understood by the daemon.
const (
	CmdStart    = "start"
	CmdStop     = "stop"
	CmdToggle   = "toggle"
	CmdCancel   = "cancel"
	CmdStatus   = "status"
	CmdFeedback = "feedback"
)

type ControlMessage struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
	// Hospital names the feedback subject; empty means the last routed one.
	Hospital string `json:"hospital,omitempty"`
}

type Reply struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Target  string `json:"target,omitempty"`
	Error   string `json:"error,omitempty"`
	// Hospitals summarizes the last hospital search, on status only.
	Hospitals []string `json:"hospitals,omitempty"`
}

type Handler func(ControlMessage) Reply

// StartServer listens on path, replacing a stale socket file, and serves
// each connection on its own goroutine until the listener is closed.
func StartServer(path string, handler Handler) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if err != nil {
				log.Warn("ipc accept failed", "err", err)
				continue
			}
			go handleConn(conn, handler)
		}
	}()

	return ln, nil
}

func handleConn(conn net.Conn, handler Handler) {
	defer conn.Close()

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Debug("ipc decode failed", "err", err)
		return
	}

	reply := handler(msg)
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Debug("ipc reply failed", "cmd", msg.Cmd, "err", err)
	}
}

// SendCommand delivers one command and waits up to timeout for the reply.
func SendCommand(path string, msg ControlMessage, timeout time.Duration) (Reply, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()

	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}
