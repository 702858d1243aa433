package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"

	"go.uber.org/zap"
)

// TCPLaunchConnector opens a local listening socket, spawns the server with
// the bound port as an argument, and resolves the channel with the first
// inbound connection. Covers both the fixed-port and random-port modes: a
// Port of zero requests an OS-assigned port.
type TCPLaunchConnector struct {
	Path    string
	WorkDir string

	// Port to listen on; 0 means any free port. The port passed to the
	// server is always the actually bound one.
	Port int

	JavaHome string
	JavaOpts string

	Log *zap.SugaredLogger
}

// Source returns a one-shot channel source. Each invocation performs the
// listen/spawn/accept sequence exactly once and must not be reused for a
// second connection.
func (c *TCPLaunchConnector) Source() ChannelSource {
	return c.connect
}

func (c *TCPLaunchConnector) connect(ctx context.Context) (io.ReadWriteCloser, error) {
	ln, err := net.Listen("tcp4", fmt.Sprintf("127.0.0.1:%d", c.Port))
	if err != nil {
		return nil, fmt.Errorf("listen for server connection: %w", err)
	}

	port := ln.Addr().(*net.TCPAddr).Port
	c.Log.Infof("waiting for server connection on port %d", port)

	ensureExecutable(c.Path)

	args := []string{"--tcpClientPort", strconv.Itoa(port)}
	proc, err := startServerProcess(c.Path, args, serverEnv(c.JavaHome, c.JavaOpts, nil), c.WorkDir, c.Log)
	if err != nil {
		ln.Close()
		return nil, err
	}

	go proc.forward("stdout", proc.stdout)
	go proc.forward("stderr", proc.stderr)
	go proc.watchExit()

	// Unblock Accept if the caller gives up before the server connects.
	accepted := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-accepted:
		}
	}()

	conn, err := ln.Accept()
	close(accepted)

	// First socket wins: stop accepting as soon as one connection is in.
	ln.Close()

	if err != nil {
		proc.kill()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept server connection: %w", err)
	}

	c.Log.Infof("server connected from %s", conn.RemoteAddr())
	return &launchChannel{Conn: conn, proc: proc}, nil
}

// launchChannel ties the accepted socket to the spawned process: closing the
// channel also terminates the server.
type launchChannel struct {
	net.Conn
	proc *serverProcess
}

func (ch *launchChannel) Close() error {
	err := ch.Conn.Close()
	ch.proc.kill()
	return err
}
