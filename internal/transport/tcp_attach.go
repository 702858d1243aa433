package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

// ErrListenerClosed indicates the attach listener was closed while a
// connection was still being awaited.
var ErrListenerClosed = errors.New("attach listener closed")

// TCPAttachConnector owns a long-lived listening socket that an externally
// managed server connects to. The listener outlives any single protocol
// client session: each client (re)start arms a fresh one-shot wait on the
// same socket. It never spawns a process.
type TCPAttachConnector struct {
	ln  net.Listener
	log *zap.SugaredLogger

	mu     sync.Mutex
	waiter chan net.Conn
	closed bool
}

// NewTCPAttachConnector binds the listener once for the whole bridge
// session. A bind failure is fatal for the activation attempt.
func NewTCPAttachConnector(port int, log *zap.SugaredLogger) (*TCPAttachConnector, error) {
	ln, err := net.Listen("tcp4", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on attach port %d: %w", port, err)
	}

	c := &TCPAttachConnector{ln: ln, log: log}
	go c.acceptLoop()

	log.Infof("awaiting server connections on port %d", c.Port())
	return c, nil
}

// Port returns the bound listening port.
func (c *TCPAttachConnector) Port() int {
	return c.ln.Addr().(*net.TCPAddr).Port
}

// Source returns a re-armable channel source: each invocation waits for the
// next inbound connection.
func (c *TCPAttachConnector) Source() ChannelSource {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		return c.ArmNextConnection(ctx)
	}
}

// ArmNextConnection registers this call as the single pending waiter and
// blocks until the next inbound connection. A previous still-pending waiter
// is superseded: at most one registration exists at any time, so a stale
// session can never steal a connection from its successor.
func (c *TCPAttachConnector) ArmNextConnection(ctx context.Context) (io.ReadWriteCloser, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrListenerClosed
	}
	if c.waiter != nil {
		// Defensive cleanup: drop the registration left by a previous
		// client session that never saw a connection.
		close(c.waiter)
	}
	ch := make(chan net.Conn, 1)
	c.waiter = ch
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		c.disarm(ch)
		return nil, ctx.Err()
	case conn, ok := <-ch:
		if !ok {
			return nil, ErrListenerClosed
		}
		c.log.Infof("server connected from %s", conn.RemoteAddr())
		return conn, nil
	}
}

// disarm removes ch if it is still the registered waiter. Guards the race
// where a connection is delivered concurrently with cancellation: a conn
// already handed to ch must not leak.
func (c *TCPAttachConnector) disarm(ch chan net.Conn) {
	c.mu.Lock()
	if c.waiter == ch {
		c.waiter = nil
	}
	c.mu.Unlock()

	select {
	case conn, ok := <-ch:
		if ok && conn != nil {
			conn.Close()
		}
	default:
	}
}

// acceptLoop delivers each inbound connection to the current waiter.
// Connections arriving with no waiter armed are refused.
func (c *TCPAttachConnector) acceptLoop() {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			c.mu.Lock()
			c.closed = true
			if c.waiter != nil {
				close(c.waiter)
				c.waiter = nil
			}
			c.mu.Unlock()
			return
		}

		// Deliver under the lock (the waiter channel is buffered) so a
		// concurrently disarming waiter either sees the conn in its
		// channel or was deregistered before the send.
		c.mu.Lock()
		if c.waiter != nil {
			c.waiter <- conn
			c.waiter = nil
			c.mu.Unlock()
			continue
		}
		c.mu.Unlock()

		c.log.Debugf("refusing connection from %s: no client waiting", conn.RemoteAddr())
		conn.Close()
	}
}

// Close shuts the listener down. Only the bridge's deactivation path calls
// this; individual client sessions never do.
func (c *TCPAttachConnector) Close() error {
	return c.ln.Close()
}
