package transport

import (
	"bufio"
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testLog() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func launchConnector(t *testing.T, port int) *TCPLaunchConnector {
	t.Helper()
	t.Setenv(helperModeEnv, "tcp-client")
	return &TCPLaunchConnector{
		Path: os.Args[0],
		Port: port,
		Log:  testLog(),
	}
}

func TestTCPLaunchRandomPort(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := launchConnector(t, 0)
	ch, err := c.Source()(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ch.Close()

	conn, ok := ch.(interface{ LocalAddr() net.Addr })
	if !ok {
		t.Fatalf("channel is not a socket: %T", ch)
	}
	port := conn.LocalAddr().(*net.TCPAddr).Port
	if port == 0 {
		t.Fatal("bound port is zero")
	}

	// The channel carries the server's bytes.
	line, err := bufio.NewReader(ch).ReadString('\n')
	if err != nil {
		t.Fatalf("read from channel: %v", err)
	}
	if !strings.Contains(line, "hello from server") {
		t.Errorf("unexpected server greeting %q", line)
	}
}

func TestTCPLaunchFirstSocketWins(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := launchConnector(t, 0)
	ch, err := c.Source()(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ch.Close()

	addr := ch.(interface{ LocalAddr() net.Addr }).LocalAddr().String()

	// The listener must be gone after the first accepted connection.
	if conn, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		conn.Close()
		t.Fatal("second connection succeeded, listener not closed")
	}
}

func TestTCPLaunchPortConflict(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := launchConnector(t, port)
	ch, err := c.Source()(ctx)
	if err == nil {
		ch.Close()
		t.Fatal("expected bind error, got a channel")
	}
}

func TestTCPLaunchCancelledBeforeConnect(t *testing.T) {
	// A helper that never dials: stdio-cat ignores --tcpClientPort.
	t.Setenv(helperModeEnv, "stdio-cat")
	c := &TCPLaunchConnector{
		Path: os.Args[0],
		Port: 0,
		Log:  testLog(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := c.Source()(ctx)
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
}
