// Package dap boots the Kotlin debug adapter and verifies the Debug Adapter
// Protocol handshake. Debug session semantics stay with the editor-side DAP
// client; the bridge only proves the adapter is reachable.
package dap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/google/go-dap"
	"go.uber.org/zap"
)

// Adapter supervises one debug adapter process over its standard streams.
type Adapter struct {
	// Path is the debug adapter launcher executable.
	Path string

	Log *zap.SugaredLogger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
	seq    atomic.Int64
}

// Start spawns the adapter and performs an initialize round-trip. The
// response must arrive before Start returns; events preceding it (such as
// the adapter's initialized event) are consumed.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cmd != nil {
		return fmt.Errorf("debug adapter already started")
	}

	cmd := exec.Command(a.Path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("start %s: %w", a.Path, err)
	}

	a.cmd = cmd
	a.stdin = stdin
	a.reader = bufio.NewReader(stdout)

	go a.forwardStderr(stderr)
	go func() {
		cmd.Wait()
		a.Log.Infof("debug adapter exited")
	}()

	if err := a.initialize(ctx); err != nil {
		a.stopLocked()
		return fmt.Errorf("debug adapter handshake: %w", err)
	}

	a.Log.Infof("debug adapter ready (pid %d)", cmd.Process.Pid)
	return nil
}

func (a *Adapter) initialize(ctx context.Context) error {
	req := &dap.InitializeRequest{Request: a.newRequest("initialize")}
	req.Arguments = dap.InitializeRequestArguments{
		AdapterID:       "kotlin",
		PathFormat:      "path",
		LinesStartAt1:   true,
		ColumnsStartAt1: true,
		Locale:          "en",
	}
	if err := dap.WriteProtocolMessage(a.stdin, req); err != nil {
		return err
	}

	type result struct {
		msg dap.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			msg, err := dap.ReadProtocolMessage(a.reader)
			if err != nil {
				ch <- result{err: err}
				return
			}
			if _, ok := msg.(*dap.InitializeResponse); ok {
				ch <- result{msg: msg}
				return
			}
			// Events and reverse requests before the response are fine.
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		resp := r.msg.(*dap.InitializeResponse)
		if !resp.Success {
			return fmt.Errorf("initialize failed: %s", resp.Message)
		}
		return nil
	}
}

func (a *Adapter) newRequest(command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  int(a.seq.Add(1)),
			Type: "request",
		},
		Command: command,
	}
}

func (a *Adapter) forwardStderr(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			a.Log.Debugf("[debug adapter] %s", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// Stop terminates the adapter process.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *Adapter) stopLocked() {
	if a.cmd == nil {
		return
	}
	a.stdin.Close()
	if a.cmd.Process != nil {
		a.cmd.Process.Kill()
	}
	a.cmd = nil
}
