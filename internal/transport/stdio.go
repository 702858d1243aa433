package transport

import (
	"context"
	"io"

	"go.uber.org/zap"
)

// StdioConnector spawns the server and uses its standard streams as the
// duplex channel. Stderr is forwarded to the log sink.
type StdioConnector struct {
	// Path is the server launcher executable.
	Path string

	// WorkDir is the working directory for the server, normally the first
	// workspace root. Empty means inherit.
	WorkDir string

	JavaHome string
	JavaOpts string
	Debug    DebugConfig

	Log *zap.SugaredLogger
}

// Source returns a one-shot channel source that spawns the server on each
// invocation.
func (c *StdioConnector) Source() ChannelSource {
	return c.connect
}

func (c *StdioConnector) connect(ctx context.Context) (io.ReadWriteCloser, error) {
	ensureExecutable(c.Path)

	proc, err := startServerProcess(c.Path, nil, c.environ(), c.WorkDir, c.Log)
	if err != nil {
		return nil, err
	}

	go proc.forward("stderr", proc.stderr)
	go proc.watchExit()

	return &stdioChannel{proc: proc}, nil
}

// environ builds the server environment, including the JVM remote-debugging
// flags when debug attach is enabled.
func (c *StdioConnector) environ() []string {
	debug := c.Debug
	return serverEnv(c.JavaHome, c.JavaOpts, &debug)
}

// stdioChannel is the duplex channel over the process's stdout/stdin pair.
// Closing it terminates the server process.
type stdioChannel struct {
	proc *serverProcess
}

func (ch *stdioChannel) Read(p []byte) (int, error)  { return ch.proc.stdout.Read(p) }
func (ch *stdioChannel) Write(p []byte) (int, error) { return ch.proc.stdin.Write(p) }

func (ch *stdioChannel) Close() error {
	ch.proc.kill()
	return nil
}
