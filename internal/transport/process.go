package transport

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/zap"
)

// serverProcess is a spawned language server. Its output streams are
// forwarded to the shared log sink; its exit is logged but not otherwise
// acted upon.
type serverProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	log    *zap.SugaredLogger
}

// startServerProcess spawns the launcher with the given extra arguments and
// environment overlay.
func startServerProcess(path string, args []string, env []string, workDir string, log *zap.SugaredLogger) (*serverProcess, error) {
	cmd := exec.Command(path, args...)
	cmd.Dir = workDir
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("start %s: %w", path, err)
	}

	p := &serverProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		log:    log,
	}
	log.Infof("server process started (pid %d)", cmd.Process.Pid)
	return p, nil
}

// forward copies a stream chunk by chunk into the log sink until EOF.
func (p *serverProcess) forward(name string, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.log.Debugf("[server %s] %s", name, string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// watchExit waits for the process and emits one final line with the exit
// code and signal. Recovery, if any, belongs to the protocol client layer.
func (p *serverProcess) watchExit() {
	err := p.cmd.Wait()

	code := 0
	signal := ""
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			signal = ws.Signal().String()
		}
	}
	p.log.Infof("server process exited (code %d, signal %q)", code, signal)
}

// kill terminates the process and releases its pipes.
func (p *serverProcess) kill() {
	p.stdin.Close()
	p.stdout.Close()
	p.stderr.Close()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
}

// serverEnv builds the environment for a spawned server on top of the
// current process environment. debug may be nil for spawn paths that do not
// support JVM remote debugging.
func serverEnv(javaHome, javaOpts string, debug *DebugConfig) []string {
	env := os.Environ()
	if javaHome != "" {
		env = append(env, "JAVA_HOME="+javaHome)
	}
	if javaOpts != "" {
		env = append(env, "JAVA_OPTS="+javaOpts)
	}
	if debug != nil && debug.Enabled {
		env = append(env, "KOTLIN_LANGUAGE_SERVER_OPTS="+jdwpFlags(debug.Port, debug.AutoSuspend))
	}
	return env
}

// jdwpFlags renders the JVM remote-debugging flag string.
func jdwpFlags(port int, suspend bool) string {
	s := "n"
	if suspend {
		s = "y"
	}
	return fmt.Sprintf("-Xdebug -agentlib:jdwp=transport=dt_socket,address=%d,server=y,quiet=y,suspend=%s", port, s)
}
