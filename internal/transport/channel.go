// Package transport establishes the duplex byte channel between the bridge
// and the Kotlin language server across the four transport modes.
package transport

import (
	"context"
	"io"
	"os"
	"runtime"
)

// ChannelSource produces the duplex channel for one protocol-client session.
// Stdio and TCP launch sources are one-shot: every invocation spawns a fresh
// server connection. The TCP attach source is re-armable and may be invoked
// once per client (re)start against the same listener.
type ChannelSource func(ctx context.Context) (io.ReadWriteCloser, error)

// DebugConfig enables JVM remote debugging of the spawned server. It is read
// once at stdio connector construction.
type DebugConfig struct {
	Enabled     bool
	AutoSuspend bool
	Port        int
}

// ensureExecutable sets the executable bit on the server launcher. Best
// effort: a failure here surfaces later as a spawn failure with a clearer
// message than a chmod error would give.
func ensureExecutable(path string) {
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode()&0o111 == 0 {
		os.Chmod(path, info.Mode()|0o111)
	}
}
