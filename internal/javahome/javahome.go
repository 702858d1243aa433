// Package javahome locates a Java installation for the spawned server.
package javahome

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrNotFound indicates no usable Java installation was located.
var ErrNotFound = errors.New("no Java installation found (set JAVA_HOME or add java to PATH)")

// Resolve returns the Java home directory, preferring JAVA_HOME and falling
// back to the java binary on PATH. The result is what gets propagated to the
// server process as JAVA_HOME.
func Resolve() (string, error) {
	if home := os.Getenv("JAVA_HOME"); home != "" {
		if hasJava(home) {
			return home, nil
		}
	}

	path, err := exec.LookPath(javaBinary())
	if err != nil {
		return "", ErrNotFound
	}

	// Follow symlinks (e.g. /usr/bin/java -> .../jdk/bin/java) so the
	// reported home is the real installation.
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	home := filepath.Dir(filepath.Dir(path))
	if !hasJava(home) {
		return "", ErrNotFound
	}
	return home, nil
}

func hasJava(home string) bool {
	_, err := os.Stat(filepath.Join(home, "bin", javaBinary()))
	return err == nil
}

func javaBinary() string {
	if runtime.GOOS == "windows" {
		return "java.exe"
	}
	return "java"
}
